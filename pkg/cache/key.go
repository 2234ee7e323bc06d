package cache

import (
	"net/url"
	"strings"
)

// KeyPrefix namespaces cached pages apart from the quota counters.
const KeyPrefix = "stat:cache:"

// noAccount stands in for an empty account fingerprint.
const noAccount = "_"

// Key identifies one cached STAT page: the account, the endpoint and its
// query. The API key itself never appears; Account is its fingerprint.
type Key struct {
	// Account is the API key fingerprint the page was fetched with.
	Account string

	// Endpoint is the API path, e.g. "/keywords/list".
	Endpoint string

	// Query holds the request query parameters.
	Query url.Values
}

// KeyFor builds a Key from an account fingerprint, an endpoint and its
// query parameters.
func KeyFor(account, endpoint string, query url.Values) Key {
	return Key{Account: account, Endpoint: endpoint, Query: query}
}

// String renders the Redis key. The query is encoded with sorted keys so
// parameter order does not matter:
//
//	stat:cache:0a1b2c3d4e5f6071:keywords/list?format=json&results=1000&site_id=12&start=0
func (k Key) String() string {
	account := k.Account
	if account == "" {
		account = noAccount
	}
	return KeyPrefix + account + ":" + strings.Trim(k.Endpoint, "/") + "?" + k.Query.Encode()
}

// endpointPattern matches every page of endpoint across all accounts.
// '?' is a wildcard in SCAN patterns and is escaped.
func endpointPattern(endpoint string) string {
	return KeyPrefix + "*:" + strings.Trim(endpoint, "/") + `\?*`
}
