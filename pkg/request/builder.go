package request

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the STAT API v2 root.
const DefaultBaseURL = "http://app.getstat.com/api/v2"

// Validation errors returned by Builder.
var (
	ErrMissingAPIKey    = errors.New("api key is required")
	ErrMissingScope     = errors.New("scope id is required")
	ErrMissingDate      = errors.New("date is required")
	ErrInvalidDateRange = errors.New("from date is after to date")
	ErrInvalidPageSize  = errors.New("invalid page size")
	ErrInvalidStart     = errors.New("start offset must be >= 0")
	ErrUnknownEntity    = errors.New("unknown entity")
	ErrInvalidNextPage  = errors.New("invalid continuation reference")
)

const redactedKey = "<redacted>"

// PageRequest is a single GET request descriptor.
type PageRequest struct {
	// URL is the full request URL including the API key.
	URL string

	// Endpoint is the API path without key or query, e.g. "/keywords/list".
	Endpoint string

	// Page is the 1-based position of this request in its pagination session.
	Page int

	apiKey string
}

// Redacted returns the URL with the API key masked, for logs.
func (r PageRequest) Redacted() string {
	if r.apiKey == "" {
		return r.URL
	}
	return strings.Replace(r.URL, "/"+r.apiKey+"/", "/"+redactedKey+"/", 1)
}

// Account returns the fingerprint of the request's API key.
func (r PageRequest) Account() string {
	return Fingerprint(r.apiKey)
}

// Fingerprint returns a short one-way digest of an API key: the first 8
// bytes of its SHA-256 in hex. It separates accounts in shared storage
// without exposing the key. An empty key has an empty fingerprint.
func Fingerprint(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:8])
}

type param struct {
	key   string
	value string
}

type route struct {
	path   string
	scoped bool
	params func(q Query) ([]param, error)
}

var routes = map[Entity]route{
	EntitySites:        {path: "/sites/all"},
	EntityTags:         {path: "/tags/list", scoped: true, params: siteParam},
	EntityKeywords:     {path: "/keywords/list", scoped: true, params: siteParam},
	EntitySiteSOV:      {path: "/sites/sov", scoped: true, params: rangeParams("id")},
	EntityTagSOV:       {path: "/tags/sov", scoped: true, params: rangeParams("id")},
	EntitySiteRanks:    {path: "/sites/ranking_distributions", scoped: true, params: rangeParams("id")},
	EntityTagRanks:     {path: "/tags/ranking_distributions", scoped: true, params: rangeParams("id")},
	EntitySERP:         {path: "/serps/show", scoped: true, params: serpParams},
	EntityKeywordRanks: {path: "/rankings/list", scoped: true, params: rangeParams("keyword_id")},
	EntityProjects:     {path: "/projects/list"},
	EntitySubaccounts:  {path: "/subaccounts/list"},
}

func siteParam(q Query) ([]param, error) {
	return []param{{"site_id", q.ScopeID}}, nil
}

func rangeParams(idKey string) func(q Query) ([]param, error) {
	return func(q Query) ([]param, error) {
		if q.From.IsZero() || q.To.IsZero() {
			return nil, fmt.Errorf("%w: %s needs from and to dates", ErrMissingDate, q.Entity)
		}
		if q.From.After(q.To) {
			return nil, fmt.Errorf("%w: %s > %s", ErrInvalidDateRange,
				q.From.Format(DateLayout), q.To.Format(DateLayout))
		}
		return []param{
			{idKey, q.ScopeID},
			{"from_date", q.From.Format(DateLayout)},
			{"to_date", q.To.Format(DateLayout)},
		}, nil
	}
}

func serpParams(q Query) ([]param, error) {
	if q.Date.IsZero() {
		return nil, fmt.Errorf("%w: serp needs a date", ErrMissingDate)
	}
	engine := q.Engine
	if engine == "" {
		engine = DefaultEngine
	}
	return []param{
		{"keyword_id", q.ScopeID},
		{"engine", engine},
		{"date", q.Date.Format(DateLayout)},
	}, nil
}

// Builder turns queries and continuation references into PageRequests.
type Builder struct {
	BaseURL string
	APIKey  string
}

// NewBuilder creates a Builder. An empty baseURL selects DefaultBaseURL.
func NewBuilder(baseURL, apiKey string) (*Builder, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Builder{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
	}, nil
}

// Account returns the fingerprint of the builder's API key.
func (b *Builder) Account() string {
	return Fingerprint(b.APIKey)
}

// prefix is the part every request URL shares: <base>/<api-key>.
func (b *Builder) prefix() string {
	return b.BaseURL + "/" + b.APIKey
}

// Build creates the first PageRequest of a query.
//
// The query string is written by hand because the API expects
// format, start and results first, followed by the endpoint parameters in a
// fixed order. url.Values would sort them.
func (b *Builder) Build(q Query) (PageRequest, error) {
	if b.APIKey == "" {
		return PageRequest{}, ErrMissingAPIKey
	}

	rt, ok := routes[q.Entity]
	if !ok {
		return PageRequest{}, fmt.Errorf("%w: %q", ErrUnknownEntity, q.Entity)
	}
	if rt.scoped && q.ScopeID == "" {
		return PageRequest{}, fmt.Errorf("%w: %s", ErrMissingScope, q.Entity)
	}

	results := q.Results
	if results == 0 {
		results = DefaultResults
	}
	if results < 1 || results > MaxResults {
		return PageRequest{}, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidPageSize, results, MaxResults)
	}
	if q.Start < 0 {
		return PageRequest{}, fmt.Errorf("%w: %d", ErrInvalidStart, q.Start)
	}

	var params []param
	if rt.params != nil {
		var err error
		if params, err = rt.params(q); err != nil {
			return PageRequest{}, err
		}
	}

	var sb strings.Builder
	sb.WriteString(b.prefix())
	sb.WriteString(rt.path)
	sb.WriteString("?format=json&start=")
	sb.WriteString(strconv.Itoa(q.Start))
	sb.WriteString("&results=")
	sb.WriteString(strconv.Itoa(results))
	for _, p := range params {
		sb.WriteByte('&')
		sb.WriteString(p.key)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.value))
	}

	return PageRequest{
		URL:      sb.String(),
		Endpoint: rt.path,
		Page:     1,
		apiKey:   b.APIKey,
	}, nil
}

// Continue resolves a server-supplied nextpage reference against the
// <base>/<api-key> prefix.
func (b *Builder) Continue(next string, page int) (PageRequest, error) {
	next = strings.TrimSpace(next)
	if next == "" {
		return PageRequest{}, fmt.Errorf("%w: empty", ErrInvalidNextPage)
	}
	if strings.Contains(next, "://") {
		return PageRequest{}, fmt.Errorf("%w: absolute reference %q", ErrInvalidNextPage, next)
	}
	if !strings.HasPrefix(next, "/") {
		next = "/" + next
	}

	endpoint := next
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		endpoint = endpoint[:i]
	}

	return PageRequest{
		URL:      b.prefix() + next,
		Endpoint: endpoint,
		Page:     page,
		apiKey:   b.APIKey,
	}, nil
}
