// Package request builds STAT API request URLs from logical queries and
// server-issued continuation tokens.
package request

import (
	"fmt"
	"time"
)

// DateLayout is the ISO-8601 calendar date format used by the STAT API.
const DateLayout = "2006-01-02"

// Page size limits accepted by the STAT API.
const (
	DefaultResults = 1000
	MaxResults     = 5000
)

// DefaultEngine is the search engine used for SERP queries when none is set.
const DefaultEngine = "google"

// Entity identifies the kind of data a Query asks for.
type Entity string

const (
	EntitySites        Entity = "sites"
	EntityTags         Entity = "tags"
	EntityKeywords     Entity = "keywords"
	EntitySiteSOV      Entity = "site_sov"
	EntityTagSOV       Entity = "tag_sov"
	EntitySiteRanks    Entity = "site_ranks"
	EntityTagRanks     Entity = "tag_ranks"
	EntitySERP         Entity = "serp"
	EntityKeywordRanks Entity = "keyword_ranks"
	EntityProjects     Entity = "projects"
	EntitySubaccounts  Entity = "subaccounts"
)

// Query is a logical request, e.g. "keywords for site 12".
// It is a value type; copies are independent.
type Query struct {
	Entity Entity

	// ScopeID is the site, tag or keyword id the query is scoped to.
	ScopeID string

	// From and To bound date-ranged entities (SOV, ranking distributions,
	// keyword rankings).
	From time.Time
	To   time.Time

	// Date is the snapshot day for SERP queries.
	Date time.Time

	// Engine is the search engine for SERP queries (default "google").
	Engine string

	// Start is the result offset of the first page.
	Start int

	// Results is the page size (1..5000, 0 means DefaultResults).
	Results int
}

// String returns a short description without any credentials.
func (q Query) String() string {
	if q.ScopeID == "" {
		return string(q.Entity)
	}
	return fmt.Sprintf("%s:%s", q.Entity, q.ScopeID)
}

// Sites lists every site the account can access.
func Sites() Query { return Query{Entity: EntitySites} }

// Tags lists the tags of a site.
func Tags(siteID string) Query { return Query{Entity: EntityTags, ScopeID: siteID} }

// Keywords lists the keywords of a site.
func Keywords(siteID string) Query { return Query{Entity: EntityKeywords, ScopeID: siteID} }

// SiteSOV is the share of voice of a site over a date range.
func SiteSOV(siteID string, from, to time.Time) Query {
	return Query{Entity: EntitySiteSOV, ScopeID: siteID, From: from, To: to}
}

// TagSOV is the share of voice of a tag over a date range.
func TagSOV(tagID string, from, to time.Time) Query {
	return Query{Entity: EntityTagSOV, ScopeID: tagID, From: from, To: to}
}

// SiteRanks is the ranking distribution of a site over a date range.
func SiteRanks(siteID string, from, to time.Time) Query {
	return Query{Entity: EntitySiteRanks, ScopeID: siteID, From: from, To: to}
}

// TagRanks is the ranking distribution of a tag over a date range.
func TagRanks(tagID string, from, to time.Time) Query {
	return Query{Entity: EntityTagRanks, ScopeID: tagID, From: from, To: to}
}

// SERP is the search results page of a keyword on one day.
func SERP(keywordID, engine string, date time.Time) Query {
	return Query{Entity: EntitySERP, ScopeID: keywordID, Engine: engine, Date: date}
}

// KeywordRanks lists the rankings of a keyword over a date range.
func KeywordRanks(keywordID string, from, to time.Time) Query {
	return Query{Entity: EntityKeywordRanks, ScopeID: keywordID, From: from, To: to}
}

// Projects lists the projects of the account.
func Projects() Query { return Query{Entity: EntityProjects} }

// Subaccounts lists the subaccounts of the account.
func Subaccounts() Query { return Query{Entity: EntitySubaccounts} }

// WithPage returns a copy of q with the given start offset and page size.
func (q Query) WithPage(start, results int) Query {
	q.Start = start
	q.Results = results
	return q
}
