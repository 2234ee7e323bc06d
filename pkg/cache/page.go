package cache

import "time"

// Page is a cached response page.
type Page struct {
	StatusCode int       `json:"status"`
	Body       []byte    `json:"body"`
	StoredAt   time.Time `json:"stored_at"`
	Expires    time.Time `json:"expires"`
}

// NewPage wraps a response body that stays fresh for ttl.
func NewPage(statusCode int, body []byte, ttl time.Duration) *Page {
	now := time.Now()
	return &Page{
		StatusCode: statusCode,
		Body:       body,
		StoredAt:   now,
		Expires:    now.Add(ttl),
	}
}

// Expired reports whether the page is stale at now.
func (p *Page) Expired(now time.Time) bool {
	return !now.Before(p.Expires)
}

// TTL is the remaining freshness, 0 once expired.
func (p *Page) TTL() time.Duration {
	return max(time.Until(p.Expires), 0)
}
