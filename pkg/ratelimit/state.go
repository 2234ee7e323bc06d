// Package ratelimit tracks the STAT API request quota.
//
// STAT bills and throttles per API key. Several pulls (one per process, or
// one per site worker) can share a key, so the running count of requests
// issued today lives in Redis where every process sees it.
package ratelimit

import (
	"time"
)

// RedisKeyQuotaPrefix prefixes the per-day request counter. The account
// fingerprint and the UTC date (YYYY-MM-DD) complete the key:
//
//	stat:quota:<account>:2024-03-15
const RedisKeyQuotaPrefix = "stat:quota:"

// quotaKeyTTL keeps yesterday's counter around for inspection.
const quotaKeyTTL = 48 * time.Hour

// QuotaWarningRatio is the used/limit ratio above which requests are still
// allowed but logged as warnings.
const QuotaWarningRatio = 0.9

// QuotaState is the request count of one UTC day.
type QuotaState struct {
	// Account is the fingerprint of the API key the counter belongs to.
	Account string `json:"account,omitempty"`

	// Day is the UTC date the counter belongs to.
	Day string `json:"day"`

	// Used is the number of requests issued so far today.
	Used int `json:"used"`

	// Limit is the configured daily maximum; 0 means unlimited.
	Limit int `json:"limit"`

	// ResetAt is the next UTC midnight.
	ResetAt time.Time `json:"reset_at"`
}

// newQuotaState builds the state skeleton for the day containing now.
func newQuotaState(now time.Time, account string, limit int) *QuotaState {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return &QuotaState{
		Account: account,
		Day:     midnight.Format("2006-01-02"),
		Limit:   limit,
		ResetAt: midnight.Add(24 * time.Hour),
	}
}

// redisKey returns the Redis key of this state's counter.
func (s *QuotaState) redisKey() string {
	if s.Account == "" {
		return RedisKeyQuotaPrefix + s.Day
	}
	return RedisKeyQuotaPrefix + s.Account + ":" + s.Day
}

// Remaining returns how many requests are left today, or -1 when unlimited.
func (s *QuotaState) Remaining() int {
	if s.Limit <= 0 {
		return -1
	}
	if s.Used >= s.Limit {
		return 0
	}
	return s.Limit - s.Used
}

// Exhausted returns true if no request may be issued until ResetAt.
func (s *QuotaState) Exhausted() bool {
	return s.Limit > 0 && s.Used >= s.Limit
}

// NearLimit returns true once usage crosses QuotaWarningRatio.
func (s *QuotaState) NearLimit() bool {
	return s.Limit > 0 && float64(s.Used) >= float64(s.Limit)*QuotaWarningRatio && !s.Exhausted()
}

// TimeUntilReset returns the duration until the counter rolls over.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}
