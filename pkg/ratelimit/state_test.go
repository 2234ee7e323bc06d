package ratelimit

import (
	"testing"
	"time"
)

func TestNewQuotaState(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 30, 0, 0, time.FixedZone("CET", 3600))
	s := newQuotaState(now, "", 100)

	if s.Day != "2024-03-15" {
		t.Errorf("Day = %q, want 2024-03-15", s.Day)
	}
	wantReset := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	if !s.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", s.ResetAt, wantReset)
	}
	if s.redisKey() != "stat:quota:2024-03-15" {
		t.Errorf("redisKey() = %q", s.redisKey())
	}

	acct := newQuotaState(now, "0a1b2c3d4e5f6071", 100)
	if acct.redisKey() != "stat:quota:0a1b2c3d4e5f6071:2024-03-15" {
		t.Errorf("redisKey() = %q", acct.redisKey())
	}
}

func TestQuotaState_Thresholds(t *testing.T) {
	tests := []struct {
		name          string
		used, limit   int
		wantRemaining int
		wantExhausted bool
		wantNear      bool
	}{
		{"unlimited", 5000, 0, -1, false, false},
		{"healthy", 10, 100, 90, false, false},
		{"at warning ratio", 90, 100, 10, false, true},
		{"at limit", 100, 100, 0, true, false},
		{"over limit", 150, 100, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &QuotaState{Used: tt.used, Limit: tt.limit}
			if got := s.Remaining(); got != tt.wantRemaining {
				t.Errorf("Remaining() = %d, want %d", got, tt.wantRemaining)
			}
			if got := s.Exhausted(); got != tt.wantExhausted {
				t.Errorf("Exhausted() = %v, want %v", got, tt.wantExhausted)
			}
			if got := s.NearLimit(); got != tt.wantNear {
				t.Errorf("NearLimit() = %v, want %v", got, tt.wantNear)
			}
		})
	}
}

func TestQuotaState_TimeUntilReset(t *testing.T) {
	past := &QuotaState{ResetAt: time.Now().Add(-time.Minute)}
	if got := past.TimeUntilReset(); got != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0", got)
	}

	future := &QuotaState{ResetAt: time.Now().Add(time.Hour)}
	if got := future.TimeUntilReset(); got < 59*time.Minute {
		t.Errorf("TimeUntilReset() = %v, want ~1h", got)
	}
}
