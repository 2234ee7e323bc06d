package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrQuotaExceeded is returned by Acquire when today's quota is spent.
var ErrQuotaExceeded = errors.New("daily request quota exceeded")

// Prometheus metrics for quota tracking.
var (
	statQuotaUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stat_quota_used",
		Help: "Requests issued against each STAT API key today",
	}, []string{"account"})

	statQuotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stat_quota_blocks_total",
		Help: "Total number of requests blocked because the daily quota was spent",
	})

	statQuotaWarningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stat_quota_warnings_total",
		Help: "Total number of requests issued above the quota warning ratio",
	})
)

// Tracker counts requests per UTC day in Redis and gates new ones.
type Tracker struct {
	redis  *redis.Client
	limit  int
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a new quota tracker. A limit <= 0 only counts.
func NewTracker(redisClient *redis.Client, limit int, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		limit:  limit,
		logger: logger,
		now:    time.Now,
	}
}

// GetState retrieves today's counter of account from Redis.
// A missing counter means no request was issued today.
func (t *Tracker) GetState(ctx context.Context, account string) (*QuotaState, error) {
	state := newQuotaState(t.now(), account, t.limit)

	used, err := t.redis.Get(ctx, state.redisKey()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get quota counter: %w", err)
	}
	state.Used = used

	return state, nil
}

// Acquire reserves one request from account's quota for today. Accounts
// are counted separately.
// It returns ErrQuotaExceeded, without consuming quota, once the limit is hit.
func (t *Tracker) Acquire(ctx context.Context, account string) (*QuotaState, error) {
	state := newQuotaState(t.now(), account, t.limit)
	key := state.redisKey()

	pipe := t.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, quotaKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("increment quota counter: %w", err)
	}
	state.Used = int(incr.Val())

	if t.limit > 0 && state.Used > t.limit {
		if err := t.redis.Decr(ctx, key).Err(); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to release quota reservation")
		}
		state.Used = t.limit
		statQuotaBlocksTotal.Inc()
		t.logger.Error().
			Str("account", account).
			Int("used", state.Used).
			Int("limit", t.limit).
			Dur("reset_in", state.TimeUntilReset()).
			Msg("STAT daily quota spent - blocking request")
		return state, fmt.Errorf("%w: %d/%d, resets at %s",
			ErrQuotaExceeded, state.Used, t.limit, state.ResetAt.Format(time.RFC3339))
	}

	statQuotaUsed.WithLabelValues(account).Set(float64(state.Used))

	if state.NearLimit() {
		statQuotaWarningsTotal.Inc()
		t.logger.Warn().
			Str("account", account).
			Int("used", state.Used).
			Int("limit", t.limit).
			Int("remaining", state.Remaining()).
			Msg("STAT daily quota nearly spent")
	}

	return state, nil
}
