package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned when no fresh page is stored under a key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned for a stored value that does not decode.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_cache_lookups_total",
		Help: "STAT page cache lookups by endpoint and result (hit, miss, expired)",
	}, []string{"endpoint", "result"})

	cacheBytesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_cache_bytes_written_total",
		Help: "Bytes written to the STAT page cache by endpoint",
	}, []string{"endpoint"})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_cache_errors_total",
		Help: "STAT page cache errors by operation",
	}, []string{"operation"})
)

// Manager stores pages in Redis.
type Manager struct {
	redis *redis.Client
	now   func() time.Time
}

// NewManager creates a Manager. It panics on a nil client.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient, now: time.Now}
}

// Get returns the fresh page stored under key, or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key Key) (*Page, error) {
	raw, err := m.redis.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		cacheLookups.WithLabelValues(key.Endpoint, "miss").Inc()
		return nil, ErrCacheMiss
	}
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		cacheErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Expires is authoritative over the Redis TTL.
	if page.Expired(m.now()) {
		_ = m.Delete(ctx, key)
		cacheLookups.WithLabelValues(key.Endpoint, "expired").Inc()
		return nil, ErrCacheMiss
	}

	cacheLookups.WithLabelValues(key.Endpoint, "hit").Inc()
	return &page, nil
}

// Set stores page under key until page.Expires. Already expired pages are
// not stored.
func (m *Manager) Set(ctx context.Context, key Key, page *Page) error {
	if page == nil {
		return errors.New("cache page cannot be nil")
	}

	ttl := page.TTL()
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(page)
	if err != nil {
		cacheErrors.WithLabelValues("encode").Inc()
		return fmt.Errorf("marshal cache page: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	cacheBytesWritten.WithLabelValues(key.Endpoint).Add(float64(len(raw)))
	return nil
}

// Delete removes the page stored under key.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		cacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Invalidate removes every cached page of endpoint and returns how many were
// dropped, for every account. An empty endpoint clears the whole page cache.
// Quota counters are never touched.
func (m *Manager) Invalidate(ctx context.Context, endpoint string) (int, error) {
	pattern := KeyPrefix + "*"
	if strings.Trim(endpoint, "/") != "" {
		pattern = endpointPattern(endpoint)
	}

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			cacheErrors.WithLabelValues("invalidate").Inc()
			return removed, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := m.redis.Del(ctx, keys...).Result()
			if err != nil {
				cacheErrors.WithLabelValues("invalidate").Inc()
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}
