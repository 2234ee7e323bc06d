// Package client provides the STAT HTTP client with throttling, quota
// tracking, response caching, and retries.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/stat-client/pkg/cache"
	"github.com/Sternrassler/stat-client/pkg/ratelimit"
	"github.com/Sternrassler/stat-client/pkg/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for STAT client operations.
var (
	statRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_requests_total",
		Help: "Total STAT requests by endpoint and status",
	}, []string{"endpoint", "status"})

	statRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stat_request_duration_seconds",
		Help:    "STAT request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	statErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_errors_total",
		Help: "Total STAT errors by class",
	}, []string{"class"})
)

// Response is a fully read STAT response.
type Response struct {
	StatusCode int
	Body       []byte

	// Cached is true when the body came from the response cache.
	Cached bool
}

// Success reports whether the status code's first digit is 2.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is the STAT API client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	quota      *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Redis enables the response cache and the shared daily quota. Optional.
	Redis *redis.Client

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// Client-side throttle.
	RequestsPerSecond float64
	Burst             int

	// DailyQuota caps requests per UTC day across processes sharing Redis.
	// 0 disables the cap (requests are still counted when Redis is set).
	DailyQuota int

	// CacheTTL is how long successful pages are cached. 0 disables caching.
	CacheTTL time.Duration

	// Retry. Zero values keep the per-class defaults.
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		Redis:             redis,
		UserAgent:         userAgent,
		Timeout:           60 * time.Second,
		RequestsPerSecond: 5,
		Burst:             1,
		CacheTTL:          1 * time.Hour,
		MaxRetries:        2,
	}
}

// New creates a new STAT client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	if cfg.DailyQuota < 0 {
		return nil, fmt.Errorf("daily_quota must be >= 0 (got %d)", cfg.DailyQuota)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	logger := log.With().Str("component", "stat-client").Logger()

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, burst),
		config:  cfg,
		logger:  logger,
	}

	if cfg.Redis != nil {
		c.quota = ratelimit.NewTracker(cfg.Redis, cfg.DailyQuota, logger)
		if cfg.CacheTTL > 0 {
			c.cache = cache.NewManager(cfg.Redis)
		}
	}

	return c, nil
}

// Do performs a GET for one page request with caching, quota, throttling,
// and retries.
//
// A non-2xx status is not an error: the final response is returned so the
// caller can apply its own policy. Errors mean no usable response exists
// (transport failure after retries, quota spent, cancelled context).
func (c *Client) Do(ctx context.Context, pr request.PageRequest) (*Response, error) {
	endpoint := pr.Endpoint

	startTime := time.Now()
	defer func() {
		statRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Cache
	var cacheKey cache.Key
	if c.cache != nil {
		cacheKey = c.cacheKey(pr)
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Str("endpoint", endpoint).Int("page", pr.Page).Msg("Cache hit")
			statRequestsTotal.WithLabelValues(endpoint, "cached").Inc()
			return &Response{StatusCode: entry.StatusCode, Body: entry.Body, Cached: true}, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	// Step 2: Quota
	if c.quota != nil {
		if _, err := c.quota.Acquire(ctx, pr.Account()); err != nil {
			statRequestsTotal.WithLabelValues(endpoint, "quota_blocked").Inc()
			return nil, fmt.Errorf("quota check: %w", err)
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", pr.Redacted()).
		Int("page", pr.Page).
		Msg("Executing STAT request")

	// Step 3: Request with retry
	var resp *Response
	retryErr := retryWithBackoff(ctx, c.retryConfig, func() (ErrorClass, error) {
		resp = nil

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("throttle wait: %w", err)
		}

		r, err := c.attempt(ctx, pr)
		if err != nil {
			c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			statErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			statRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return ErrorClassNetwork, err
		}

		resp = r
		statRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		class := classifyStatus(r.StatusCode)
		if class == "" {
			return "", nil
		}

		statErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", r.StatusCode).
			Str("error_class", string(class)).
			Msg("STAT request error")

		if !shouldRetry(class) {
			return class, nil
		}
		return class, &APIError{
			StatusCode: r.StatusCode,
			ErrorClass: class,
			Endpoint:   endpoint,
			Message:    http.StatusText(r.StatusCode),
		}
	})

	if retryErr != nil {
		// Retries spent on a status error: hand back the last response.
		var apiErr *APIError
		if resp != nil && errors.As(retryErr, &apiErr) {
			return resp, nil
		}
		return nil, retryErr
	}

	// Step 4: Cache successful pages
	if c.cache != nil && resp.Success() {
		if err := c.cache.Set(ctx, cacheKey, cache.NewPage(resp.StatusCode, resp.Body, c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return resp, nil
}

// attempt performs a single HTTP round trip and reads the body.
func (c *Client) attempt(ctx context.Context, pr request.PageRequest) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pr.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", redactURLError(err, pr))
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, redactURLError(err, pr)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{StatusCode: httpResp.StatusCode, Body: body}, nil
}

// retryConfig applies the configured overrides to the per-class defaults.
func (c *Client) retryConfig(class ErrorClass) RetryConfig {
	rc := RetryConfigForErrorClass(class)
	if c.config.MaxRetries > 0 {
		rc.MaxAttempts = c.config.MaxRetries + 1
	}
	if c.config.InitialBackoff > 0 {
		rc.InitialBackoff = c.config.InitialBackoff
		if rc.MaxBackoff < rc.InitialBackoff {
			rc.MaxBackoff = rc.InitialBackoff
		}
	}
	return rc
}

// cacheKey derives the key from the account fingerprint, endpoint and
// query, never the API key.
func (c *Client) cacheKey(pr request.PageRequest) cache.Key {
	var query url.Values
	if u, err := url.Parse(pr.URL); err == nil {
		query = u.Query()
	}
	return cache.KeyFor(pr.Account(), pr.Endpoint, query)
}

// redactURLError strips the API key out of *url.Error messages.
func redactURLError(err error, pr request.PageRequest) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return &url.Error{Op: uerr.Op, URL: pr.Redacted(), Err: uerr.Err}
	}
	return err
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetCache returns the cache manager, nil when caching is disabled.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}

// QuotaState returns today's request count of account, nil without Redis.
// account is a key fingerprint as returned by request.Fingerprint.
func (c *Client) QuotaState(ctx context.Context, account string) (*ratelimit.QuotaState, error) {
	if c.quota == nil {
		return nil, nil
	}
	return c.quota.GetState(ctx, account)
}
