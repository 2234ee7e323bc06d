// Package metrics exposes the Prometheus metrics of the STAT client.
// Metrics are defined in their own packages (client, cache, ratelimit,
// pagination, flatten) and registered through promauto; this package
// serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Handler returns the /metrics handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewMux returns a mux with /metrics and /health.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve exposes NewMux on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - stat_requests_total{endpoint, status} (Counter): requests by endpoint and HTTP status
//     ("cached", "quota_blocked" and "network_error" mark requests without a live status)
//   - stat_request_duration_seconds{endpoint} (Histogram): request duration
//   - stat_errors_total{class} (Counter): errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - stat_retries_total{error_class} (Counter): retry attempts
//   - stat_retry_backoff_seconds{error_class} (Histogram): backoff duration
//   - stat_retry_exhausted_total{error_class} (Counter): requests that used up their retries
//
// Quota Metrics (pkg/ratelimit):
//   - stat_quota_used{account} (Gauge): requests spent today per API key fingerprint
//   - stat_quota_blocks_total (Counter): requests refused by the daily quota
//   - stat_quota_warnings_total (Counter): requests issued above 90% of the quota
//
// Cache Metrics (pkg/cache):
//   - stat_cache_lookups_total{endpoint, result} (Counter): hit, miss or expired
//   - stat_cache_bytes_written_total{endpoint} (Counter)
//   - stat_cache_errors_total{operation} (Counter)
//
// Pagination Metrics (pkg/pagination):
//   - stat_pages_fetched_total{endpoint} (Counter): decoded pages
//   - stat_pagination_rejections_total{endpoint, status} (Counter): sessions halted by a non-2xx status
//   - stat_pagination_errors_total{kind} (Counter): fatal failures by kind
//
// Flatten Metrics (pkg/flatten):
//   - stat_records_flattened_total{kind} (Counter)
//   - stat_coercion_errors_total{kind} (Counter)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(stat_cache_lookups_total{result="hit"}[5m])) /
//   sum(rate(stat_cache_lookups_total[5m]))
//
//   # Partial pulls
//   increase(stat_pagination_rejections_total[1d]) > 0
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(stat_request_duration_seconds_bucket[5m]))
