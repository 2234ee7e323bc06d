// Package cache provides a Redis-backed cache of STAT API pages.
//
// STAT data changes at most once a day per keyword, so repeated pulls of the
// same page (retries, overlapping site and tag pulls, re-runs after a sink
// failure) are served from Redis without spending request quota.
//
//	manager := cache.NewManager(redisClient)
//	key := cache.KeyFor(req.Account(), "/keywords/list", url.Values{"site_id": {"12"}})
//
//	page, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from STAT, then:
//		_ = manager.Set(ctx, key, cache.NewPage(200, body, time.Hour))
//	}
//
// Keys are built from the account fingerprint, the endpoint path and the
// query, never the API key itself.
// Only 2xx pages should be stored; rejected pages must reach the pager.
//
// Metrics:
//
//   - stat_cache_lookups_total{endpoint, result}
//   - stat_cache_bytes_written_total{endpoint}
//   - stat_cache_errors_total{operation}
package cache
