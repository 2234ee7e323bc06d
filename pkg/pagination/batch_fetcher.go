package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/stat-client/pkg/request"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// QueryFetcher fetches all records of one query. *Pager implements it.
type QueryFetcher interface {
	Fetch(ctx context.Context, q request.Query) ([]RawRecord, error)
}

// BatchFetcher runs independent queries on a bounded worker pool.
type BatchFetcher struct {
	fetcher QueryFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(fetcher QueryFetcher, config Config) *BatchFetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches every query and returns results indexed like queries.
// The first fatal error cancels the remaining queries and is returned.
func (bf *BatchFetcher) FetchAll(ctx context.Context, queries []request.Query) ([][]RawRecord, error) {
	start := time.Now()
	results := make([][]RawRecord, len(queries))

	log.Info().
		Int("queries", len(queries)).
		Int("concurrency", bf.config.MaxConcurrency).
		Msg("Starting batch fetch")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for i, q := range queries {
		g.Go(func() error {
			records, err := bf.fetcher.Fetch(gctx, q)
			if err != nil {
				log.Warn().
					Err(err).
					Str("query", q.String()).
					Msg("Query fetch failed")
				return fmt.Errorf("query %d (%s): %w", i, q, err)
			}
			results[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	log.Info().
		Int("queries", len(queries)).
		Int("records", total).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results, nil
}
