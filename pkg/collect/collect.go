// Package collect pulls STAT entities across many sites or keywords at
// once and assembles them into tables.
package collect

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/stat-client/pkg/flatten"
	"github.com/Sternrassler/stat-client/pkg/pagination"
	"github.com/Sternrassler/stat-client/pkg/request"
	"github.com/Sternrassler/stat-client/pkg/stat"
	"github.com/Sternrassler/stat-client/pkg/table"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Metadata columns added to assembled tables.
const (
	ColumnDomain    = "Domain"
	ColumnProperty  = "Property"
	ColumnKeywordID = "KeywordId"
	ColumnSERPDate  = "SERP_Date"
)

// Collector fans queries out over a BatchFetcher.
type Collector struct {
	svc    *stat.Service
	batch  *pagination.BatchFetcher
	logger zerolog.Logger
}

// New creates a Collector.
func New(svc *stat.Service, batch *pagination.BatchFetcher) *Collector {
	return &Collector{
		svc:    svc,
		batch:  batch,
		logger: log.With().Str("component", "collect").Logger(),
	}
}

// Keywords pulls the keywords of every site. Each row carries its site
// title as Domain; rows follow site order.
func (c *Collector) Keywords(ctx context.Context, sites []stat.Site) (*table.Table, error) {
	queries := make([]request.Query, len(sites))
	for i, s := range sites {
		queries[i] = c.svc.Paged(request.Keywords(s.ID))
	}

	sources, err := c.sources(ctx, queries, flatten.KindKeyword, func(i int) []table.Pair {
		return []table.Pair{{Column: ColumnDomain, Value: flatten.String(sites[i].Title)}}
	})
	if err != nil {
		return nil, err
	}

	t := table.Assemble(sources...)
	c.logger.Info().Int("sites", len(sites)).Int("rows", t.Len()).Msg("Keywords collected")
	return t, nil
}

// Tags pulls the tags of every site with the site title as Property.
// A non-empty only keeps just those tag names.
func (c *Collector) Tags(ctx context.Context, sites []stat.Site, only []string) (*table.Table, error) {
	queries := make([]request.Query, len(sites))
	for i, s := range sites {
		queries[i] = c.svc.Paged(request.Tags(s.ID))
	}

	sources, err := c.sources(ctx, queries, flatten.KindTag, func(i int) []table.Pair {
		return []table.Pair{{Column: ColumnProperty, Value: flatten.String(sites[i].Title)}}
	})
	if err != nil {
		return nil, err
	}

	t := table.Assemble(sources...)
	if len(only) > 0 && t.Len() > 0 {
		if t, err = t.Filter("Tag", table.In(only...)); err != nil {
			return nil, err
		}
	}
	c.logger.Info().Int("sites", len(sites)).Int("rows", t.Len()).Msg("Tags collected")
	return t, nil
}

// SERPs pulls the result page of each keyword for date (zero means
// yesterday). Rows carry KeywordId and SERP_Date.
func (c *Collector) SERPs(ctx context.Context, keywordIDs []string, date time.Time) (*table.Table, error) {
	if date.IsZero() {
		date = c.svc.Yesterday()
	}
	queries := make([]request.Query, len(keywordIDs))
	for i, id := range keywordIDs {
		queries[i] = c.svc.SERPQuery(id, date)
	}

	sources, err := c.sources(ctx, queries, flatten.KindSERP, func(i int) []table.Pair {
		return []table.Pair{
			{Column: ColumnKeywordID, Value: flatten.String(keywordIDs[i])},
			{Column: ColumnSERPDate, Value: flatten.Date(date)},
		}
	})
	if err != nil {
		return nil, err
	}

	t := table.Assemble(sources...)
	c.logger.Info().Int("keywords", len(keywordIDs)).Int("rows", t.Len()).Msg("SERPs collected")
	return t, nil
}

func (c *Collector) sources(ctx context.Context, queries []request.Query, kind flatten.Kind, meta func(i int) []table.Pair) ([]table.Source, error) {
	results, err := c.batch.FetchAll(ctx, queries)
	if err != nil {
		return nil, err
	}

	sources := make([]table.Source, len(results))
	for i, raws := range results {
		recs, err := flatten.FlattenBatch(raws, kind)
		if err != nil {
			return nil, fmt.Errorf("flatten %s: %w", queries[i], err)
		}
		sources[i] = table.Source{Records: recs, Metadata: meta(i)}
	}
	return sources, nil
}
