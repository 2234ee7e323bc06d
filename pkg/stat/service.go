// Package stat exposes the STAT entities as typed operations on top of the
// pager: sites, tags, keywords, SERPs, share of voice and rankings.
package stat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/stat-client/pkg/flatten"
	"github.com/Sternrassler/stat-client/pkg/pagination"
	"github.com/Sternrassler/stat-client/pkg/request"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultLookbackDays is the length of the default date window.
const DefaultLookbackDays = 31

// Pager fetches paginated and raw results. *pagination.Pager implements it.
type Pager interface {
	Fetch(ctx context.Context, q request.Query) ([]pagination.RawRecord, error)
	FetchRaw(ctx context.Context, q request.Query) (pagination.RawRecord, error)
}

// Site is one tracked site. Title is used as the Domain of its rows.
type Site struct {
	ID    string
	Title string
}

// Options configures a Service.
type Options struct {
	// Results is the page size for every query (default 1000).
	Results int

	// Engine for SERP queries (default "google").
	Engine string

	// LookbackDays sizes the default window (default 31).
	LookbackDays int

	// Now is the clock used for default dates (default time.Now).
	Now func() time.Time
}

// Service runs STAT queries.
type Service struct {
	pager  Pager
	opts   Options
	logger zerolog.Logger
}

// New creates a Service.
func New(pager Pager, opts Options) *Service {
	if opts.Results <= 0 {
		opts.Results = request.DefaultResults
	}
	if opts.Engine == "" {
		opts.Engine = request.DefaultEngine
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = DefaultLookbackDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		pager:  pager,
		opts:   opts,
		logger: log.With().Str("component", "stat").Logger(),
	}
}

// Paged applies the configured page size to q.
func (s *Service) Paged(q request.Query) request.Query {
	if q.Results == 0 {
		q.Results = s.opts.Results
	}
	return q
}

// Today is the current calendar day in UTC.
func (s *Service) Today() time.Time {
	y, m, d := s.opts.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Yesterday is the default SERP date.
func (s *Service) Yesterday() time.Time {
	return s.Today().AddDate(0, 0, -1)
}

// DefaultWindow returns today-LookbackDays through yesterday.
func (s *Service) DefaultWindow() (from, to time.Time) {
	today := s.Today()
	return today.AddDate(0, 0, -s.opts.LookbackDays), today.AddDate(0, 0, -1)
}

func (s *Service) window(from, to time.Time) (time.Time, time.Time) {
	defFrom, defTo := s.DefaultWindow()
	if from.IsZero() {
		from = defFrom
	}
	if to.IsZero() {
		to = defTo
	}
	return from, to
}

// Sites lists every site the key can access.
func (s *Service) Sites(ctx context.Context) ([]Site, error) {
	raws, err := s.pager.Fetch(ctx, s.Paged(request.Sites()))
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	sites := make([]Site, 0, len(raws))
	for i, raw := range raws {
		id, err := flatten.Coerce(raw["Id"], flatten.TypeString)
		if err != nil || id.IsNull() || id.Str() == "" {
			return nil, fmt.Errorf("list sites: record %d has no usable Id: %w", i, flatten.ErrTypeCoercion)
		}
		title, err := flatten.Coerce(raw["Title"], flatten.TypeString)
		if err != nil {
			return nil, fmt.Errorf("list sites: record %d: %w", i, flatten.ErrTypeCoercion)
		}
		sites = append(sites, Site{ID: id.Str(), Title: title.Str()})
	}

	s.logger.Debug().Int("sites", len(sites)).Msg("Sites listed")
	return sites, nil
}

// Tags returns the flattened tags of a site.
func (s *Service) Tags(ctx context.Context, siteID string) ([]flatten.Record, error) {
	return s.flat(ctx, request.Tags(siteID), flatten.KindTag)
}

// Keywords returns the flattened keywords of a site.
func (s *Service) Keywords(ctx context.Context, siteID string) ([]flatten.Record, error) {
	return s.flat(ctx, request.Keywords(siteID), flatten.KindKeyword)
}

// SERP returns the flattened result page of a keyword on date. A zero date
// means yesterday.
func (s *Service) SERP(ctx context.Context, keywordID string, date time.Time) ([]flatten.Record, error) {
	return s.flat(ctx, s.SERPQuery(keywordID, date), flatten.KindSERP)
}

// SERPQuery is the paged SERP query for keywordID with the configured
// engine. A zero date means yesterday.
func (s *Service) SERPQuery(keywordID string, date time.Time) request.Query {
	if date.IsZero() {
		date = s.Yesterday()
	}
	return s.Paged(request.SERP(keywordID, s.opts.Engine, date))
}

// SiteSOV returns share of voice records of a site. Zero dates use the
// default window.
func (s *Service) SiteSOV(ctx context.Context, siteID string, from, to time.Time) ([]pagination.RawRecord, error) {
	from, to = s.window(from, to)
	return s.raw(ctx, request.SiteSOV(siteID, from, to))
}

// TagSOV returns share of voice records of a tag.
func (s *Service) TagSOV(ctx context.Context, tagID string, from, to time.Time) ([]pagination.RawRecord, error) {
	from, to = s.window(from, to)
	return s.raw(ctx, request.TagSOV(tagID, from, to))
}

// SiteRanks returns ranking distributions of a site.
func (s *Service) SiteRanks(ctx context.Context, siteID string, from, to time.Time) ([]pagination.RawRecord, error) {
	from, to = s.window(from, to)
	return s.raw(ctx, request.SiteRanks(siteID, from, to))
}

// TagRanks returns ranking distributions of a tag.
func (s *Service) TagRanks(ctx context.Context, tagID string, from, to time.Time) ([]pagination.RawRecord, error) {
	from, to = s.window(from, to)
	return s.raw(ctx, request.TagRanks(tagID, from, to))
}

// KeywordRanks returns the ranking history of a keyword.
func (s *Service) KeywordRanks(ctx context.Context, keywordID string, from, to time.Time) ([]pagination.RawRecord, error) {
	from, to = s.window(from, to)
	return s.raw(ctx, request.KeywordRanks(keywordID, from, to))
}

// Projects returns the raw projects envelope, nil when rejected.
func (s *Service) Projects(ctx context.Context) (pagination.RawRecord, error) {
	return s.pager.FetchRaw(ctx, s.Paged(request.Projects()))
}

// Subaccounts returns the raw subaccounts envelope, nil when rejected.
func (s *Service) Subaccounts(ctx context.Context) (pagination.RawRecord, error) {
	return s.pager.FetchRaw(ctx, s.Paged(request.Subaccounts()))
}

func (s *Service) raw(ctx context.Context, q request.Query) ([]pagination.RawRecord, error) {
	recs, err := s.pager.Fetch(ctx, s.Paged(q))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", q, err)
	}
	return recs, nil
}

func (s *Service) flat(ctx context.Context, q request.Query, kind flatten.Kind) ([]flatten.Record, error) {
	raws, err := s.raw(ctx, q)
	if err != nil {
		return nil, err
	}
	recs, err := flatten.FlattenBatch(raws, kind)
	if err != nil {
		return nil, fmt.Errorf("flatten %s: %w", q, err)
	}
	return recs, nil
}

// KeywordIDs returns the distinct keyword ids referenced by tag records,
// in first-seen order.
func KeywordIDs(tags []flatten.Record) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, tag := range tags {
		v, ok := tag.Get("Keywords")
		if !ok || v.IsNull() {
			continue
		}
		for _, id := range strings.Split(v.Str(), ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
