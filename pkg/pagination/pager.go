package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/stat-client/pkg/client"
	"github.com/Sternrassler/stat-client/pkg/request"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_pages_fetched_total",
		Help: "Total number of decoded STAT pages by endpoint",
	}, []string{"endpoint"})

	paginationRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_pagination_rejections_total",
		Help: "Pagination sessions halted by a non-2xx status, by endpoint and status",
	}, []string{"endpoint", "status"})

	paginationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stat_pagination_errors_total",
		Help: "Fatal pagination failures by kind",
	}, []string{"kind"})
)

// RawRecord is one decoded record as delivered by the API.
// Numbers are kept as json.Number.
type RawRecord = map[string]any

// Fetcher performs one page request. *client.Client implements it.
type Fetcher interface {
	Do(ctx context.Context, pr request.PageRequest) (*client.Response, error)
}

// Config holds pager and batch fetcher configuration.
type Config struct {
	// MaxPages caps the pages followed in one session.
	MaxPages int

	// MaxConcurrency is the number of queries a BatchFetcher runs at once.
	MaxConcurrency int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxPages:       1000,
		MaxConcurrency: 4,
	}
}

// Rejection records the non-2xx status that ended a session early.
type Rejection struct {
	StatusCode int
	Page       int
}

// Result is the outcome of one pagination session.
type Result struct {
	Records []RawRecord

	// Pages is the number of pages decoded.
	Pages int

	// Rejection is set when an upstream status halted pagination.
	Rejection *Rejection
}

// Pager follows STAT nextpage references until the result set is exhausted.
type Pager struct {
	fetcher Fetcher
	builder *request.Builder
	config  Config
	logger  zerolog.Logger
}

// NewPager creates a pager.
func NewPager(fetcher Fetcher, builder *request.Builder, config Config) *Pager {
	if config.MaxPages <= 0 {
		config.MaxPages = 1000
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}

	return &Pager{
		fetcher: fetcher,
		builder: builder,
		config:  config,
		logger:  log.With().Str("component", "pagination").Logger(),
	}
}

// Fetch returns every record of q in page order.
//
// A non-2xx status halts pagination and the records gathered so far are
// returned without error, so a rejected first page yields an empty result.
func (p *Pager) Fetch(ctx context.Context, q request.Query) ([]RawRecord, error) {
	res, err := p.FetchPages(ctx, q)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// FetchPages is Fetch with page count and rejection details.
func (p *Pager) FetchPages(ctx context.Context, q request.Query) (res *Result, err error) {
	pr, err := p.builder.Build(q)
	if err != nil {
		return nil, err
	}

	logger := p.session(q)
	start := time.Now()
	res = &Result{}

	defer func() {
		ev := logger.Info()
		if err != nil {
			ev = logger.Error().Err(err)
		} else if res.Rejection != nil {
			ev = logger.Warn().Int("rejected_status", res.Rejection.StatusCode)
		}
		ev.Int("pages", res.Pages).
			Int("records", len(res.Records)).
			Dur("duration", time.Since(start)).
			Msg("Pagination session closed")
	}()

	seen := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("pagination cancelled after %d pages: %w", res.Pages, err)
		}
		if _, dup := seen[pr.URL]; dup {
			return res, p.fail(ErrUnboundedPagination, pr, errors.New("continuation repeats an earlier page"))
		}
		if pr.Page > p.config.MaxPages {
			return res, p.fail(ErrUnboundedPagination, pr, fmt.Errorf("more than %d pages", p.config.MaxPages))
		}
		seen[pr.URL] = struct{}{}

		resp, err := p.fetcher.Do(ctx, pr)
		if err != nil {
			return res, p.fail(ErrTransport, pr, err)
		}

		if !resp.Success() {
			res.Rejection = &Rejection{StatusCode: resp.StatusCode, Page: pr.Page}
			paginationRejectionsTotal.WithLabelValues(pr.Endpoint, strconv.Itoa(resp.StatusCode)).Inc()
			logger.Warn().
				Int("status", resp.StatusCode).
				Int("page", pr.Page).
				Msg("Upstream rejected page, returning partial result")
			return res, nil
		}

		records, next, err := decodePage(resp.Body)
		if err != nil {
			return res, p.fail(ErrMalformedPayload, pr, err)
		}

		res.Records = append(res.Records, records...)
		res.Pages++
		pagesFetchedTotal.WithLabelValues(pr.Endpoint).Inc()

		logger.Debug().
			Int("page", pr.Page).
			Int("records", len(records)).
			Bool("cached", resp.Cached).
			Msg("Page decoded")

		if next == "" {
			return res, nil
		}

		nextPR, err := p.builder.Continue(next, pr.Page+1)
		if err != nil {
			return res, p.fail(ErrMalformedPayload, pr, err)
		}
		pr = nextPR
	}
}

// FetchRaw returns the decoded envelope of the first page verbatim.
// A rejected request returns nil without error.
func (p *Pager) FetchRaw(ctx context.Context, q request.Query) (RawRecord, error) {
	pr, err := p.builder.Build(q)
	if err != nil {
		return nil, err
	}

	logger := p.session(q)
	resp, err := p.fetcher.Do(ctx, pr)
	if err != nil {
		return nil, p.fail(ErrTransport, pr, err)
	}
	if !resp.Success() {
		paginationRejectionsTotal.WithLabelValues(pr.Endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		logger.Warn().Int("status", resp.StatusCode).Msg("Upstream rejected raw request")
		return nil, nil
	}

	var envelope RawRecord
	if err := decodeJSON(resp.Body, &envelope); err != nil {
		return nil, p.fail(ErrMalformedPayload, pr, err)
	}
	if envelope == nil {
		return nil, p.fail(ErrMalformedPayload, pr, errors.New("envelope is null"))
	}

	logger.Debug().Msg("Raw envelope decoded")
	return envelope, nil
}

func (p *Pager) session(q request.Query) zerolog.Logger {
	return p.logger.With().
		Str("session", uuid.NewString()).
		Str("query", q.String()).
		Logger()
}

func (p *Pager) fail(kind error, pr request.PageRequest, err error) error {
	paginationErrorsTotal.WithLabelValues(kind.Error()).Inc()
	return &Error{Kind: kind, URL: pr.Redacted(), Page: pr.Page, Err: err}
}

// decodePage unwraps {"Response":{"Result":...,"nextpage":...}}.
func decodePage(body []byte) ([]RawRecord, string, error) {
	var envelope struct {
		Response map[string]json.RawMessage `json:"Response"`
	}
	if err := decodeJSON(body, &envelope); err != nil {
		return nil, "", err
	}
	if envelope.Response == nil {
		return nil, "", errors.New(`missing "Response" object`)
	}

	result, ok := envelope.Response["Result"]
	if !ok {
		return nil, "", errors.New(`missing "Result" member`)
	}

	var records []RawRecord
	switch trimmed := bytes.TrimSpace(result); {
	case bytes.Equal(trimmed, []byte("null")):
	case len(trimmed) > 0 && trimmed[0] == '{':
		var rec RawRecord
		if err := decodeJSON(trimmed, &rec); err != nil {
			return nil, "", fmt.Errorf("decode Result: %w", err)
		}
		records = []RawRecord{rec}
	default:
		if err := decodeJSON(trimmed, &records); err != nil {
			return nil, "", fmt.Errorf("decode Result: %w", err)
		}
		for i, rec := range records {
			if rec == nil {
				return nil, "", fmt.Errorf("result item %d is null", i)
			}
		}
	}

	var next string
	if raw, ok := envelope.Response["nextpage"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := json.Unmarshal(raw, &next); err != nil {
			return nil, "", fmt.Errorf("decode nextpage: %w", err)
		}
	}

	return records, next, nil
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
