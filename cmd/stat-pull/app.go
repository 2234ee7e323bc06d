package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Sternrassler/stat-client/pkg/client"
	"github.com/Sternrassler/stat-client/pkg/collect"
	"github.com/Sternrassler/stat-client/pkg/config"
	"github.com/Sternrassler/stat-client/pkg/logging"
	"github.com/Sternrassler/stat-client/pkg/metrics"
	"github.com/Sternrassler/stat-client/pkg/pagination"
	"github.com/Sternrassler/stat-client/pkg/request"
	"github.com/Sternrassler/stat-client/pkg/sink"
	"github.com/Sternrassler/stat-client/pkg/stat"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// options are the persistent flags.
type options struct {
	configPath  string
	envFiles    []string
	logLevel    string
	metricsAddr string
	sqlitePath  string
	csvDir      string
	preview     int
	siteIDs     []string
}

// app is the wired pipeline of one run.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	client    *client.Client
	service   *stat.Service
	collector *collect.Collector
	sink      sink.Sink

	closers     []func() error
	stopMetrics context.CancelFunc
	metricsDone chan error
}

func loadConfig(opts *options) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.sqlitePath != "" {
		cfg.Output.SQLitePath = opts.sqlitePath
	}
	if opts.csvDir != "" {
		cfg.Output.CSVDir = opts.csvDir
	}
	if err := cfg.Require(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	logCfg := logging.Config{
		Level:  logging.LogLevel(cfg.Logging.Level),
		Pretty: cfg.Logging.Pretty,
		Output: os.Stderr,
	}
	if cfg.Logging.File != "" {
		session, err := logging.OpenSession(logCfg, cfg.Logging.File)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, session.Close)
	} else {
		logging.Setup(logCfg)
	}
	a.logger = logging.NewLogger("stat-pull")

	if cfg.Metrics.Addr != "" {
		mctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.stopMetrics = cancel
		a.metricsDone = make(chan error, 1)
		go func() { a.metricsDone <- metrics.Serve(mctx, cfg.Metrics.Addr) }()
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		ropts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return a, fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(ropts)
		a.closers = append(a.closers, rdb.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return a, fmt.Errorf("connect to redis: %w", err)
		}
		a.logger.Info().Str("addr", ropts.Addr).Msg("Connected to Redis")
	}

	ccfg := client.DefaultConfig(rdb, cfg.API.UserAgent)
	ccfg.Timeout = cfg.Client.Timeout.Duration
	ccfg.RequestsPerSecond = cfg.Client.RequestsPerSecond
	ccfg.Burst = cfg.Client.Burst
	ccfg.DailyQuota = cfg.Client.DailyQuota
	ccfg.CacheTTL = cfg.Client.CacheTTL.Duration
	ccfg.MaxRetries = cfg.Client.MaxRetries
	ccfg.InitialBackoff = cfg.Client.InitialBackoff.Duration

	a.client, err = client.New(ccfg)
	if err != nil {
		return a, fmt.Errorf("create client: %w", err)
	}
	a.closers = append(a.closers, a.client.Close)

	builder, err := request.NewBuilder(cfg.API.BaseURL, cfg.API.APIKey)
	if err != nil {
		return a, err
	}

	pcfg := pagination.Config{MaxPages: cfg.Pull.MaxPages, MaxConcurrency: cfg.Pull.Concurrency}
	pager := pagination.NewPager(a.client, builder, pcfg)
	a.service = stat.New(pager, stat.Options{
		Results:      cfg.API.Results,
		Engine:       cfg.API.Engine,
		LookbackDays: cfg.Pull.LookbackDays,
	})
	a.collector = collect.New(a.service, pagination.NewBatchFetcher(pager, pcfg))

	var sinks sink.Multi
	if cfg.Output.SQLitePath != "" {
		db, err := sink.OpenSQLite(cfg.Output.SQLitePath)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, db.Close)
		sinks = append(sinks, db)
	}
	if cfg.Output.CSVDir != "" {
		sinks = append(sinks, sink.CSVDir{Dir: cfg.Output.CSVDir})
	}
	a.sink = sinks

	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	if a.stopMetrics != nil {
		a.stopMetrics()
		if err := <-a.metricsDone; err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// sites lists the sites, restricted to ids when given.
func (a *app) sites(ctx context.Context, ids []string) ([]stat.Site, error) {
	all, err := a.service.Sites(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return all, nil
	}

	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []stat.Site
	for _, s := range all {
		if _, ok := want[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}
