package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/stat-client/pkg/flatten"
	"github.com/Sternrassler/stat-client/pkg/pagination"
	"github.com/Sternrassler/stat-client/pkg/request"
	"github.com/Sternrassler/stat-client/pkg/stat"
	"github.com/Sternrassler/stat-client/pkg/table"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "stat-pull",
		Short:         "stat-pull pulls keyword, tag and SERP tables from the STAT API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	pf.StringSliceVar(&opts.envFiles, "env-file", nil, ".env files to load (default .env)")
	pf.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
	pf.StringVar(&opts.sqlitePath, "db", "", "append tables to this SQLite database")
	pf.StringVar(&opts.csvDir, "csv-dir", "", "write tables as CSV into this directory")
	pf.IntVar(&opts.preview, "preview", 10, "rows to print per table, 0 for none, -1 for all")
	pf.StringSliceVar(&opts.siteIDs, "site", nil, "restrict to these site ids")

	root.AddCommand(
		newSitesCmd(opts),
		newKeywordsCmd(opts),
		newTagsCmd(opts),
		newSERPCmd(opts),
		newReportCmd(opts),
		newRawCmd(opts),
	)
	return root
}

// withApp wires a run for cmd and releases it after fn.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	start := time.Now()
	if err := fn(ctx, a); err != nil {
		a.logger.Error().Err(err).Str("command", cmd.Name()).Msg("Command failed")
		return err
	}
	a.logger.Info().Str("command", cmd.Name()).Dur("elapsed", time.Since(start)).Msg("Command finished")
	return nil
}

// emit writes t to the sinks and prints a preview.
func emit(ctx context.Context, cmd *cobra.Command, opts *options, a *app, name string, t *table.Table) error {
	if err := a.sink.Write(ctx, name, t); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if opts.preview == 0 {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d rows)\n", name, t.Len())
	limit := opts.preview
	if limit < 0 {
		limit = 0
	}
	t.Preview(cmd.OutOrStdout(), limit)
	return nil
}

func newSitesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List the sites the API key can access.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				sites, err := a.sites(ctx, opts.siteIDs)
				if err != nil {
					return err
				}
				t := table.New([]string{"Id", "Title"})
				for _, s := range sites {
					t.Rows = append(t.Rows, []flatten.Value{flatten.String(s.ID), flatten.String(s.Title)})
				}
				return emit(ctx, cmd, opts, a, "sites", t)
			})
		},
	}
}

func newKeywordsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "keywords",
		Short: "Pull keywords of every site into keyword rankings, rankings and stats.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				sites, err := a.sites(ctx, opts.siteIDs)
				if err != nil {
					return err
				}
				kw, err := a.collector.Keywords(ctx, sites)
				if err != nil {
					return err
				}
				if kw.Len() == 0 {
					a.logger.Warn().Int("sites", len(sites)).Msg("No keywords returned")
					return nil
				}
				out, err := table.SplitKeywordOutputs(kw)
				if err != nil {
					return err
				}
				if err := emit(ctx, cmd, opts, a, "keyword_rankings", out.KeywordRankings); err != nil {
					return err
				}
				if err := emit(ctx, cmd, opts, a, "rankings", out.Rankings); err != nil {
					return err
				}
				return emit(ctx, cmd, opts, a, "stats", out.Stats)
			})
		},
	}
}

func newTagsCmd(opts *options) *cobra.Command {
	var tags []string
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Pull the tags of every site.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				t, err := pullTags(ctx, a, opts, cmd.Flags().Changed("tag"), tags)
				if err != nil {
					return err
				}
				return emit(ctx, cmd, opts, a, "tags", t)
			})
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "keep only these tag names (default pull.tags)")
	return cmd
}

func newSERPCmd(opts *options) *cobra.Command {
	var (
		tags []string
		date string
	)
	cmd := &cobra.Command{
		Use:   "serp",
		Short: "Pull the SERPs of every keyword referenced by the selected tags.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDate(date)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				tagTable, err := pullTags(ctx, a, opts, cmd.Flags().Changed("tag"), tags)
				if err != nil {
					return err
				}
				ids := stat.KeywordIDs(records(tagTable))
				a.logger.Info().Int("keywords", len(ids)).Msg("Pulling SERPs")

				t, err := a.collector.SERPs(ctx, ids, day)
				if err != nil {
					return err
				}
				return emit(ctx, cmd, opts, a, "serps", t)
			})
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tags whose keywords are pulled (default pull.tags)")
	cmd.Flags().StringVar(&date, "date", "", "SERP date, YYYY-MM-DD (default yesterday)")
	return cmd
}

func pullTags(ctx context.Context, a *app, opts *options, override bool, tags []string) (*table.Table, error) {
	if !override {
		tags = a.cfg.Pull.Tags
	}
	sites, err := a.sites(ctx, opts.siteIDs)
	if err != nil {
		return nil, err
	}
	return a.collector.Tags(ctx, sites, tags)
}

// records views the rows of t as flattened records.
func records(t *table.Table) []flatten.Record {
	out := make([]flatten.Record, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = flatten.Record{Columns: t.Columns, Values: row}
	}
	return out
}

type reportFunc func(s *stat.Service, ctx context.Context, id string, from, to time.Time) ([]pagination.RawRecord, error)

var reports = map[string]reportFunc{
	"site-sov":      (*stat.Service).SiteSOV,
	"tag-sov":       (*stat.Service).TagSOV,
	"site-ranks":    (*stat.Service).SiteRanks,
	"tag-ranks":     (*stat.Service).TagRanks,
	"keyword-ranks": (*stat.Service).KeywordRanks,
}

func newReportCmd(opts *options) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "report <site-sov|tag-sov|site-ranks|tag-ranks|keyword-ranks> <id>",
		Short: "Print share of voice or ranking records as JSON lines.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, ok := reports[args[0]]
			if !ok {
				return fmt.Errorf("unknown report %q", args[0])
			}
			fromDate, err := parseDate(from)
			if err != nil {
				return err
			}
			toDate, err := parseDate(to)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				recs, err := run(a.service, ctx, args[1], fromDate, toDate)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, r := range recs {
					if err := enc.Encode(r); err != nil {
						return fmt.Errorf("encode record: %w", err)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default 31 days ago)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default yesterday)")
	return cmd
}

func newRawCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "raw <projects|subaccounts>",
		Short:     "Print an unpaginated response envelope as JSON.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"projects", "subaccounts"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				fetch := a.service.Projects
				if args[0] == "subaccounts" {
					fetch = a.service.Subaccounts
				}
				env, err := fetch(ctx)
				if err != nil {
					return err
				}
				if env == nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s request was rejected\n", args[0])
					return nil
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(env)
			})
		},
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(request.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
