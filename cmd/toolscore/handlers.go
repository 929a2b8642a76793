package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/toolscore/internal/config"
	"github.com/elonfeng/toolscore/internal/logging"
	"github.com/elonfeng/toolscore/internal/scheduler"
	"github.com/elonfeng/toolscore/internal/seed"
	"github.com/elonfeng/toolscore/internal/store"
	"github.com/elonfeng/toolscore/pkg/alert"
	"github.com/elonfeng/toolscore/pkg/catalog"
	"github.com/elonfeng/toolscore/pkg/collector"
	"github.com/elonfeng/toolscore/pkg/recommend"
	"github.com/elonfeng/toolscore/pkg/scoring"
	"github.com/elonfeng/toolscore/pkg/server"
	"github.com/elonfeng/toolscore/pkg/suggestion"
)

// app holds everything a command needs. close releases the store and log file.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *store.SQLiteStore
	jobs   *scheduler.Jobs
	close  func()
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, closeLog := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	slog.SetDefault(logger)

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("open store: %w", err)
	}

	fetchers, err := buildFetchers(cfg)
	if err != nil {
		db.Close()
		closeLog()
		return nil, err
	}

	jobs := scheduler.NewJobs(scheduler.JobsConfig{
		Runner:            collector.NewRunner(db, logger),
		Fetchers:          fetchers,
		Reconciler:        scoring.NewReconciler(db, cfg.Trend.Threshold, cfg.Trend.ParseWindow(), logger),
		Merger:            suggestion.NewMerger(db, cfg.Suggestions.BatchSize, logger),
		Trends:            db,
		Alerts:            buildAlertManager(cfg),
		VoteThreshold:     cfg.Suggestions.VoteThreshold,
		MinTrendMagnitude: cfg.Alerts.MinTrendMagnitude,
		Logger:            logger,
	})

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		jobs:   jobs,
		close: func() {
			db.Close()
			closeLog()
		},
	}, nil
}

func buildFetchers(cfg *config.Config) ([]collector.Fetcher, error) {
	var fetchers []collector.Fetcher
	for _, src := range cfg.Collectors.Enabled() {
		cc, _ := cfg.Collectors.Get(src)
		f, err := collector.New(src, cc.Options())
		if err != nil {
			return nil, fmt.Errorf("build collector %s: %w", src, err)
		}
		fetchers = append(fetchers, f)
	}
	return fetchers, nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func buildServer(a *app, port int) *server.Server {
	if port == 0 {
		port = a.cfg.Server.Port
	}
	rec := recommend.NewService(a.db, recommend.NewEngine(a.cfg.Recommend.PriceCeiling, a.cfg.Recommend.Limit))
	return server.New(a.db, a.jobs, rec, server.Config{
		Port:       port,
		CronSecret: a.cfg.Server.CronSecret,
		Logger:     a.logger,
	})
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runCollect(parent context.Context, filterSources []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	// Filter to requested sources only.
	sources := a.jobs.Sources()
	if len(filterSources) > 0 {
		enabled := make(map[string]bool)
		for _, s := range sources {
			enabled[s] = true
		}
		sources = nil
		for _, s := range filterSources {
			s = strings.ToLower(strings.TrimSpace(s))
			if !enabled[s] {
				return fmt.Errorf("source %q is unknown or disabled", s)
			}
			sources = append(sources, s)
		}
	}
	if len(sources) == 0 {
		return errors.New("no collectors enabled")
	}

	ctx, cancel := signalContext(parent)
	defer cancel()

	for _, src := range sources {
		fmt.Fprintf(os.Stderr, "collecting from %s...\n", src)
		res, err := a.jobs.Collect(ctx, src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  error: %v\n", err)
			continue
		}
		fmt.Fprintf(os.Stderr, "  %s: %d/%d updated, %d skipped\n", res.Status(), res.Updated, res.Total, res.Skipped)
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "    %s\n", e)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil
}

func runReconcile(parent context.Context) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext(parent)
	defer cancel()

	res := a.jobs.Reconcile(ctx)
	fmt.Fprintf(os.Stderr, "reconcile %s: %d/%d tools updated\n", res.Status(), res.Updated, res.Total)
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", e)
	}
	return nil
}

func runMerge(parent context.Context) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.jobs.MergeSuggestions(parent)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "merged %d of %d approved suggestions\n", res.Merged, res.Total)
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", e)
	}
	return nil
}

func runRecommend(ctx context.Context, purpose, role, budget, korean string, jsonOutput bool) error {
	criteria, err := recommend.ParseCriteria(purpose, role, budget, korean)
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	engine := recommend.NewEngine(a.cfg.Recommend.PriceCeiling, a.cfg.Recommend.Limit)
	recs, err := recommend.NewService(a.db, engine).Query(ctx, criteria)
	if err != nil {
		return fmt.Errorf("recommend: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	if len(recs) == 0 {
		fmt.Println("no matching tools (try relaxing --budget or --korean)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tLEVEL\tTOOL\tREASONS")
	for _, r := range recs {
		level := string(r.Level)
		if level == "" {
			level = "-"
		}
		fmt.Fprintf(w, "%.1f\t%s\t%s\t%s\n", r.Tool.HybridScore, level, r.Tool.Name, strings.Join(r.Reasons, ", "))
	}
	return w.Flush()
}

func runStatus(ctx context.Context, jsonOutput bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	statuses, err := a.db.ListSourceStatuses(ctx)
	if err != nil {
		return err
	}
	count, err := a.db.CountTools(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"tools": count, "sources": statuses})
	}

	fmt.Printf("%d tools in catalog\n\n", count)
	if len(statuses) == 0 {
		fmt.Println("no runs recorded yet (try: toolscore collect)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tLAST FETCHED\tLAST ERROR")
	for _, s := range statuses {
		fetched := "-"
		if s.LastFetchedAt != nil {
			fetched = s.LastFetchedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Source, s.LastStatus, fetched, s.LastError)
	}
	return w.Flush()
}

func runImport(ctx context.Context, path string) error {
	f, err := seed.Load(path)
	if err != nil {
		return err
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	sum, err := seed.Apply(ctx, a.db, f)
	if err != nil {
		return fmt.Errorf("import %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "imported %d categories, %d new tools (%d existing), %d mappings, %d weights, %d suggestions\n",
		sum.Categories, sum.ToolsCreated, sum.ToolsExisting, sum.Mappings, sum.Weights, sum.Suggestions)
	if sum.Weights > 0 {
		warnMissingDefaults(os.Stderr, scoring.LoadTable(ctx, a.db))
	}
	return nil
}

func runWeights(ctx context.Context) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	table := scoring.LoadTable(ctx, a.db)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tKEY\tVALUE")
	printWeights(w, "(global)", table.Global)
	for _, cat := range slices.Sorted(maps.Keys(table.Categories)) {
		printWeights(w, cat, table.Categories[cat])
	}
	return w.Flush()
}

func printWeights(w io.Writer, category string, weights scoring.Weights) {
	for _, key := range slices.Sorted(maps.Keys(weights)) {
		fmt.Fprintf(w, "%s\t%s\t%g\n", category, key, weights[key])
	}
}

func runSetWeight(ctx context.Context, key, value, categorySlug string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v < 0 {
		return fmt.Errorf("invalid weight value %q", value)
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	entry := catalog.WeightEntry{Key: key, Value: v}
	if categorySlug != "" {
		cat, err := a.db.CategoryBySlug(ctx, categorySlug)
		if err != nil {
			return err
		}
		entry.Category = cat.ID
	}
	if err := a.db.SetWeight(ctx, entry); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s = %g\n", key, v)
	warnMissingDefaults(os.Stderr, scoring.LoadTable(ctx, a.db))
	return nil
}

// warnMissingDefaults reports built-in weights that stored global weights
// have displaced. Missing keys weigh zero.
func warnMissingDefaults(w io.Writer, table scoring.Table) {
	missing := table.MissingDefaults()
	if len(missing) == 0 {
		return
	}
	fmt.Fprintf(w, "warning: %d default weights are not set and now count as 0: %s\n",
		len(missing), strings.Join(missing, ", "))
	fmt.Fprintln(w, "  set them with: toolscore weights set <key> <value>")
}

func runServe(port int) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	return buildServer(a, port).ListenAndServe(ctx)
}

func runDaemon(port int) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	collectSpecs := make(map[string]string)
	for _, src := range a.jobs.Sources() {
		cc, _ := a.cfg.Collectors.Get(src)
		collectSpecs[src] = cc.Schedule
	}

	sched := scheduler.New(a.logger)
	if err := sched.Register(a.jobs, collectSpecs, a.cfg.Schedule.Reconcile, a.cfg.Schedule.Merge); err != nil {
		return err
	}

	// Refresh scores immediately on start.
	a.jobs.Reconcile(ctx)

	// Start scheduler in background.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("scheduler stopped", "error", err)
		}
	}()

	err = buildServer(a, port).ListenAndServe(ctx)
	cancel()
	<-done
	fmt.Fprintln(os.Stderr, "shut down")
	return err
}
