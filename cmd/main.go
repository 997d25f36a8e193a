// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/term"

	"policyscan/internal/analysis"
	"policyscan/internal/cache"
	"policyscan/internal/compare"
	"policyscan/internal/config"
	"policyscan/internal/core"
	"policyscan/internal/cost"
	"policyscan/internal/fetch"
	"policyscan/internal/inference"
	"policyscan/internal/observability"
	"policyscan/internal/score"
	"policyscan/internal/validate"
	"policyscan/internal/version"
	"policyscan/internal/web"
	"policyscan/internal/workflow"

	"policyscan/internal/formatters"
	_ "policyscan/internal/formatters/csv"
	_ "policyscan/internal/formatters/json"
	_ "policyscan/internal/formatters/text"
	_ "policyscan/internal/formatters/yaml"
)

// cliFlags holds command line flag values
type cliFlags struct {
	configFile   string
	file         string
	appName      string
	inputCSV     string
	outputFormat string
	outputFile   string

	depth    string
	model    string
	workers  int
	clusters int

	force   bool
	resume  bool
	strict  bool
	noCache bool
	verbose bool
	debug   bool
	noColor bool
	quiet   bool

	validateOnly bool
	compareOnly  bool
	estimateCost bool
	serve        bool
	port         string

	showVersion bool
	listFormats bool
}

func parseFlags() *cliFlags {
	flags := &cliFlags{}

	flag.StringVar(&flags.configFile, "config", "", "Path to configuration file")
	flag.StringVar(&flags.file, "file", "", "Privacy policy to analyze (file path or URL)")
	flag.StringVar(&flags.appName, "app", "", "Application name for the analyzed policy")
	flag.StringVar(&flags.inputCSV, "input", "", "CSV file listing apps to analyze (app_name,url columns)")
	flag.StringVar(&flags.outputFormat, "format", "", "Output format: text, json, yaml, csv")
	flag.StringVar(&flags.outputFile, "output", "", "Write output to file instead of stdout")

	flag.StringVar(&flags.depth, "depth", "", "Analysis depth: quick, standard, deep")
	flag.StringVar(&flags.model, "model", "", "Model to use for analysis")
	flag.IntVar(&flags.workers, "workers", 0, "Number of concurrent workers for batch analysis")
	flag.IntVar(&flags.clusters, "clusters", 0, "Number of clusters in the comparative report")

	flag.BoolVar(&flags.force, "force", false, "Re-analyze even when a cached record exists")
	flag.BoolVar(&flags.resume, "resume", false, "Resume a batch run from the latest checkpoint")
	flag.BoolVar(&flags.strict, "strict", false, "Treat validation warnings as errors and drop partial records")
	flag.BoolVar(&flags.noCache, "no-cache", false, "Disable the record cache for this run")
	flag.BoolVar(&flags.verbose, "verbose", false, "Show detailed output")
	flag.BoolVar(&flags.debug, "debug", false, "Enable debug observability output")
	flag.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&flags.quiet, "quiet", false, "Suppress progress messages")

	flag.BoolVar(&flags.validateOnly, "validate", false, "Validate cached records and exit")
	flag.BoolVar(&flags.compareOnly, "compare", false, "Build a comparative report from cached records and exit")
	flag.BoolVar(&flags.estimateCost, "estimate-cost", false, "Estimate inference cost without analyzing")
	flag.BoolVar(&flags.serve, "web", false, "Start the web server")
	flag.StringVar(&flags.port, "port", "", "Web server listen address (overrides config)")

	flag.BoolVar(&flags.showVersion, "version", false, "Show version information")
	flag.BoolVar(&flags.listFormats, "list-formats", false, "List available output formats")

	flag.Parse()
	return flags
}

// isFlagSet checks whether a flag was explicitly provided on the command line
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Println(version.Info())
		return
	}
	if flags.listFormats {
		for _, name := range formatters.List() {
			if f, ok := formatters.Get(name); ok {
				fmt.Printf("%-8s %s\n", name, f.Description())
			}
		}
		return
	}

	cfg := config.LoadConfigOrDefault(flags.configFile)
	applyFlagOverrides(cfg, flags)

	if flags.noColor || cfg.Defaults.NoColor || !term.IsTerminal(int(os.Stdout.Fd())) {
		cfg.Defaults.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cliApp{cfg: cfg, flags: flags, observer: buildObserver(cfg)}

	var err error
	switch {
	case flags.serve:
		err = app.runServe(ctx)
	case flags.validateOnly:
		err = app.runValidate(ctx)
	case flags.compareOnly:
		err = app.runCompare(ctx)
	case flags.estimateCost:
		err = app.runEstimate(ctx)
	case flags.inputCSV != "":
		err = app.runBatch(ctx)
	case flags.file != "":
		err = app.runAnalyze(ctx)
	default:
		fmt.Fprintln(os.Stderr, "Error: nothing to do. Provide -file, -input, -validate, -compare, -estimate-cost, or -web.")
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlagOverrides folds explicit command line flags into the loaded
// configuration, so a flag always wins over the config file.
func applyFlagOverrides(cfg *config.Config, flags *cliFlags) {
	if isFlagSet("format") && flags.outputFormat != "" {
		cfg.Defaults.Format = flags.outputFormat
	}
	if isFlagSet("verbose") {
		cfg.Defaults.Verbose = flags.verbose
	}
	if isFlagSet("debug") {
		cfg.Defaults.Debug = flags.debug
	}
	if flags.depth != "" {
		cfg.Analysis.Depth = flags.depth
	}
	if flags.model != "" {
		cfg.LLM.Model = flags.model
	}
	if flags.workers > 0 {
		cfg.Workflow.Workers = flags.workers
	}
	if flags.clusters > 0 {
		cfg.Comparison.Clusters = flags.clusters
	}
	if isFlagSet("strict") {
		cfg.Validation.Strict = flags.strict
	}
	if flags.noCache {
		cfg.Cache.Backend = "none"
	}
	if flags.port != "" {
		addr := flags.port
		if !strings.Contains(addr, ":") {
			addr = ":" + addr
		}
		cfg.Web.Addr = addr
	}
	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

func buildObserver(cfg *config.Config) *observability.StandardObserver {
	level := observability.ObservabilityOff
	if cfg.Defaults.Verbose {
		level = observability.ObservabilityMetrics
	}
	if cfg.Defaults.Debug {
		level = observability.ObservabilityDebug
	}
	observer := observability.NewStandardObserver(level, os.Stderr)
	if level == observability.ObservabilityDebug {
		observer.DebugObserver = observability.NewDebugObserver(os.Stderr)
	}
	return observer
}

// cliApp bundles the loaded configuration with lazily built components.
type cliApp struct {
	cfg      *config.Config
	flags    *cliFlags
	observer *observability.StandardObserver
}

// buildCache wires the configured cache backend. Backend "none" returns
// a nil cache, which the pipeline treats as caching disabled.
func (a *cliApp) buildCache(ctx context.Context) (*cache.Cache, error) {
	switch a.cfg.Cache.Backend {
	case "none":
		return nil, nil
	case "redis":
		store, err := cache.NewRedisStore(ctx, a.cfg.Cache.Redis.Addr, a.cfg.Cache.Redis.Password,
			a.cfg.Cache.Redis.DB, a.cfg.RedisTTL())
		if err != nil {
			return nil, fmt.Errorf("connecting to redis cache: %w", err)
		}
		return cache.New(store), nil
	default:
		store, err := cache.NewDiskStore(a.cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening disk cache: %w", err)
		}
		return cache.New(store), nil
	}
}

// buildPipeline wires the inference clients and the analysis pipeline.
func (a *cliApp) buildPipeline(store *cache.Cache) (*core.Pipeline, error) {
	apiKey := a.cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key found; set %s", a.cfg.LLM.APIKeyEnv)
	}

	primary := inference.NewOpenAIClient(apiKey, a.cfg.LLM.Model, a.cfg.LLM.BaseURL, a.cfg.LLM.Temperature)
	var fallback inference.Client
	if a.cfg.LLM.FallbackModel != "" {
		fallback = inference.NewOpenAIClient(apiKey, a.cfg.LLM.FallbackModel, a.cfg.LLM.FallbackBaseURL, a.cfg.LLM.Temperature)
	}

	return core.NewPipeline(primary, fallback, store, a.observer, core.Options{
		Depth:          a.cfg.Analysis.Depth,
		MaxChunkTokens: a.cfg.Analysis.MaxChunkTokens,
		ChunkFanOut:    a.cfg.Analysis.ChunkFanOut,
		Retry:          a.cfg.RetryConfig(),
	}), nil
}

// batchValidateOptions converts the validation config section into the
// validate package's shape.
func (a *cliApp) batchValidateOptions() validate.BatchOptions {
	return validate.BatchOptions{
		Options: validate.Options{
			Tolerance: a.cfg.Validation.Tolerance,
			Strict:    a.cfg.Validation.Strict,
		},
		AnomalyThreshold: a.cfg.Validation.AnomalyThreshold,
		MinSample:        a.cfg.Validation.MinAnomalySample,
	}
}

// compareConfig converts the comparison config section into the compare
// package's shape.
func (a *cliApp) compareConfig() compare.Config {
	return compare.Config{
		ClusterCount:         a.cfg.Comparison.Clusters,
		QuotesPerTheme:       a.cfg.Comparison.QuotesPerTheme,
		MinCorrelationSample: a.cfg.Comparison.MinCorrelationSample,
	}
}

func (a *cliApp) formatterOptions() formatters.FormatterOptions {
	return formatters.FormatterOptions{
		Verbose: a.cfg.Defaults.Verbose,
		NoColor: a.cfg.Defaults.NoColor,
	}
}

// emit renders the payload and writes it to the output file or stdout.
func (a *cliApp) emit(payload formatters.Payload) error {
	out, err := formatters.Export(a.cfg.Defaults.Format, payload, a.formatterOptions())
	if err != nil {
		return err
	}
	if a.flags.outputFile != "" {
		if dir := filepath.Dir(a.flags.outputFile); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}
		}
		if err := os.WriteFile(a.flags.outputFile, []byte(out), 0o600); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
		if !a.flags.quiet {
			fmt.Fprintf(os.Stderr, "Output written to %s\n", a.flags.outputFile)
		}
		return nil
	}
	fmt.Println(out)
	return nil
}

// runAnalyze handles single-document analysis.
func (a *cliApp) runAnalyze(ctx context.Context) error {
	store, err := a.buildCache(ctx)
	if err != nil {
		return err
	}
	pipeline, err := a.buildPipeline(store)
	if err != nil {
		return err
	}

	fetcher := fetch.NewFetcher(a.cfg.FetchTimeout())
	text, err := fetcher.Fetch(ctx, a.flags.file)
	if err != nil {
		return err
	}

	appName := a.flags.appName
	if appName == "" {
		appName = deriveAppName(a.flags.file)
	}
	url := ""
	if strings.HasPrefix(a.flags.file, "http://") || strings.HasPrefix(a.flags.file, "https://") {
		url = a.flags.file
	}

	rec, err := pipeline.AnalyzeDocument(ctx, appName, url, text, a.flags.force)
	if err != nil {
		return err
	}

	scorer := score.NewScorer(a.cfg.Scoring.Weights, score.Thresholds(a.cfg.Scoring.Thresholds))
	risk := scorer.Score(rec)
	return a.emit(formatters.Payload{Record: rec, Risk: &risk})
}

// runBatch handles CSV-driven multi-document analysis.
func (a *cliApp) runBatch(ctx context.Context) error {
	apps, err := workflow.LoadAppsCSV(a.flags.inputCSV)
	if err != nil {
		return err
	}

	store, err := a.buildCache(ctx)
	if err != nil {
		return err
	}
	pipeline, err := a.buildPipeline(store)
	if err != nil {
		return err
	}

	if !a.flags.quiet {
		fmt.Fprintf(os.Stderr, "Analyzing %d policies with %d workers...\n", len(apps), a.cfg.Workflow.Workers)
	}

	runner := workflow.NewRunner(pipeline, fetch.NewFetcher(a.cfg.FetchTimeout()), a.observer, workflow.Config{
		Workers:            a.cfg.Workflow.Workers,
		CheckpointDir:      a.cfg.Workflow.CheckpointDir,
		CheckpointInterval: a.cfg.Workflow.CheckpointInterval,
		Resume:             a.flags.resume,
		Force:              a.flags.force,
		Strict:             a.cfg.Validation.Strict,
		Validate:           a.batchValidateOptions(),
		Compare:            a.compareConfig(),
	})

	outcome, err := runner.Run(ctx, apps)
	if outcome == nil {
		return err
	}
	if !a.flags.quiet {
		fmt.Fprintf(os.Stderr, "Run %s: %d analyzed, %d failed, %d skipped\n",
			outcome.RunID, len(outcome.Records), len(outcome.Failed), len(outcome.Skipped))
		for name, msg := range outcome.Failed {
			fmt.Fprintf(os.Stderr, "  failed %s: %s\n", name, msg)
		}
	}
	if err != nil {
		return err
	}
	validation := outcome.Validation
	return a.emit(formatters.Payload{Validation: &validation, Report: outcome.Report})
}

// runValidate validates every cached record.
func (a *cliApp) runValidate(ctx context.Context) error {
	records, err := a.loadCachedRecords(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no cached records to validate")
	}

	result := validate.ValidateBatch(records, a.batchValidateOptions())
	if err := a.emit(formatters.Payload{Validation: &result}); err != nil {
		return err
	}
	if result.InvalidRecords > 0 {
		return fmt.Errorf("%d of %d records failed validation", result.InvalidRecords, result.TotalRecords)
	}
	return nil
}

// runCompare builds the comparative report from cached records.
func (a *cliApp) runCompare(ctx context.Context) error {
	records, err := a.loadCachedRecords(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no cached records to compare")
	}

	report := compare.BuildReport(records, a.compareConfig())
	return a.emit(formatters.Payload{Report: report})
}

// runEstimate projects inference cost for a file or a CSV batch.
func (a *cliApp) runEstimate(ctx context.Context) error {
	fetcher := fetch.NewFetcher(a.cfg.FetchTimeout())
	estimator := cost.NewEstimator(a.cfg.Pricing)

	var texts []string
	switch {
	case a.flags.inputCSV != "":
		apps, err := workflow.LoadAppsCSV(a.flags.inputCSV)
		if err != nil {
			return err
		}
		for _, app := range apps {
			text, err := fetcher.Fetch(ctx, app.URL)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", app.AppName, err)
			}
			texts = append(texts, text)
		}
	case a.flags.file != "":
		text, err := fetcher.Fetch(ctx, a.flags.file)
		if err != nil {
			return err
		}
		texts = append(texts, text)
	default:
		return fmt.Errorf("cost estimation needs -file or -input")
	}

	estimate := estimator.EstimateBatch(texts, a.cfg.LLM.Model, a.cfg.Analysis.Depth, a.cfg.Analysis.MaxChunkTokens)
	fmt.Println(estimate.FormatSummary())
	return nil
}

// runServe starts the web server over the configured cache.
func (a *cliApp) runServe(ctx context.Context) error {
	store, err := a.buildCache(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("the web server requires a cache backend (disk or redis)")
	}

	// On-demand analysis is optional; without a key the server still
	// serves cached records.
	var analyzer web.Analyzer
	if pipeline, err := a.buildPipeline(store); err == nil {
		analyzer = pipeline
	} else if !a.flags.quiet {
		fmt.Fprintf(os.Stderr, "Warning: %v; the analyze endpoint is disabled\n", err)
	}

	server := web.NewServer(web.Config{
		Addr:            a.cfg.Web.Addr,
		ValidateOptions: a.batchValidateOptions(),
		CompareConfig:   a.compareConfig(),
	}, store, analyzer, a.observer)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	if !a.flags.quiet {
		fmt.Fprintf(os.Stderr, "Serving on %s\n", a.cfg.Web.Addr)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return server.Shutdown(context.Background())
	}
}

// loadCachedRecords reads every record from the cache, name-sorted so
// validation and comparison output is stable across runs.
func (a *cliApp) loadCachedRecords(ctx context.Context) ([]*analysis.Record, error) {
	store, err := a.buildCache(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("cached records are unavailable with the cache disabled")
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	records := make([]*analysis.Record, 0, len(keys))
	for _, key := range keys {
		rec, found, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading cache entry %s: %w", key, err)
		}
		if found && rec != nil {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].AppName < records[j].AppName
	})
	return records, nil
}

// deriveAppName guesses an app name from a file path or URL when -app is
// not given.
func deriveAppName(source string) string {
	name := source
	if i := strings.LastIndexAny(name, "/\\"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" {
		return "unnamed-policy"
	}
	return name
}
