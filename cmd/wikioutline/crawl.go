package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nao1215/wikioutline/internal/config"
	"github.com/nao1215/wikioutline/internal/database"
	"github.com/nao1215/wikioutline/internal/log"
	"github.com/nao1215/wikioutline/internal/metrics"
	"github.com/nao1215/wikioutline/internal/model"
	"github.com/nao1215/wikioutline/internal/pipeline"
	"github.com/nao1215/wikioutline/internal/report"
	"github.com/spf13/cobra"
)

// errRunsIncomplete is returned when at least one run did not complete.
var errRunsIncomplete = errors.New("not every run completed")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [start-url...]",
		Short: "Crawl MediaWiki index pages into Markdown outlines",
		Long: `Crawl fetches each start page, follows the links of its content lists
depth-first within the same site, and writes every page it reaches as a line
of <output-dir>/index_<title>.md.

Without arguments the runs of the configuration file are crawled. Flags set
on the command line override the "defaults" block of the file.

Examples:
  # Crawl the common norms index of the SBN wiki
  wikioutline crawl -T "norme comuni" "https://norme.iccu.sbn.it/index.php?title=Norme_comuni"

  # Limit the crawl to two levels and 200 pages
  wikioutline crawl -d 2 -l 200 "https://norme.iccu.sbn.it/index.php?title=Norme_comuni"

  # Crawl every run of a configuration file, two at a time
  wikioutline crawl -c runs.yaml -j 2

  # Also write a Markdown summary and Prometheus metrics
  wikioutline crawl --summary summary.md --metrics-file wikioutline.prom`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Run flags
	cmd.Flags().StringP("title", "T", "",
		"Run title, used for the outline file name (single start URL only)")
	cmd.Flags().String("page-title", "",
		"Title of the root line (default: the page heading)")
	cmd.Flags().String("base-url", "",
		"Site root for relative links (default: origin of the start URL)")

	// Crawl behavior flags
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum recursion depth (0 = start page only)")
	cmd.Flags().IntP("max-links", "l", config.DefaultMaxLinks,
		"Maximum number of pages visited per run (0 = unbounded)")
	cmd.Flags().Duration("delay", config.DefaultDelay,
		"Pause before every request")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().IntP("jobs", "j", config.DefaultConcurrency,
		"Number of runs crawled at the same time")
	cmd.Flags().BoolP("keep-going", "k", false,
		"Crawl even when the outline or history of a run cannot be set up (the run is still reported as failed)")

	// Output flags
	cmd.Flags().StringP("output-dir", "o", config.DefaultOutputDir,
		"Directory the outline files are written to")
	cmd.Flags().String("summary", "",
		"Write a Markdown summary of the runs to this file")
	cmd.Flags().String("metrics-file", "",
		"Write Prometheus metrics in textfile format to this file")
	cmd.Flags().Bool("no-db", false,
		"Do not record runs in the history database")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .wikioutline in current or home directory)")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, http.DefaultClient, cmd.OutOrStdout(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

// buildConfig creates a Config from cobra command flags, positional start
// URLs and the configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.BaseURL, err = flags.GetString("base-url"); err != nil {
		return nil, err
	}
	if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxLinks, err = flags.GetInt("max-links"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("jobs"); err != nil {
		return nil, err
	}
	if cfg.KeepGoing, err = flags.GetBool("keep-going"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return nil, err
	}
	if cfg.SummaryFile, err = flags.GetString("summary"); err != nil {
		return nil, err
	}
	if cfg.MetricsFile, err = flags.GetString("metrics-file"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.SaveToDB = !noDB
	cfg.DBDir = config.XDGDataDir()

	title, err := flags.GetString("title")
	if err != nil {
		return nil, err
	}
	pageTitle, err := flags.GetString("page-title")
	if err != nil {
		return nil, err
	}
	if (title != "" || pageTitle != "") && len(args) > 1 {
		return nil, errors.New("--title and --page-title need exactly one start URL")
	}
	for _, arg := range args {
		cfg.Runs = append(cfg.Runs, config.RunConfig{
			Title:     title,
			StartURL:  arg,
			PageTitle: pageTitle,
		})
	}

	// If the user named a config file it must exist. Otherwise the default
	// locations are searched and a missing file is fine.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.File, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		overrideDefaults(cmd, cfg)
	case explicitConfigPath:
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	return cfg, nil
}

// overrideDefaults copies the flags the user set explicitly into the file's
// defaults block, so they win over it. Run entries still win over both.
func overrideDefaults(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	d := &cfg.File.Defaults

	if flags.Changed("base-url") {
		d.BaseURL = cfg.BaseURL
	}
	if flags.Changed("output-dir") {
		d.OutputDir = cfg.OutputDir
	}
	if flags.Changed("depth") {
		depth := cfg.MaxDepth
		d.MaxDepth = &depth
	}
	if flags.Changed("max-links") {
		maxLinks := cfg.MaxLinks
		d.MaxLinks = &maxLinks
	}
	if flags.Changed("delay") {
		d.Delay = cfg.Delay
	}
	if flags.Changed("timeout") {
		d.Timeout = cfg.Timeout
	}
	if flags.Changed("user-agent") {
		d.UserAgent = cfg.UserAgent
	}
}

// runCrawl resolves the runs of cfg and executes them.
func runCrawl(ctx context.Context, cfg *config.Config, client *http.Client, out io.Writer, logger *slog.Logger) error {
	runs, err := cfg.ResolveRuns()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	configOpts := make([]pipeline.DefaultPipelineOption, 0, 2)

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Debug("database opened", "path", db.Path())
		configOpts = append(configOpts, pipeline.WithDatabase(db))
	}

	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		m = metrics.New()
		configOpts = append(configOpts, pipeline.WithMetrics(m))
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(cfg.KeepGoing),
	}

	bp := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return pipeline.DefaultPipeline(client, pipelineOpts, configOpts...)
		},
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithBatchLogger(logger),
	)

	results, batchErr := bp.ProcessBatch(ctx, runs)
	if results == nil {
		return batchErr
	}

	writers := []report.Writer{report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))}
	if cfg.SummaryFile != "" {
		summary, err := createSummary(cfg.SummaryFile)
		if err != nil {
			logger.Error("failed to create summary", "path", cfg.SummaryFile, "error", err)
		} else {
			defer summary.Close()
			writers = append(writers, report.NewMarkdownWriter(summary, ""))
		}
	}

	if _, err := report.NewMultiWriter(writers...).Write(results); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if m != nil {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Error("failed to write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if batchErr != nil {
		return batchErr
	}
	if n := incomplete(results); n > 0 {
		return fmt.Errorf("%w: %d of %d", errRunsIncomplete, n, len(results))
	}
	return nil
}

// createSummary creates (or truncates) the Markdown summary file.
func createSummary(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create summary directory: %w", err)
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644) //nolint:gosec // Summaries hold no secrets
}

func incomplete(results []*model.RunResult) int {
	n := 0
	for _, r := range results {
		if r == nil || r.Status != model.RunStatusCompleted {
			n++
		}
	}
	return n
}
