package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nao1215/wikioutline/internal/config"
	"github.com/nao1215/wikioutline/internal/crawler"
	"github.com/nao1215/wikioutline/internal/database"
	"github.com/nao1215/wikioutline/internal/metrics"
	"github.com/nao1215/wikioutline/internal/report"
)

// OutlineStep creates (or truncates) the outline file of the run and
// registers it as the first node writer. It must run before CrawlStep.
type OutlineStep struct {
	logger *slog.Logger
}

// NewOutlineStep creates a new outline step.
func NewOutlineStep(logger *slog.Logger) *OutlineStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutlineStep{logger: logger}
}

// Name returns the step name.
func (s *OutlineStep) Name() string {
	return "outline"
}

// Do executes the outline step.
func (s *OutlineStep) Do(_ context.Context, state *RunState) error {
	w, err := report.NewOutlineWriter(state.Result.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create outline: %w", err)
	}
	state.AddNodeWriter(w)

	s.logger.Debug("outline created", "path", w.Path())
	return nil
}

// HistoryStep records the run and each of its nodes in the crawl database.
// The run row is finalised with the final status in Finish.
type HistoryStep struct {
	db     *database.CrawlDB
	logger *slog.Logger
}

// NewHistoryStep creates a new history step backed by db.
func NewHistoryStep(db *database.CrawlDB, logger *slog.Logger) *HistoryStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStep{db: db, logger: logger}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return "history"
}

// Do executes the history step.
func (s *HistoryStep) Do(ctx context.Context, state *RunState) error {
	id, err := s.db.StartRun(ctx, state.Result)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	state.AddNodeWriter(s.db.NodeRecorder(id))

	s.logger.Debug("run recorded", "id", id, "run", state.Run.Title)
	return nil
}

// Finish stores the final status and counters of the run.
func (s *HistoryStep) Finish(ctx context.Context, state *RunState) error {
	return s.db.FinishRun(ctx, state.Result)
}

// MetricsStep instruments the fetcher and counts written nodes. The run
// totals are observed in Finish.
type MetricsStep struct {
	metrics *metrics.Metrics
}

// NewMetricsStep creates a new metrics step.
func NewMetricsStep(m *metrics.Metrics) *MetricsStep {
	return &MetricsStep{metrics: m}
}

// Name returns the step name.
func (s *MetricsStep) Name() string {
	return "metrics"
}

// Do executes the metrics step.
func (s *MetricsStep) Do(_ context.Context, state *RunState) error {
	run := state.Run.Title
	state.AddNodeWriter(s.metrics.NodeCounter(run))
	state.WrapFetcher(func(next crawler.Fetcher) crawler.Fetcher {
		return s.metrics.InstrumentFetcher(run, next)
	})
	return nil
}

// Finish observes the run totals.
func (s *MetricsStep) Finish(_ context.Context, state *RunState) error {
	s.metrics.ObserveRun(state.Result)
	return nil
}

// CrawlStep fetches the start page and builds the index tree, streaming
// each node to the writers registered by earlier steps.
type CrawlStep struct {
	// client is shared by every run; per-run settings live in the fetcher.
	client *http.Client

	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a new crawl step. A nil client uses a default one.
func NewCrawlStep(client *http.Client, opts ...CrawlStepOption) *CrawlStep {
	if client == nil {
		client = &http.Client{}
	}
	s := &CrawlStep{
		client: client,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, state *RunState) error {
	run := state.Run
	logger := s.logger.With("run", run.Title)

	extractor, err := crawler.NewExtractor(run.BaseURL, crawlerRules(run.Rules))
	if err != nil {
		return err
	}

	fetcher := crawler.NewHTTPFetcher(s.client,
		crawler.WithDelay(run.Delay),
		crawler.WithTimeout(run.Timeout),
		crawler.WithUserAgent(run.UserAgent),
		crawler.WithCookie(run.Cookie),
		crawler.WithHeaders(run.Headers),
		crawler.WithMaxBodySize(run.MaxBodySize),
		crawler.WithFetcherLogger(logger),
	)

	spider := crawler.NewSpider(state.wrapFetcher(fetcher), extractor,
		crawler.WithMaxDepth(run.MaxDepth),
		crawler.WithMaxLinks(run.MaxLinks),
		crawler.WithNodeWriter(state.NodeWriter()),
		crawler.WithLogger(logger),
	)

	logger.Info("crawl started", "url", run.StartURL, "max_depth", run.MaxDepth, "max_links", run.MaxLinks)

	result, err := spider.Crawl(ctx, run.PageTitle, run.StartURL)
	state.Result.Root = result.Root
	state.Result.Visits = result.Stats.Visits
	state.Result.FetchFailures = result.Stats.FetchFailures
	state.Result.NodesWritten = result.Stats.NodesWritten

	if err != nil {
		return err
	}

	logger.Info("crawl finished",
		"visits", result.Stats.Visits,
		"fetch_failures", result.Stats.FetchFailures,
		"lines", result.Stats.NodesWritten,
		"limit_reached", result.Stats.LimitReached,
	)
	return nil
}

func crawlerRules(rc config.RulesConfig) crawler.Rules {
	return crawler.Rules{
		ContentSelector:    rc.ContentSelector,
		HeadingSelector:    rc.HeadingSelector,
		NavigationSelector: rc.NavigationSelector,
		ReferenceClass:     rc.ReferenceClass,
		CitationMarkers:    rc.CitationMarkers,
	}
}

// DefaultPipelineConfig holds the optional collaborators of the default
// pipeline.
type DefaultPipelineConfig struct {
	// DB records run history when non-nil.
	DB *database.CrawlDB

	// Metrics instruments the runs when non-nil.
	Metrics *metrics.Metrics
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithDatabase records run history in db.
func WithDatabase(db *database.CrawlDB) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.DB = db
	}
}

// WithMetrics instruments the runs with m.
func WithMetrics(m *metrics.Metrics) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Metrics = m
	}
}

// DefaultPipeline creates the standard pipeline: outline, then history and
// metrics when configured, then the crawl itself.
//
// The first variadic parameter accepts pipeline options (WithLogger, etc).
// The second accepts pipeline config options (WithDatabase, WithMetrics).
func DefaultPipeline(client *http.Client, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{}
	for _, opt := range configOpts {
		opt(cfg)
	}

	steps := []Step{NewOutlineStep(p.logger)}
	if cfg.DB != nil {
		steps = append(steps, NewHistoryStep(cfg.DB, p.logger))
	}
	if cfg.Metrics != nil {
		steps = append(steps, NewMetricsStep(cfg.Metrics))
	}
	steps = append(steps, NewCrawlStep(client, WithCrawlLogger(p.logger)))
	p.AddSteps(steps...)

	return p
}
