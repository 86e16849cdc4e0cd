package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/nao1215/wikioutline/internal/config"
	"github.com/nao1215/wikioutline/internal/model"
	"github.com/nao1215/wikioutline/internal/report"
	"golang.org/x/sync/errgroup"
)

// BatchProcessor runs several crawl runs concurrently.
// It uses errgroup to manage goroutines and respect concurrency limits.
// Every run gets its own pipeline, ledger and outline; a failed run does not
// stop the others.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each run.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of concurrent runs.
	concurrency int

	logger *slog.Logger

	// results stores completed runs, in input order.
	results []*model.RunResult
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
// Default is config.DefaultConcurrency.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each run so that no pipeline
// state is shared between runs.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     config.DefaultConcurrency,
		results:         make([]*model.RunResult, 0),
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch executes runs concurrently and returns their results in
// input order. Failed and cancelled runs are reported in their results; the
// error is non-nil only when two runs share an output file or ctx was
// cancelled before every run started.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, runs []config.Run) ([]*model.RunResult, error) {
	if err := checkOutputs(runs); err != nil {
		return nil, err
	}

	bp.logger.Info("starting batch processing",
		"total_runs", len(runs),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	bp.results = make([]*model.RunResult, len(runs))

	err := bp.process(ctx, runs, func(result *model.RunResult, index int) {
		bp.mu.Lock()
		bp.results[index] = result
		bp.mu.Unlock()
	})

	bp.logger.Info("batch processing complete",
		"total_runs", len(runs),
		"elapsed", time.Since(startTime),
	)

	return bp.results, err
}

// ProcessBatchWithCallback executes runs and calls callback for each
// finished run with its index in runs. The callback is called from the
// goroutine that executed the run, so it must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	runs []config.Run,
	callback func(result *model.RunResult, index int),
) error {
	if err := checkOutputs(runs); err != nil {
		return err
	}
	return bp.process(ctx, runs, callback)
}

func (bp *BatchProcessor) process(ctx context.Context, runs []config.Run, callback func(*model.RunResult, int)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, run := range runs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("starting run",
				"run", run.Title,
				"index", i+1,
				"total", len(runs),
			)

			state := NewRunState(run)
			err := bp.pipelineFactory().Execute(ctx, state)
			callback(state.Result, i)

			if err != nil {
				// Recorded in the result; other runs continue.
				bp.logger.Warn("run failed",
					"run", run.Title,
					"status", state.Result.Status,
					"error", err,
				)
				return nil
			}

			bp.logger.Info("run completed",
				"run", run.Title,
				"lines", state.Result.NodesWritten,
				"output", state.Result.OutputPath,
			)
			return nil
		})
	}

	return g.Wait()
}

// checkOutputs rejects runs whose outline files would collide.
func checkOutputs(runs []config.Run) error {
	seen := make(map[string]string, len(runs))
	for _, run := range runs {
		path := filepath.Clean(report.OutlinePath(run.OutputDir, run.Title))
		if other, ok := seen[path]; ok {
			return fmt.Errorf("%w: %q and %q both write %s", ErrDuplicateOutput, other, run.Title, path)
		}
		seen[path] = run.Title
	}
	return nil
}
