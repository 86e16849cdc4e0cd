package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nao1215/wikioutline/internal/config"
	"github.com/nao1215/wikioutline/internal/crawler"
	"github.com/nao1215/wikioutline/internal/model"
	"github.com/nao1215/wikioutline/internal/report"
)

// RunState is the state of one run as it moves through the pipeline.
type RunState struct {
	// Run is the resolved configuration of the run.
	Run config.Run

	// Result accumulates the outcome of the run.
	Result *model.RunResult

	// writers receive every node the spider settles, in registration order.
	writers []report.NodeWriter

	// fetcherWrappers decorate the HTTP fetcher, in registration order.
	fetcherWrappers []func(crawler.Fetcher) crawler.Fetcher
}

// NewRunState creates the state of run. The outline path is derived from
// the run's output directory and title.
func NewRunState(run config.Run) *RunState {
	return &RunState{
		Run: run,
		Result: &model.RunResult{
			Title:      run.Title,
			StartURL:   run.StartURL,
			OutputPath: report.OutlinePath(run.OutputDir, run.Title),
			Status:     model.RunStatusRunning,
		},
	}
}

// AddNodeWriter registers w to receive the nodes of the run.
func (s *RunState) AddNodeWriter(w report.NodeWriter) {
	s.writers = append(s.writers, w)
}

// NodeWriter returns a writer that forwards to every registered writer.
func (s *RunState) NodeWriter() *report.MultiNodeWriter {
	return report.NewMultiNodeWriter(s.writers...)
}

// WrapFetcher registers a decorator for the run's fetcher.
func (s *RunState) WrapFetcher(wrap func(crawler.Fetcher) crawler.Fetcher) {
	s.fetcherWrappers = append(s.fetcherWrappers, wrap)
}

// wrapFetcher applies the registered decorators to f.
func (s *RunState) wrapFetcher(f crawler.Fetcher) crawler.Fetcher {
	for _, wrap := range s.fetcherWrappers {
		f = wrap(f)
	}
	return f
}

// Step defines the interface that all pipeline steps must implement.
type Step interface {
	// Do executes the pipeline step.
	// Returns an error if the step fails; the run is then marked failed
	// unless the error is a context error.
	Do(ctx context.Context, state *RunState) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Finalizer is implemented by steps that must observe the end of a run.
// Finish is called, in reverse order, for every step whose Do succeeded,
// after the final status is known. The context passed to Finish is not
// cancelled with the run's context.
type Finalizer interface {
	Finish(ctx context.Context, state *RunState) error
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		continueOnError: false,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence, settles the run status and
// then calls the finalizers.
//
// Returns the first error encountered (or the context error when the run
// was cancelled between steps). The error is also recorded in state.Result.
func (p *Pipeline) Execute(ctx context.Context, state *RunState) error {
	if state.Result.StartedAt.IsZero() {
		state.Result.StartedAt = time.Now()
	}

	p.logger.Debug("pipeline started",
		"run", state.Run.Title,
		"steps", p.StepNames(),
		"keep_going", p.continueOnError,
	)

	var firstErr error
	done := make([]Step, 0, len(p.steps))

	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		default:
		}
		if firstErr != nil && (!p.continueOnError || ctx.Err() != nil) {
			break
		}

		p.logger.Debug("executing step",
			"step", step.Name(),
			"run", state.Run.Title,
		)

		if err := step.Do(ctx, state); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"run", state.Run.Title,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		done = append(done, step)
	}

	settle(state.Result, firstErr)

	finishCtx := context.WithoutCancel(ctx)
	for i := len(done) - 1; i >= 0; i-- {
		f, ok := done[i].(Finalizer)
		if !ok {
			continue
		}
		if err := f.Finish(finishCtx, state); err != nil {
			p.logger.Error("failed to finalize step",
				"step", done[i].Name(),
				"run", state.Run.Title,
				"error", err,
			)
		}
	}

	return firstErr
}

// settle sets the final status of result from the error of the run.
func settle(result *model.RunResult, err error) {
	result.FinishedAt = time.Now()
	switch {
	case err == nil:
		result.Status = model.RunStatusCompleted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result.Status = model.RunStatusCancelled
		result.ErrorMessage = err.Error()
	default:
		result.Status = model.RunStatusFailed
		result.ErrorMessage = err.Error()
	}
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
