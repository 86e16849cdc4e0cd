package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nao1215/wikioutline/internal/model"
)

const namespace = "wikioutline"

// Metrics holds the collectors of one process. Every instance owns its
// registry, so tests and concurrent commands never share counters.
type Metrics struct {
	registry *prometheus.Registry

	FetchesTotal      *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	NodesWrittenTotal *prometheus.CounterVec
	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.GaugeVec
	RunVisits         *prometheus.GaugeVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetches_total",
				Help:      "Total number of page fetches.",
			},
			[]string{"run", "result"}, // result: ok, error
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of page fetches, including the politeness delay.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"run"},
		),
		NodesWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nodes_written_total",
				Help:      "Total number of outline lines written.",
			},
			[]string{"run"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of crawl runs by final status.",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of the last crawl run.",
			},
			[]string{"run"},
		),
		RunVisits: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_visits",
				Help:      "Accepted visits of the last crawl run.",
			},
			[]string{"run"},
		),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(result *model.RunResult) {
	m.RunsTotal.WithLabelValues(string(result.Status)).Inc()
	m.RunDuration.WithLabelValues(result.Title).Set(result.Duration().Seconds())
	m.RunVisits.WithLabelValues(result.Title).Set(float64(result.Visits))
}

// WriteTextfile writes the registry to path in the text exposition format.
// The write is atomic, as the textfile collector requires.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Fetcher is the crawler's page fetching contract.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// InstrumentFetcher counts and times the fetches of run.
func (m *Metrics) InstrumentFetcher(run string, next Fetcher) Fetcher {
	return &instrumentedFetcher{
		next:     next,
		ok:       m.FetchesTotal.WithLabelValues(run, "ok"),
		failed:   m.FetchesTotal.WithLabelValues(run, "error"),
		duration: m.FetchDuration.WithLabelValues(run),
	}
}

type instrumentedFetcher struct {
	next     Fetcher
	ok       prometheus.Counter
	failed   prometheus.Counter
	duration prometheus.Observer
}

func (f *instrumentedFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	start := time.Now()
	body, err := f.next.Fetch(ctx, pageURL)

	// Cancellation is not a property of the site.
	if errors.Is(err, context.Canceled) {
		return body, err
	}

	f.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		f.failed.Inc()
	} else {
		f.ok.Inc()
	}
	return body, err
}

// NodeCounter returns a node writer that counts the lines written by run.
func (m *Metrics) NodeCounter(run string) *NodeCounter {
	return &NodeCounter{counter: m.NodesWrittenTotal.WithLabelValues(run)}
}

// NodeCounter counts written nodes. It never fails.
type NodeCounter struct {
	counter prometheus.Counter
}

// AppendNode counts one node.
func (c *NodeCounter) AppendNode(context.Context, *model.CrawlNode, int) error {
	c.counter.Inc()
	return nil
}
