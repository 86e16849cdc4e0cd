package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/wikioutline/internal/model"
)

// SimpleWriter outputs human-readable run summaries for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose adds the run statistics below each result line.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write prints one block per run. Runs that produced an outline print
// "Index saved to <path>".
func (w *SimpleWriter) Write(results []*model.RunResult) (int, error) {
	var sb strings.Builder

	for _, r := range results {
		if r == nil {
			continue
		}
		w.writeResult(&sb, r)
	}

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeResult(sb *strings.Builder, r *model.RunResult) {
	switch r.Status {
	case model.RunStatusCompleted:
		fmt.Fprintf(sb, "Index saved to %s\n", r.OutputPath)
	case model.RunStatusCancelled:
		fmt.Fprintf(sb, "Crawl of %q cancelled, partial index saved to %s\n", r.Title, r.OutputPath)
	default:
		fmt.Fprintf(sb, "Crawl of %q failed: %s\n", r.Title, r.ErrorMessage)
	}

	if !w.verbose {
		return
	}

	fmt.Fprintf(sb, "  Start URL:      %s\n", r.StartURL)
	fmt.Fprintf(sb, "  Pages visited:  %d\n", r.Visits)
	fmt.Fprintf(sb, "  Fetch failures: %d\n", r.FetchFailures)
	fmt.Fprintf(sb, "  Lines written:  %d\n", r.NodesWritten)
	fmt.Fprintf(sb, "  Duration:       %s\n", r.Duration().Round(time.Millisecond))
}
