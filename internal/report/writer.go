package report

import (
	"context"
	"io"

	"github.com/nao1215/wikioutline/internal/model"
)

// Writer renders finished runs.
type Writer interface {
	// Write outputs the runs to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(results []*model.RunResult) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the runs to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(results []*model.RunResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(results)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// NodeWriter persists tree nodes while a crawl is running.
// depth is the distance of node from the start page.
type NodeWriter interface {
	AppendNode(ctx context.Context, node *model.CrawlNode, depth int) error
}

// MultiNodeWriter hands every node to several NodeWriters in order.
// The first writer is the authoritative one: an error from any writer stops
// the fan-out and is returned.
type MultiNodeWriter struct {
	writers []NodeWriter
}

// NewMultiNodeWriter creates a NodeWriter that forwards to all writers.
// nil writers are skipped.
func NewMultiNodeWriter(writers ...NodeWriter) *MultiNodeWriter {
	m := &MultiNodeWriter{writers: make([]NodeWriter, 0, len(writers))}
	for _, w := range writers {
		if w != nil {
			m.writers = append(m.writers, w)
		}
	}
	return m
}

// AppendNode forwards node to every writer.
func (m *MultiNodeWriter) AppendNode(ctx context.Context, node *model.CrawlNode, depth int) error {
	for _, w := range m.writers {
		if err := w.AppendNode(ctx, node, depth); err != nil {
			return err
		}
	}
	return nil
}
