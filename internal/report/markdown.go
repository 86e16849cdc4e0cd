package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/wikioutline/internal/model"
)

// MarkdownWriter outputs a Markdown summary of runs: one table row per run,
// followed by the error of every run that did not complete.
type MarkdownWriter struct {
	baseWriter

	// title is the H1 heading of the document.
	title string
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, title string) *MarkdownWriter {
	if title == "" {
		title = "Crawl Summary"
	}
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		title:      title,
	}
}

// Write outputs the summary.
func (w *MarkdownWriter) Write(results []*model.RunResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1(w.title)
	md.PlainText("")

	if len(results) == 0 {
		md.PlainText("No runs recorded.")
		return len(md.String()), md.Build()
	}

	w.writeTable(md, results)
	w.writeErrors(md, results)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeTable(md *markdown.Markdown, results []*model.RunResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		id := "-"
		if r.ID > 0 {
			id = strconv.FormatInt(r.ID, 10)
		}
		rows = append(rows, []string{
			id,
			escapeCell(r.Title),
			markdown.Link(r.StartURL, r.StartURL),
			w.statusText(r.Status),
			strconv.Itoa(r.Visits),
			strconv.Itoa(r.FetchFailures),
			strconv.Itoa(r.NodesWritten),
			formatTime(r.StartedAt),
			r.Duration().Round(time.Millisecond).String(),
			"`" + r.OutputPath + "`",
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"ID", "Title", "Start URL", "Status", "Visits", "Fetch Failures", "Lines", "Started", "Duration", "Outline"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, results []*model.RunResult) {
	var errs []string
	for _, r := range results {
		if r != nil && r.ErrorMessage != "" {
			errs = append(errs, r.Title+": "+r.ErrorMessage)
		}
	}
	if len(errs) == 0 {
		return
	}

	md.H2("Errors")
	md.PlainText("")
	md.BulletList(errs...)
	md.PlainText("")
}

// statusText returns the status with a marker for quick scanning.
func (w *MarkdownWriter) statusText(status model.RunStatus) string {
	switch status {
	case model.RunStatusCompleted:
		return "✅ completed"
	case model.RunStatusCancelled:
		return "⚠️ cancelled"
	case model.RunStatusFailed:
		return "❌ failed"
	default:
		return string(status)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}

// escapeCell keeps a pipe in a title from splitting the table row.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
