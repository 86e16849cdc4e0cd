package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/wikioutline/internal/config"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name       string
	doFunc     func(ctx context.Context, state *RunState) error
	finishFunc func(ctx context.Context, state *RunState) error
	callCount  int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, state *RunState) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, state)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// finishingStep is a mockStep that also implements Finalizer.
type finishingStep struct {
	mockStep
	finished bool
}

// Finish implements Finalizer.Finish.
func (f *finishingStep) Finish(ctx context.Context, state *RunState) error {
	f.finished = true
	if f.finishFunc != nil {
		return f.finishFunc(ctx, state)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wikiPage renders a MediaWiki-like page with one content list of links,
// given as alternating text/href pairs.
func wikiPage(heading string, pairs ...string) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><div id="mw-navigation"><a href="/Special:Random">Random</a></div>`)
	fmt.Fprintf(&sb, `<h1 id="firstHeading">%s</h1><div id="mw-content-text"><ul>`, heading)
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&sb, `<li><a href="%s">%s</a></li>`, pairs[i+1], pairs[i])
	}
	sb.WriteString(`</ul></div></body></html>`)
	return sb.String()
}

// newWikiServer serves a small wiki: A links to B and C, B links to D and
// back to A. Unknown paths answer 404.
func newWikiServer(t *testing.T) *httptest.Server {
	t.Helper()

	pages := map[string]string{
		"/A": wikiPage("Page A", "B", "/B", "C", "/C"),
		"/B": wikiPage("Page B", "D", "/D", "A", "/A"),
		"/C": wikiPage("Page C"),
		"/D": wikiPage("Page D"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testRun returns a resolved run against srv writing into dir.
func testRun(srv *httptest.Server, dir, title, path string) config.Run {
	return config.Run{
		Title:       title,
		StartURL:    srv.URL + path,
		BaseURL:     srv.URL,
		OutputDir:   dir,
		MaxDepth:    config.DefaultMaxDepth,
		Delay:       time.Millisecond,
		Timeout:     5 * time.Second,
		UserAgent:   "wikioutline-test",
		MaxBodySize: config.DefaultMaxBodySize,
		Rules:       config.DefaultRules(),
	}
}
