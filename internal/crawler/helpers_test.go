package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/nao1215/wikioutline/internal/model"
)

const testBase = "https://wiki.test"

var errFetchFailed = errors.New("fetch failed")

// link is an anchor of a test page.
type link struct {
	text string
	href string
}

// wikiPage renders a MediaWiki-like page with the given heading and one
// content list of links.
func wikiPage(heading string, links ...link) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><div id="mw-navigation"><ul><li><a href="/Special:Random">Random</a></li></ul></div>`)
	if heading != "" {
		fmt.Fprintf(&sb, `<h1 id="firstHeading">%s</h1>`, heading)
	}
	sb.WriteString(`<div id="mw-content-text"><ul>`)
	for _, l := range links {
		fmt.Fprintf(&sb, `<li><a href="%s">%s</a></li>`, l.href, l.text)
	}
	sb.WriteString(`</ul></div></body></html>`)
	return sb.String()
}

// fakeFetcher serves pages from a map. Unknown URLs fail.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, pageURL)
	markup, ok := f.pages[pageURL]
	if !ok {
		return "", fmt.Errorf("%w: %s", errFetchFailed, pageURL)
	}
	return markup, nil
}

func (f *fakeFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// cancellingFetcher cancels the crawl when cancelOn is requested and fails
// that fetch with the context error, like an interrupted HTTP request.
type cancellingFetcher struct {
	*fakeFetcher
	cancelOn string
	cancel   context.CancelFunc
}

func (f *cancellingFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if pageURL == f.cancelOn {
		f.mu.Lock()
		f.fetched = append(f.fetched, pageURL)
		f.mu.Unlock()
		f.cancel()
		return "", ctx.Err()
	}
	return f.fakeFetcher.Fetch(ctx, pageURL)
}

// recordingWriter keeps every appended node as "depth title url".
type recordingWriter struct {
	lines  []string
	failAt int // 1-based append that fails; 0 never fails
}

func (w *recordingWriter) AppendNode(_ context.Context, node *model.CrawlNode, depth int) error {
	if w.failAt > 0 && len(w.lines)+1 == w.failAt {
		return errors.New("disk full")
	}
	w.lines = append(w.lines, fmt.Sprintf("%d %s %s", depth, node.Title, node.URL))
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustExtractor(t interface{ Fatalf(string, ...any) }) *Extractor {
	e, err := NewExtractor(testBase, DefaultRules())
	if err != nil {
		t.Fatalf("failed to create extractor: %v", err)
	}
	return e
}
