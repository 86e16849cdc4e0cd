package crawler

import (
	"context"
	"log/slog"

	"github.com/nao1215/wikioutline/internal/model"
)

// NodeWriter persists settled nodes in the order they are produced.
// depth is the distance from the start page.
type NodeWriter interface {
	AppendNode(ctx context.Context, node *model.CrawlNode, depth int) error
}

// nopWriter discards every node.
type nopWriter struct{}

func (nopWriter) AppendNode(context.Context, *model.CrawlNode, int) error { return nil }

// Spider rebuilds the navigation tree of a wiki by depth-first traversal.
// It never fetches a URL twice within a crawl, never goes deeper than
// maxDepth and stops fetching once maxLinks pages were accepted.
//
// A Spider holds no per-crawl state and can run several crawls in sequence.
type Spider struct {
	// fetcher retrieves page markup.
	fetcher Fetcher

	// extractor selects child links and page headings.
	extractor *Extractor

	// writer receives every settled node in pre-order.
	writer NodeWriter

	// maxDepth limits how deep to crawl from the start URL.
	// 0 means only the start page, 1 means one level of links, etc.
	maxDepth int

	// maxLinks is the global visit ceiling. 0 means unbounded.
	maxLinks int

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithMaxDepth sets the maximum crawl depth.
// 0 = only the starting page, 1 = starting page plus linked pages, etc.
func WithMaxDepth(depth int) SpiderOption {
	return func(s *Spider) {
		s.maxDepth = depth
	}
}

// WithMaxLinks sets the visit ceiling. 0 disables it.
func WithMaxLinks(maxLinks int) SpiderOption {
	return func(s *Spider) {
		s.maxLinks = maxLinks
	}
}

// WithNodeWriter sets the sink for settled nodes.
func WithNodeWriter(w NodeWriter) SpiderOption {
	return func(s *Spider) {
		s.writer = w
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider that fetches with fetcher and classifies links
// with extractor.
func NewSpider(fetcher Fetcher, extractor *Extractor, opts ...SpiderOption) *Spider {
	s := &Spider{
		fetcher:   fetcher,
		extractor: extractor,
		writer:    nopWriter{},
		maxDepth:  20,
		maxLinks:  0,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.writer == nil {
		s.writer = nopWriter{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s
}

// Stats summarises one crawl.
type Stats struct {
	// Visits is the number of accepted visits, failed fetches included.
	Visits int

	// FetchFailures is the number of accepted visits whose fetch failed.
	FetchFailures int

	// NodesWritten is the number of nodes persisted by the NodeWriter.
	NodesWritten int

	// LimitReached is true when the visit ceiling stopped the crawl.
	LimitReached bool
}

// Result is the outcome of Spider.Crawl.
type Result struct {
	// Root is the tree rooted at the start page, nil if it was not fetched.
	Root *model.CrawlNode

	Stats Stats
}

// Crawl builds the tree rooted at startURL with a fresh Ledger.
// pageTitle names the root; empty means "use the page heading".
//
// The returned Result is non-nil even on error and holds whatever was
// built. Crawl returns ErrStartPageUnavailable when the start page could not
// be fetched, the NodeWriter's first error when persisting failed, or the
// context error when ctx was cancelled.
func (s *Spider) Crawl(ctx context.Context, pageTitle, startURL string) (*Result, error) {
	ledger := NewLedger(s.logger)
	sess := s.newSession(ledger)

	root, outcome := sess.buildIndex(ctx, pageTitle, startURL, 0)
	result := &Result{Root: root, Stats: sess.finish()}

	if sess.err != nil {
		return result, sess.err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if outcome == outcomeFetchFailed {
		return result, ErrStartPageUnavailable
	}
	return result, nil
}

// BuildIndex builds the subtree rooted at pageURL, found at depth, against
// an existing ledger. It returns nil when the URL is rejected (too deep,
// already visited, ceiling reached) or when its fetch fails. The error is
// non-nil only when the NodeWriter failed or ctx was cancelled.
func (s *Spider) BuildIndex(ctx context.Context, pageTitle, pageURL string, depth int, ledger *Ledger) (*model.CrawlNode, error) {
	if ledger == nil {
		ledger = NewLedger(s.logger)
	}
	sess := s.newSession(ledger)

	node, _ := sess.buildIndex(ctx, pageTitle, pageURL, depth)
	if sess.err != nil {
		return node, sess.err
	}
	return node, ctx.Err()
}

// visitOutcome tells the caller of buildIndex why no node came back.
type visitOutcome int

const (
	outcomeAccepted visitOutcome = iota
	outcomeRejected
	outcomeFetchFailed
)

// session is the mutable state of one crawl.
type session struct {
	*Spider

	ledger *Ledger
	stats  Stats

	// err is the first NodeWriter error. Once set, no further page is
	// fetched.
	err error
}

func (s *Spider) newSession(ledger *Ledger) *session {
	return &session{Spider: s, ledger: ledger}
}

func (s *session) finish() Stats {
	stats := s.stats
	stats.Visits = s.ledger.VisitCount()
	stats.LimitReached = s.ledger.LimitLogged()
	return stats
}

func (s *session) halted(ctx context.Context) bool {
	return s.err != nil || ctx.Err() != nil
}

func (s *session) buildIndex(ctx context.Context, pageTitle, pageURL string, depth int) (*model.CrawlNode, visitOutcome) {
	if depth > s.maxDepth {
		return nil, outcomeRejected
	}
	if s.ledger.HasVisited(pageURL) {
		return nil, outcomeRejected
	}
	if s.ledger.LimitReached(s.maxLinks) {
		return nil, outcomeRejected
	}
	if s.halted(ctx) {
		return nil, outcomeRejected
	}

	s.ledger.MarkVisited(pageURL)
	s.ledger.IncrementVisitCount()

	s.logger.Info("fetching page", "url", pageURL, "depth", depth, "visits", s.ledger.VisitCount())

	markup, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			// Interrupted, not unreachable.
			return nil, outcomeRejected
		}
		s.stats.FetchFailures++
		s.logger.Warn("failed to fetch page", "url", pageURL, "depth", depth, "error", err)
		return nil, outcomeFetchFailed
	}

	doc, err := parseDocument(markup)
	if err != nil {
		s.stats.FetchFailures++
		s.logger.Warn("failed to parse page", "url", pageURL, "error", err)
		return nil, outcomeFetchFailed
	}

	title := pageTitle
	if title == "" {
		title = s.extractor.heading(doc)
	}
	if title == "" {
		title = model.UnknownTitle
	}

	node := model.NewCrawlNode(title, pageURL)
	s.write(ctx, node, depth)

	links := s.extractor.links(doc, pageURL)
	s.logger.Debug("extracted links", "url", pageURL, "count", len(links))

	for _, link := range links {
		if s.ledger.LimitReached(s.maxLinks) || s.halted(ctx) {
			break
		}
		if s.ledger.HasVisited(link.URL) {
			continue
		}

		child, outcome := s.buildIndex(ctx, link.Title, link.URL, depth+1)
		switch {
		case child != nil:
			node.AddChild(child)
		case outcome == outcomeFetchFailed:
			// The link is known but its page is not: keep it as a leaf.
			leaf := model.NewCrawlNode(link.Title, link.URL)
			s.write(ctx, leaf, depth+1)
			node.AddChild(leaf)
		}
	}

	return node, outcomeAccepted
}

// write hands node to the NodeWriter and records the first failure.
func (s *session) write(ctx context.Context, node *model.CrawlNode, depth int) {
	if s.err != nil {
		return
	}
	if err := s.writer.AppendNode(ctx, node, depth); err != nil {
		s.err = err
		s.logger.Error("failed to persist node", "url", node.URL, "error", err)
		return
	}
	s.stats.NodesWritten++
}
