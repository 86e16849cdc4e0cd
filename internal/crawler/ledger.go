package crawler

import "log/slog"

// Ledger records the URLs visited by one crawl and counts accepted visits.
// A URL is marked before it is fetched, so a page whose fetch fails is never
// requested again. Ledgers are not safe for concurrent use; each crawl owns
// its own.
type Ledger struct {
	visited     map[string]struct{}
	visits      int
	limitLogged bool
	logger      *slog.Logger
}

// NewLedger creates an empty Ledger. A nil logger uses slog.Default().
func NewLedger(logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		visited: make(map[string]struct{}),
		logger:  logger,
	}
}

// HasVisited reports whether pageURL was already accepted.
// URLs are compared as exact strings.
func (l *Ledger) HasVisited(pageURL string) bool {
	_, ok := l.visited[pageURL]
	return ok
}

// MarkVisited records pageURL. Marking twice is a no-op.
func (l *Ledger) MarkVisited(pageURL string) {
	l.visited[pageURL] = struct{}{}
}

// VisitCount returns the number of accepted visits.
func (l *Ledger) VisitCount() int {
	return l.visits
}

// IncrementVisitCount counts one accepted visit.
func (l *Ledger) IncrementVisitCount() {
	l.visits++
}

// Len returns the number of distinct visited URLs.
func (l *Ledger) Len() int {
	return len(l.visited)
}

// LimitReached reports whether the visit ceiling is reached.
// maxLinks <= 0 means unbounded. The first time it returns true a notice is
// logged; later calls stay silent.
func (l *Ledger) LimitReached(maxLinks int) bool {
	if maxLinks <= 0 || l.visits < maxLinks {
		return false
	}
	if !l.limitLogged {
		l.limitLogged = true
		l.logger.Info("visit limit reached, no further pages will be fetched", "max_links", maxLinks)
	}
	return true
}

// LimitLogged reports whether the ceiling notice was emitted.
func (l *Ledger) LimitLogged() bool {
	return l.limitLogged
}
