// Package crawler reconstructs the navigation tree of a MediaWiki-style site.
//
// # Architecture
//
// The Spider drives a depth-first, link-following crawl. For every accepted
// URL it asks a Fetcher for the markup, asks the Extractor for child links,
// checks each child against the Ledger and recurses into the unseen ones.
// Every settled node is handed to a NodeWriter before its children are
// explored, so the persisted outline is always a valid pre-order prefix of
// the tree.
//
// # Components
//
//   - Spider: the recursive traversal engine
//   - Fetcher / HTTPFetcher: one GET per page, fixed delay, timeout, no retry
//   - Extractor: site-specific link classification on top of goquery
//   - Ledger: visited URLs and the visit counter of one crawl
//
// # Politeness
//
// A crawl is strictly sequential: one request at a time, a fixed delay
// before every request, and a global visit ceiling that stops new fetches.
//
// # Usage
//
//	fetcher := crawler.NewHTTPFetcher(http.DefaultClient, crawler.WithDelay(time.Second))
//	extractor, _ := crawler.NewExtractor("https://norme.iccu.sbn.it", crawler.DefaultRules())
//	spider := crawler.NewSpider(fetcher, extractor, crawler.WithMaxDepth(10))
//	result, err := spider.Crawl(ctx, "", "https://norme.iccu.sbn.it/index.php?title=Norme_comuni")
package crawler
