// Package database provides SQLite-based run history for wikioutline.
//
// The CrawlDB stores:
//   - One row per crawl run: title, start URL, outline path, status,
//     statistics and timestamps
//   - Every outline line a run wrote, in write order, with its depth
//
// The node table mirrors the outline file, so a stored run can be printed
// again or rebuilt into a tree without refetching the site.
//
// The driver is modernc.org/sqlite, a CGO-free SQLite implementation.
package database
