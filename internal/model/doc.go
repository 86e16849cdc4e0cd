// Package model defines the data structures shared by the crawler, the
// report writers and the run database.
//
// This package contains the following main types:
//   - CrawlNode: One confirmed page of the reconstructed site tree
//   - LinkCandidate: A child link proposed by the link extractor
//   - RunResult: The outcome of one top-level crawl run
//
// Keeping these types in their own package lets crawler, report, database
// and pipeline depend on them without importing each other.
package model
