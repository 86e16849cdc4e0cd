// Package pipeline runs crawl runs from configuration to persisted output.
//
// One run goes through a Pipeline of steps that share a RunState: the
// outline step opens the output file, the history step records the run in
// the database, the metrics step instruments fetches and node writes, and
// the crawl step drives the spider with every node writer the earlier steps
// registered. Steps that implement Finalizer get a chance to record the
// final status even when a later step failed or the run was cancelled.
//
// A BatchProcessor runs several independent runs with a concurrency limit
// using errgroup. Runs never share a ledger, writer or buffer.
package pipeline
