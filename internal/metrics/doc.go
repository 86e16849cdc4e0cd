// Package metrics collects Prometheus metrics for crawl runs.
//
// wikioutline is a batch CLI, not a server, so metrics are not scraped over
// HTTP. Instead the registry is written in the node_exporter textfile format
// when the command finishes (--metrics-file), ready for the textfile
// collector to pick up.
package metrics
