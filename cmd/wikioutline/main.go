// Package main provides the entry point for the wikioutline CLI.
//
// wikioutline crawls a MediaWiki index page depth-first and writes the
// pages it reaches as a nested Markdown outline. The outline file is
// rewritten after every line, so an interrupted crawl leaves a usable
// partial index.
//
// Usage:
//
//	wikioutline crawl <start-url>
//	wikioutline crawl -c runs.yaml
//	wikioutline history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
