// Package report writes crawl output.
//
// Two kinds of writers live here:
//   - NodeWriter implementations receive tree nodes one at a time while a
//     crawl is running. OutlineWriter persists them as an indented Markdown
//     outline; MultiNodeWriter fans them out to several sinks.
//   - Writer implementations render finished runs: SimpleWriter for the
//     terminal, JSONWriter for tools and MarkdownWriter for summary files
//     and the history listing.
package report
