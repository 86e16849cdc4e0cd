package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/wikioutline/internal/config"
	"github.com/nao1215/wikioutline/internal/database"
	"github.com/nao1215/wikioutline/internal/model"
	"github.com/spf13/cobra"
)

// errNothingToCompare is returned when fewer than two runs are recorded for
// a start URL.
var errNothingToCompare = errors.New("at least two recorded runs are needed to compare")

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <start-url>",
		Short: "Compare the outlines of two runs of the same index",
		Long: `Compare shows how an index changed between two recorded runs that started
from the same URL:
- Pages that appear only in the newer outline
- Pages that are no longer reached
- Pages reached at a different depth

By default the two most recent runs are compared. Use 'wikioutline crawl'
to record runs.

Examples:
  # Compare the latest two runs of an index
  wikioutline compare "https://norme.iccu.sbn.it/index.php?title=Norme_comuni"

  # List the recorded runs of an index
  wikioutline compare --list "https://norme.iccu.sbn.it/index.php?title=Norme_comuni"

  # Compare the latest run with run 5
  wikioutline compare -i 5 "https://norme.iccu.sbn.it/index.php?title=Norme_comuni"`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List the recorded runs of the start URL")
	cmd.Flags().Int64P("with-run-id", "i", 0,
		"Compare the latest run with the run of this ID")
	cmd.Flags().BoolP("json", "j", false,
		"Output the comparison as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the comparison as Markdown (mutually exclusive with --json)")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	list, err := flags.GetBool("list")
	if err != nil {
		return err
	}
	withRunID, err := flags.GetInt64("with-run-id")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	startURL := strings.TrimSpace(args[0])

	if list {
		return listRunHistory(ctx, db, startURL, out)
	}

	result, err := runComparison(ctx, db, startURL, withRunID)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		return outputComparisonJSON(out, result)
	case markdownOutput:
		return outputComparisonMarkdown(out, result)
	default:
		return outputComparisonText(out, result)
	}
}

// RunMetadata identifies one side of a comparison.
type RunMetadata struct {
	ID        int64           `json:"id"`
	Status    model.RunStatus `json:"status"`
	StartedAt time.Time       `json:"startedAt"`
	Pages     int             `json:"pages"`
}

// OutlineEntry is one page of an outline.
type OutlineEntry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// DepthChange is a page reached at a different depth.
type DepthChange struct {
	OutlineEntry
	PreviousDepth int `json:"previousDepth"`
}

// ComparisonResult is the difference between two outlines of one index.
type ComparisonResult struct {
	StartURL       string         `json:"startUrl"`
	Previous       RunMetadata    `json:"previous"`
	Current        RunMetadata    `json:"current"`
	Added          []OutlineEntry `json:"added"`
	Removed        []OutlineEntry `json:"removed"`
	Moved          []DepthChange  `json:"moved"`
	UnchangedCount int            `json:"unchangedCount"`
}

func listRunHistory(ctx context.Context, db *database.CrawlDB, startURL string, out io.Writer) error {
	runs, err := db.ListRunsByStartURL(ctx, startURL, 0)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs recorded for %s\n", startURL)
		return nil
	}

	fmt.Fprintf(out, "Runs of %s:\n\n", startURL)
	fmt.Fprintf(out, "  %-6s  %-19s  %-10s  %s\n", "ID", "Started", "Status", "Lines")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 48))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-6d  %-19s  %-10s  %d\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.NodesWritten)
	}
	return nil
}

// runComparison loads the latest run of startURL and the run it is compared
// with: withRunID when set, else the run before the latest.
func runComparison(ctx context.Context, db *database.CrawlDB, startURL string, withRunID int64) (*ComparisonResult, error) {
	runs, err := db.ListRunsByStartURL(ctx, startURL, 2)
	if err != nil {
		return nil, err
	}

	var current, previous *model.RunResult
	switch {
	case withRunID != 0:
		if len(runs) == 0 {
			return nil, fmt.Errorf("%w: no run of %s", errNothingToCompare, startURL)
		}
		current = runs[0]
		if withRunID == current.ID {
			return nil, fmt.Errorf("%w: run %d is the latest run of %s", errNothingToCompare, withRunID, startURL)
		}
		previous, err = db.GetRun(ctx, withRunID)
		if err != nil {
			return nil, err
		}
		if previous.StartURL != startURL {
			return nil, fmt.Errorf("run %d started from %s, not %s", withRunID, previous.StartURL, startURL)
		}
	case len(runs) < 2:
		return nil, fmt.Errorf("%w: %d run(s) of %s", errNothingToCompare, len(runs), startURL)
	default:
		current, previous = runs[0], runs[1]
	}

	prevNodes, err := db.GetRunNodes(ctx, previous.ID)
	if err != nil {
		return nil, err
	}
	currNodes, err := db.GetRunNodes(ctx, current.ID)
	if err != nil {
		return nil, err
	}

	result := compareOutlines(prevNodes, currNodes)
	result.StartURL = startURL
	result.Previous = runMetadata(previous, len(prevNodes))
	result.Current = runMetadata(current, len(currNodes))
	return result, nil
}

func runMetadata(r *model.RunResult, pages int) RunMetadata {
	return RunMetadata{ID: r.ID, Status: r.Status, StartedAt: r.StartedAt, Pages: pages}
}

// compareOutlines diffs two outlines by URL. A URL listed more than once is
// compared at its first occurrence. Entries keep outline order.
func compareOutlines(previous, current []database.NodeRecord) *ComparisonResult {
	result := &ComparisonResult{
		Added:   make([]OutlineEntry, 0),
		Removed: make([]OutlineEntry, 0),
		Moved:   make([]DepthChange, 0),
	}

	prevByURL := firstByURL(previous)
	currByURL := firstByURL(current)

	seen := make(map[string]struct{}, len(current))
	for _, r := range current {
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}

		entry := OutlineEntry{Title: r.Title, URL: r.URL, Depth: r.Depth}
		prev, ok := prevByURL[r.URL]
		switch {
		case !ok:
			result.Added = append(result.Added, entry)
		case prev.Depth != r.Depth:
			result.Moved = append(result.Moved, DepthChange{OutlineEntry: entry, PreviousDepth: prev.Depth})
		default:
			result.UnchangedCount++
		}
	}

	clear(seen)
	for _, r := range previous {
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		if _, ok := currByURL[r.URL]; !ok {
			result.Removed = append(result.Removed, OutlineEntry{Title: r.Title, URL: r.URL, Depth: r.Depth})
		}
	}

	return result
}

func firstByURL(records []database.NodeRecord) map[string]database.NodeRecord {
	m := make(map[string]database.NodeRecord, len(records))
	for _, r := range records {
		if _, ok := m[r.URL]; !ok {
			m[r.URL] = r
		}
	}
	return m
}

func outputComparisonJSON(out io.Writer, result *ComparisonResult) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputComparisonMarkdown(out io.Writer, result *ComparisonResult) error {
	md := markdown.NewMarkdown(out)
	md.H1(fmt.Sprintf("Outline Comparison: %s", result.StartURL))

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run", strconv.FormatInt(result.Previous.ID, 10), strconv.FormatInt(result.Current.ID, 10), "-"},
			{"Date", result.Previous.StartedAt.Local().Format("2006-01-02 15:04"), result.Current.StartedAt.Local().Format("2006-01-02 15:04"), "-"},
			{"Pages", strconv.Itoa(result.Previous.Pages), strconv.Itoa(result.Current.Pages), formatDelta(result.Current.Pages - result.Previous.Pages)},
		},
	})

	if len(result.Added) > 0 {
		md.H2(fmt.Sprintf("Added Pages (%d)", len(result.Added)))
		md.BulletList(entryLinks(result.Added)...)
	}
	if len(result.Removed) > 0 {
		md.H2(fmt.Sprintf("Removed Pages (%d)", len(result.Removed)))
		md.BulletList(entryLinks(result.Removed)...)
	}
	if len(result.Moved) > 0 {
		md.H2(fmt.Sprintf("Moved Pages (%d)", len(result.Moved)))
		items := make([]string, 0, len(result.Moved))
		for _, m := range result.Moved {
			items = append(items, fmt.Sprintf("%s: depth %d → %d", markdown.Link(m.Title, m.URL), m.PreviousDepth, m.Depth))
		}
		md.BulletList(items...)
	}
	if result.UnchangedCount > 0 {
		md.PlainText(fmt.Sprintf("*%d pages unchanged*", result.UnchangedCount))
	}

	return md.Build()
}

func entryLinks(entries []OutlineEntry) []string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		items = append(items, markdown.Link(e.Title, e.URL))
	}
	return items
}

func outputComparisonText(out io.Writer, result *ComparisonResult) error {
	fmt.Fprintf(out, "Outline Comparison: %s\n", result.StartURL)
	fmt.Fprintln(out, strings.Repeat("=", 60))

	fmt.Fprintf(out, "\nPrevious run: #%d  %s  %d pages\n", result.Previous.ID,
		result.Previous.StartedAt.Local().Format("2006-01-02 15:04:05"), result.Previous.Pages)
	fmt.Fprintf(out, "Current run:  #%d  %s  %d pages (%s)\n", result.Current.ID,
		result.Current.StartedAt.Local().Format("2006-01-02 15:04:05"), result.Current.Pages,
		formatDelta(result.Current.Pages-result.Previous.Pages))

	if len(result.Added) > 0 {
		fmt.Fprintf(out, "\nAdded Pages (%d):\n", len(result.Added))
		for _, e := range result.Added {
			fmt.Fprintf(out, "  [+] %s  %s\n", e.Title, e.URL)
		}
	}
	if len(result.Removed) > 0 {
		fmt.Fprintf(out, "\nRemoved Pages (%d):\n", len(result.Removed))
		for _, e := range result.Removed {
			fmt.Fprintf(out, "  [-] %s  %s\n", e.Title, e.URL)
		}
	}
	if len(result.Moved) > 0 {
		fmt.Fprintf(out, "\nMoved Pages (%d):\n", len(result.Moved))
		for _, m := range result.Moved {
			fmt.Fprintf(out, "  [~] %s  depth %d -> %d\n", m.Title, m.PreviousDepth, m.Depth)
		}
	}
	if result.UnchangedCount > 0 {
		fmt.Fprintf(out, "\nUnchanged: %d pages\n", result.UnchangedCount)
	}

	return nil
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}
