package main

import (
	"context"
	"fmt"
	"io"

	"github.com/nao1215/wikioutline/internal/config"
	"github.com/nao1215/wikioutline/internal/database"
	"github.com/nao1215/wikioutline/internal/model"
	"github.com/nao1215/wikioutline/internal/report"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs or print a stored outline",
		Long: `History reads the runs recorded by crawl.

Without --run it lists the most recent runs as a Markdown table. With --run
it prints the outline stored for that run, which matches the outline file
the run wrote, even if the file has since been changed or deleted.

Examples:
  # List the last 20 runs
  wikioutline history

  # Print the outline of run 7
  wikioutline history --run 7

  # Run 7 as JSON, with its tree
  wikioutline history --run 7 --json`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().Int64("run", 0, "Print the outline of the run with this ID")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum number of runs to list (0 = all)")
	cmd.Flags().Bool("json", false, "Output JSON")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the history database")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	runID, err := flags.GetInt64("run")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	asJSON, err := flags.GetBool("json")
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
	if runID != 0 {
		return printRun(ctx, db, runID, asJSON, out)
	}
	return listRuns(ctx, db, limit, asJSON, out)
}

// printRun prints the stored outline of one run.
func printRun(ctx context.Context, db *database.CrawlDB, runID int64, asJSON bool, out io.Writer) error {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	records, err := db.GetRunNodes(ctx, runID)
	if err != nil {
		return err
	}

	if asJSON {
		run.Root = database.RebuildTree(records)
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithTree()).Write([]*model.RunResult{run})
		return err
	}

	for _, r := range records {
		if _, err := io.WriteString(out, report.FormatLine(r.Title, r.URL, r.Depth)); err != nil {
			return err
		}
	}
	return nil
}

// listRuns prints the most recent runs.
func listRuns(ctx context.Context, db *database.CrawlDB, limit int, asJSON bool, out io.Writer) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	var w report.Writer = report.NewMarkdownWriter(out, "History")
	if asJSON {
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	}
	_, err = w.Write(runs)
	return err
}
