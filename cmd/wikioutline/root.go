package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for wikioutline.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wikioutline",
		Short: "Build Markdown outlines of MediaWiki index pages",
		Long: `wikioutline crawls a MediaWiki index page depth-first, follows the links of
its content lists within the same site, and writes every page it reaches as
one line of a nested Markdown outline.

The outline is saved after every line, so an interrupted crawl leaves a
complete prefix of the index on disk. Runs are recorded in a local SQLite
database and can be listed with the history command.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
