package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/wikioutline/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/wikioutline.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a wikioutline configuration file",
		Long: `Init writes a commented .wikioutline configuration file to the current
directory. It contains one run for the "Norme comuni" index of the SBN
norms wiki and documents every option a run can set.

Examples:
  # Create .wikioutline in the current directory
  wikioutline init

  # Create the file at a specific path
  wikioutline init -o runs.yaml

  # Overwrite an existing file
  wikioutline init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/wikioutline.yaml")
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// May hold cookies or authorization headers once edited.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit it to add runs or to change per-run settings such as:")
	fmt.Fprintln(out, "  - Maximum depth and visit ceiling")
	fmt.Fprintln(out, "  - Delay, timeout and User-Agent")
	fmt.Fprintln(out, "  - Link classification rules for other wikis")

	return nil
}
