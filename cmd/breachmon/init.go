package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

//go:embed templates/sources.yml
var sourcesTemplate embed.FS

// sourcesFileName is the default sources file name.
const sourcesFileName = "sources.yml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter sources file",
		Long: `Init writes a commented sources.yml into the current directory. The
generated file documents every field and ships a few example sources
with polite per-source polling intervals.

Examples:
  # Create sources.yml in the current directory
  breachmon init

  # Create the file at a specific path
  breachmon init -o config/sources.yml

  # Overwrite an existing file
  breachmon init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", sourcesFileName,
		"Output path for the sources file")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite an existing sources file")

	return cmd
}

// runInitCmd executes the init command.
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
			return fmt.Errorf("sources file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := sourcesTemplate.ReadFile("templates/sources.yml")
	if err != nil {
		return fmt.Errorf("failed to read sources template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write sources file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created sources file: %s\n", outputPath)
	fmt.Fprintln(cmd.OutOrStdout(), "\nEdit it to add or tune sources, then run:")
	fmt.Fprintln(cmd.OutOrStdout(), "  breachmon monitor --sources", outputPath)
	return nil
}
