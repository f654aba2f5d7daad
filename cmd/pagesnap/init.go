package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagesnap/internal/config"
)

//go:embed templates/pagesnap.yaml
var configTemplate embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a pagesnap policy file",
		Long: `Init writes a commented .pagesnap.yaml to the current directory.

The generated file documents:
- Blocked domains, blocked paths and terms-of-service rules
- Robots and terms cache lifetimes
- The per-domain rate limit
- Per-site headers, depth and scroll limits

Examples:
  # Create .pagesnap.yaml in the current directory
  pagesnap init

  # Create the file at a specific path
  pagesnap init -o ~/.config/pagesnap/config.yaml

  # Overwrite an existing file
  pagesnap init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the policy file")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite an existing file")

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
			return fmt.Errorf("policy file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile("templates/pagesnap.yaml")
	if err != nil {
		return fmt.Errorf("failed to read policy template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write policy file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created policy file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to configure:")
	fmt.Fprintln(out, "  - Blocked domains and paths")
	fmt.Fprintln(out, "  - The per-domain rate limit")
	fmt.Fprintln(out, "  - Headers and crawl depth per site")
	return nil
}
