package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for pagesnap.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagesnap",
		Short: "Compliance-gated web page snapshots",
		Long: `pagesnap renders web pages in headless Chrome and extracts their content,
links, structured data, console output, network requests, screenshots and PDF.

Every URL passes a compliance gate before the browser touches it. The gate
honors robots.txt, refuses sites whose terms of service forbid automated
access, refuses blocked domains and paths, and enforces a per-domain rate limit.
Decisions, robots policies and a crawl log are kept in a local SQLite database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")
	cmd.PersistentFlags().String("data-dir", "",
		"Directory of the pagesnap database (default: XDG data directory)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewDecisionsCmd())
	cmd.AddCommand(NewPolicyCmd())
	cmd.AddCommand(NewHistoryCmd())
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
