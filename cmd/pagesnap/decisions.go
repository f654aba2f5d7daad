package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/database"
	"github.com/nao1215/pagesnap/internal/model"
	"github.com/nao1215/pagesnap/internal/report"
)

// defaultDecisionLimit is the number of decisions shown without --limit.
const defaultDecisionLimit = 50

// decisionLister reads the audit log. *database.Store implements it.
type decisionLister interface {
	ListDecisions(ctx context.Context, filter database.DecisionFilter) ([]model.ComplianceDecision, error)
}

// NewDecisionsCmd creates the decisions command.
func NewDecisionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Show the compliance decision audit log",
		Long: `Decisions lists the compliance decisions recorded by past crawls, newest first.

Every URL the gate evaluated during a crawl is recorded with its verdict,
reason and detail, including refusals of linked pages.

Examples:
  # Show the latest decisions
  pagesnap decisions

  # Show refusals for one domain
  pagesnap decisions --denied --domain example.com

  # Export the whole log as JSON
  pagesnap decisions --limit 0 --json`,
		Args: cobra.NoArgs,
		RunE: runDecisionsCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultDecisionLimit,
		"Maximum decisions to show (0 for all)")
	cmd.Flags().String("domain", "",
		"Only show decisions for this domain")
	cmd.Flags().Bool("denied", false,
		"Only show refusals")
	addReportFlags(cmd)

	return cmd
}

// runDecisionsCmd executes the decisions command.
func runDecisionsCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	readGlobalFlags(cmd, cfg)
	if err := readReportFlags(cmd, cfg); err != nil {
		return err
	}

	var (
		filter database.DecisionFilter
		err    error
	)
	if filter.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return err
	}
	if filter.Domain, err = cmd.Flags().GetString("domain"); err != nil {
		return err
	}
	if filter.DeniedOnly, err = cmd.Flags().GetBool("denied"); err != nil {
		return err
	}

	store, err := openExistingStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return runDecisions(cmd.Context(), cmd.OutOrStdout(), cfg, store, filter)
}

// runDecisions writes the decisions matching filter.
func runDecisions(ctx context.Context, out io.Writer, cfg *config.Config, store decisionLister, filter database.DecisionFilter) error {
	decisions, err := store.ListDecisions(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list decisions: %w", err)
	}
	return withReportWriter(cfg, out, func(w report.Writer) error {
		_, err := w.WriteDecisions(decisions)
		return err
	})
}
