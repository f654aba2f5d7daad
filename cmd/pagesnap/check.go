package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/model"
	"github.com/nao1215/pagesnap/internal/report"
)

// errURLsDenied is returned by check when any URL would be refused.
var errURLsDenied = errors.New("compliance gate would refuse")

// previewer evaluates a URL without consuming a rate-limit token.
// *compliance.Gate implements it.
type previewer interface {
	Preview(ctx context.Context, rawURL string) model.ComplianceDecision
}

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [url]...",
		Short: "Ask the compliance gate about URLs without crawling them",
		Long: `Check runs every compliance rule against the given URLs and prints the
decisions. It fetches robots.txt and terms pages like a crawl would, but
does not consume rate-limit tokens and never starts a browser.

The command exits with an error when any URL would be refused, so it can
guard scripts.

Examples:
  # Check a single URL
  pagesnap check https://example.com/articles

  # Check several URLs and print JSON
  pagesnap check --json https://a.example https://b.example/login`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCheckCmd,
	}

	addGateFlags(cmd)
	addReportFlags(cmd)

	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, args []string) error {
	cfg := config.NewConfig()
	readGlobalFlags(cmd, cfg)
	if err := readGateFlags(cmd, cfg); err != nil {
		return err
	}
	if err := readReportFlags(cmd, cfg); err != nil {
		return err
	}
	cfg.Targets = args
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)

	svc, err := newServices(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	return runCheck(cmd.Context(), cmd.OutOrStdout(), cfg, svc.gate)
}

// runCheck previews every target and writes the decisions.
func runCheck(ctx context.Context, out io.Writer, cfg *config.Config, gate previewer) error {
	decisions := make([]model.ComplianceDecision, 0, len(cfg.Targets))
	denied := 0
	for _, target := range cfg.Targets {
		d := gate.Preview(ctx, target)
		if !d.Allowed {
			denied++
		}
		decisions = append(decisions, d)
	}

	err := withReportWriter(cfg, out, func(w report.Writer) error {
		_, err := w.WriteDecisions(decisions)
		return err
	})
	if err != nil {
		return err
	}
	if denied > 0 {
		return fmt.Errorf("%w %d of %d URLs", errURLsDenied, denied, len(decisions))
	}
	return nil
}
