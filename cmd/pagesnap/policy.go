package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagesnap/internal/compliance"
	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/policy"
)

// policyStore manages the persisted robots policies. *database.Store implements it.
type policyStore interface {
	LoadPolicy(ctx context.Context, origin string) (*policy.Entry, error)
	ListPolicies(ctx context.Context) ([]policy.Entry, error)
	DeletePolicy(ctx context.Context, origin string) error
	PurgePolicies(ctx context.Context) (int64, error)
}

// NewPolicyCmd creates the policy command and its subcommands.
func NewPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect or purge stored robots.txt policies",
		Long: `Policy manages the robots.txt documents cached in the pagesnap database.

Stored policies are reused until they are older than the robots TTL
(24h unless the policy file sets policy.robotsTTL). Purging forces the next
crawl of that origin to fetch robots.txt again.

Examples:
  # List cached policies and their freshness
  pagesnap policy list

  # Print the robots.txt stored for an origin
  pagesnap policy show https://example.com

  # Forget one origin, or every origin
  pagesnap policy purge https://example.com
  pagesnap policy purge`,
	}

	cmd.PersistentFlags().StringP("config", "c", "",
		"Policy file path used for the robots TTL")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached robots.txt policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPolicyStore(cmd, func(cfg *config.Config, store policyStore) error {
				return listPolicies(cmd.Context(), cmd.OutOrStdout(), store, cfg.PolicyTTL, time.Now())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <origin>",
		Short: "Print a cached robots.txt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPolicyStore(cmd, func(_ *config.Config, store policyStore) error {
				return showPolicy(cmd.Context(), cmd.OutOrStdout(), store, args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "purge [origin]...",
		Short: "Remove cached robots.txt policies (all when no origin is given)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPolicyStore(cmd, func(_ *config.Config, store policyStore) error {
				return purgePolicies(cmd.Context(), cmd.OutOrStdout(), store, args)
			})
		},
	})

	return cmd
}

// withPolicyStore loads the config and opens the existing database for fn.
func withPolicyStore(cmd *cobra.Command, fn func(*config.Config, policyStore) error) error {
	cfg := config.NewConfig()
	readGlobalFlags(cmd, cfg)
	cfg.ConfigFilePath = stringFlag(cmd, "config")
	if err := loadPolicyFile(cfg); err != nil {
		return err
	}

	store, err := openExistingStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(cfg, store)
}

// listPolicies prints one line per stored policy.
func listPolicies(ctx context.Context, out io.Writer, store policyStore, ttl time.Duration, now time.Time) error {
	entries, err := store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No robots policies cached.")
		return nil
	}

	fmt.Fprintf(out, "Cached robots policies (%d):\n\n", len(entries))
	fmt.Fprintf(out, "  %-40s  %-6s  %-20s  %s\n", "Origin", "Status", "Fetched", "State")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 80))
	for _, e := range entries {
		state := "fresh"
		if e.Expired(now, ttl) {
			state = "stale"
		}
		if e.StatusCode < 200 || e.StatusCode > 299 {
			state += ", allow all"
		}
		fmt.Fprintf(out, "  %-40s  %-6d  %-20s  %s\n",
			e.Origin, e.StatusCode, e.FetchedAt.Local().Format("2006-01-02 15:04:05"), state)
	}
	return nil
}

// showPolicy prints the stored robots.txt of origin.
func showPolicy(ctx context.Context, out io.Writer, store policyStore, origin string) error {
	origin, err := normalizeOrigin(origin)
	if err != nil {
		return err
	}
	entry, err := store.LoadPolicy(ctx, origin)
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("no robots policy cached for %s", origin)
	}

	fmt.Fprintf(out, "# %s (HTTP %d, fetched %s)\n", entry.Origin, entry.StatusCode, entry.FetchedAt.Format(time.RFC3339))
	if len(entry.Body) == 0 {
		fmt.Fprintln(out, "# empty body: every path is allowed")
		return nil
	}
	_, err = out.Write(entry.Body)
	return err
}

// purgePolicies removes the named origins, or every policy when none is named.
func purgePolicies(ctx context.Context, out io.Writer, store policyStore, origins []string) error {
	if len(origins) == 0 {
		n, err := store.PurgePolicies(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d cached robots policies.\n", n)
		return nil
	}

	var errs []error
	for _, o := range origins {
		origin, err := normalizeOrigin(o)
		if err == nil {
			err = store.DeletePolicy(ctx, origin)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "Removed %s\n", origin)
	}
	return errors.Join(errs...)
}

// normalizeOrigin accepts a URL or bare origin and returns the cache key.
func normalizeOrigin(raw string) (string, error) {
	u, err := compliance.ParseURL(raw)
	if err != nil {
		return "", fmt.Errorf("invalid origin: %w", err)
	}
	return policy.Origin(u), nil
}
