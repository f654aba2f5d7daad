package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/database"
)

// defaultHistoryLimit is the number of crawls listed without --limit.
const defaultHistoryLimit = 20

// crawlHistory reads the crawl log. *database.Store implements it.
type crawlHistory interface {
	ListCrawls(ctx context.Context, limit int) ([]database.CrawlMetadata, error)
}

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List finished crawls",
		Long: `History shows the crawls logged in the pagesnap database.

Each crawl is logged with its seed URL, timing, page count and whether any
page was degraded, unless --no-db was given. Page content is never stored;
use --output on the crawl command to keep a report.

Examples:
  # List the latest crawls
  pagesnap history list

  # List every logged crawl
  pagesnap history list -n 0`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List logged crawls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			return withHistory(cmd, func(store crawlHistory) error {
				return listCrawls(cmd.Context(), cmd.OutOrStdout(), store, limit)
			})
		},
	}
	list.Flags().IntP("limit", "n", defaultHistoryLimit, "Maximum crawls to list (0 for all)")

	cmd.AddCommand(list)
	return cmd
}

// withHistory opens the existing database for fn.
func withHistory(cmd *cobra.Command, fn func(crawlHistory) error) error {
	cfg := config.NewConfig()
	readGlobalFlags(cmd, cfg)

	store, err := openExistingStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}

// listCrawls prints one line per logged crawl.
func listCrawls(ctx context.Context, out io.Writer, store crawlHistory, limit int) error {
	crawls, err := store.ListCrawls(ctx, limit)
	if err != nil {
		return err
	}
	if len(crawls) == 0 {
		fmt.Fprintln(out, "No crawls logged in the database.")
		fmt.Fprintln(out, "\nUse 'pagesnap crawl <url>' to capture a page.")
		return nil
	}

	fmt.Fprintf(out, "Logged crawls (%d):\n\n", len(crawls))
	fmt.Fprintf(out, "  %-36s  %-19s  %-5s  %-8s  %s\n", "Crawl ID", "Started", "Pages", "Status", "Seed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 100))
	for _, c := range crawls {
		status := "ok"
		if c.Degraded {
			status = "degraded"
		}
		fmt.Fprintf(out, "  %-36s  %-19s  %-5d  %-8s  %s\n",
			c.CrawlID, c.StartedAt.Local().Format("2006-01-02 15:04:05"), c.Pages, status, c.SeedURL)
	}
	return nil
}
