package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/pagesnap/internal/database"
	"github.com/nao1215/pagesnap/internal/model"
	"github.com/nao1215/pagesnap/internal/policy"
)

// seedStore creates a database in a temporary directory and fills it.
func seedStore(t *testing.T) (string, *database.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	decisions := []model.ComplianceDecision{
		model.Allow("https://example.com/", "example.com", testStart),
		model.Deny("https://example.com/admin", "example.com", model.ReasonBlockedPath, "/admin", testStart.Add(time.Minute)),
		model.Deny("https://other.example/", "other.example", model.ReasonRobotsDenied, "disallowed by robots.txt", testStart.Add(2*time.Minute)),
	}
	for _, d := range decisions {
		if err := store.RecordDecision(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	policies := []policy.Entry{
		{Origin: "https://example.com", StatusCode: 200, Body: []byte("User-agent: *\nDisallow: /hidden\n"), FetchedAt: testStart},
		{Origin: "https://other.example", StatusCode: 404, FetchedAt: testStart},
	}
	for _, p := range policies {
		if err := store.SavePolicy(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.SaveCrawl(ctx, okResponse("https://example.com/")); err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// TestDecisionsCommand tests filtering the audit log.
func TestDecisionsCommand(t *testing.T) {
	t.Parallel()

	dir, _ := seedStore(t)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"all newest first", nil, []string{"https://other.example/", "https://example.com/admin", "https://example.com/"}},
		{"denied only", []string{"--denied"}, []string{"https://other.example/", "https://example.com/admin"}},
		{"by domain", []string{"--domain", "EXAMPLE.com"}, []string{"https://example.com/admin", "https://example.com/"}},
		{"limit", []string{"-n", "1"}, []string{"https://other.example/"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"decisions", "--json", "--data-dir", dir}, tt.args...)
			out, err := execute(t, args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var got []model.ComplianceDecision
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("invalid JSON: %v\n%s", err, out)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d decisions, got %d", len(tt.want), len(got))
			}
			for i, d := range got {
				if d.URL != tt.want[i] {
					t.Errorf("decision %d: got %s, want %s", i, d.URL, tt.want[i])
				}
			}
		})
	}

	t.Run("markdown", func(t *testing.T) {
		out, err := execute(t, "decisions", "--markdown", "--data-dir", dir)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "# Compliance Decisions") || !strings.Contains(out, "ROBOTS_DENIED") {
			t.Errorf("unexpected markdown:\n%s", out)
		}
	})

	t.Run("missing database", func(t *testing.T) {
		t.Parallel()

		if _, err := execute(t, "decisions", "--data-dir", t.TempDir()); err == nil {
			t.Error("expected an error for a missing database")
		}
	})
}

// TestPolicyCommands tests listing, showing and purging robots policies.
func TestPolicyCommands(t *testing.T) {
	t.Parallel()

	t.Run("list marks freshness", func(t *testing.T) {
		t.Parallel()

		_, store := seedStore(t)
		var out bytes.Buffer
		if err := listPolicies(context.Background(), &out, store, time.Hour, testStart.Add(30*time.Minute)); err != nil {
			t.Fatal(err)
		}
		text := out.String()
		if !strings.Contains(text, "Cached robots policies (2)") {
			t.Errorf("missing header:\n%s", text)
		}
		if !strings.Contains(text, "fresh, allow all") {
			t.Errorf("expected the 404 policy to allow all:\n%s", text)
		}

		out.Reset()
		if err := listPolicies(context.Background(), &out, store, time.Hour, testStart.Add(2*time.Hour)); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(out.String(), "fresh") {
			t.Errorf("expected every policy to be stale:\n%s", out.String())
		}
	})

	t.Run("show", func(t *testing.T) {
		t.Parallel()

		dir, _ := seedStore(t)
		out, err := execute(t, "policy", "show", "--data-dir", dir, "HTTPS://Example.com/some/page")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Disallow: /hidden") {
			t.Errorf("expected robots body:\n%s", out)
		}

		if _, err := execute(t, "policy", "show", "--data-dir", dir, "https://unknown.example"); err == nil {
			t.Error("expected an error for an unknown origin")
		}
	})

	t.Run("purge one origin", func(t *testing.T) {
		t.Parallel()

		dir, store := seedStore(t)
		out, err := execute(t, "policy", "purge", "--data-dir", dir, "https://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Removed https://example.com") {
			t.Errorf("unexpected output %q", out)
		}
		entries, err := store.ListPolicies(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 1 || entries[0].Origin != "https://other.example" {
			t.Errorf("unexpected remaining policies %+v", entries)
		}
	})

	t.Run("purge all", func(t *testing.T) {
		t.Parallel()

		dir, _ := seedStore(t)
		out, err := execute(t, "policy", "purge", "--data-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "Removed 2 cached robots policies") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("purge rejects invalid origins", func(t *testing.T) {
		t.Parallel()

		dir, _ := seedStore(t)
		if _, err := execute(t, "policy", "purge", "--data-dir", dir, "ftp://example.com"); err == nil {
			t.Error("expected an error for an invalid origin")
		}
	})
}

// TestHistoryCommand tests listing the crawl log.
func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	dir, _ := seedStore(t)
	crawlID := okResponse("https://example.com/").CrawlID

	out, err := execute(t, "history", "list", "--data-dir", dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Logged crawls (1)", crawlID, "https://example.com/"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

// TestListCrawlsEmpty tests the empty history message.
func TestListCrawlsEmpty(t *testing.T) {
	t.Parallel()

	store, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	var out bytes.Buffer
	if err := listCrawls(context.Background(), &out, store, 10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "No crawls logged") {
		t.Errorf("unexpected output %q", out.String())
	}
}
