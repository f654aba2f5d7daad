package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nao1215/pagesnap/internal/config"
	"github.com/nao1215/pagesnap/internal/fetch"
	"github.com/nao1215/pagesnap/internal/report"
)

func TestLoadPolicyFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit file is applied", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "policy.yaml")
		data := "policy:\n  robotsTTL: 2h\n  blockedDomains: [\"corp.example\"]\nsites:\n  example.com:\n    depth: 0\n"
		if err := os.WriteFile(path, []byte(data), 0600); err != nil {
			t.Fatal(err)
		}

		cfg := config.NewConfig()
		cfg.ConfigFilePath = path
		if err := loadPolicyFile(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Policy == nil || len(cfg.Policy.Policy.BlockedDomains) != 1 {
			t.Fatalf("policy file not attached: %+v", cfg.Policy)
		}
		if cfg.PolicyTTL.Hours() != 2 {
			t.Errorf("expected robots TTL 2h, got %s", cfg.PolicyTTL)
		}
		if site := cfg.Policy.GetSiteConfig("www.example.com"); site.Depth == nil || *site.Depth != 0 {
			t.Errorf("expected site depth override, got %+v", site)
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ConfigFilePath = filepath.Join(t.TempDir(), "missing.yaml")
		if err := loadPolicyFile(cfg); !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("policy: [}"), 0600); err != nil {
			t.Fatal(err)
		}
		cfg := config.NewConfig()
		cfg.ConfigFilePath = path
		if err := loadPolicyFile(cfg); err == nil {
			t.Error("expected a parse error")
		}
	})
}

func TestNewReportWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		json     bool
		markdown bool
		check    func(report.Writer) bool
	}{
		{"text", false, false, func(w report.Writer) bool { _, ok := w.(*report.SimpleWriter); return ok }},
		{"json", true, false, func(w report.Writer) bool { _, ok := w.(*report.JSONWriter); return ok }},
		{"markdown", false, true, func(w report.Writer) bool { _, ok := w.(*report.MarkdownWriter); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			cfg.JSONReport = tt.json
			cfg.MarkdownReport = tt.markdown
			if w := newReportWriter(cfg, &bytes.Buffer{}); !tt.check(w) {
				t.Errorf("unexpected writer %T", w)
			}
		})
	}
}

func TestWithReportWriter(t *testing.T) {
	t.Parallel()

	t.Run("stdout", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.JSONReport = true
		var out bytes.Buffer
		err := withReportWriter(cfg, &out, func(w report.Writer) error {
			_, err := w.WriteDecisions(nil)
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if got := bytes.TrimSpace(out.Bytes()); string(got) != "[]" {
			t.Errorf("expected empty array, got %q", got)
		}
	})

	t.Run("callback error is returned", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.ReportFile = filepath.Join(t.TempDir(), "out.txt")
		boom := errors.New("boom")
		if err := withReportWriter(cfg, &bytes.Buffer{}, func(report.Writer) error { return boom }); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})
}

func TestNewServices(t *testing.T) {
	t.Parallel()

	t.Run("without database", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.SaveToDB = false
		cfg.DBDir = t.TempDir()

		svc, err := newServices(cfg, discardLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer svc.Close()

		if svc.store != nil || svc.gate == nil || svc.policies == nil {
			t.Errorf("unexpected services %+v", svc)
		}
		if svc.newSpider(cfg, discardLogger()) == nil {
			t.Error("expected a spider")
		}
		if _, err := os.Stat(filepath.Join(cfg.DBDir, "pagesnap.db")); !os.IsNotExist(err) {
			t.Error("expected no database file")
		}
	})

	t.Run("with database", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.DBDir = t.TempDir()

		svc, err := newServices(cfg, discardLogger())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if svc.store == nil {
			t.Fatal("expected a store")
		}
		if err := svc.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})

	t.Run("invalid proxy", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.SaveToDB = false
		cfg.ProxyAddress = "not-a-proxy"
		if _, err := newServices(cfg, discardLogger()); !errors.Is(err, fetch.ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})

	t.Run("unknown strategy", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.SaveToDB = false
		cfg.RateLimitStrategy = "leaky-bucket"
		if _, err := newServices(cfg, discardLogger()); !errors.Is(err, config.ErrUnknownRateStrategy) {
			t.Errorf("expected ErrUnknownRateStrategy, got %v", err)
		}
	})
}
