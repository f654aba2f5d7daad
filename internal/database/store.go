package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/pagesnap/internal/model"
	"github.com/nao1215/pagesnap/internal/policy"
)

// FileName is the database file created inside the data directory.
const FileName = "pagesnap.db"

// Store provides SQLite-based storage for robots policies, the compliance
// decision audit log and a log of finished crawls. Page content is never
// stored.
//
// It implements policy.Store and compliance.Recorder so the policy cache and
// the gate can persist through it directly.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a Store in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- Robots policies keyed by origin
	CREATE TABLE IF NOT EXISTS robots_policies (
		origin TEXT PRIMARY KEY,
		status_code INTEGER NOT NULL,
		body BLOB,
		fetched_at TEXT NOT NULL
	);

	-- Every compliance decision made by the gate
	CREATE TABLE IF NOT EXISTS compliance_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		domain TEXT,
		allowed INTEGER NOT NULL,
		reason TEXT NOT NULL,
		detail TEXT,
		checked_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_domain ON compliance_decisions(domain);
	CREATE INDEX IF NOT EXISTS idx_decisions_checked ON compliance_decisions(checked_at);

	-- One row per finished crawl, without page content
	CREATE TABLE IF NOT EXISTS crawl_log (
		crawl_id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		pages INTEGER NOT NULL,
		degraded INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_crawl_log_started ON crawl_log(started_at);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// LoadPolicy returns the stored robots policy of origin, or nil if none.
func (s *Store) LoadPolicy(ctx context.Context, origin string) (*policy.Entry, error) {
	query := `
	SELECT origin, status_code, body, fetched_at
	FROM robots_policies
	WHERE origin = ?
	`

	var entry policy.Entry
	var fetchedAt string
	err := s.db.QueryRowContext(ctx, query, origin).Scan(
		&entry.Origin,
		&entry.StatusCode,
		&entry.Body,
		&fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load robots policy: %w", err)
	}
	entry.FetchedAt = parseTimestamp(fetchedAt)
	return &entry, nil
}

// SavePolicy inserts or replaces the robots policy of entry.Origin.
func (s *Store) SavePolicy(ctx context.Context, entry policy.Entry) error {
	query := `
	INSERT INTO robots_policies (origin, status_code, body, fetched_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(origin) DO UPDATE SET
		status_code = excluded.status_code,
		body = excluded.body,
		fetched_at = excluded.fetched_at
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.Origin,
		entry.StatusCode,
		entry.Body,
		formatTimestamp(entry.FetchedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save robots policy: %w", err)
	}
	return nil
}

// DeletePolicy removes the stored policy of origin. Missing origins are not an error.
func (s *Store) DeletePolicy(ctx context.Context, origin string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM robots_policies WHERE origin = ?", origin); err != nil {
		return fmt.Errorf("failed to delete robots policy: %w", err)
	}
	return nil
}

// ListPolicies returns every stored policy ordered by origin.
func (s *Store) ListPolicies(ctx context.Context) ([]policy.Entry, error) {
	query := `
	SELECT origin, status_code, body, fetched_at
	FROM robots_policies
	ORDER BY origin
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list robots policies: %w", err)
	}
	defer rows.Close()

	var entries []policy.Entry
	for rows.Next() {
		var entry policy.Entry
		var fetchedAt string
		if err := rows.Scan(&entry.Origin, &entry.StatusCode, &entry.Body, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan robots policy: %w", err)
		}
		entry.FetchedAt = parseTimestamp(fetchedAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PurgePolicies removes every stored policy and returns how many were removed.
func (s *Store) PurgePolicies(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM robots_policies")
	if err != nil {
		return 0, fmt.Errorf("failed to purge robots policies: %w", err)
	}
	return result.RowsAffected()
}

// RecordDecision appends d to the audit log.
func (s *Store) RecordDecision(ctx context.Context, d model.ComplianceDecision) error {
	query := `
	INSERT INTO compliance_decisions (url, domain, allowed, reason, detail, checked_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		d.URL,
		d.Domain,
		d.Allowed,
		d.Reason.String(),
		d.Detail,
		formatTimestamp(d.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// DecisionFilter narrows ListDecisions. Zero values match everything.
type DecisionFilter struct {
	// Domain matches the decision domain exactly.
	Domain string

	// DeniedOnly drops allowed decisions.
	DeniedOnly bool

	// Limit caps the number of decisions. Zero means no cap.
	Limit int
}

// ListDecisions returns decisions newest first.
func (s *Store) ListDecisions(ctx context.Context, filter DecisionFilter) ([]model.ComplianceDecision, error) {
	query := `
	SELECT url, domain, allowed, reason, detail, checked_at
	FROM compliance_decisions
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if filter.Domain != "" {
		query += " AND domain = ?"
		args = append(args, strings.ToLower(filter.Domain))
	}
	if filter.DeniedOnly {
		query += " AND allowed = 0"
	}
	query += " ORDER BY checked_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var results []model.ComplianceDecision
	for rows.Next() {
		var d model.ComplianceDecision
		var domain, detail sql.NullString
		var reason, checkedAt string
		if err := rows.Scan(&d.URL, &domain, &d.Allowed, &reason, &detail, &checkedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		if d.Reason, err = model.ParseReason(reason); err != nil {
			return nil, fmt.Errorf("failed to parse decision reason: %w", err)
		}
		d.Domain = domain.String
		d.Detail = detail.String
		d.CheckedAt = parseTimestamp(checkedAt)
		results = append(results, d)
	}
	return results, rows.Err()
}

// SaveCrawl records the metadata of a finished crawl.
func (s *Store) SaveCrawl(ctx context.Context, resp *model.CrawlResponse) error {
	var seed string
	pages, degraded := 0, false
	if resp.MainPage != nil {
		seed = resp.MainPage.URL
		for _, p := range append([]*model.PageSnapshot{resp.MainPage}, resp.LinkedPages...) {
			pages++
			degraded = degraded || p.Degraded() || p.Error != ""
		}
	}

	query := `
	INSERT INTO crawl_log (crawl_id, seed_url, started_at, finished_at, pages, degraded)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		resp.CrawlID,
		seed,
		formatTimestamp(resp.StartedAt),
		formatTimestamp(resp.FinishedAt),
		pages,
		degraded,
	)
	if err != nil {
		return fmt.Errorf("failed to save crawl: %w", err)
	}
	return nil
}

// CrawlMetadata summarizes a finished crawl.
type CrawlMetadata struct {
	CrawlID    string
	SeedURL    string
	StartedAt  time.Time
	FinishedAt time.Time

	// Pages counts the seed and linked pages.
	Pages int

	// Degraded reports whether any page failed or lost a stage.
	Degraded bool
}

// ListCrawls returns logged crawls newest first. A limit of zero means no cap.
func (s *Store) ListCrawls(ctx context.Context, limit int) ([]CrawlMetadata, error) {
	query := `
	SELECT crawl_id, seed_url, started_at, finished_at, pages, degraded
	FROM crawl_log
	ORDER BY started_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawls: %w", err)
	}
	defer rows.Close()

	var results []CrawlMetadata
	for rows.Next() {
		var meta CrawlMetadata
		var started, finished string
		if err := rows.Scan(&meta.CrawlID, &meta.SeedURL, &started, &finished, &meta.Pages, &meta.Degraded); err != nil {
			return nil, fmt.Errorf("failed to scan crawl metadata: %w", err)
		}
		meta.StartedAt = parseTimestamp(started)
		meta.FinishedAt = parseTimestamp(finished)
		results = append(results, meta)
	}
	return results, rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
	"2006-01-02T15:04:05",
}

// formatTimestamp stores times as sortable UTC text.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
