// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog persists the per-paper pipeline record. Every other
// component reads and writes paper state through it; there is no other
// shared mutable state in the system.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lycheng/paperboy/pkg/types"
)

// ErrNotFound is returned by Get when no paper has the requested id.
var ErrNotFound = errors.New("paper not found")

const defaultClaimTTL = 30 * time.Minute

// claimTimeLayout is fixed-width so the staleness cutoff can be compared
// lexicographically in SQL. RFC3339Nano trims trailing zeros and does not
// sort correctly as text.
const claimTimeLayout = "2006-01-02T15:04:05.000000000Z"

// paperColumns is the full column list in scan order.
var paperColumns = []string{
	"id", "title", "pdf_url", "discovered_at", "stage", "failed_at",
	"pdf_path", "doc_path", "summary_text", "push_receipt",
	"attempts", "last_error", "updated_at",
}

// Store is the durable catalog of papers, backed by SQLite. Updates are
// scoped to one record at a time; a transaction around each write keeps
// the previous consistent state visible until commit.
type Store struct {
	db       *sql.DB
	claimTTL time.Duration
}

// Open opens or creates the catalog database at cfg.Path and ensures the
// schema exists. An unreadable or corrupt catalog here is the one fatal
// startup condition of the pipeline.
func Open(cfg types.CatalogConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = filepath.Join("catalog", "paperboy.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	ttl := cfg.ClaimTTL
	if ttl <= 0 {
		ttl = defaultClaimTTL
	}

	s := &Store{db: db, claimTTL: ttl}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			pdf_url TEXT NOT NULL,
			discovered_at TEXT NOT NULL,
			stage TEXT NOT NULL,
			failed_at TEXT NOT NULL DEFAULT '',
			pdf_path TEXT NOT NULL DEFAULT '',
			doc_path TEXT NOT NULL DEFAULT '',
			summary_text TEXT NOT NULL DEFAULT '',
			push_receipt TEXT NOT NULL DEFAULT '',
			attempts TEXT NOT NULL DEFAULT '{}',
			last_error TEXT NOT NULL DEFAULT '',
			updated_at TEXT NOT NULL,
			claimed_by TEXT NOT NULL DEFAULT '',
			claimed_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_stage ON papers(stage)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// UpsertIfAbsent inserts a newly discovered paper and reports whether the
// insert happened. Re-discovery of a known id is a no-op: the existing
// record, whatever its stage, is left untouched.
func (s *Store) UpsertIfAbsent(ctx context.Context, id, title, pdfURL string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query, args, err := sq.Insert("papers").
		Options("OR IGNORE").
		Columns("id", "title", "pdf_url", "discovered_at", "stage", "attempts", "updated_at").
		Values(id, title, pdfURL, now, string(types.StageDiscovered), "{}", now).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("inserting paper %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert result: %w", err)
	}
	return n > 0, nil
}

// Get returns the paper with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*types.Paper, error) {
	query, args, err := sq.Select(paperColumns...).
		From("papers").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	p, err := scanPaper(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// List returns papers in discovery order. With no arguments it returns
// every paper; otherwise only papers at one of the given stages.
func (s *Store) List(ctx context.Context, stages ...types.Stage) ([]*types.Paper, error) {
	b := sq.Select(paperColumns...).
		From("papers").
		OrderBy("discovered_at", "id")
	if len(stages) > 0 {
		values := make([]string, len(stages))
		for i, st := range stages {
			values[i] = string(st)
		}
		b = b.Where(sq.Eq{"stage": values})
	}
	return s.queryPapers(ctx, b)
}

// Pending returns papers that are neither published nor failed, in
// discovery order.
func (s *Store) Pending(ctx context.Context) ([]*types.Paper, error) {
	b := sq.Select(paperColumns...).
		From("papers").
		Where(sq.NotEq{"stage": []string{
			string(types.StagePublished),
			string(types.StageFailed),
		}}).
		OrderBy("discovered_at", "id")
	return s.queryPapers(ctx, b)
}

// Failed returns papers in the failed state, in discovery order.
func (s *Store) Failed(ctx context.Context) ([]*types.Paper, error) {
	return s.List(ctx, types.StageFailed)
}

// Update applies mutate to the paper with the given id and writes the
// result back atomically. The read and write share one transaction, so a
// crash mid-update leaves the previous consistent record in place.
// Immutable discovery metadata is never rewritten.
func (s *Store) Update(ctx context.Context, id string, mutate func(*types.Paper) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Select(paperColumns...).
		From("papers").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building select: %w", err)
	}
	p, err := scanPaper(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := mutate(p); err != nil {
		return err
	}

	attempts, err := json.Marshal(p.Attempts)
	if err != nil {
		return fmt.Errorf("encoding attempts for %s: %w", id, err)
	}

	query, args, err = sq.Update("papers").
		Set("stage", string(p.Stage)).
		Set("failed_at", string(p.FailedAt)).
		Set("pdf_path", p.PDFPath).
		Set("doc_path", p.DocPath).
		Set("summary_text", p.SummaryText).
		Set("push_receipt", p.PushReceipt).
		Set("attempts", string(attempts)).
		Set("last_error", p.LastError).
		Set("updated_at", time.Now().UTC().Format(time.RFC3339Nano)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating paper %s: %w", id, err)
	}

	return tx.Commit()
}

// Claim leases the paper to runID so concurrent runs never advance the
// same record. It succeeds when the paper is unclaimed, already held by
// runID, or held by a run whose claim has gone stale.
func (s *Store) Claim(ctx context.Context, id, runID string) (bool, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.claimTTL).Format(claimTimeLayout)

	query, args, err := sq.Update("papers").
		Set("claimed_by", runID).
		Set("claimed_at", now.Format(claimTimeLayout)).
		Where(sq.Eq{"id": id}).
		Where(sq.Or{
			sq.Eq{"claimed_by": ""},
			sq.Eq{"claimed_by": runID},
			sq.Lt{"claimed_at": cutoff},
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building claim: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("claiming paper %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking claim result: %w", err)
	}
	return n > 0, nil
}

// Release drops runID's claim on the paper. Another run's claim is left
// alone.
func (s *Store) Release(ctx context.Context, id, runID string) error {
	query, args, err := sq.Update("papers").
		Set("claimed_by", "").
		Set("claimed_at", "").
		Where(sq.Eq{"id": id, "claimed_by": runID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building release: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("releasing paper %s: %w", id, err)
	}
	return nil
}

// CountsByStage returns the number of papers at each stage.
func (s *Store) CountsByStage(ctx context.Context) (map[types.Stage]int, error) {
	query, args, err := sq.Select("stage", "count(*)").
		From("papers").
		GroupBy("stage").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building counts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting papers: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Stage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[types.Stage(stage)] = n
	}
	return counts, rows.Err()
}

func (s *Store) queryPapers(ctx context.Context, b sq.SelectBuilder) ([]*types.Paper, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	var papers []*types.Paper
	for rows.Next() {
		p, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, p)
	}
	return papers, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaper(row rowScanner) (*types.Paper, error) {
	var p types.Paper
	var stage, failedAt, discoveredAt, updatedAt, attempts string

	err := row.Scan(
		&p.ID, &p.Title, &p.PDFURL, &discoveredAt, &stage, &failedAt,
		&p.PDFPath, &p.DocPath, &p.SummaryText, &p.PushReceipt,
		&attempts, &p.LastError, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning paper: %w", err)
	}

	p.Stage = types.Stage(stage)
	p.FailedAt = types.Stage(failedAt)
	if t, err := time.Parse(time.RFC3339Nano, discoveredAt); err == nil {
		p.DiscoveredAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		p.UpdatedAt = t
	}
	if attempts != "" {
		if err := json.Unmarshal([]byte(attempts), &p.Attempts); err != nil {
			return nil, fmt.Errorf("decoding attempts for %s: %w", p.ID, err)
		}
	}
	return &p, nil
}
