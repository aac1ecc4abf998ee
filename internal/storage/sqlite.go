package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hyperjump/kioku/internal/models"
)

// SQLiteLedger implements RunLedger on SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens or creates the ledger database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		tokens INTEGER NOT NULL DEFAULT 0,
		cost REAL NOT NULL DEFAULT 0,
		errors TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordRun inserts or replaces the run identified by stats.RunID.
func (s *SQLiteLedger) RecordRun(ctx context.Context, stats *models.IndexStats, runErr error) error {
	if stats.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	errorsJSON, err := json.Marshal(stats.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
		 (id, kind, started_at, elapsed_ms, total, unchanged, processed, skipped, failed, tokens, cost, errors, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stats.RunID, string(stats.Kind), stats.StartedAt.UnixNano(), stats.Elapsed.Milliseconds(),
		stats.Total, stats.Unchanged, stats.Processed, stats.Skipped, stats.Failed,
		stats.Tokens, stats.Cost, string(errorsJSON), errText,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs ordered by start time, newest first.
func (s *SQLiteLedger) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, started_at, elapsed_ms, total, unchanged, processed, skipped, failed, tokens, cost, errors, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.RunRecord
	for rows.Next() {
		var (
			rec        models.RunRecord
			kind       string
			startedAt  int64
			elapsedMs  int64
			errorsJSON sql.NullString
			errText    sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &kind, &startedAt, &elapsedMs, &rec.Total, &rec.Unchanged,
			&rec.Processed, &rec.Skipped, &rec.Failed, &rec.Tokens, &rec.Cost, &errorsJSON, &errText); err != nil {
			return nil, err
		}
		rec.Kind = models.RunKind(kind)
		rec.StartedAt = time.Unix(0, startedAt)
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if errorsJSON.Valid && errorsJSON.String != "" && errorsJSON.String != "null" {
			if err := json.Unmarshal([]byte(errorsJSON.String), &rec.Errors); err != nil {
				return nil, fmt.Errorf("failed to unmarshal run errors: %w", err)
			}
		}
		rec.Error = errText.String
		list = append(list, &rec)
	}
	return list, rows.Err()
}

// CountRuns returns the number of recorded runs.
func (s *SQLiteLedger) CountRuns(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
