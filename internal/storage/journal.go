// Package storage keeps a local SQLite journal of every data-changing
// operation so a session's history survives restarts even when the
// collection itself lives in memory.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Operation names recorded in the journal.
const (
	OpAddRecord  = "add_record"
	OpDeleteLast = "delete_last"
	OpSave       = "save"
	OpSync       = "sync"
	OpBackup     = "backup"
)

// Outcomes recorded per operation.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

type Journal struct {
	db *sql.DB
}

// Entry is one journaled operation.
type Entry struct {
	ID        int64     `json:"id"`
	Operation string    `json:"operation"`
	Entity    string    `json:"entity,omitempty"`
	Source    string    `json:"source,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewJournal(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close is safe on a nil journal so callers can defer it unconditionally.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends one entry. Journal failures are reported but callers
// treat them as non-fatal; the journal is an audit trail, not the source
// of truth.
func (j *Journal) Record(ctx context.Context, op, entity, source, outcome, detail string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO activity_journal (operation, entity, source, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		op, entity, source, outcome, detail)
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}

	slog.DebugContext(ctx, "Journal entry recorded",
		"operation", op, "entity", entity, "source", source, "outcome", outcome)
	return nil
}

// Recent returns the newest entries, most recent first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, operation, entity, source, outcome, detail, created_at
		 FROM activity_journal ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Operation, &e.Entity, &e.Source, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}

	return entries, nil
}

// CountByOutcome reports how many entries ended in each outcome, for the
// readiness and stats surfaces.
func (j *Journal) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM activity_journal GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("count journal outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}

	return counts, nil
}
