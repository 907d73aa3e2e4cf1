// Package session holds the in-memory working copy of the collection and
// coordinates every mutation with persistence, the activity journal, and
// the chat webhook.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"coinlog/internal/config"
	"coinlog/internal/core"
	applog "coinlog/internal/log"
	"coinlog/internal/storage"
	"coinlog/internal/store"
	"coinlog/internal/webhook"
)

var (
	// ErrNotLoaded is returned by mutations before Load has run.
	ErrNotLoaded = errors.New("session not loaded")
	// ErrNoWebhook is returned by Notify and Backup without a webhook URL.
	ErrNoWebhook = errors.New("webhook not configured")
)

// SaveReport describes where a save attempt landed. A remote failure that
// reached the local fallback is not an error: the data is on disk and the
// next sync can push it.
type SaveReport struct {
	Source      store.SourceKind `json:"source"`
	PrimaryErr  error            `json:"-"`
	FellBack    bool             `json:"fell_back"`
	FallbackErr error            `json:"-"`
}

// OK reports whether the data ended up persisted somewhere.
func (r SaveReport) OK() bool {
	if r.PrimaryErr == nil {
		return true
	}
	return r.FellBack && r.FallbackErr == nil
}

// Err returns the effective failure, nil when the save landed.
func (r SaveReport) Err() error {
	if r.OK() {
		return nil
	}
	if r.FellBack {
		return errors.Join(r.PrimaryErr, r.FallbackErr)
	}
	return r.PrimaryErr
}

type Session struct {
	mu       sync.Mutex
	cfg      *config.Config
	chain    *config.Chain
	col      core.Collection
	kind     store.SourceKind
	primary  store.Store
	fallback store.Store
	journal  *storage.Journal
	hook     *webhook.Client
	logs     *applog.StructuredLogger
	loaded   bool
}

// New wires a session. fallback may be nil (only the remote source has
// one); journal may be nil when no journal database is configured.
func New(cfg *config.Config, chain *config.Chain, kind store.SourceKind, primary, fallback store.Store, journal *storage.Journal) *Session {
	s := &Session{
		cfg:      cfg,
		chain:    chain,
		kind:     kind,
		primary:  primary,
		fallback: fallback,
		journal:  journal,
		logs: applog.NewStructuredLogger(applog.New(applog.Config{
			Handler:   slog.Default().Handler(),
			Component: applog.ComponentSession,
		})),
	}
	if cfg.WebhookURL != "" {
		s.hook = webhook.New(cfg.WebhookURL, cfg.HTTPTimeout)
	}
	return s
}

// Load pulls the collection from the primary store. A malformed or
// unreachable source degrades to an empty collection with a warning
// instead of refusing to start; the user can still record runs and the
// next successful save re-establishes the file.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.primary.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrMalformed):
		slog.WarnContext(ctx, "Data source is malformed, starting with empty collection",
			"source", s.kind, "error", err)
		col = core.Collection{}
	case errors.Is(err, store.ErrUnreachable) && s.fallback != nil:
		slog.WarnContext(ctx, "Primary source unreachable, loading local fallback",
			"source", s.kind, "error", err)
		col, err = s.fallback.Load(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Local fallback load failed, starting with empty collection",
				"error", err)
			col = core.Collection{}
		}
	case errors.Is(err, store.ErrUnreachable):
		slog.WarnContext(ctx, "Source unreachable, starting with empty collection",
			"source", s.kind, "error", err)
		col = core.Collection{}
	default:
		return fmt.Errorf("load collection: %w", err)
	}

	s.col = col
	s.loaded = true

	slog.InfoContext(ctx, "Collection loaded",
		"source", s.kind,
		"entities", len(col),
		"records", col.TotalRecords())
	return nil
}

// AddRecord validates and computes a run, appends it, and persists the
// collection. Webhook delivery is best-effort and never fails the add.
func (s *Session) AddRecord(ctx context.Context, entity string, base, boost float64, items core.Items) (core.Record, SaveReport, error) {
	if err := core.ValidateRunInput(entity, base, boost); err != nil {
		return core.Record{}, SaveReport{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return core.Record{}, SaveReport{}, ErrNotLoaded
	}

	rec := core.Compute(base, boost, items)
	s.col.Append(entity, rec)

	report := s.saveLocked(ctx)
	s.journalRecord(ctx, storage.OpAddRecord, entity, report)

	if err := report.Err(); err != nil {
		// Keep the record in memory; the user can retry the save.
		s.logs.LogError(ctx, "Failed to persist new record", err,
			applog.ComponentSession, applog.OpAddRecord,
			applog.NewFields().WithRun(entity, rec.Base, rec.Boost, rec.Final, rec.Rate))
	} else {
		s.logs.LogRunRecorded(ctx, entity, rec.Base, rec.Boost, rec.Final, rec.Rate, string(report.Source))
	}

	if s.cfg.AutoNotify && s.hook != nil {
		if err := s.hook.Notify(ctx, entity, rec, items); err != nil {
			slog.WarnContext(ctx, "Run notification failed", "entity", entity, "error", err)
		}
	}
	if s.cfg.AutoBackup && s.hook != nil {
		if err := s.hook.Backup(ctx, s.col.Clone()); err != nil {
			slog.WarnContext(ctx, "Auto backup failed", "error", err)
		}
	}

	return rec, report, nil
}

// DeleteLast removes the most recent record for an entity. It reports
// false when the entity has no records.
func (s *Session) DeleteLast(ctx context.Context, entity string) (bool, SaveReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return false, SaveReport{}, ErrNotLoaded
	}

	if !s.col.DeleteLast(entity) {
		return false, SaveReport{}, nil
	}

	report := s.saveLocked(ctx)
	s.journalRecord(ctx, storage.OpDeleteLast, entity, report)

	if report.Err() != nil {
		slog.ErrorContext(ctx, "Failed to persist after delete",
			"entity", entity, "error", report.Err())
	}

	return true, report, nil
}

// Save persists the current collection without mutating it.
func (s *Session) Save(ctx context.Context) (SaveReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return SaveReport{}, ErrNotLoaded
	}

	report := s.saveLocked(ctx)
	s.journalRecord(ctx, storage.OpSave, "", report)
	return report, report.Err()
}

// Sync forces a save to the authoritative store, bypassing the local
// fallback, so a session whose earlier saves fell back can re-establish
// the remote file.
func (s *Session) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotLoaded
	}

	err := s.primary.Save(ctx, s.col)
	outcome := storage.OutcomeOK
	detail := ""
	if err != nil {
		outcome = storage.OutcomeError
		detail = err.Error()
	}
	s.journalEntry(ctx, storage.OpSync, "", string(s.kind), outcome, detail)

	if err != nil {
		return fmt.Errorf("sync to %s: %w", s.kind, err)
	}

	slog.InfoContext(ctx, "Collection synced",
		"source", s.kind, "entities", len(s.col), "records", s.col.TotalRecords())
	return nil
}

// AllStats computes aggregates for every entity, in sorted entity order.
func (s *Session) AllStats() []core.EntityStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	entities := s.col.Entities()
	out := make([]core.EntityStats, 0, len(entities))
	for _, e := range entities {
		out = append(out, s.col.Stats(e))
	}
	return out
}

// Backup uploads the full collection to the chat webhook.
func (s *Session) Backup(ctx context.Context) error {
	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	hook := s.hook
	col := s.col.Clone()
	s.mu.Unlock()

	if hook == nil {
		return ErrNoWebhook
	}

	err := hook.Backup(ctx, col)
	outcome := storage.OutcomeOK
	detail := ""
	if err != nil {
		outcome = storage.OutcomeError
		detail = err.Error()
	}
	s.journalEntry(ctx, storage.OpBackup, "", "", outcome, detail)
	return err
}

// Snapshot returns an isolated copy of the collection.
func (s *Session) Snapshot() core.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.col.Clone()
}

// Kind reports which source the session resolved to.
func (s *Session) Kind() store.SourceKind {
	return s.kind
}

// Loaded reports whether Load has completed.
func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Stats computes aggregates for one entity from the current collection.
func (s *Session) Stats(entity string) core.EntityStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.col.Stats(entity)
}

// Config returns the current configuration snapshot.
func (s *Session) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cfg
}

// ReloadConfig re-resolves the provider chain and applies the toggles and
// webhook settings that can change at runtime. Source precedence is fixed
// at startup; changing store coordinates requires a restart.
func (s *Session) ReloadConfig() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.chain.Resolve()
	s.cfg = cfg
	if cfg.WebhookURL != "" {
		s.hook = webhook.New(cfg.WebhookURL, cfg.HTTPTimeout)
	} else {
		s.hook = nil
	}
	return *cfg
}

// Journal exposes the activity journal, nil when none is configured.
func (s *Session) Journal() *storage.Journal {
	return s.journal
}

// saveLocked writes the collection to the primary store and, when the
// primary is remote and fails, to the local fallback. Callers hold s.mu.
func (s *Session) saveLocked(ctx context.Context) SaveReport {
	report := SaveReport{Source: s.kind}

	report.PrimaryErr = s.primary.Save(ctx, s.col)
	if report.PrimaryErr == nil {
		return report
	}

	if s.fallback == nil {
		return report
	}

	slog.WarnContext(ctx, "Primary save failed, falling back to local file",
		"source", s.kind, "error", report.PrimaryErr)
	report.FellBack = true
	report.FallbackErr = s.fallback.Save(ctx, s.col)
	if report.FallbackErr == nil {
		report.Source = store.LocalFile
	}
	return report
}

func (s *Session) journalRecord(ctx context.Context, op, entity string, report SaveReport) {
	outcome := storage.OutcomeOK
	detail := ""
	switch {
	case report.Err() != nil:
		outcome = storage.OutcomeError
		detail = report.Err().Error()
	case report.FellBack:
		outcome = storage.OutcomeFallback
		detail = report.PrimaryErr.Error()
	}
	s.journalEntry(ctx, op, entity, string(report.Source), outcome, detail)
}

func (s *Session) journalEntry(ctx context.Context, op, entity, source, outcome, detail string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, op, entity, source, outcome, detail); err != nil {
		slog.WarnContext(ctx, "Failed to write journal entry", "operation", op, "error", err)
	}
}
