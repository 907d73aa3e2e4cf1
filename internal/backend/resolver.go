// Package backend wires configuration to a concrete persistence store,
// applying the source precedence rule: remote > local file > memory only.
package backend

import (
	"log/slog"
	"os"

	"coinlog/internal/config"
	"coinlog/internal/store"
	"coinlog/internal/store/github"
	"coinlog/internal/store/localfile"
	"coinlog/internal/store/memory"
)

// Resolve decides which source is authoritative for the session. A complete
// remote coordinate set wins; otherwise an existing local data file; the
// empty in-memory collection is the last resort.
func Resolve(cfg *config.Config) store.SourceKind {
	if cfg.RemoteConfigured() {
		return store.Remote
	}
	if _, err := os.Stat(cfg.DataFile); err == nil {
		return store.LocalFile
	}
	return store.MemoryOnly
}

// Open builds the store for the resolved source. For a Remote source the
// local-file store is returned as well, as the save fallback; fallback is
// nil for every other source.
func Open(cfg *config.Config, logger *slog.Logger) (kind store.SourceKind, primary store.Store, fallback store.Store) {
	if logger == nil {
		logger = slog.Default()
	}

	kind = Resolve(cfg)
	switch kind {
	case store.Remote:
		remote := github.New(github.Config{
			Token:   cfg.GitHubToken,
			Owner:   cfg.GitHubOwner,
			Repo:    cfg.GitHubRepo,
			Path:    cfg.GitHubPath,
			Timeout: cfg.HTTPTimeout,
		})
		logger.Info("Initialized remote store",
			"owner", cfg.GitHubOwner,
			"repo", cfg.GitHubRepo,
			"path", cfg.GitHubPath)
		return kind, remote, localfile.New(cfg.DataFile)
	case store.LocalFile:
		logger.Info("Initialized local file store", "path", cfg.DataFile)
		return kind, localfile.New(cfg.DataFile), nil
	default:
		logger.Info("Initialized memory-only store")
		return kind, memory.New(), nil
	}
}
