// coinlog-sync pushes the local data file to the remote store once and
// exits. It exists for the case where the server ran with a broken remote
// and saves landed on the local fallback.
package main

import (
	"context"
	"os"
	"time"

	"coinlog/internal/cli"
	"coinlog/internal/storage"
	"coinlog/internal/store"
	"coinlog/internal/store/github"
	"coinlog/internal/store/localfile"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg, _ := cli.LoadAndValidateConfig(logger)

	if !cfg.RemoteConfigured() {
		logger.Error("Remote store is not configured; nothing to sync to")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	local := localfile.New(cfg.DataFile)
	col, err := local.Load(ctx)
	if err != nil {
		logger.Error("Failed to load local data file", "error", err, "path", cfg.DataFile)
		os.Exit(1)
	}
	if len(col) == 0 {
		logger.Info("Local data file is empty, nothing to push", "path", cfg.DataFile)
		return
	}

	remote := github.New(github.Config{
		Token:   cfg.GitHubToken,
		Owner:   cfg.GitHubOwner,
		Repo:    cfg.GitHubRepo,
		Path:    cfg.GitHubPath,
		Timeout: cfg.HTTPTimeout,
	})

	journal := cli.InitJournal(logger, cfg.JournalDBPath)
	defer journal.Close()

	err = remote.Save(ctx, col)
	outcome := storage.OutcomeOK
	detail := ""
	if err != nil {
		outcome = storage.OutcomeError
		detail = err.Error()
	}
	if journal != nil {
		if jerr := journal.Record(ctx, storage.OpSync, "", string(store.Remote), outcome, detail); jerr != nil {
			logger.Warn("Failed to journal sync", "error", jerr)
		}
	}

	if err != nil {
		logger.Error("Sync to remote failed", "error", err,
			"owner", cfg.GitHubOwner, "repo", cfg.GitHubRepo, "path", cfg.GitHubPath)
		os.Exit(1)
	}

	logger.Info("Sync complete",
		"entities", len(col),
		"records", col.TotalRecords(),
		"owner", cfg.GitHubOwner,
		"repo", cfg.GitHubRepo,
		"path", cfg.GitHubPath)
}
