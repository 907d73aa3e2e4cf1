package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"coinlog/internal/backend"
	"coinlog/internal/cli"
	apphttp "coinlog/internal/http"
	"coinlog/internal/session"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg, chain := cli.LoadAndValidateConfig(logger)

	journal := cli.InitJournal(logger, cfg.JournalDBPath)
	defer journal.Close()

	kind, primary, fallback := backend.Open(cfg, logger.Logger)

	sess := session.New(cfg, chain, kind, primary, fallback, journal)
	if err := sess.Load(context.Background()); err != nil {
		logger.Error("Failed to load collection", "error", err, "source", kind)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, sess, chain)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting coinlog server", "port", cfg.Port, "source", kind)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Persist one last time so nothing recorded in memory is lost.
		if report, err := sess.Save(shutdownCtx); err != nil {
			logger.Warn("Final save failed", "error", err, "source", report.Source)
		}

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
