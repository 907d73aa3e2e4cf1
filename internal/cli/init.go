// Package cli provides common initialization shared by cmd/coinlog and
// cmd/coinlog-sync.
package cli

import (
	"os"

	"github.com/joho/godotenv"

	"coinlog/internal/config"
	applog "coinlog/internal/log"
	"coinlog/internal/storage"
)

// DefaultSecretsFile is where the optional secrets YAML is looked up when
// SECRETS_FILE is not set.
const DefaultSecretsFile = "secrets.yaml"

// SetupLogger initializes structured logging, honoring LOG_LEVEL, and sets
// it as the process default.
func SetupLogger() *applog.Logger {
	cfg := applog.DefaultConfig()
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		cfg.Level = applog.ParseLevel(lvl)
		cfg.Handler = nil
	}
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SecretsFile returns the secrets file path from the environment, falling
// back to the default location.
func SecretsFile() string {
	if path := os.Getenv("SECRETS_FILE"); path != "" {
		return path
	}
	return DefaultSecretsFile
}

// LoadAndValidateConfig resolves the configuration through the provider
// chain and validates it, exiting the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) (*config.Config, *config.Chain) {
	cfg, chain := config.Load(SecretsFile())
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, chain
}

// InitJournal opens the activity journal, exiting the process on failure.
func InitJournal(logger *applog.Logger, dbPath string) *storage.Journal {
	if dbPath == "" {
		logger.Warn("No journal database path configured, activity journal disabled")
		return nil
	}
	journal, err := storage.NewJournal(dbPath)
	if err != nil {
		logger.Error("Failed to initialize activity journal", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return journal
}
