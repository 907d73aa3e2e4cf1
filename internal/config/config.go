package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Config is the fully resolved session configuration. Values come from the
// provider chain (see providers.go): runtime overrides win over process env,
// env wins over the secrets file, and built-in defaults fill the rest.
type Config struct {
	// HTTP server
	Port string

	// Remote store coordinates (GitHub Contents API)
	GitHubToken string
	GitHubOwner string
	GitHubRepo  string
	GitHubPath  string

	// Chat webhook
	WebhookURL string
	AutoNotify bool
	AutoBackup bool

	// Local persistence
	DataFile      string
	JournalDBPath string

	// Outbound HTTP
	HTTPTimeout time.Duration
}

// Configuration keys shared by all providers. Env-style names so the env
// provider reads them verbatim.
const (
	KeyPort          = "PORT"
	KeyGitHubToken   = "GITHUB_TOKEN"
	KeyGitHubOwner   = "GITHUB_OWNER"
	KeyGitHubRepo    = "GITHUB_REPO"
	KeyGitHubPath    = "GITHUB_PATH"
	KeyWebhookURL    = "WEBHOOK_URL"
	KeyAutoNotify    = "AUTO_NOTIFY"
	KeyAutoBackup    = "AUTO_BACKUP"
	KeyDataFile      = "DATA_FILE"
	KeyJournalDBPath = "JOURNAL_DB_PATH"
	KeyHTTPTimeout   = "HTTP_TIMEOUT"
)

// DefaultDataFile matches the file name the original tool has always used;
// it doubles as the default remote path so both stores stay interchangeable.
const DefaultDataFile = "coin_data_multi.json"

func defaults() map[string]string {
	return map[string]string{
		KeyPort:          "8081",
		KeyGitHubPath:    DefaultDataFile,
		KeyDataFile:      DefaultDataFile,
		KeyJournalDBPath: "./data/coinlog.db",
		KeyAutoNotify:    "false",
		KeyAutoBackup:    "false",
		KeyHTTPTimeout:   "10s",
	}
}

// Load resolves a Config through a fresh provider chain. The secrets file
// path may be empty (the provider then contributes nothing).
func Load(secretsFile string) (*Config, *Chain) {
	ch := NewChain(secretsFile)
	return ch.Resolve(), ch
}

// Resolve materializes a Config from the chain's current state.
func (ch *Chain) Resolve() *Config {
	return &Config{
		Port:          ch.get(KeyPort),
		GitHubToken:   ch.get(KeyGitHubToken),
		GitHubOwner:   ch.get(KeyGitHubOwner),
		GitHubRepo:    ch.get(KeyGitHubRepo),
		GitHubPath:    ch.get(KeyGitHubPath),
		WebhookURL:    ch.get(KeyWebhookURL),
		AutoNotify:    ch.getBool(KeyAutoNotify),
		AutoBackup:    ch.getBool(KeyAutoBackup),
		DataFile:      ch.get(KeyDataFile),
		JournalDBPath: ch.get(KeyJournalDBPath),
		HTTPTimeout:   ch.getDuration(KeyHTTPTimeout, 10*time.Second),
	}
}

// RemoteConfigured reports whether a complete remote coordinate set is
// present. Path is optional and always has a default.
func (c *Config) RemoteConfigured() bool {
	return c.GitHubToken != "" && c.GitHubOwner != "" && c.GitHubRepo != ""
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Partial remote coordinates are a misconfiguration: the resolver would
	// silently fall back to the local file and the user would not notice.
	remoteFields := map[string]string{
		KeyGitHubToken: c.GitHubToken,
		KeyGitHubOwner: c.GitHubOwner,
		KeyGitHubRepo:  c.GitHubRepo,
	}
	var present, missing []string
	for name, v := range remoteFields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		} else {
			present = append(present, name)
		}
	}
	if len(present) > 0 && len(missing) > 0 {
		sort.Strings(present)
		sort.Strings(missing)
		errs = append(errs, fmt.Sprintf("incomplete remote store config: %s set but %s missing",
			strings.Join(present, ", "), strings.Join(missing, ", ")))
	}

	if c.WebhookURL != "" {
		if u, err := url.Parse(c.WebhookURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid webhook URL '%s': %v", c.WebhookURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Sprintf("invalid webhook URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
	}
	if c.WebhookURL == "" && (c.AutoNotify || c.AutoBackup) {
		errs = append(errs, "auto-send toggles require a webhook URL")
	}

	if c.DataFile == "" {
		errs = append(errs, "data file path cannot be empty")
	}

	if c.JournalDBPath != "" {
		dir := filepath.Dir(c.JournalDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errs = append(errs, fmt.Sprintf("cannot create journal directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.HTTPTimeout < time.Second {
		errs = append(errs, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	} else if c.HTTPTimeout > 5*time.Minute {
		errs = append(errs, fmt.Sprintf("invalid HTTP timeout %v: must be at most 5 minutes", c.HTTPTimeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}
