package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider returns the value for a configuration key, if it has one.
// Providers are queried in priority order; the first hit wins.
type Provider interface {
	Lookup(key string) (string, bool)
}

// Chain is the ordered provider list: session overrides, process env,
// secrets file, defaults.
type Chain struct {
	overrides *Overrides
	providers []Provider
}

// NewChain builds the standard chain. secretsFile may be empty.
func NewChain(secretsFile string) *Chain {
	ov := &Overrides{values: map[string]string{}}
	providers := []Provider{ov, envProvider{}}
	if secretsFile != "" {
		providers = append(providers, loadSecretsProvider(secretsFile))
	}
	providers = append(providers, mapProvider(defaults()))
	return &Chain{overrides: ov, providers: providers}
}

// Set records a session-scoped override; it takes priority over every other
// source until cleared.
func (ch *Chain) Set(key, value string) {
	ch.overrides.set(key, value)
}

// Clear removes a session override, restoring the underlying sources.
func (ch *Chain) Clear(key string) {
	ch.overrides.clear(key)
}

// Override returns the current session override for a key, if one is set.
func (ch *Chain) Override(key string) (string, bool) {
	return ch.overrides.Lookup(key)
}

func (ch *Chain) get(key string) string {
	for _, p := range ch.providers {
		if v, ok := p.Lookup(key); ok {
			return v
		}
	}
	return ""
}

func (ch *Chain) getBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(ch.get(key)))
	if err != nil {
		return false
	}
	return v
}

func (ch *Chain) getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(ch.get(key))); err == nil {
		return d
	}
	return fallback
}

// Overrides holds user-edited settings for the current session.
type Overrides struct {
	mu     sync.RWMutex
	values map[string]string
}

func (o *Overrides) Lookup(key string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[key]
	return v, ok
}

func (o *Overrides) set(key, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[key] = value
}

func (o *Overrides) clear(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.values, key)
}

// envProvider reads the process environment. Empty values count as unset so
// an exported-but-blank variable falls through to the next source.
type envProvider struct{}

func (envProvider) Lookup(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	return "", false
}

// mapProvider serves a fixed key set (defaults, parsed secrets).
type mapProvider map[string]string

func (m mapProvider) Lookup(key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// secretsFile is the on-disk shape of the optional secrets YAML.
type secretsFile struct {
	GitHub struct {
		Token string `yaml:"token"`
		Owner string `yaml:"owner"`
		Repo  string `yaml:"repo"`
		Path  string `yaml:"path"`
	} `yaml:"github"`
	Webhook struct {
		URL string `yaml:"url"`
	} `yaml:"webhook"`
}

// loadSecretsProvider parses the secrets file into a provider. A missing or
// unreadable file just contributes nothing; the session can still run on
// env values or memory-only.
func loadSecretsProvider(path string) Provider {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read secrets file", "path", path, "error", err)
		}
		return mapProvider{}
	}

	var sf secretsFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		slog.Warn("Failed to parse secrets file", "path", path, "error", err)
		return mapProvider{}
	}

	return mapProvider{
		KeyGitHubToken: strings.TrimSpace(sf.GitHub.Token),
		KeyGitHubOwner: strings.TrimSpace(sf.GitHub.Owner),
		KeyGitHubRepo:  strings.TrimSpace(sf.GitHub.Repo),
		KeyGitHubPath:  strings.TrimSpace(sf.GitHub.Path),
		KeyWebhookURL:  strings.TrimSpace(sf.Webhook.URL),
	}
}
