// Package config loads environment-based configuration for authcore.
package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for authcore.
type Config struct {
	// Per-provider OAuth client identifiers. A provider with an empty
	// client ID is disabled and removed from the registry entirely.
	IDMeClientID     string `env:"IDME_CLIENT_ID"`
	GoogleClientID   string `env:"GOOGLE_CLIENT_ID"`
	LoginGovClientID string `env:"LOGINGOV_CLIENT_ID"`

	// Address the loopback callback listener binds to. Must stay on a
	// loopback interface; the provider redirects the user's browser here.
	CallbackListenAddr string `env:"CALLBACK_LISTEN_ADDR" envDefault:"127.0.0.1:8417"`

	// Base URL registered with the providers as the redirect target.
	// The per-provider callback path is appended to this.
	CallbackBaseURL string `env:"CALLBACK_BASE_URL" envDefault:"http://127.0.0.1:8417"`

	// Path of the bbolt database holding encrypted credentials.
	// Defaults to ~/.authcore/state.db when empty.
	StorePath string `env:"AUTHCORE_STORE_PATH"`

	// Environment controls log format.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// LogLevel overrides the default level (debug in development,
	// info in production). One of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:""`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing client identifiers to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.StorePath == "" {
		path, err := defaultStorePath()
		if err != nil {
			return nil, err
		}

		cfg.StorePath = path
	} else {
		abs, err := filepath.Abs(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("resolving store path: %w", err)
		}

		cfg.StorePath = abs
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.IDMeClientID == "" && c.GoogleClientID == "" && c.LoginGovClientID == "" {
		return fmt.Errorf("at least one provider client ID is required: IDME_CLIENT_ID, GOOGLE_CLIENT_ID, or LOGINGOV_CLIENT_ID")
	}

	u, err := url.Parse(c.CallbackBaseURL)
	if err != nil {
		return fmt.Errorf("invalid CALLBACK_BASE_URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("CALLBACK_BASE_URL must be an http(s) URL, got %q", c.CallbackBaseURL)
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q (expected debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// ClientIDs returns the configured client identifier per provider ID.
// Providers without a client ID are omitted.
func (c *Config) ClientIDs() map[string]string {
	ids := make(map[string]string, 3)

	if c.IDMeClientID != "" {
		ids["idme"] = c.IDMeClientID
	}

	if c.GoogleClientID != "" {
		ids["google"] = c.GoogleClientID
	}

	if c.LoginGovClientID != "" {
		ids["logingov"] = c.LoginGovClientID
	}

	return ids
}

// RedirectURL returns the redirect target registered for a provider:
// CALLBACK_BASE_URL + /auth/<provider>/callback.
func (c *Config) RedirectURL(providerID string) string {
	return strings.TrimRight(c.CallbackBaseURL, "/") + "/auth/" + providerID + "/callback"
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// defaultStorePath returns ~/.authcore/state.db.
func defaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".authcore", "state.db"), nil
}
