// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guildbot-project/guildbot/lib/cron"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for guildbot.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Platform configures the chat platform connection.
	Platform PlatformConfig `yaml:"platform"`

	// Store configures the persisted record store.
	Store StoreConfig `yaml:"store"`

	// Session configures per-guild playback sessions.
	Session SessionConfig `yaml:"session"`

	// Reconcile configures roster reconciliation.
	Reconcile ReconcileConfig `yaml:"reconcile"`

	// Tickets configures the ticket workflow.
	Tickets TicketsConfig `yaml:"tickets"`

	// Bundles configures which feature bundles load.
	Bundles BundlesConfig `yaml:"bundles"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Platform  *PlatformConfig  `yaml:"platform,omitempty"`
	Store     *StoreConfig     `yaml:"store,omitempty"`
	Reconcile *ReconcileConfig `yaml:"reconcile,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for guildbot data.
	Root string `yaml:"root"`

	// State is where runtime state (the store) lives.
	State string `yaml:"state"`

	// Logs is where session logs are written.
	Logs string `yaml:"logs"`
}

// PlatformConfig configures the chat platform connection.
type PlatformConfig struct {
	// TokenFile is the path to a file holding the bot token. The
	// token never appears in the config file itself.
	TokenFile string `yaml:"token_file"`

	// Shards is how many gateway shards to run. Default 1.
	Shards int `yaml:"shards"`

	// Transport names the gateway adapter to connect with.
	// Default "discord".
	Transport string `yaml:"transport"`
}

// StoreConfig configures the persisted record store.
type StoreConfig struct {
	// Path is the SQLite database file. Default: ${state}/guildbot.db.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Default 4.
	PoolSize int `yaml:"pool_size"`
}

// SessionConfig configures per-guild playback sessions.
type SessionConfig struct {
	// IdleTimeout is how long an idle voice session lingers before
	// tearing itself down, as a Go duration string. Default: 3m.
	IdleTimeout string `yaml:"idle_timeout"`
}

// ReconcileConfig configures roster reconciliation.
type ReconcileConfig struct {
	// Schedule is when the periodic full reconcile runs, as a cron
	// expression or "@every <duration>". Default: "@every 6h".
	Schedule string `yaml:"schedule"`
}

// TicketsConfig configures the ticket workflow.
type TicketsConfig struct {
	// CloseGrace is how long a closed ticket's channel stays up
	// before deletion, as a Go duration string. Default: 30s.
	CloseGrace string `yaml:"close_grace"`
}

// BundlesConfig configures which feature bundles load.
type BundlesConfig struct {
	// Disabled lists bundle names to skip at activation. The
	// manager bundle cannot be disabled.
	Disabled []string `yaml:"disabled"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file; the config file itself is
// still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "guildbot")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root: defaultRoot,
		},
		Platform: PlatformConfig{
			Shards:    1,
			Transport: "discord",
		},
		Store: StoreConfig{
			PoolSize: 4,
		},
		Session: SessionConfig{
			IdleTimeout: "3m",
		},
		Reconcile: ReconcileConfig{
			Schedule: "@every 6h",
		},
		Tickets: TicketsConfig{
			CloseGrace: "30s",
		},
	}
}

// Load loads configuration from the GUILDBOT_CONFIG environment
// variable. There are no fallbacks: if GUILDBOT_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("GUILDBOT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("GUILDBOT_CONFIG environment variable not set; " +
			"set it to the path of your guildbot.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values; the only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	cfg.applyDerivedDefaults()

	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching
// c.Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.Logs != "" {
			c.Paths.Logs = overrides.Paths.Logs
		}
	}
	if overrides.Platform != nil {
		if overrides.Platform.TokenFile != "" {
			c.Platform.TokenFile = overrides.Platform.TokenFile
		}
		if overrides.Platform.Shards > 0 {
			c.Platform.Shards = overrides.Platform.Shards
		}
		if overrides.Platform.Transport != "" {
			c.Platform.Transport = overrides.Platform.Transport
		}
	}
	if overrides.Store != nil {
		if overrides.Store.Path != "" {
			c.Store.Path = overrides.Store.Path
		}
		if overrides.Store.PoolSize > 0 {
			c.Store.PoolSize = overrides.Store.PoolSize
		}
	}
	if overrides.Reconcile != nil {
		if overrides.Reconcile.Schedule != "" {
			c.Reconcile.Schedule = overrides.Reconcile.Schedule
		}
	}
}

// applyDerivedDefaults fills defaults that depend on other values.
// State and logs derive from root, the store path from state, so that
// overriding root alone re-homes everything under it.
func (c *Config) applyDerivedDefaults() {
	if c.Paths.State == "" {
		c.Paths.State = filepath.Join(c.Paths.Root, "state")
	}
	if c.Paths.Logs == "" {
		c.Paths.Logs = filepath.Join(c.Paths.Root, "logs")
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.Paths.State, "guildbot.db")
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"GUILDBOT_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["GUILDBOT_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Logs = expandVars(c.Paths.Logs, vars)
	c.Platform.TokenFile = expandVars(c.Platform.TokenFile, vars)
	c.Store.Path = expandVars(c.Store.Path, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Platform.TokenFile == "" {
		errs = append(errs, fmt.Errorf("platform.token_file is required"))
	}
	if c.Platform.Shards < 1 {
		errs = append(errs, fmt.Errorf("platform.shards must be at least 1"))
	}
	if c.Platform.Transport == "" {
		errs = append(errs, fmt.Errorf("platform.transport is required"))
	}
	if c.Store.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("store.pool_size must be at least 1"))
	}
	if _, err := parseDuration(c.Session.IdleTimeout); err != nil {
		errs = append(errs, fmt.Errorf("session.idle_timeout: %w", err))
	}
	if _, err := parseDuration(c.Tickets.CloseGrace); err != nil {
		errs = append(errs, fmt.Errorf("tickets.close_grace: %w", err))
	}
	if _, err := cron.Parse(c.Reconcile.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("reconcile.schedule: %w", err))
	}
	if slices.Contains(c.Bundles.Disabled, "manager") {
		errs = append(errs, fmt.Errorf("bundles.disabled cannot include the manager"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// SessionIdleTimeout returns Session.IdleTimeout parsed. Call after
// Validate.
func (c *Config) SessionIdleTimeout() time.Duration {
	d, _ := parseDuration(c.Session.IdleTimeout)
	return d
}

// TicketCloseGrace returns Tickets.CloseGrace parsed. Call after
// Validate.
func (c *Config) TicketCloseGrace() time.Duration {
	d, _ := parseDuration(c.Tickets.CloseGrace)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

// ReadToken reads and trims the bot token from Platform.TokenFile.
func (c *Config) ReadToken() (string, error) {
	data, err := os.ReadFile(c.Platform.TokenFile)
	if err != nil {
		return "", fmt.Errorf("config: reading token file: %w", err)
	}
	token := string(data)
	for len(token) > 0 && (token[len(token)-1] == '\n' || token[len(token)-1] == '\r') {
		token = token[:len(token)-1]
	}
	if token == "" {
		return "", fmt.Errorf("config: token file %s is empty", c.Platform.TokenFile)
	}
	return token, nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.State, c.Paths.Logs} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("config: creating %s: %w", path, err)
		}
	}
	return nil
}
