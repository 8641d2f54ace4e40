// Package config provides configuration loading for the orchestration core.
package config

import (
	"fmt"
	"time"
)

// Config holds all orchestration configuration.
type Config struct {
	// Root directory that the sessions/ tree lives under
	Base BaseConfig `koanf:"base"`

	// Gate evaluation deadlines and check commands
	Gate GateConfig `koanf:"gate"`

	// Dispatch instruction defaults
	Dispatch DispatchConfig `koanf:"dispatch"`

	// History journal bounds
	History HistoryConfig `koanf:"history"`

	// Session purge policy
	Retention RetentionConfig `koanf:"retention"`

	// Convex document mirroring
	Convex ConvexConfig `koanf:"convex"`

	// Browser toolkit
	Browser BrowserConfig `koanf:"browser"`

	// Logging
	Logging LoggingConfig `koanf:"logging"`
}

// BaseConfig locates the on-disk session tree.
type BaseConfig struct {
	Dir string `koanf:"dir"`
}

// GateConfig configures gate evaluation. Empty commands fall back to
// project-marker detection at check time.
type GateConfig struct {
	Workspace        string        `koanf:"workspace"` // directory subprocess checks run in
	TotalDeadline    time.Duration `koanf:"total_deadline"`
	TypecheckTimeout time.Duration `koanf:"typecheck_timeout"`
	TestsTimeout     time.Duration `koanf:"tests_timeout"`
	LintTimeout      time.Duration `koanf:"lint_timeout"`
	CustomTimeout    time.Duration `koanf:"custom_timeout"`
	TypecheckCommand string        `koanf:"typecheck_command"`
	TestsCommand     string        `koanf:"tests_command"`
	LintCommand      string        `koanf:"lint_command"`
}

// DispatchConfig configures instruction building and scheduling limits.
type DispatchConfig struct {
	Runner              string `koanf:"runner"` // external agent runner binary
	TokenBudget         int    `koanf:"token_budget"`
	MaxConcurrentAgents int    `koanf:"max_concurrent_agents"`
	WaitForAll          bool   `koanf:"wait_for_all"`
}

// HistoryConfig bounds the per-session journal.
type HistoryConfig struct {
	MaxEntries int `koanf:"max_entries"`
}

// RetentionConfig controls purgeOld defaults.
type RetentionConfig struct {
	OlderThanDays int `koanf:"older_than_days"`
	Keep          int `koanf:"keep"`
}

// ConvexConfig configures the optional document mirror.
type ConvexConfig struct {
	Enabled       bool          `koanf:"enabled"`
	DeploymentURL string        `koanf:"deployment_url"`
	Timeout       time.Duration `koanf:"timeout"`
}

// BrowserConfig configures the browser toolkit.
type BrowserConfig struct {
	Headless   bool          `koanf:"headless"`
	ChromePath string        `koanf:"chrome_path"`
	Timeout    time.Duration `koanf:"timeout"`
}

// LoggingConfig configures categorized logging.
type LoggingConfig struct {
	Level      string          `koanf:"level"` // debug, info, warn, error
	Dir        string          `koanf:"dir"`   // empty = no file logging
	Console    bool            `koanf:"console"`
	Categories map[string]bool `koanf:"categories"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Base.Dir == "" {
		cfg.Base.Dir = "."
	}

	if cfg.Gate.Workspace == "" {
		cfg.Gate.Workspace = "."
	}
	if cfg.Gate.TotalDeadline == 0 {
		cfg.Gate.TotalDeadline = 180 * time.Second
	}
	if cfg.Gate.TypecheckTimeout == 0 {
		cfg.Gate.TypecheckTimeout = 60 * time.Second
	}
	if cfg.Gate.TestsTimeout == 0 {
		cfg.Gate.TestsTimeout = 120 * time.Second
	}
	if cfg.Gate.LintTimeout == 0 {
		cfg.Gate.LintTimeout = 60 * time.Second
	}
	if cfg.Gate.CustomTimeout == 0 {
		cfg.Gate.CustomTimeout = 30 * time.Second
	}

	if cfg.Dispatch.Runner == "" {
		cfg.Dispatch.Runner = "agent"
	}
	if cfg.Dispatch.TokenBudget == 0 {
		cfg.Dispatch.TokenBudget = 32000
	}
	if cfg.Dispatch.MaxConcurrentAgents == 0 {
		cfg.Dispatch.MaxConcurrentAgents = 4
	}

	if cfg.History.MaxEntries == 0 {
		cfg.History.MaxEntries = 50
	}

	if cfg.Retention.OlderThanDays == 0 {
		cfg.Retention.OlderThanDays = 7
	}
	if cfg.Retention.Keep == 0 {
		cfg.Retention.Keep = 3
	}

	if cfg.Convex.Timeout == 0 {
		cfg.Convex.Timeout = 10 * time.Second
	}

	if cfg.Browser.Timeout == 0 {
		cfg.Browser.Timeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks configuration invariants after defaults are applied.
func (c *Config) Validate() error {
	if c.Gate.TotalDeadline <= 0 {
		return fmt.Errorf("gate.total_deadline must be positive, got %v", c.Gate.TotalDeadline)
	}
	for name, d := range map[string]time.Duration{
		"gate.typecheck_timeout": c.Gate.TypecheckTimeout,
		"gate.tests_timeout":     c.Gate.TestsTimeout,
		"gate.lint_timeout":      c.Gate.LintTimeout,
		"gate.custom_timeout":    c.Gate.CustomTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.Dispatch.TokenBudget < 0 {
		return fmt.Errorf("dispatch.token_budget must not be negative, got %d", c.Dispatch.TokenBudget)
	}
	if c.Dispatch.MaxConcurrentAgents < 1 {
		return fmt.Errorf("dispatch.max_concurrent_agents must be at least 1, got %d", c.Dispatch.MaxConcurrentAgents)
	}

	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("history.max_entries must be positive, got %d", c.History.MaxEntries)
	}

	if c.Retention.OlderThanDays < 0 {
		return fmt.Errorf("retention.older_than_days must not be negative, got %d", c.Retention.OlderThanDays)
	}
	if c.Retention.Keep < 0 {
		return fmt.Errorf("retention.keep must not be negative, got %d", c.Retention.Keep)
	}

	if c.Convex.Enabled && c.Convex.DeploymentURL == "" {
		return fmt.Errorf("convex.deployment_url required when convex.enabled is true")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown logging.level %q", c.Logging.Level)
	}

	return nil
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	cfg := &Config{Dispatch: DispatchConfig{WaitForAll: true}, Browser: BrowserConfig{Headless: true}}
	applyDefaults(cfg)
	return cfg
}
