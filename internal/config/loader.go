package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix every configuration environment variable
	// carries, e.g. ORCH_GATE_TOTAL_DEADLINE.
	EnvPrefix = "ORCH_"

	maxConfigFileSize = 1 << 20
)

// defaultYAML seeds the booleans whose zero value is not the default.
// Scalars with non-zero defaults are handled by applyDefaults after
// unmarshal.
var defaultYAML = []byte(`
dispatch:
  wait_for_all: true
browser:
  headless: true
`)

// Load reads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (ORCH_BASE_DIR, ORCH_GATE_TESTS_TIMEOUT, ...)
//  2. YAML config file (configPath, or $ORCH_CONFIG when empty)
//  3. Defaults
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and splitting on the first underscore:
//
//	ORCH_BASE_DIR            -> base.dir
//	ORCH_GATE_TESTS_TIMEOUT  -> gate.tests_timeout
//	ORCH_LOGGING_LEVEL       -> logging.level
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load built-in defaults: %w", err)
	}

	if configPath == "" {
		configPath = os.Getenv(EnvPrefix + "CONFIG")
	}

	if configPath != "" {
		info, err := os.Stat(configPath)
		switch {
		case os.IsNotExist(err):
			return nil, fmt.Errorf("config file %s does not exist", configPath)
		case err != nil:
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		default:
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		// ORCH_GATE_TESTS_TIMEOUT -> gate.tests_timeout: the first
		// underscore separates section from field, the rest stay.
		lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
