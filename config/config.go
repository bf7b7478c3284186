// Package config loads engine configuration from YAML. Environment variables
// in the format ${VAR_NAME} are expanded before parsing, and duration fields
// are given as strings ("30s", "5m") and parsed after.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clwillingham/legion/core"
)

// Config is the root engine configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Limits    LimitsConfig    `yaml:"limits"`
	Providers ProvidersConfig `yaml:"providers"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig locates the on-disk record store.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// LimitsConfig bounds recursion and model loops.
type LimitsConfig struct {
	// MaxDepth caps nested communicate calls; values at or below 1 disable
	// nesting.
	MaxDepth int `yaml:"max_depth"`
	// MaxIterations caps generate/execute rounds within one agent turn.
	// Zero means unbounded.
	MaxIterations int `yaml:"max_iterations"`
}

// ProvidersConfig carries provider credentials and overrides.
type ProvidersConfig struct {
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

// ProviderConfig configures one model provider.
type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ApprovalConfig tunes the authorization engine.
type ApprovalConfig struct {
	// TimeoutRaw bounds how long an approval may stay pending ("0" or empty
	// waits on the caller's context alone).
	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
	// Policies maps tool names to "auto", "requires_approval" or "deny",
	// overriding the built-in defaults engine-wide.
	Policies map[string]string `yaml:"policies"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Default returns the baseline configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Dir: "data"},
		Limits:  LimitsConfig{MaxDepth: 2, MaxIterations: 10},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded;
// missing fields fall back to the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %v", core.ErrConfig, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config file: %v", core.ErrConfig, err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

func (c *Config) parseDurations() error {
	if c.Approval.TimeoutRaw == "" || c.Approval.TimeoutRaw == "0" {
		return nil
	}
	d, err := time.ParseDuration(c.Approval.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("%w: approval.timeout: %v", core.ErrConfig, err)
	}
	c.Approval.Timeout = d
	return nil
}

// Validate checks that the configuration is usable, returning the first
// failure encountered.
func (c *Config) Validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("%w: storage.dir is required", core.ErrConfig)
	}
	if c.Limits.MaxDepth < 1 {
		return fmt.Errorf("%w: limits.max_depth must be at least 1", core.ErrConfig)
	}
	if c.Limits.MaxIterations < 0 {
		return fmt.Errorf("%w: limits.max_iterations must not be negative", core.ErrConfig)
	}
	for tool, policy := range c.Approval.Policies {
		switch policy {
		case "auto", "requires_approval", "deny":
		default:
			return fmt.Errorf("%w: approval.policies.%s: unknown policy %q", core.ErrConfig, tool, policy)
		}
	}
	return nil
}
