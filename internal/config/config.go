// Package config loads and persists partydeck configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all partydeck configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Workspace is the project directory whose capabilities are managed.
	Workspace string `yaml:"workspace"`

	Budget  BudgetConfig  `yaml:"budget"`
	Party   PartyConfig   `yaml:"party"`
	Store   StoreConfig   `yaml:"store"`
	Scanner ScannerConfig `yaml:"scanner"`
	Logging LoggingConfig `yaml:"logging"`
}

// BudgetConfig configures the capability budget model.
type BudgetConfig struct {
	// Total budget in cost units (tokens).
	Total int `yaml:"total"`

	// Per-session context budget in cost units.
	SessionBudget int `yaml:"session_budget"`

	// Tier boundaries as fractions of the total.
	HealthyThreshold    float64 `yaml:"healthy_threshold"`
	OverloadedThreshold float64 `yaml:"overloaded_threshold"`
}

// PartyConfig configures the session pool.
type PartyConfig struct {
	// MaxSessions caps the concurrent session pool.
	MaxSessions int `yaml:"max_sessions"`
}

// StoreConfig configures sqlite persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ScannerConfig configures the capability scanner.
type ScannerConfig struct {
	// GlobalDir is the user-level capability directory (~/.claude).
	GlobalDir string `yaml:"global_dir"`

	// WatchDebounce is the settle time before a file change triggers a
	// rescan, as a duration string.
	WatchDebounce string `yaml:"watch_debounce"`
}

// DebounceDuration parses WatchDebounce. Unset or malformed values fall
// back to 500ms.
func (s ScannerConfig) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(s.WatchDebounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Name:    "partydeck",
		Version: "0.3.0",

		Workspace: ".",

		Budget: BudgetConfig{
			Total:               200_000,
			SessionBudget:       200_000,
			HealthyThreshold:    0.25,
			OverloadedThreshold: 0.50,
		},

		Party: PartyConfig{
			MaxSessions: 5,
		},

		Store: StoreConfig{
			DatabasePath: filepath.Join(".partydeck", "partydeck.db"),
		},

		Scanner: ScannerConfig{
			GlobalDir:     filepath.Join(home, ".claude"),
			WatchDebounce: "500ms",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the config file location inside a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, ".partydeck", "config.yaml")
}

// Load loads configuration from a YAML file. Missing file returns defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if ws := os.Getenv("PARTYDECK_WORKSPACE"); ws != "" {
		c.Workspace = ws
	}
	if dir := os.Getenv("PARTYDECK_GLOBAL_DIR"); dir != "" {
		c.Scanner.GlobalDir = dir
	}
}

// Validate checks the configuration for values the core cannot work with.
func (c *Config) Validate() error {
	if c.Budget.Total <= 0 {
		return fmt.Errorf("budget.total must be positive, got %d", c.Budget.Total)
	}
	if c.Budget.SessionBudget <= 0 {
		return fmt.Errorf("budget.session_budget must be positive, got %d", c.Budget.SessionBudget)
	}
	if c.Budget.HealthyThreshold <= 0 || c.Budget.HealthyThreshold >= c.Budget.OverloadedThreshold {
		return fmt.Errorf("budget thresholds must satisfy 0 < healthy < overloaded")
	}
	if c.Budget.OverloadedThreshold > 1.0 {
		return fmt.Errorf("budget.overloaded_threshold must be <= 1.0, got %v", c.Budget.OverloadedThreshold)
	}
	if c.Party.MaxSessions < 1 {
		return fmt.Errorf("party.max_sessions must be at least 1, got %d", c.Party.MaxSessions)
	}
	return nil
}
