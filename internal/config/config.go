// Package config loads taskforge configuration from YAML with environment
// overrides. Missing files fall back to defaults so a bare checkout runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all taskforge configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Workspace is the directory holding .forge/ state (db, logs, inbox).
	Workspace string `yaml:"workspace"`

	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Store     StoreConfig     `yaml:"store"`
	Evolution EvolutionConfig `yaml:"evolution"`
	Synth     SynthConfig     `yaml:"synth"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SandboxConfig configures artifact execution.
type SandboxConfig struct {
	// Timeout is the wall-clock limit per execution.
	Timeout string `yaml:"timeout"`
	// GraceMargin is how far past the timeout a run may be observed before
	// it counts as a violation (forced termination latency).
	GraceMargin string `yaml:"grace_margin"`
	// MaxOutputBytes caps captured combined output.
	MaxOutputBytes int `yaml:"max_output_bytes"`
}

// StoreConfig configures the persistence layer.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EvolutionConfig configures the self-modification engine.
type EvolutionConfig struct {
	// CommitMargin is the minimum fractional improvement required to commit
	// a candidate (0.05 = 5%).
	CommitMargin float64 `yaml:"commit_margin"`
	// BenchIterations is how many battery passes the benchmarker averages.
	BenchIterations int `yaml:"bench_iterations"`
	// GenerationLimit bounds the autonomous multi-generation loop.
	GenerationLimit int `yaml:"generation_limit"`
	// TargetMetric stops the autonomous loop early once reached (ns/op,
	// 0 disables the target).
	TargetMetric float64 `yaml:"target_metric"`
	// SmokeTimeout bounds candidate smoke tests in the sandbox.
	SmokeTimeout string `yaml:"smoke_timeout"`
}

// SynthConfig configures code synthesis.
type SynthConfig struct {
	// BaseDir is the default directory for path-taking templates when the
	// task names none.
	BaseDir string `yaml:"base_dir"`
	// DiskVolume is the fixed target volume for the disk-space template.
	DiskVolume string `yaml:"disk_volume"`
}

// WatcherConfig configures the task inbox watcher.
type WatcherConfig struct {
	// InboxPath is the watched task file, relative to the workspace when
	// not absolute.
	InboxPath string `yaml:"inbox_path"`
	// Debounce coalesces rapid appends to the inbox file.
	Debounce string `yaml:"debounce"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "taskforge",
		Version:   "0.3.0",
		Workspace: ".",

		Sandbox: SandboxConfig{
			Timeout:        "30s",
			GraceMargin:    "500ms",
			MaxOutputBytes: 1 << 20,
		},

		Store: StoreConfig{
			DatabasePath: ".forge/taskforge.db",
		},

		Evolution: EvolutionConfig{
			CommitMargin:    0.05,
			BenchIterations: 50,
			GenerationLimit: 5,
			TargetMetric:    0,
			SmokeTimeout:    "5s",
		},

		Synth: SynthConfig{
			BaseDir:    ".",
			DiskVolume: "/",
		},

		Watcher: WatcherConfig{
			InboxPath: ".forge/inbox/tasks.txt",
			Debounce:  "500ms",
		},

		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
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

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets FORGE_* environment variables win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FORGE_WORKSPACE"); v != "" {
		c.Workspace = v
	}
	if v := os.Getenv("FORGE_DB_PATH"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("FORGE_SANDBOX_TIMEOUT"); v != "" {
		c.Sandbox.Timeout = v
	}
	if v := os.Getenv("FORGE_LOG_DEBUG"); v == "1" || v == "true" {
		c.Logging.Debug = true
	}
	if v := os.Getenv("FORGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// GetSandboxTimeout parses the sandbox timeout, defaulting to 30s.
func (c *Config) GetSandboxTimeout() time.Duration {
	return parseDuration(c.Sandbox.Timeout, 30*time.Second)
}

// GetGraceMargin parses the termination grace margin, defaulting to 500ms.
func (c *Config) GetGraceMargin() time.Duration {
	return parseDuration(c.Sandbox.GraceMargin, 500*time.Millisecond)
}

// GetSmokeTimeout parses the candidate smoke-test timeout, defaulting to 5s.
func (c *Config) GetSmokeTimeout() time.Duration {
	return parseDuration(c.Evolution.SmokeTimeout, 5*time.Second)
}

// GetDebounce parses the inbox debounce window, defaulting to 500ms.
func (c *Config) GetDebounce() time.Duration {
	return parseDuration(c.Watcher.Debounce, 500*time.Millisecond)
}

// DatabasePath resolves the database path against the workspace.
func (c *Config) DatabasePath() string {
	return c.resolve(c.Store.DatabasePath)
}

// InboxPath resolves the inbox path against the workspace.
func (c *Config) InboxPath() string {
	return c.resolve(c.Watcher.InboxPath)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Workspace, p)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Evolution.CommitMargin < 0 || c.Evolution.CommitMargin >= 1 {
		return fmt.Errorf("evolution.commit_margin must be in [0,1), got %v", c.Evolution.CommitMargin)
	}
	if c.Evolution.BenchIterations <= 0 {
		return fmt.Errorf("evolution.bench_iterations must be positive, got %d", c.Evolution.BenchIterations)
	}
	if c.Evolution.GenerationLimit <= 0 {
		return fmt.Errorf("evolution.generation_limit must be positive, got %d", c.Evolution.GenerationLimit)
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("sandbox.max_output_bytes must be positive, got %d", c.Sandbox.MaxOutputBytes)
	}
	return nil
}
