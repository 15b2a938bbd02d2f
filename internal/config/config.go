// Package config loads rice's static configuration: a YAML file carrying
// timeouts, retry policy, and resource limits, layered with environment
// overrides for the two variables the core runtime treats as first-class
// inputs (RICE_HOME and RICE_KEY). Nothing in internal/scheduler,
// internal/executor, internal/cache, internal/permission,
// internal/session, or internal/sessionstore reads a config file or an
// environment variable directly; they all take fully-resolved structs,
// keeping configuration an edge concern the way the CLI driver is the
// only thing that knows RICE_HOME exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"rice/internal/logging"
)

// Config holds all of rice's static configuration.
type Config struct {
	Home    string `yaml:"-" json:"-"` // resolved RICE_HOME, never serialized
	KeyPath string `yaml:"-" json:"-"` // resolved RICE_KEY, never serialized

	Logging    LoggingConfig   `yaml:"logging" json:"logging"`
	Timeouts   RuntimeTimeouts `yaml:"timeouts" json:"timeouts"`
	CoreLimits CoreLimits      `yaml:"core_limits" json:"core_limits"`
}

const defaultHomeDirName = ".rice"

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			DebugMode: false,
		},
		Timeouts: DefaultTimeouts(),
		CoreLimits: CoreLimits{
			MaxConcurrentTasks:  4,
			MaxConcurrentTools:  8,
			MaxMessagesPerTurn:  1000,
			MaxCacheEntries:     10000,
			MaxEventSubscribers: 64,
			EventBufferSize:     1024,
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults if
// the file does not exist, then applies RICE_HOME/RICE_KEY environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to a YAML file.
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

// applyEnvOverrides resolves RICE_HOME (default ~/.rice) and RICE_KEY
// (default <RICE_HOME>/key).
func (c *Config) applyEnvOverrides() error {
	home := os.Getenv("RICE_HOME")
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve default RICE_HOME: %w", err)
		}
		home = filepath.Join(userHome, defaultHomeDirName)
	}
	c.Home = home

	keyPath := os.Getenv("RICE_KEY")
	if keyPath == "" {
		keyPath = filepath.Join(home, "key")
	}
	c.KeyPath = keyPath

	return nil
}

// InitLogging wires the resolved config into internal/logging. Call once
// at process startup after Load.
func (c *Config) InitLogging() error {
	if err := logging.Initialize(c.Home, c.Logging.DebugMode, c.Logging.Level, c.Logging.Categories, c.Logging.Format == "json"); err != nil {
		return err
	}
	return logging.InitAudit()
}
