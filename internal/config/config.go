// Package config loads the host configuration. Defaults cover a standard
// installation; a YAML file overrides individual fields. The file is looked
// up at --config, else $SANDHOST_CONFIG, else ~/.config/sandhost/config.yaml.
// A missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/sandhost"
	configFileName = "config.yaml"
)

// mockable in tests
var osUserHomeDir = os.UserHomeDir

// Config is the root of the sandhost configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Health    HealthConfig    `yaml:"health"`
	Web       WebConfig       `yaml:"web"`
}

// ServerConfig describes how the sidecar server process is launched.
type ServerConfig struct {
	// Command is the interpreter that runs the server bundle.
	Command string `yaml:"command"`
	// Args are passed before the resolved bundle path.
	Args []string `yaml:"args"`
	// Bundle is an explicit path to the server bundle. Empty means the
	// standard search locations are tried (see internal/resource).
	Bundle string `yaml:"bundle"`
	// LeaveRunningOnFailure keeps a spawned child alive when a later start
	// step fails (port discovery or health check). Nil means true.
	LeaveRunningOnFailure *bool `yaml:"leaveRunningOnFailure"`
}

// DiscoveryConfig bounds the wait for the server's port announcement.
type DiscoveryConfig struct {
	TimeoutMS int `yaml:"timeoutMs"`
}

// HealthConfig tunes the readiness poll against the discovered port.
type HealthConfig struct {
	Path             string `yaml:"path"`
	Attempts         int    `yaml:"attempts"`
	IntervalMS       int    `yaml:"intervalMs"`
	RequestTimeoutMS int    `yaml:"requestTimeoutMs"`
}

// WebConfig configures the local status dashboard.
type WebConfig struct {
	Port int `yaml:"port"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Command: "bun",
			Args:    []string{"run"},
		},
		Discovery: DiscoveryConfig{
			TimeoutMS: 10000,
		},
		Health: HealthConfig{
			Path:             "/api/health",
			Attempts:         50,
			IntervalMS:       100,
			RequestTimeoutMS: 2000,
		},
		Web: WebConfig{
			Port: 7333,
		},
	}
}

// Load returns the configuration with file overrides applied. An explicit
// path must exist; the default user path is optional.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("SANDHOST_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		home, err := osUserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, userConfigDir, configFileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Command == "" {
		return fmt.Errorf("server.command must not be empty")
	}
	if c.Discovery.TimeoutMS <= 0 {
		return fmt.Errorf("discovery.timeoutMs must be positive")
	}
	if c.Health.Attempts <= 0 {
		return fmt.Errorf("health.attempts must be positive")
	}
	if c.Health.IntervalMS <= 0 {
		return fmt.Errorf("health.intervalMs must be positive")
	}
	return nil
}

// DiscoveryTimeout returns the port discovery timeout as a Duration.
func (c Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.TimeoutMS) * time.Millisecond
}

// HealthInterval returns the delay between health probes.
func (c Config) HealthInterval() time.Duration {
	return time.Duration(c.Health.IntervalMS) * time.Millisecond
}

// HealthRequestTimeout returns the per-probe HTTP timeout.
func (c Config) HealthRequestTimeout() time.Duration {
	return time.Duration(c.Health.RequestTimeoutMS) * time.Millisecond
}

// LeaveRunning reports the partial-failure policy with its default applied.
func (c Config) LeaveRunning() bool {
	if c.Server.LeaveRunningOnFailure == nil {
		return true
	}
	return *c.Server.LeaveRunningOnFailure
}
