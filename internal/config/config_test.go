package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefaultValues(t *testing.T) {
	t.Parallel()
	cfg := Default()

	if cfg.Server.Command != "bun" {
		t.Errorf("Server.Command = %q, want bun", cfg.Server.Command)
	}
	if got := cfg.DiscoveryTimeout(); got != 10*time.Second {
		t.Errorf("DiscoveryTimeout = %v, want 10s", got)
	}
	if cfg.Health.Attempts != 50 {
		t.Errorf("Health.Attempts = %d, want 50", cfg.Health.Attempts)
	}
	if got := cfg.HealthInterval(); got != 100*time.Millisecond {
		t.Errorf("HealthInterval = %v, want 100ms", got)
	}
	if got := cfg.HealthRequestTimeout(); got != 2*time.Second {
		t.Errorf("HealthRequestTimeout = %v, want 2s", got)
	}
	if cfg.Health.Path != "/api/health" {
		t.Errorf("Health.Path = %q, want /api/health", cfg.Health.Path)
	}
	if !cfg.LeaveRunning() {
		t.Error("LeaveRunning() = false by default, want true")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  command: node
  bundle: /opt/sandcastle/server.js
  leaveRunningOnFailure: false
discovery:
  timeoutMs: 5000
health:
  attempts: 10
  intervalMs: 50
web:
  port: 9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Command != "node" {
		t.Errorf("Server.Command = %q, want node", cfg.Server.Command)
	}
	if cfg.Server.Bundle != "/opt/sandcastle/server.js" {
		t.Errorf("Server.Bundle = %q", cfg.Server.Bundle)
	}
	if cfg.LeaveRunning() {
		t.Error("LeaveRunning() = true, want false after override")
	}
	if got := cfg.DiscoveryTimeout(); got != 5*time.Second {
		t.Errorf("DiscoveryTimeout = %v, want 5s", got)
	}
	if cfg.Health.Attempts != 10 {
		t.Errorf("Health.Attempts = %d, want 10", cfg.Health.Attempts)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
	// Untouched fields keep their defaults.
	if cfg.Health.Path != "/api/health" {
		t.Errorf("Health.Path = %q, want default preserved", cfg.Health.Path)
	}
}

func TestLoadMissingExplicitPathFails(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load with missing explicit path succeeded, want error")
	}
}

func TestLoadMissingDefaultPathUsesDefaults(t *testing.T) {
	t.Setenv("SANDHOST_CONFIG", "")
	home := t.TempDir()
	orig := osUserHomeDir
	osUserHomeDir = func() (string, error) { return home, nil }
	defer func() { osUserHomeDir = orig }()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Command != "bun" {
		t.Errorf("Server.Command = %q, want default bun", cfg.Server.Command)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config") {
		t.Fatalf("Load = %v, want parse error", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty command", "server:\n  command: \"\"\n"},
		{"zero discovery timeout", "discovery:\n  timeoutMs: 0\n"},
		{"negative attempts", "health:\n  attempts: -1\n"},
		{"zero interval", "health:\n  intervalMs: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Errorf("Load accepted %s", tt.name)
			}
		})
	}
}

func TestLoadFromEnvVar(t *testing.T) {
	path := writeConfig(t, "web:\n  port: 4444\n")
	t.Setenv("SANDHOST_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Web.Port != 4444 {
		t.Errorf("Web.Port = %d, want 4444", cfg.Web.Port)
	}
}
