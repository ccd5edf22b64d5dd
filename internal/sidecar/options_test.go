package sidecar

import (
	"testing"
	"time"

	"github.com/sandcastle/sandhost/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.Command = "node"
	cfg.Server.Bundle = "/opt/server.js"
	cfg.Discovery.TimeoutMS = 2500
	cfg.Health.Attempts = 7
	cfg.Health.IntervalMS = 20
	cfg.Health.RequestTimeoutMS = 300
	off := false
	cfg.Server.LeaveRunningOnFailure = &off

	opts := OptionsFromConfig(cfg, nil)

	if opts.Command != "node" || opts.Bundle != "/opt/server.js" {
		t.Errorf("command/bundle = %q/%q", opts.Command, opts.Bundle)
	}
	if opts.DiscoveryTimeout != 2500*time.Millisecond {
		t.Errorf("DiscoveryTimeout = %v, want 2.5s", opts.DiscoveryTimeout)
	}
	if opts.LeaveRunningOnFailure {
		t.Error("LeaveRunningOnFailure = true, want false")
	}
	if opts.Health.Attempts != 7 || opts.Health.Interval != 20*time.Millisecond {
		t.Errorf("health = %d attempts at %v", opts.Health.Attempts, opts.Health.Interval)
	}
	if opts.Health.Client.Timeout != 300*time.Millisecond {
		t.Errorf("health client timeout = %v, want 300ms", opts.Health.Client.Timeout)
	}
}
