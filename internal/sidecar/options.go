package sidecar

import (
	"net/http"

	"github.com/sandcastle/sandhost/internal/config"
	"github.com/sandcastle/sandhost/internal/logbuf"
)

// OptionsFromConfig maps the loaded host configuration onto supervisor
// options. out may be nil when no dashboard is running.
func OptionsFromConfig(cfg config.Config, out *logbuf.Buffer) Options {
	return Options{
		Command:               cfg.Server.Command,
		Args:                  cfg.Server.Args,
		Bundle:                cfg.Server.Bundle,
		DiscoveryTimeout:      cfg.DiscoveryTimeout(),
		LeaveRunningOnFailure: cfg.LeaveRunning(),
		Health: &HealthPoller{
			Path:     cfg.Health.Path,
			Attempts: cfg.Health.Attempts,
			Interval: cfg.HealthInterval(),
			Client:   &http.Client{Timeout: cfg.HealthRequestTimeout()},
		},
		Output: out,
	}
}
