// Package metrics exposes Prometheus collectors for the sidecar lifecycle.
// They are served by the dashboard's /metrics endpoint.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sandcastle/sandhost/internal/sidecar"
)

var (
	// Starts counts start calls that returned a ready server.
	Starts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sandhost_server_starts_total",
		Help: "Number of successful server start calls.",
	})

	// StartFailures counts failed start calls by failure reason.
	StartFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sandhost_server_start_failures_total",
		Help: "Number of failed server start calls, labeled by reason.",
	}, []string{"reason"})

	// HealthProbes counts individual readiness probes by outcome.
	HealthProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sandhost_health_probes_total",
		Help: "Number of readiness probes issued, labeled ok or failed.",
	}, []string{"outcome"})

	// Ready is 1 while the server has passed its readiness check.
	Ready = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sandhost_server_ready",
		Help: "Whether the supervised server is currently ready (0 or 1).",
	})

	// Stops counts stop calls that had a child to signal.
	Stops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sandhost_server_stops_total",
		Help: "Number of stop calls that signaled a running server.",
	})
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStart records the outcome of a Supervisor.Start call.
func ObserveStart(err error) {
	if err != nil {
		StartFailures.WithLabelValues(FailureReason(err)).Inc()
		Ready.Set(0)
		return
	}
	Starts.Inc()
	Ready.Set(1)
}

// ObserveStop records a Supervisor.Stop call that signaled a child.
func ObserveStop() {
	Stops.Inc()
	Ready.Set(0)
}

// ObserveProbe records one readiness probe. Suitable for use as a
// sidecar.HealthPoller OnProbe hook.
func ObserveProbe(ok bool) {
	if ok {
		HealthProbes.WithLabelValues("ok").Inc()
		return
	}
	HealthProbes.WithLabelValues("failed").Inc()
}

// FailureReason maps a start error to a stable label value.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, sidecar.ErrResourceMissing):
		return "resource_missing"
	case errors.Is(err, sidecar.ErrSpawnFailed):
		return "spawn"
	case errors.Is(err, sidecar.ErrPortDiscoveryTimeout):
		return "discovery_timeout"
	case errors.Is(err, sidecar.ErrPortDiscoveryFailed):
		return "discovery"
	case errors.Is(err, sidecar.ErrHealthCheckFailed):
		return "health"
	case errors.Is(err, sidecar.ErrPortUnknown):
		return "port_unknown"
	default:
		return "other"
	}
}
