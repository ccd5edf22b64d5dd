package sidecar

import "errors"

// Failure kinds returned by Supervisor operations. Callers match them with
// errors.Is; the wrapped message carries the underlying cause.
var (
	// ErrResourceMissing means the server bundle could not be located.
	ErrResourceMissing = errors.New("server bundle missing")

	// ErrSpawnFailed means the OS refused to start the child process.
	ErrSpawnFailed = errors.New("failed to spawn server")

	// ErrPortDiscoveryTimeout means no port announcement arrived in time.
	// The child process may still be running.
	ErrPortDiscoveryTimeout = errors.New("timeout waiting for server to report port")

	// ErrPortDiscoveryFailed means the server's output ended before any
	// valid port announcement.
	ErrPortDiscoveryFailed = errors.New("server exited before reporting a port")

	// ErrHealthCheckFailed means the server announced a port but never
	// answered the readiness probe within the retry budget.
	ErrHealthCheckFailed = errors.New("server failed health check")

	// ErrStopFailed means the termination signal could not be delivered.
	// Supervisor state is cleared regardless.
	ErrStopFailed = errors.New("failed to signal server")

	// ErrPortUnknown means a server is running but no port was ever
	// recorded for it (a previous start failed mid-way).
	ErrPortUnknown = errors.New("server running but port unknown")
)
