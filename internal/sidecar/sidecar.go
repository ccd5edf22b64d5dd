// Package sidecar supervises the embedded Sandcastle server process: it
// spawns the bundled server as a child, discovers the ephemeral port it
// bound from a sentinel line on stdout, confirms readiness against the
// health endpoint, and tears the child down on request.
//
// At most one server runs at a time. Start, Stop, and Port all serialize on
// one mutex guarding the (child, port) pair, so the single-instance
// invariant holds under concurrent callers: a second Start while a child
// exists returns the existing port instead of spawning again.
package sidecar

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/sandcastle/sandhost/internal/logbuf"
	"github.com/sandcastle/sandhost/internal/resource"
)

// defaultDiscoveryTimeout bounds the wait for the port announcement.
const defaultDiscoveryTimeout = 10 * time.Second

// State names the phase the supervisor is in. Failures during startup do
// not reset the state to idle; only Stop does.
type State string

const (
	StateIdle           State = "idle"
	StateSpawning       State = "spawning"
	StateAwaitingPort   State = "awaiting-port"
	StateHealthChecking State = "health-checking"
	StateReady          State = "ready"
)

// Options configures a Supervisor. Zero-value fields fall back to defaults.
type Options struct {
	// Command is the interpreter running the bundle (default "bun").
	Command string
	// Args come before the bundle path (default ["run"]).
	Args []string
	// Bundle is an explicit bundle path; empty uses the standard search
	// locations (see internal/resource).
	Bundle string
	// DiscoveryTimeout bounds the wait for the port announcement.
	DiscoveryTimeout time.Duration
	// LeaveRunningOnFailure keeps the child alive when a start step fails
	// after spawning, so a slow-but-healthy server isn't killed. A later
	// Stop still cleans it up.
	LeaveRunningOnFailure bool
	// Health checks readiness on the discovered port.
	Health *HealthPoller
	// Output receives raw server output lines for the dashboard.
	Output *logbuf.Buffer
}

// Status is a non-blocking snapshot for observers like the dashboard. It is
// published outside the main lock so reads never wait on an in-flight Start.
type Status struct {
	State     State `json:"state"`
	Port      int   `json:"port,omitempty"`
	PID       int   `json:"pid,omitempty"`
	StartedAt int64 `json:"started_at,omitempty"`
}

// Supervisor owns the server child process and its discovered port.
type Supervisor struct {
	opts Options

	mu    sync.Mutex // guards child and port jointly
	child *exec.Cmd
	port  uint16

	snapMu sync.Mutex
	snap   Status
}

// New creates a Supervisor. Missing option fields get defaults.
func New(opts Options) *Supervisor {
	if opts.Command == "" {
		opts.Command = "bun"
		if opts.Args == nil {
			opts.Args = []string{"run"}
		}
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = defaultDiscoveryTimeout
	}
	if opts.Health == nil {
		opts.Health = NewHealthPoller()
	}
	return &Supervisor{opts: opts, snap: Status{State: StateIdle}}
}

// Start brings the server up and returns its port. If a server is already
// running, the recorded port is returned without spawning; a running server
// with no recorded port yields ErrPortUnknown. The call blocks through port
// discovery and the readiness poll; a concurrent Start blocks behind it and
// then observes the result.
//
// On a failure after the child was spawned the child is left running when
// LeaveRunningOnFailure is set (the default wiring): the server may simply
// be slow, and Stop can still clean it up. Otherwise the child is killed
// and state cleared.
func (s *Supervisor) Start() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.child != nil {
		if s.port == 0 {
			return 0, ErrPortUnknown
		}
		return int(s.port), nil
	}

	bundle, err := resource.Locate(s.opts.Bundle)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResourceMissing, err)
	}

	s.setState(StateSpawning)
	args := append(slices.Clone(s.opts.Args), bundle)
	cmd := exec.Command(s.opts.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(StateIdle)
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.setState(StateIdle)
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	if err := cmd.Start(); err != nil {
		s.setState(StateIdle)
		return 0, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	// Handle stored before the drain task starts, so Stop always has
	// something to signal once output is being read.
	s.child = cmd
	s.publish(Status{
		State:     StateAwaitingPort,
		PID:       cmd.Process.Pid,
		StartedAt: time.Now().Unix(),
	})
	slog.Info("server spawned",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("command", s.opts.Command),
		slog.String("bundle", bundle))

	portCh := make(chan uint16, 1)
	go s.drainOutput(cmd, stdout, stderr, portCh)

	timer := time.NewTimer(s.opts.DiscoveryTimeout)
	defer timer.Stop()

	var port uint16
	select {
	case p, ok := <-portCh:
		if !ok {
			return 0, s.startFailed(ErrPortDiscoveryFailed)
		}
		port = p
	case <-timer.C:
		return 0, s.startFailed(fmt.Errorf("%w: no announcement within %s",
			ErrPortDiscoveryTimeout, s.opts.DiscoveryTimeout))
	}

	s.port = port
	s.patch(func(st *Status) { st.Port = int(port); st.State = StateHealthChecking })
	slog.Info("server port discovered", slog.Int("port", int(port)))

	if err := s.opts.Health.Wait(int(port)); err != nil {
		// The port stays recorded: it was discovered, and a later Start
		// returns it rather than spawning a second server.
		return 0, s.startFailed(err)
	}

	s.patch(func(st *Status) { st.State = StateReady })
	slog.Info("server started", slog.Int("port", int(port)))
	return int(port), nil
}

// startFailed applies the partial-failure policy after a spawned child
// failed a later start step. Caller holds s.mu.
func (s *Supervisor) startFailed(err error) error {
	if s.opts.LeaveRunningOnFailure {
		slog.Warn("server start failed, child left running", slog.Any("error", err))
		return err
	}
	slog.Warn("server start failed, killing child", slog.Any("error", err))
	if s.child != nil && s.child.Process != nil {
		if killErr := s.child.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			slog.Error("kill failed", slog.Any("error", killErr))
		}
	}
	s.child = nil
	s.port = 0
	s.publish(Status{State: StateIdle})
	return err
}

// Stop signals the server to terminate and clears the held state. It is a
// no-op when nothing is running. Stop does not wait for the process to
// exit; the server handles SIGTERM and shuts down on its own schedule.
// State is cleared even when signaling fails, since keeping a handle we
// cannot signal would wedge the supervisor.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.child == nil {
		return nil
	}

	proc := s.child.Process
	s.child = nil
	s.port = 0
	s.publish(Status{State: StateIdle})

	err := proc.Signal(syscall.SIGTERM)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("%w: %v", ErrStopFailed, err)
	}
	slog.Info("server stopped", slog.Int("pid", proc.Pid))
	return nil
}

// Port returns the discovered port of the running server. The second
// return is false when no server is running or its port is not yet known.
func (s *Supervisor) Port() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil || s.port == 0 {
		return 0, false
	}
	return int(s.port), true
}

// Status returns a snapshot of the supervisor without touching the main
// lock, so it stays responsive while a Start is in flight.
func (s *Supervisor) Status() Status {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snap
}

func (s *Supervisor) publish(st Status) {
	s.snapMu.Lock()
	s.snap = st
	s.snapMu.Unlock()
}

func (s *Supervisor) patch(f func(*Status)) {
	s.snapMu.Lock()
	f(&s.snap)
	s.snapMu.Unlock()
}

func (s *Supervisor) setState(state State) {
	s.patch(func(st *Status) { st.State = state })
}
