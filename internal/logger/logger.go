// Package logger configures the process-wide slog logger for the host.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// teeWriter forwards writes to os.Stderr and optionally to a mirror writer
// (typically the dashboard's logbuf.Buffer). Safe for concurrent use.
type teeWriter struct {
	mu     sync.RWMutex
	mirror io.Writer
}

func (tw *teeWriter) Write(p []byte) (int, error) {
	n, err := os.Stderr.Write(p)
	tw.mu.RLock()
	mirror := tw.mirror
	tw.mu.RUnlock()
	if mirror != nil {
		mirror.Write(p) //nolint:errcheck
	}
	return n, err
}

var out = &teeWriter{}

// Init initializes the global slog logger with a console handler writing to
// stderr. Reads LOG_LEVEL from the environment (debug/info/warn/error;
// default is info). Call once early in main before any logging occurs.
func Init() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	h := NewConsoleHandler(out, &slog.HandlerOptions{Level: level}, useColor())
	slog.SetDefault(slog.New(h))
}

// SetMirror adds a secondary write target so log output is also sent to w.
// Pass nil to clear the mirror.
func SetMirror(w io.Writer) {
	out.mu.Lock()
	out.mirror = w
	out.mu.Unlock()
}

// useColor reports whether stderr is a terminal that wants ANSI color.
// Honors NO_COLOR and TERM=dumb per clig.dev guidelines.
func useColor() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
