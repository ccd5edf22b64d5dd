package sidecar

import (
	"bufio"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// portSentinel is the prefix of the line the server prints on stdout to
// announce the port it bound.
const portSentinel = "SANDCASTLE_SERVER_PORT="

// parsePortLine extracts a port from a single stdout line. The remainder
// after the sentinel prefix is trimmed and must parse as an unsigned 16-bit
// integer; anything else is not a match.
func parsePortLine(line string) (uint16, bool) {
	rest, ok := strings.CutPrefix(line, portSentinel)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(strings.TrimSpace(rest), 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

type eventKind int

const (
	eventStdout eventKind = iota
	eventStderr
	eventError
	eventExit
)

// outputEvent is one item of the child's combined output stream.
type outputEvent struct {
	kind eventKind
	line string
	err  error
}

// pumpLines scans r line by line and forwards each line as an event.
// Read errors (other than EOF) surface as eventError.
func pumpLines(r io.Reader, kind eventKind, events chan<- outputEvent, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		events <- outputEvent{kind: kind, line: sc.Text()}
	}
	if err := sc.Err(); err != nil {
		events <- outputEvent{kind: eventError, err: err}
	}
}

// drainOutput consumes the child's output until it exits. The first valid
// port announcement is delivered on portCh exactly once; later matches are
// ignored and draining continues so the remaining output is still logged.
// If the stream ends before a match, portCh is closed unfulfilled. The
// child is reaped here via cmd.Wait once both pipes are exhausted.
func (s *Supervisor) drainOutput(cmd *exec.Cmd, stdout, stderr io.Reader, portCh chan uint16) {
	events := make(chan outputEvent, 64)

	var wg sync.WaitGroup
	wg.Add(2)
	go pumpLines(stdout, eventStdout, events, &wg)
	go pumpLines(stderr, eventStderr, events, &wg)
	go func() {
		wg.Wait()
		err := cmd.Wait()
		events <- outputEvent{kind: eventExit, err: err}
		close(events)
	}()

	delivered := false
	for ev := range events {
		switch ev.kind {
		case eventStdout:
			s.echo(ev.line)
			slog.Debug("server stdout", slog.String("line", ev.line))
			if port, ok := parsePortLine(ev.line); ok && !delivered {
				portCh <- port
				delivered = true
			}
		case eventStderr:
			s.echo(ev.line)
			slog.Warn("server stderr", slog.String("line", ev.line))
		case eventError:
			slog.Warn("server output read error", slog.Any("error", ev.err))
		case eventExit:
			if ev.err != nil {
				slog.Warn("server terminated", slog.Any("error", ev.err))
			} else {
				slog.Info("server terminated")
			}
		}
	}
	if !delivered {
		close(portCh)
	}
}

// echo mirrors one line of server output into the host's log buffer.
func (s *Supervisor) echo(line string) {
	if s.opts.Output != nil {
		s.opts.Output.Append("[server] " + line)
	}
}
