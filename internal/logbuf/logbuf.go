// Package logbuf provides a bounded in-memory buffer of log lines with
// pub/sub support. The host writes its own log output and the captured
// server output into one buffer; the dashboard streams it out over SSE.
package logbuf

import (
	"strings"
	"sync"
)

// Buffer is a fixed-capacity ring of log lines. It implements io.Writer so
// it can sit behind a slog handler, and offers Append for raw process
// output lines. Producers never block: slow subscribers drop lines rather
// than stall the writer.
type Buffer struct {
	mu    sync.Mutex
	ring  []string
	next  int // slot the next line lands in
	count int // number of valid lines in ring
	subs  map[chan string]struct{}
}

// New creates a Buffer that retains at most capacity lines.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		ring: make([]string, capacity),
		subs: make(map[chan string]struct{}),
	}
}

// Append adds a single line to the buffer and notifies subscribers.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.append(line)
}

// Write implements io.Writer. Input is split on newlines; a trailing
// partial line (no terminating newline) is dropped, which matches how slog
// handlers emit one complete line per record.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	parts := strings.Split(string(p), "\n")
	for _, line := range parts[:len(parts)-1] {
		if line == "" {
			continue
		}
		b.append(line)
	}
	return len(p), nil
}

// append stores a line and fans it out. Caller holds b.mu.
func (b *Buffer) append(line string) {
	b.ring[b.next] = line
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
	for ch := range b.subs {
		select {
		case ch <- line:
		default:
			// slow subscriber, drop the line for this channel
		}
	}
}

// Subscribe returns a buffered channel receiving each new line as it
// arrives. The caller must Unsubscribe when done.
func (b *Buffer) Subscribe() chan string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan string, 256)
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a channel returned by Subscribe.
func (b *Buffer) Unsubscribe(ch chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, ch)
}

// Lines returns the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, b.count)
	start := b.next - b.count + len(b.ring)
	for i := 0; i < b.count; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}
