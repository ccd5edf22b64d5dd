// Package web serves the local status dashboard for the host: a single
// HTML page, JSON status/log endpoints, start/stop controls for the
// supervised server, an SSE stream, and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sandcastle/sandhost/internal/logbuf"
	"github.com/sandcastle/sandhost/internal/metrics"
	"github.com/sandcastle/sandhost/internal/sidecar"
)

// sseClient represents a connected SSE client.
type sseClient struct {
	ch chan string
}

// Server holds the HTTP dashboard state.
type Server struct {
	sup     *sidecar.Supervisor
	lb      *logbuf.Buffer
	mu      sync.Mutex
	clients map[*sseClient]struct{}
}

// statusJSON is the payload sent to the dashboard and the status CLI.
type statusJSON struct {
	Server        sidecar.Status `json:"server"`
	UptimeSeconds int64          `json:"uptime_seconds,omitempty"`
	UpdatedAt     int64          `json:"updated_at"`
}

func buildStatusJSON(sup *sidecar.Supervisor) statusJSON {
	st := sup.Status()
	payload := statusJSON{
		Server:    st,
		UpdatedAt: time.Now().Unix(),
	}
	if st.State == sidecar.StateReady && st.StartedAt > 0 {
		payload.UptimeSeconds = time.Now().Unix() - st.StartedAt
	}
	return payload
}

// Serve starts the HTTP dashboard on the given address. It shuts down
// gracefully when ctx is cancelled.
func Serve(ctx context.Context, sup *sidecar.Supervisor, addr string, lb *logbuf.Buffer) error {
	srv := &Server{
		sup:     sup,
		lb:      lb,
		clients: make(map[*sseClient]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleIndex)
	mux.HandleFunc("/api/status", srv.handleAPIStatus)
	mux.HandleFunc("/api/logs", srv.handleAPILogs)
	mux.HandleFunc("/api/server/start", srv.handleStart)
	mux.HandleFunc("/api/server/stop", srv.handleStop)
	mux.HandleFunc("/events", srv.handleEvents)
	mux.Handle("/metrics", metrics.Handler())

	httpSrv := &http.Server{Addr: addr, Handler: mux}

	// pollLoop pushes status snapshots to SSE clients until ctx is cancelled.
	go srv.pollLoop(ctx)

	// Broadcast new log lines as SSE events.
	if lb != nil {
		go func() {
			ch := lb.Subscribe()
			defer lb.Unsubscribe(ch)
			for {
				select {
				case <-ctx.Done():
					return
				case line := <-ch:
					srv.broadcastRaw(fmt.Sprintf("event: log\ndata: %s\n\n", line))
				}
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("dashboard shutdown failed", slog.Any("error", err))
		}
	}()

	slog.Info("dashboard listening", slog.String("addr", addr))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleIndex serves the embedded HTML dashboard.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML)) //nolint:errcheck
}

// handleAPIStatus returns the current supervisor snapshot as JSON.
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(buildStatusJSON(s.sup)) //nolint:errcheck
}

// handleAPILogs returns the buffered log lines as a JSON array.
func (s *Server) handleAPILogs(w http.ResponseWriter, r *http.Request) {
	var lines []string
	if s.lb != nil {
		lines = s.lb.Lines()
	}
	if lines == nil {
		lines = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(lines) //nolint:errcheck
}

// handleStart handles POST /api/server/start. It blocks through port
// discovery and the readiness poll, then returns the port.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	port, err := s.sup.Start()
	metrics.ObserveStart(err)
	if err != nil {
		slog.Error("server start failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"port": port}) //nolint:errcheck
}

// handleStop handles POST /api/server/stop.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.sup.Stop(); err != nil {
		slog.Error("server stop failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	metrics.ObserveStop()
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents serves Server-Sent Events for live updates.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	client := &sseClient{ch: make(chan string, 16)}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, client)
		s.mu.Unlock()
	}()

	// Initial status snapshot, then the recent log tail.
	if data, err := json.Marshal(buildStatusJSON(s.sup)); err == nil {
		fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
	}
	if s.lb != nil {
		for _, line := range s.lb.Lines() {
			fmt.Fprintf(w, "event: log\ndata: %s\n\n", line)
		}
	}
	flusher.Flush()

	for {
		select {
		case msg := <-client.ch:
			fmt.Fprint(w, msg)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// broadcastRaw sends a pre-formatted SSE frame to all connected clients.
func (s *Server) broadcastRaw(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.ch <- msg:
		default:
			// drop if client channel is full (slow consumer)
		}
	}
}

// pollLoop periodically pushes status snapshots to SSE clients.
func (s *Server) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := json.Marshal(buildStatusJSON(s.sup))
			if err != nil {
				continue
			}
			s.broadcastRaw(fmt.Sprintf("event: status\ndata: %s\n\n", data))
		}
	}
}
