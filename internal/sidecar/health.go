package sidecar

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Health poll defaults, matching the server's expected startup profile:
// fixed-interval polling with a bounded attempt count, no backoff.
const (
	defaultHealthPath           = "/api/health"
	defaultHealthAttempts       = 50
	defaultHealthInterval       = 100 * time.Millisecond
	defaultHealthRequestTimeout = 2 * time.Second
)

// HealthPoller confirms the server is accepting requests before the
// supervisor declares it ready.
type HealthPoller struct {
	Path     string
	Attempts int
	Interval time.Duration
	Client   *http.Client

	// OnProbe, if set, is invoked after each probe with its outcome.
	OnProbe func(ok bool)
}

// NewHealthPoller returns a poller with the default budget: 50 attempts at
// 100ms spacing, 2s per request.
func NewHealthPoller() *HealthPoller {
	return &HealthPoller{
		Path:     defaultHealthPath,
		Attempts: defaultHealthAttempts,
		Interval: defaultHealthInterval,
		Client:   &http.Client{Timeout: defaultHealthRequestTimeout},
	}
}

// Wait polls GET localhost:<port><Path> until a 2xx response or the attempt
// budget runs out. Any transport error or non-2xx status counts as one
// failed attempt followed by a fixed-interval sleep.
func (p *HealthPoller) Wait(port int) error {
	url := fmt.Sprintf("http://localhost:%d%s", port, p.Path)

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		ok := p.probe(url)
		if p.OnProbe != nil {
			p.OnProbe(ok)
		}
		if ok {
			slog.Info("server ready", slog.Int("port", port), slog.Int("attempts", attempt))
			return nil
		}
		if attempt < p.Attempts {
			time.Sleep(p.Interval)
		}
	}

	budget := time.Duration(p.Attempts) * p.Interval
	return fmt.Errorf("%w: no response within %dms", ErrHealthCheckFailed, budget.Milliseconds())
}

func (p *HealthPoller) probe(url string) bool {
	resp, err := p.Client.Get(url)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
