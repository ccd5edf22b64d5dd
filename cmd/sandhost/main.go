package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/sandcastle/sandhost/internal/config"
	"github.com/sandcastle/sandhost/internal/logbuf"
	"github.com/sandcastle/sandhost/internal/logger"
	"github.com/sandcastle/sandhost/internal/metrics"
	"github.com/sandcastle/sandhost/internal/resource"
	"github.com/sandcastle/sandhost/internal/sidecar"
	"github.com/sandcastle/sandhost/internal/web"
)

var version = "dev" // injected via ldflags at build time

// Globals holds shared state injected into Run methods that need the host
// configuration.
type Globals struct {
	ConfigPath string

	once sync.Once
	cfg  config.Config
}

// Cfg lazily loads the configuration on first call.
// Commands that don't need config (version) must not call this.
func (g *Globals) Cfg() config.Config {
	g.once.Do(func() {
		cfg, err := config.Load(g.ConfigPath)
		if err != nil {
			fatal("loading config: %v", err)
		}
		g.cfg = cfg
	})
	return g.cfg
}

// ─── Top-level CLI struct ────────────────────────────────────────────────────

type CLI struct {
	Config string `short:"c" help:"Path to config file (default: $SANDHOST_CONFIG or ~/.config/sandhost/config.yaml)."`

	Serve   ServeCmd   `cmd:"" group:"run"     help:"Run the host: spawn the server and serve the dashboard."`
	Start   StartCmd   `cmd:"" group:"control" help:"Ask a running host to start the server."`
	Stop    StopCmd    `cmd:"" group:"control" help:"Ask a running host to stop the server."`
	Status  StatusCmd  `cmd:"" group:"observe" help:"Show server status from a running host."`
	Logs    LogsCmd    `cmd:"" group:"observe" help:"Print captured server output from a running host."`
	Locate  LocateCmd  `cmd:"" group:"maint"   help:"Resolve and print the server bundle path."`
	Version VersionCmd `cmd:"" group:"maint"   help:"Print version and platform info."`
}

// ─── serve ───────────────────────────────────────────────────────────────────

type ServeCmd struct {
	Port    int    `default:"-1" help:"Dashboard port (default: from config)."`
	Bundle  string `help:"Override the server bundle path."`
	NoSpawn bool   `name:"no-spawn" help:"Serve the dashboard without starting the server."`
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg := g.Cfg()
	if c.Port >= 0 {
		cfg.Web.Port = c.Port
	}
	if c.Bundle != "" {
		cfg.Server.Bundle = c.Bundle
	}

	lb := logbuf.New(500)
	logger.SetMirror(lb)

	opts := sidecar.OptionsFromConfig(cfg, lb)
	opts.Health.OnProbe = metrics.ObserveProbe
	sup := sidecar.New(opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Web.Port)
	fmt.Printf("sandhost running on http://localhost:%d — ctrl+c to exit\n", cfg.Web.Port)

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return web.Serve(egctx, sup, addr, lb)
	})
	if !c.NoSpawn {
		eg.Go(func() error {
			port, err := sup.Start()
			metrics.ObserveStart(err)
			if err != nil {
				// The host stays up so the dashboard can report the failure
				// and retry via the start endpoint.
				slog.Error("server start failed", slog.Any("error", err))
				return nil
			}
			slog.Info("server running", slog.Int("port", port))
			return nil
		})
	}

	err := eg.Wait()

	if stopErr := sup.Stop(); stopErr != nil {
		slog.Warn("stopping server", slog.Any("error", stopErr))
	} else {
		metrics.ObserveStop()
	}
	return err
}

// ─── start / stop (talk to a running host) ───────────────────────────────────

type StartCmd struct {
	Port int `default:"-1" help:"Dashboard port of the running host (default: from config)."`
}

func (c *StartCmd) Run(g *Globals) error {
	resp, err := hostPost(g, c.Port, "/api/server/start")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("host returned %s", resp.Status)
	}
	var started struct {
		Port int `json:"port"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return fmt.Errorf("decoding response: %v", err)
	}
	fmt.Printf("server running on port %d\n", started.Port)
	return nil
}

type StopCmd struct {
	Port int `default:"-1" help:"Dashboard port of the running host (default: from config)."`
}

func (c *StopCmd) Run(g *Globals) error {
	resp, err := hostPost(g, c.Port, "/api/server/stop")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("host returned %s", resp.Status)
	}
	fmt.Println("server stopped")
	return nil
}

// ─── status ──────────────────────────────────────────────────────────────────

type StatusCmd struct {
	Port int  `default:"-1" help:"Dashboard port of the running host (default: from config)."`
	JSON bool `help:"Print raw JSON."`
}

func (c *StatusCmd) Run(g *Globals) error {
	resp, err := hostGet(g, c.Port, "/api/status")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var payload struct {
		Server struct {
			State     string `json:"state"`
			Port      int    `json:"port"`
			PID       int    `json:"pid"`
			StartedAt int64  `json:"started_at"`
		} `json:"server"`
		UptimeSeconds int64 `json:"uptime_seconds"`
	}
	if c.JSON {
		var raw json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return fmt.Errorf("decoding status: %v", err)
		}
		fmt.Println(string(raw))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decoding status: %v", err)
	}

	fmt.Printf("State:   %s\n", payload.Server.State)
	if payload.Server.Port > 0 {
		fmt.Printf("Port:    %d\n", payload.Server.Port)
	}
	if payload.Server.PID > 0 {
		fmt.Printf("PID:     %d\n", payload.Server.PID)
	}
	if payload.Server.StartedAt > 0 {
		fmt.Printf("Started: %s\n", time.Unix(payload.Server.StartedAt, 0).Format("2006-01-02 15:04:05"))
	}
	if payload.UptimeSeconds > 0 {
		fmt.Printf("Uptime:  %s\n", (time.Duration(payload.UptimeSeconds) * time.Second).String())
	}
	return nil
}

// ─── logs ────────────────────────────────────────────────────────────────────

type LogsCmd struct {
	Port int `default:"-1" help:"Dashboard port of the running host (default: from config)."`
	Tail int `default:"0" help:"Show last N lines (0 = all)."`
}

func (c *LogsCmd) Run(g *Globals) error {
	resp, err := hostGet(g, c.Port, "/api/logs")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var lines []string
	if err := json.NewDecoder(resp.Body).Decode(&lines); err != nil {
		return fmt.Errorf("decoding logs: %v", err)
	}
	if c.Tail > 0 && c.Tail < len(lines) {
		lines = lines[len(lines)-c.Tail:]
	}
	if len(lines) == 0 {
		fmt.Println("no output captured")
		return nil
	}
	fmt.Println(strings.Join(lines, "\n"))
	return nil
}

// ─── locate ──────────────────────────────────────────────────────────────────

type LocateCmd struct {
	Bundle string `help:"Explicit bundle path to verify."`
}

func (c *LocateCmd) Run(g *Globals) error {
	explicit := c.Bundle
	if explicit == "" {
		explicit = g.Cfg().Server.Bundle
	}
	path, err := resource.Locate(explicit)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

// ─── version ─────────────────────────────────────────────────────────────────

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("sandhost %s %s/%s\n", version, runtime.GOOS, runtime.GOARCH)
	return nil
}

// ─── main ────────────────────────────────────────────────────────────────────

func main() {
	logger.Init()

	var cli CLI
	globals := &Globals{}

	ctx := kong.Parse(&cli,
		kong.Name("sandhost"),
		kong.Description("sandhost — local server host\n\nSpawn the bundled server, discover its port, watch its health, and serve a live dashboard.\n\nUSAGE:  sandhost <command> [arguments]"),
		kong.UsageOnError(),
		kong.Bind(globals),
		kong.ExplicitGroups([]kong.Group{
			{Key: "run", Title: "── RUN ───────────────────────────────────────────────────────────────────────────"},
			{Key: "control", Title: "── CONTROL ───────────────────────────────────────────────────────────────────────"},
			{Key: "observe", Title: "── MONITORING ────────────────────────────────────────────────────────────────────"},
			{Key: "maint", Title: "── MAINTENANCE ───────────────────────────────────────────────────────────────────"},
		}),
	)
	globals.ConfigPath = cli.Config

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func hostURL(g *Globals, port int, path string) string {
	if port < 0 {
		port = g.Cfg().Web.Port
	}
	return fmt.Sprintf("http://localhost:%d%s", port, path)
}

func hostGet(g *Globals, port int, path string) (*http.Response, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(hostURL(g, port, path))
	if err != nil {
		return nil, fmt.Errorf("host not reachable (is `sandhost serve` running?): %v", err)
	}
	return resp, nil
}

func hostPost(g *Globals, port int, path string) (*http.Response, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(hostURL(g, port, path), "", nil)
	if err != nil {
		return nil, fmt.Errorf("host not reachable (is `sandhost serve` running?): %v", err)
	}
	return resp, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "sandhost: "+format+"\n", args...)
	os.Exit(1)
}
