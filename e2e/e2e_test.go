//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

// Paths to the binaries compiled once in TestMain.
var (
	hostBin   string
	serverBin string
)

// ─── TestMain: build binaries once ───────────────────────────────────────────

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "sandhost-bin-*")
	if err != nil {
		log.Fatalf("mkdtemp: %v", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	moduleRoot, err := findModuleRoot()
	if err != nil {
		cleanup()
		log.Fatalf("find module root: %v", err)
	}

	hostBin = filepath.Join(dir, "sandhost")
	serverBin = filepath.Join(dir, "testserver")
	for bin, pkg := range map[string]string{
		hostBin:   "./cmd/sandhost",
		serverBin: "./e2e/testserver",
	} {
		cmd := exec.Command("go", "build", "-o", bin, pkg)
		cmd.Dir = moduleRoot
		if out, err := cmd.CombinedOutput(); err != nil {
			cleanup()
			log.Fatalf("go build %s: %v\n%s", pkg, err, out)
		}
	}

	code := m.Run()
	cleanup()
	os.Exit(code)
}

// findModuleRoot walks up from CWD to find the directory containing go.mod.
func findModuleRoot() (string, error) {
	out, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		return "", err
	}
	gomod := strings.TrimSpace(string(out))
	if gomod == "" || gomod == os.DevNull {
		return "", fmt.Errorf("not inside a Go module")
	}
	return filepath.Dir(gomod), nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// freePort asks the OS for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// writeConfig writes a host config pointing the server command at the
// testserver binary; returns the config path.
func writeConfig(t *testing.T, webPort int) string {
	t.Helper()
	dir := t.TempDir()
	bundle := filepath.Join(dir, "server.js")
	if err := os.WriteFile(bundle, []byte("// placeholder bundle\n"), 0644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}
	cfg := fmt.Sprintf(`server:
  command: %s
  args: []
  bundle: %s
web:
  port: %d
`, serverBin, bundle, webPort)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

type statusPayload struct {
	Server struct {
		State string `json:"state"`
		Port  int    `json:"port"`
		PID   int    `json:"pid"`
	} `json:"server"`
}

// startHost launches `sandhost serve` and waits for the dashboard to answer.
// The process is killed at test cleanup.
func startHost(t *testing.T, webPort int) *exec.Cmd {
	t.Helper()
	cfgPath := writeConfig(t, webPort)

	cmd := exec.Command(hostBin, "--config", cfgPath, "serve")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sandhost: %v", err)
	}
	t.Cleanup(func() {
		cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck
		done := make(chan struct{})
		go func() { cmd.Wait(); close(done) }() //nolint:errcheck
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			cmd.Process.Kill() //nolint:errcheck
			<-done
		}
	})

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/status", webPort))
		if err == nil {
			resp.Body.Close()
			return cmd
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("dashboard never came up")
	return nil
}

// getStatus fetches and decodes /api/status from the running host.
func getStatus(t *testing.T, webPort int) statusPayload {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/status", webPort))
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return payload
}

// waitForState polls /api/status until the server reaches the given state.
func waitForState(t *testing.T, webPort int, state string) statusPayload {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	var last statusPayload
	for time.Now().Before(deadline) {
		last = getStatus(t, webPort)
		if last.Server.State == state {
			return last
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server never reached state %q (last: %+v)", state, last)
	return last
}

// runCLI runs a sandhost subcommand against a running host; returns output.
func runCLI(t *testing.T, webPort int, args ...string) string {
	t.Helper()
	full := append(args, "--port", fmt.Sprint(webPort))
	out, err := exec.Command(hostBin, full...).CombinedOutput()
	if err != nil {
		t.Fatalf("sandhost %v: %v\n%s", full, err, out)
	}
	return string(out)
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestServeBringsServerToReady(t *testing.T) {
	webPort := freePort(t)
	startHost(t, webPort)

	st := waitForState(t, webPort, "ready")
	if st.Server.Port == 0 {
		t.Fatal("ready but no port recorded")
	}
	if st.Server.PID == 0 {
		t.Error("ready but no pid recorded")
	}

	// The discovered port answers health checks directly.
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/health", st.Server.Port))
	if err != nil {
		t.Fatalf("GET server health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("server health = %d, want 200", resp.StatusCode)
	}
}

func TestLogsCaptureServerAnnouncement(t *testing.T) {
	webPort := freePort(t)
	startHost(t, webPort)
	waitForState(t, webPort, "ready")

	out := runCLI(t, webPort, "logs")
	if !strings.Contains(out, "SANDCASTLE_SERVER_PORT=") {
		t.Errorf("logs missing announcement line:\n%s", out)
	}
}

func TestStopStartCycleViaCLI(t *testing.T) {
	webPort := freePort(t)
	startHost(t, webPort)
	ready := waitForState(t, webPort, "ready")
	firstPID := ready.Server.PID

	out := runCLI(t, webPort, "stop")
	if !strings.Contains(out, "server stopped") {
		t.Errorf("stop output: %s", out)
	}
	st := getStatus(t, webPort)
	if st.Server.State != "idle" {
		t.Errorf("state after stop = %s, want idle", st.Server.State)
	}
	if st.Server.Port != 0 {
		t.Errorf("port after stop = %d, want 0", st.Server.Port)
	}

	out = runCLI(t, webPort, "start")
	if !strings.Contains(out, "server running on port") {
		t.Errorf("start output: %s", out)
	}
	restarted := waitForState(t, webPort, "ready")
	if restarted.Server.PID == firstPID {
		t.Errorf("restart reused pid %d, want a fresh child", firstPID)
	}
}

func TestStatusCommandReportsReady(t *testing.T) {
	webPort := freePort(t)
	startHost(t, webPort)
	waitForState(t, webPort, "ready")

	out := runCLI(t, webPort, "status")
	if !strings.Contains(out, "State:   ready") {
		t.Errorf("status output:\n%s", out)
	}
	if !strings.Contains(out, "Port:") {
		t.Errorf("status output missing port:\n%s", out)
	}
}

func TestSigtermShutsHostDownCleanly(t *testing.T) {
	webPort := freePort(t)
	cmd := startHost(t, webPort)
	ready := waitForState(t, webPort, "ready")

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("host exited with error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("host did not exit after SIGTERM")
	}

	// The child was signalled too; give it a moment to die.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if syscall.Kill(ready.Server.PID, 0) != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Errorf("server process %d still alive after host shutdown", ready.Server.PID)
}
