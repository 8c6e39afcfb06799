//go:build integration

// Package testutil provides shared helpers for integration test packages.
package testutil

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/giantswarm/h2env"
	"github.com/giantswarm/h2env/internal/core"
	"github.com/giantswarm/h2env/internal/netutil"
)

// nameCounter is an atomic counter used by UniqueName to generate names that
// are unique across parallel test goroutines.
var nameCounter atomic.Int64

// UniqueName returns a name that is unique across all parallel tests. Use it
// for database names and per-test directories.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, nameCounter.Add(1))
}

// ports hands out loopback ports for spawned servers. Ports stay reserved
// until the test that requested them finishes.
var ports = netutil.NewPortRegistry(nil)

// FreePorts returns n distinct free loopback ports, released when t ends.
func FreePorts(t *testing.T, n int) []int {
	t.Helper()

	p, err := ports.AllocatePorts(n)
	if err != nil {
		t.Fatalf("allocate %d ports: %v", n, err)
	}
	t.Cleanup(func() {
		for _, port := range p {
			ports.Release(port)
		}
	})
	return p
}

// processes tracks spawned servers so that an interrupted test run does not
// leave them behind.
var processes struct {
	sync.Mutex
	list []*h2env.Process
}

// Spawn spawns the server described by cfg and stops it when t ends.
func Spawn(t *testing.T, cfg *h2env.Configuration) *h2env.Process {
	t.Helper()

	p, err := h2env.Spawn(cfg)
	if err != nil {
		t.Fatalf("Spawn() failed: %v", err)
	}
	processes.Lock()
	processes.list = append(processes.list, p)
	processes.Unlock()
	t.Cleanup(p.Close)
	return p
}

func closeProcesses() {
	processes.Lock()
	defer processes.Unlock()
	for _, p := range processes.list {
		p.Close()
	}
	processes.list = nil
}

// SetupTestLogging configures slog based on the H2ENV_LOG_LEVEL environment variable.
// This only affects test runs - the library itself inherits the application's logging config.
func SetupTestLogging() {
	levelStr := os.Getenv("H2ENV_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "INFO"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	h2env.SetLogger(slog.Default().With("component", "h2env"))
}

// RequireRuntimeOrExit checks that a Java runtime and the H2 server library
// are available, exiting the process (via os.Exit) if not. This is used in
// TestMain where *testing.T is not available.
func RequireRuntimeOrExit() {
	env, err := core.LoadEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read launcher environment: %v\n", err)
		os.Exit(1)
	}

	launcher := env.Launcher()
	if _, err := exec.LookPath(launcher); err != nil {
		fmt.Fprintf(os.Stderr, "%s not found\nInstall a JRE or set JAVA_HOME\n", launcher)
		os.Exit(1)
	}
	cmd := exec.Command(launcher, "-version") //nolint:gosec // G204: launcher comes from JAVA_HOME or PATH
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s exists but not working properly: %v\n", launcher, err)
		os.Exit(1)
	}

	if env.ServerLibrary == "" {
		fmt.Fprintln(os.Stderr, "H2ENV_SERVER_LIBRARY is not set\nDownload from: https://repo1.maven.org/maven2/com/h2database/h2/")
		os.Exit(1)
	}
	if _, err := os.Stat(env.ServerLibrary); err != nil {
		fmt.Fprintf(os.Stderr, "server library %s: %v\n", env.ServerLibrary, err)
		os.Exit(1)
	}
}

// RunTestMain sets up signal handling for graceful shutdown, runs all tests,
// then stops leftover servers and removes tmpDir. Returns the exit code.
func RunTestMain(m *testing.M, tmpDir string) int {
	sigCh := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			signal.Stop(sigCh) // Restore default handler so a second signal force-kills
			fmt.Fprintf(os.Stderr, "\nReceived %s, shutting down...\n", sig)
			cleanup(tmpDir)
			os.Exit(1)
		case <-done:
			return
		}
	}()

	code := m.Run()

	signal.Stop(sigCh)
	close(done)
	cleanup(tmpDir)

	return code
}

func cleanup(tmpDir string) {
	closeProcesses()
	if err := h2env.StopAll(time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "StopAll error: %v\n", err)
	}
	_ = os.RemoveAll(tmpDir)
}
