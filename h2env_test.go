package h2env_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/h2env"
	"github.com/giantswarm/h2env/internal/fileutil"
	"github.com/giantswarm/h2env/internal/netutil"
	"github.com/giantswarm/h2env/internal/server"
)

// helperServerEnv makes the test binary act as the spawned server: it runs
// the in-process tcp server with the flags following the entry point.
const helperServerEnv = "H2ENV_TEST_HELPER_SERVER"

func TestMain(m *testing.M) {
	if os.Getenv(helperServerEnv) == "1" {
		os.Exit(runHelperServer(os.Args[1:]))
	}
	h2env.SetLogger(slog.New(slog.DiscardHandler))
	os.Exit(m.Run())
}

func runHelperServer(args []string) int {
	if i := slices.Index(args, h2env.DefaultEntryPoint); i >= 0 {
		args = args[i+1:]
	}
	srv, err := server.DefaultRegistry().New(h2env.ProtocolTCP, args, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "helper server: %v\n", err)
		return 2
	}
	if err := srv.Start(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "helper server: %v\n", err)
		return 2
	}
	<-srv.Done()
	return 0
}

var ports = netutil.NewPortRegistry(nil)

// freePort returns a loopback port nothing listens on.
func freePort(t *testing.T) int {
	t.Helper()
	port, err := ports.AllocatePort()
	if err != nil {
		t.Fatalf("allocate port: %v", err)
	}
	t.Cleanup(func() { ports.Release(port) })
	return port
}

func mustService(t *testing.T, id string, port int, allowRemote, useEncryption bool) h2env.Service {
	t.Helper()
	s, err := h2env.NewService(id, port, allowRemote, useEncryption)
	if err != nil {
		t.Fatalf("NewService(%q) error: %v", id, err)
	}
	return s
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		id        string
		port      int
		supported bool
	}{
		"tcp":     {id: "tcp", port: 9092, supported: true},
		"pg":      {id: "pg", port: 5435, supported: true},
		"web":     {id: "web", port: 8082, supported: true},
		"unknown": {id: "ftp", port: h2env.UnsupportedPort},
		"empty":   {id: "", port: h2env.UnsupportedPort},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := h2env.DefaultPort(tc.id); got != tc.port {
				t.Errorf("DefaultPort(%q) = %d, want %d", tc.id, got, tc.port)
			}
			if got := h2env.IsSupported(tc.id); got != tc.supported {
				t.Errorf("IsSupported(%q) = %v, want %v", tc.id, got, tc.supported)
			}
		})
	}

	if got := h2env.Protocols(); !slices.Equal(got, []string{"tcp", "pg", "web"}) {
		t.Errorf("Protocols() = %v, want [tcp pg web]", got)
	}
}

func TestNewServicePortDefaulting(t *testing.T) {
	t.Parallel()

	for _, port := range []int{-1, 100000} {
		s := mustService(t, "tcp", port, false, false)
		if s.Port() != 9092 {
			t.Errorf("NewService(tcp, %d).Port() = %d, want 9092", port, s.Port())
		}
	}

	if _, err := h2env.NewService("ftp", 21, false, false); !errors.Is(err, h2env.ErrInvalidArgument) {
		t.Errorf("NewService(ftp) error = %v, want ErrInvalidArgument", err)
	}
}

func TestArgs(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg  func(t *testing.T) *h2env.Configuration
		want []string
	}{
		"single tcp with globals": {
			cfg: func(_ *testing.T) *h2env.Configuration {
				return h2env.New(
					h2env.WithStorageDirectory("/data"),
					h2env.WithTrace(true),
					h2env.WithShutdownCredential("secret"),
				)
			},
			want: []string{"-tcp", "-tcpPort", "9092", "-baseDir", "/data", "-trace", "-tcpPassword", "secret"},
		},
		"no services": {
			cfg: func(_ *testing.T) *h2env.Configuration {
				return h2env.New(
					h2env.WithServices(),
					h2env.WithStorageDirectory("/data"),
					h2env.WithTrace(true),
				)
			},
			want: []string{},
		},
		"insertion order with legacy port": {
			cfg: func(t *testing.T) *h2env.Configuration {
				return h2env.New(
					h2env.WithServices(
						mustService(t, "tcp", 9092, false, false),
						mustService(t, "pg", 5435, true, false),
					),
					h2env.WithShutdownCredential(""),
				)
			},
			want: []string{"-tcp", "-tcpPort", "9092", "-pg", "-pgPort", "9092", "-pgAllowOthers"},
		},
		"service ports": {
			cfg: func(t *testing.T) *h2env.Configuration {
				return h2env.New(
					h2env.WithServices(
						mustService(t, "web", 8082, false, true),
						mustService(t, "tcp", 9123, false, false),
					),
					h2env.WithServicePorts(true),
					h2env.WithRequireExisting(true),
				)
			},
			want: []string{
				"-web", "-webPort", "8082", "-webSSL",
				"-tcp", "-tcpPort", "9123",
				"-ifExists", "-tcpPassword", "h2env",
			},
		},
		"daemon": {
			cfg: func(_ *testing.T) *h2env.Configuration {
				return h2env.New(h2env.WithDaemon(true), h2env.WithShutdownCredential(""))
			},
			want: []string{"-tcp", "-tcpPort", "9092", "-tcpDaemon"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := tc.cfg(t)
			got := h2env.Args(cfg)
			if got == nil {
				t.Fatal("Args() returned nil")
			}
			if !slices.Equal(got, tc.want) {
				t.Errorf("Args() = %q, want %q", got, tc.want)
			}
			if again := h2env.Args(cfg); !slices.Equal(again, got) {
				t.Errorf("second Args() = %q, want %q", again, got)
			}
		})
	}
}

func TestLegacyPortProjection(t *testing.T) {
	t.Parallel()

	cfg := h2env.New(h2env.WithShutdownCredential(""))
	cfg.SetPort(9123)        //nolint:staticcheck // legacy setter under test
	cfg.SetAllowOthers(true) //nolint:staticcheck // legacy setter under test

	tcp, ok := cfg.Service("tcp")
	if !ok {
		t.Fatal("tcp service missing")
	}
	if tcp.Port() != 9123 || !tcp.AllowRemoteAccess() {
		t.Errorf("tcp service = %s, want port 9123 with remote access", tcp)
	}

	want := []string{"-tcp", "-tcpPort", "9123", "-tcpAllowOthers"}
	if got := h2env.Args(cfg); !slices.Equal(got, want) {
		t.Errorf("Args() = %q, want %q", got, want)
	}
	if cfg.ShutdownPort() != 9123 {
		t.Errorf("ShutdownPort() = %d, want 9123", cfg.ShutdownPort())
	}
}

func TestCommandLineStripsDaemonFlags(t *testing.T) {
	t.Parallel()

	lib := filepath.Join(t.TempDir(), "h2.jar")
	cfg := h2env.New(
		h2env.WithServices(
			mustService(t, "tcp", 9092, false, false),
			mustService(t, "web", 8082, false, false),
		),
		h2env.WithDaemon(true),
		h2env.WithLauncher("java"),
		h2env.WithLauncherOptions("-Xmx256m", " ", ""),
		h2env.WithServerLibrary(lib),
		h2env.WithEntryPoint(h2env.DefaultEntryPoint),
		h2env.WithShutdownCredential("secret"),
	)

	if !slices.Contains(h2env.Args(cfg), "-tcpDaemon") {
		t.Fatal("Args() should contain -tcpDaemon")
	}

	got, err := h2env.CommandLine(cfg)
	if err != nil {
		t.Fatalf("CommandLine() error: %v", err)
	}
	want := []string{
		"java", "-Xmx256m", "-cp", lib, h2env.DefaultEntryPoint,
		"-tcp", "-tcpPort", "9092", "-web", "-webPort", "9092",
		"-tcpPassword", "secret",
	}
	if !slices.Equal(got, want) {
		t.Errorf("CommandLine() = %q, want %q", got, want)
	}
}

func TestResolveSpawnFromEnvironment(t *testing.T) {
	javaHome := t.TempDir()
	t.Setenv("JAVA_HOME", javaHome)
	t.Setenv("H2ENV_SERVER_LIBRARY", "/opt/h2/h2.jar")

	cfg := h2env.New(h2env.WithShutdownHost("db.local"))
	snap, err := h2env.ResolveSpawnForTesting(cfg)
	if err != nil {
		t.Fatalf("ResolveSpawnForTesting() error: %v", err)
	}

	if want := filepath.Join(javaHome, "bin", "java"); snap.Launcher != want {
		t.Errorf("Launcher = %q, want %q", snap.Launcher, want)
	}
	if snap.Library != "/opt/h2/h2.jar" {
		t.Errorf("Library = %q, want /opt/h2/h2.jar", snap.Library)
	}
	if snap.ReadyHost != "db.local" || snap.ReadyPort != 9092 {
		t.Errorf("ready target = %s:%d, want db.local:9092", snap.ReadyHost, snap.ReadyPort)
	}
	if !slices.Contains(snap.StripFlags, "-pgDaemon") {
		t.Errorf("StripFlags = %q, want every daemon flag", snap.StripFlags)
	}

	explicit := h2env.New(
		h2env.WithLauncher("/usr/bin/java"),
		h2env.WithServerLibrary("h2.jar"),
		h2env.WithEntryPoint("com.example.Main"),
	)
	snap, err = h2env.ResolveSpawnForTesting(explicit)
	if err != nil {
		t.Fatalf("ResolveSpawnForTesting() error: %v", err)
	}
	if snap.Launcher != "/usr/bin/java" || snap.Library != "h2.jar" || snap.EntryPoint != "com.example.Main" {
		t.Errorf("explicit settings overridden: %+v", snap)
	}
}

func TestSpawnErrors(t *testing.T) {
	t.Parallel()

	t.Run("no services", func(t *testing.T) {
		t.Parallel()
		cfg := h2env.New(h2env.WithServices(), h2env.WithLauncher("java"), h2env.WithServerLibrary("h2.jar"))
		if _, err := h2env.Spawn(cfg); !errors.Is(err, h2env.ErrNoServices) {
			t.Errorf("Spawn() error = %v, want ErrNoServices", err)
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		t.Parallel()
		cfg := h2env.New(h2env.WithServices(h2env.Service{}), h2env.WithLauncher("java"), h2env.WithServerLibrary("h2.jar"))
		if _, err := h2env.Spawn(cfg); !errors.Is(err, h2env.ErrInvalidArgument) {
			t.Errorf("Spawn() error = %v, want ErrInvalidArgument", err)
		}
	})

	t.Run("launcher missing", func(t *testing.T) {
		t.Parallel()
		launcher := filepath.Join(t.TempDir(), "no-such-java")
		cfg := h2env.New(h2env.WithLauncher(launcher), h2env.WithServerLibrary("h2.jar"))

		_, err := h2env.Spawn(cfg)
		if !errors.Is(err, h2env.ErrSpawn) {
			t.Fatalf("Spawn() error = %v, want ErrSpawn", err)
		}
		var spawnErr *h2env.SpawnError
		if !errors.As(err, &spawnErr) {
			t.Fatalf("Spawn() error %T is not *SpawnError", err)
		}
		if spawnErr.Command[0] != launcher {
			t.Errorf("SpawnError.Command[0] = %q, want %q", spawnErr.Command[0], launcher)
		}
	})
}

// TestSpawnAndShutdown spawns the test binary as the server process and stops
// it with a remote shutdown request.
func TestSpawnAndShutdown(t *testing.T) {
	t.Setenv(helperServerEnv, "1")

	dir := t.TempDir()
	port := freePort(t)
	cfg := h2env.New(
		h2env.WithServices(mustService(t, "tcp", port, false, false)),
		h2env.WithServicePorts(true),
		h2env.WithDaemon(true),
		h2env.WithLauncher(os.Args[0]),
		h2env.WithServerLibrary(filepath.Join(dir, "h2.jar")),
		h2env.WithEntryPoint(h2env.DefaultEntryPoint),
		h2env.WithStorageDirectory(filepath.Join(dir, "data")),
		h2env.WithShutdownCredential("secret"),
		h2env.WithShutdownTimeout(5*time.Second),
		h2env.WithLogDir(filepath.Join(dir, "logs")),
		h2env.WithPIDFile(filepath.Join(dir, "h2.pid")),
	)

	proc, err := h2env.Spawn(cfg)
	if err != nil {
		t.Fatalf("Spawn() error: %v", err)
	}
	defer proc.Close()

	if slices.Contains(proc.Args(), "-tcpDaemon") {
		t.Errorf("spawned command line %q contains -tcpDaemon", proc.Args())
	}
	pid, err := fileutil.ReadPIDFile(cfg.PIDFile)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if pid != proc.PID() {
		t.Errorf("pid file = %d, want %d", pid, proc.PID())
	}

	ctx := context.Background()
	if err := proc.WaitReady(ctx, 30*time.Second); err != nil {
		t.Fatalf("WaitReady() error: %v", err)
	}

	wrong := cfg.Clone()
	wrong.ShutdownCredential = "wrong"
	if err := h2env.Shutdown(ctx, wrong); !errors.Is(err, h2env.ErrShutdown) {
		t.Fatalf("Shutdown() with wrong credential error = %v, want ErrShutdown", err)
	}

	if err := h2env.Shutdown(ctx, cfg); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	select {
	case <-proc.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("server process did not exit after shutdown")
	}
	if err := proc.Wait(); err != nil {
		t.Errorf("Wait() error: %v", err)
	}
}

func TestShutdownNotListening(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	cfg := h2env.New(
		h2env.WithServices(mustService(t, "tcp", port, false, false)),
		h2env.WithServicePorts(true),
		h2env.WithShutdownTimeout(2*time.Second),
	)

	start := time.Now()
	err := h2env.Shutdown(context.Background(), cfg)
	if !errors.Is(err, h2env.ErrShutdown) {
		t.Fatalf("Shutdown() error = %v, want ErrShutdown", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Shutdown() took %v, want at most the transport timeout", elapsed)
	}

	var shutdownErr *h2env.ShutdownError
	if !errors.As(err, &shutdownErr) {
		t.Fatalf("Shutdown() error %T is not *ShutdownError", err)
	}
	if want := "tcp://localhost:" + strconv.Itoa(port); shutdownErr.Address != want {
		t.Errorf("ShutdownError.Address = %q, want %q", shutdownErr.Address, want)
	}
}

func TestShutdownHostIsTrimmed(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	cfg := h2env.New(
		h2env.WithServices(mustService(t, "tcp", port, false, false)),
		h2env.WithServicePorts(true),
		h2env.WithShutdownHost("  127.0.0.1  "),
		h2env.WithShutdownTimeout(time.Second),
	)

	err := h2env.Shutdown(context.Background(), cfg)
	var shutdownErr *h2env.ShutdownError
	if !errors.As(err, &shutdownErr) {
		t.Fatalf("Shutdown() error = %v, want *ShutdownError", err)
	}
	if want := "tcp://127.0.0.1:" + strconv.Itoa(port); shutdownErr.Address != want {
		t.Errorf("ShutdownError.Address = %q, want %q", shutdownErr.Address, want)
	}
}

func TestCreateAndShutdown(t *testing.T) {
	t.Parallel()

	port := freePort(t)
	cfg := h2env.New(
		h2env.WithServices(
			mustService(t, "web", port, false, false),
			mustService(t, "tcp", port, false, false),
		),
		h2env.WithServicePorts(true),
		h2env.WithStorageDirectory(t.TempDir()),
		h2env.WithShutdownCredential("secret"),
	)

	srv, err := h2env.Create(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop(0) })

	if srv.Protocol() != h2env.ProtocolTCP {
		t.Errorf("Protocol() = %q, want tcp (tcp outranks web)", srv.Protocol())
	}
	if srv.Port() != port {
		t.Errorf("Port() = %d, want %d", srv.Port(), port)
	}
	if !strings.HasPrefix(srv.Addr().String(), "127.0.0.1:") {
		t.Errorf("Addr() = %s, want loopback", srv.Addr())
	}

	if err := h2env.Shutdown(context.Background(), cfg); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	select {
	case <-srv.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after shutdown")
	}
}

func TestCreateErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg  func(t *testing.T) *h2env.Configuration
		want error
	}{
		"no services": {
			cfg: func(_ *testing.T) *h2env.Configuration {
				return h2env.New(h2env.WithServices())
			},
			want: h2env.ErrNoServices,
		},
		"encryption": {
			cfg: func(t *testing.T) *h2env.Configuration {
				return h2env.New(
					h2env.WithServices(mustService(t, "tcp", freePort(t), false, true)),
					h2env.WithServicePorts(true),
				)
			},
			want: h2env.ErrEncryptionUnsupported,
		},
		"invalid service": {
			cfg: func(_ *testing.T) *h2env.Configuration {
				return h2env.New(h2env.WithServices(h2env.Service{}))
			},
			want: h2env.ErrInvalidArgument,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv, err := h2env.Create(context.Background(), tc.cfg(t))
			if !errors.Is(err, tc.want) {
				t.Errorf("Create() error = %v, want %v", err, tc.want)
			}
			if srv != nil {
				_ = srv.Stop(0)
				t.Error("Create() returned a server on error")
			}
		})
	}
}

func TestCreateAll(t *testing.T) {
	t.Parallel()

	tcpPort, pgPort := freePort(t), freePort(t)
	cfg := h2env.New(h2env.WithServices(
		mustService(t, "tcp", tcpPort, false, false),
		mustService(t, "pg", pgPort, false, false),
	))

	servers, err := h2env.CreateAll(context.Background(), cfg)
	if err != nil {
		t.Fatalf("CreateAll() error: %v", err)
	}
	t.Cleanup(func() {
		for _, srv := range servers {
			_ = srv.Stop(0)
		}
	})

	if len(servers) != 2 {
		t.Fatalf("len(servers) = %d, want 2", len(servers))
	}
	if servers[0].Protocol() != "tcp" || servers[0].Port() != tcpPort {
		t.Errorf("servers[0] = %s:%d, want tcp:%d", servers[0].Protocol(), servers[0].Port(), tcpPort)
	}
	if servers[1].Protocol() != "pg" || servers[1].Port() != pgPort {
		t.Errorf("servers[1] = %s:%d, want pg:%d", servers[1].Protocol(), servers[1].Port(), pgPort)
	}

	running := h2env.Running()
	for _, srv := range servers {
		if !slices.ContainsFunc(running, func(s h2env.Server) bool { return s.ID() == srv.ID() }) {
			t.Errorf("server %s missing from Running()", srv.ID())
		}
	}
}
