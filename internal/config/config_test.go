package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/h2env/internal/core"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	path := writeConfig(t, "h2env.yaml", `
server:
  storage_directory: /var/lib/h2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelInfo, cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.Equal(t, "/var/lib/h2", cfg.Server.StorageDirectory)
	assert.Equal(t, core.DefaultShutdownCredential, cfg.Shutdown.Credential)
	assert.Equal(t, "localhost", cfg.Shutdown.Host)
	assert.Equal(t, core.DefaultShutdownTimeout, cfg.Shutdown.Timeout)
	require.Len(t, cfg.Services, 1)
	assert.Equal(t, ServiceConfig{ID: "tcp", Port: 9092}, cfg.Services[0])
}

func TestLoad_Full(t *testing.T) {
	path := writeConfig(t, "h2env.yaml", `
logging:
  level: debug
  format: JSON
services:
  - id: tcp
    port: 9123
  - id: " PG "
    allow_remote_access: true
server:
  service_ports: true
  require_existing: true
  trace: true
  daemon: true
shutdown:
  credential: ""
  host: db.local
  force: true
  all_instances: true
  timeout: 3s
launcher:
  path: /opt/jdk/bin/java
  options: ["-Xmx512m", "-Duser.timezone=UTC"]
  library: lib/h2.jar
  entry_point: org.h2.tools.Server
  log_dir: logs
  pid_file: run/h2.pid
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, []ServiceConfig{
		{ID: "tcp", Port: 9123},
		{ID: "pg", AllowRemoteAccess: true},
	}, cfg.Services)
	assert.True(t, cfg.Server.ServicePorts)
	assert.True(t, cfg.Server.RequireExisting)
	assert.True(t, cfg.Server.Trace)
	assert.True(t, cfg.Server.Daemon)
	assert.Empty(t, cfg.Shutdown.Credential)
	assert.Equal(t, "db.local", cfg.Shutdown.Host)
	assert.True(t, cfg.Shutdown.Force)
	assert.True(t, cfg.Shutdown.AllInstances)
	assert.Equal(t, 3*time.Second, cfg.Shutdown.Timeout)
	assert.Equal(t, []string{"-Xmx512m", "-Duser.timezone=UTC"}, cfg.Launcher.Options)
	assert.Equal(t, "run/h2.pid", cfg.Launcher.PIDFile)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "h2env.toml", `
[logging]
level = "WARN"

[[services]]
id = "web"
port = 8090

[shutdown]
timeout = "1m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, slog.LevelWarn, cfg.Logging.Level)
	assert.Equal(t, []ServiceConfig{{ID: "web", Port: 8090}}, cfg.Services)
	assert.Equal(t, time.Minute, cfg.Shutdown.Timeout)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "h2env.yaml", `
shutdown:
  host: from-file
`)
	t.Setenv("H2ENV_SHUTDOWN_HOST", "from-env")
	t.Setenv("H2ENV_SHUTDOWN_TIMEOUT", "7s")
	t.Setenv("H2ENV_SERVER_TRACE", "true")
	t.Setenv("H2ENV_LOGGING_LEVEL", "error")
	t.Setenv("H2ENV_LAUNCHER_OPTIONS", "-Xms64m,-Xmx128m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Shutdown.Host)
	assert.Equal(t, 7*time.Second, cfg.Shutdown.Timeout)
	assert.True(t, cfg.Server.Trace)
	assert.Equal(t, slog.LevelError, cfg.Logging.Level)
	assert.Equal(t, []string{"-Xms64m", "-Xmx128m"}, cfg.Launcher.Options)
}

func TestLoad_SearchWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	want := Default()
	assert.Equal(t, want.Logging, cfg.Logging)
	assert.Equal(t, want.Services, cfg.Services)
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.Shutdown, cfg.Shutdown)
	assert.Empty(t, cfg.Launcher.Path)
	assert.Empty(t, cfg.Launcher.Options)
}

func TestLoad_SearchFindsUserConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())

	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "h2env"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "h2env", "h2env.yaml"), []byte("server:\n  trace: true\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Server.Trace)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"invalid yaml":      "server:\n  trace: true\n  broken [[[\n",
		"unknown protocol":  "services:\n  - id: ftp\n",
		"invalid level":     "logging:\n  level: loud\n",
		"invalid format":    "logging:\n  format: xml\n",
		"port out of range": "services:\n  - id: tcp\n    port: 70000\n",
		"duplicate service": "services:\n  - id: tcp\n  - id: tcp\n",
		"negative timeout":  "shutdown:\n  timeout: -1s\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, "h2env.yaml", content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	assert.Equal(t, filepath.Join(xdg, "h2env"), Dir())
}
