package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/h2env/internal/core"
)

func TestBuild_Default(t *testing.T) {
	t.Parallel()

	cfg, err := Default().Build()
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"-tcp", "-tcpPort", "9092", "-tcpPassword", core.DefaultShutdownCredential},
		core.BuildArgs(cfg))
	assert.Equal(t, "localhost", cfg.ShutdownHost)
	assert.Equal(t, core.DefaultShutdownTimeout, cfg.ShutdownTimeout)
}

func TestBuild_LegacyPortFollowsTCPService(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Services = []ServiceConfig{{ID: "pg"}, {ID: "tcp", Port: 9123}}
	c.Shutdown.Credential = ""

	cfg, err := c.Build()
	require.NoError(t, err)

	assert.Equal(t, 9123, cfg.Port())
	assert.Equal(t, 9123, cfg.ShutdownPort())
	assert.Equal(t, []string{"-pg", "-pgPort", "9123", "-tcp", "-tcpPort", "9123"}, core.BuildArgs(cfg))

	pg, ok := cfg.Service("pg")
	require.True(t, ok)
	assert.Equal(t, 5435, pg.Port())
}

func TestBuild_ExplicitLegacyPort(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Services = []ServiceConfig{{ID: "tcp", Port: 9123}}
	c.Server.Port = 9200

	cfg, err := c.Build()
	require.NoError(t, err)

	tcp, ok := cfg.Service("tcp")
	require.True(t, ok)
	assert.Equal(t, 9200, tcp.Port(), "legacy port is projected onto the tcp service")
	assert.Equal(t, 9200, cfg.ShutdownPort())
}

func TestBuild_ServicePorts(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Services = []ServiceConfig{{ID: "tcp", Port: 9123}, {ID: "web", Port: 8090, AllowRemoteAccess: true}}
	c.Server.ServicePorts = true
	c.Server.StorageDirectory = "/data"
	c.Server.Daemon = true
	c.Shutdown = ShutdownConfig{Credential: "s3cret", Host: "db", Force: true, AllInstances: true, Timeout: 2 * time.Second}
	c.Launcher = LauncherConfig{
		Path:       "/usr/bin/java",
		Options:    []string{"-Xmx1g"},
		Library:    "h2.jar",
		EntryPoint: "org.h2.tools.Server",
		LogDir:     "logs",
		PIDFile:    "h2.pid",
	}

	cfg, err := c.Build()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-tcp", "-tcpPort", "9123", "-tcpDaemon",
		"-web", "-webPort", "8090", "-webAllowOthers", "-webDaemon",
		"-baseDir", "/data", "-tcpPassword", "s3cret",
	}, core.BuildArgs(cfg))
	assert.Equal(t, "db", cfg.ShutdownHost)
	assert.True(t, cfg.ForceShutdown)
	assert.True(t, cfg.ShutdownAllInstances)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/usr/bin/java", cfg.Launcher)
	assert.Equal(t, []string{"-Xmx1g"}, cfg.LauncherOptions)
	assert.Equal(t, "h2.jar", cfg.ServerLibrary)
	assert.Equal(t, "org.h2.tools.Server", cfg.EntryPoint)
	assert.Equal(t, "logs", cfg.LogDir)
	assert.Equal(t, "h2.pid", cfg.PIDFile)
}

func TestBuild_InvalidService(t *testing.T) {
	t.Parallel()

	c := Default()
	c.Services = []ServiceConfig{{ID: "ftp"}}

	_, err := c.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
