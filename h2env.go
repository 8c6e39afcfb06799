package h2env

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/h2env/internal/core"
	"github.com/giantswarm/h2env/internal/process"
	"github.com/giantswarm/h2env/internal/server"
	"github.com/giantswarm/h2env/internal/shutdown"
)

type (
	// Configuration aggregates the service list and the server, launcher and
	// shutdown settings. See New.
	Configuration = core.Configuration

	// Service describes one protocol endpoint. See NewService.
	Service = core.Service

	// Process is a spawned external server. Stop or Close it when the server
	// was not shut down remotely.
	Process = process.Process

	// Server is a running in-process server.
	Server = server.Server
)

// NewService returns the descriptor of protocol id. id is trimmed and must be
// one of Protocols, otherwise the error wraps ErrInvalidArgument. A port
// outside [0, 65535] is replaced by DefaultPort(id).
func NewService(id string, port int, allowRemoteAccess, useEncryption bool) (Service, error) {
	return core.NewService(id, port, allowRemoteAccess, useEncryption)
}

// DefaultPort returns the default port of protocol id, or UnsupportedPort.
func DefaultPort(id string) int { return core.DefaultPort(id) }

// IsSupported reports whether id names a known protocol.
func IsSupported(id string) bool { return core.IsSupported(id) }

// Protocols returns the supported protocol ids in priority order.
func Protocols() []string { return core.Protocols() }

// New returns a Configuration with a single tcp service on port 9092 and the
// default shutdown credential, modified by opts.
func New(opts ...Option) *Configuration {
	cfg := core.NewConfiguration()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Args returns the server flag sequence for cfg. It is empty, never nil, when
// cfg has no services.
func Args(cfg *Configuration) []string {
	return core.BuildArgs(cfg)
}

// CommandLine returns the full command line Spawn would execute for cfg,
// with every -<id>Daemon flag removed.
func CommandLine(cfg *Configuration) ([]string, error) {
	sc, err := spawnConfig(cfg)
	if err != nil {
		return nil, err
	}
	return process.CommandLine(sc)
}

// Spawn starts the external server described by cfg and returns as soon as
// the operating system process exists. Use Process.WaitReady to wait until
// it accepts connections.
//
// Configuration errors wrap ErrInvalidArgument or ErrNoServices. Failures to
// create the process match ErrSpawn.
func Spawn(cfg *Configuration) (*Process, error) {
	sc, err := spawnConfig(cfg)
	if err != nil {
		return nil, err
	}
	if len(sc.Args) == 0 {
		return nil, fmt.Errorf("spawn server: %w", ErrNoServices)
	}
	return process.Spawn(sc)
}

// spawnConfig translates cfg into the process layer's settings, filling the
// launcher, server library and entry point from the environment when cfg
// leaves them empty.
func spawnConfig(cfg *Configuration) (process.SpawnConfig, error) {
	if err := cfg.Validate(); err != nil {
		return process.SpawnConfig{}, fmt.Errorf("invalid configuration: %w", err)
	}

	sc := process.SpawnConfig{
		Launcher:        cfg.Launcher,
		LauncherOptions: cfg.LauncherOptions,
		Library:         cfg.ServerLibrary,
		EntryPoint:      cfg.EntryPoint,
		Args:            core.BuildArgs(cfg),
		StripFlags:      core.DaemonFlags(),
		LogDir:          cfg.LogDir,
		PIDFile:         cfg.PIDFile,
		Detach:          cfg.Detach,
		ReadyHost:       cfg.ShutdownHost,
		ReadyPort:       cfg.ShutdownPort(),
		Logger:          core.Logger(),
	}
	if sc.Launcher != "" && sc.Library != "" && sc.EntryPoint != "" {
		return sc, nil
	}

	env, err := core.LoadEnvironment()
	if err != nil {
		return process.SpawnConfig{}, fmt.Errorf("launcher defaults: %w", err)
	}
	if sc.Launcher == "" {
		sc.Launcher = env.Launcher()
	}
	if sc.Library == "" {
		sc.Library = env.ServerLibrary
	}
	if sc.EntryPoint == "" {
		sc.EntryPoint = env.EntryPoint
	}
	return sc, nil
}

// Create starts an in-process server for the primary service of cfg, picked
// in tcp, pg, web order. The server is configured from Args(cfg), so with
// the default settings it listens on the legacy port.
//
// Create returns an error wrapping ErrNoServices when cfg has no services,
// ErrUnsupportedProtocol when the primary protocol has no in-process server
// and ErrEncryptionUnsupported when the service requests encryption.
func Create(ctx context.Context, cfg *Configuration) (Server, error) {
	return server.DefaultRegistry().Create(ctx, cfg, core.Logger())
}

// CreateAll starts one in-process server per service of cfg, each on its own
// service port, and returns them in service order. If one fails to start, the
// others are stopped again.
func CreateAll(ctx context.Context, cfg *Configuration) ([]Server, error) {
	return server.DefaultRegistry().CreateAll(ctx, cfg, core.Logger())
}

// Running returns the in-process servers currently running.
func Running() []Server { return server.Running() }

// StopAll stops every running in-process server, allowing each timeout to
// finish open requests.
func StopAll(timeout time.Duration) error { return server.StopAll(timeout) }

// Shutdown asks the server described by cfg to stop and blocks until it
// acknowledges. The request targets tcp://<ShutdownHost>:<ShutdownPort> and
// carries the shutdown credential and the force and all-instances flags.
//
// The request uses h2env's line-based control protocol, which only the tcp
// servers started by Create and CreateAll understand. It does not stop a
// Java H2 server started with Spawn; use Process.Stop for that.
//
// Every error matches ErrShutdown; use errors.As with *ShutdownError to get
// the attempted address. Nothing is retried.
func Shutdown(ctx context.Context, cfg *Configuration) error {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	address := shutdown.Address(cfg.ShutdownHost, cfg.ShutdownPort())
	log := core.Logger().With("address", address)

	log.Debug("requesting server shutdown", "force", cfg.ForceShutdown, "all_instances", cfg.ShutdownAllInstances)
	if err := shutdown.Shutdown(ctx, address, cfg.ShutdownCredential, cfg.ForceShutdown, cfg.ShutdownAllInstances, timeout); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
