package server

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/h2env/internal/core"
)

// Constructor creates an unstarted server from the full flag sequence.
type Constructor func(args []string, logger *slog.Logger) (Server, error)

// Registry maps protocol ids to in-process constructors.
type Registry map[string]Constructor

// DefaultRegistry returns a registry with the built-in tcp, pg and web
// servers.
func DefaultRegistry() Registry {
	return Registry{
		core.ProtocolTCP: constructor(NewTCP),
		core.ProtocolPG:  constructor(NewPG),
		core.ProtocolWeb: constructor(NewWeb),
	}
}

func constructor[S Server](fn func([]string, *slog.Logger) (S, error)) Constructor {
	return func(args []string, logger *slog.Logger) (Server, error) {
		srv, err := fn(args, logger)
		if err != nil {
			return nil, err
		}
		return srv, nil
	}
}

// New creates an unstarted server for protocol.
func (r Registry) New(protocol string, args []string, logger *slog.Logger) (Server, error) {
	ctor, ok := r[protocol]
	if !ok || ctor == nil {
		return nil, fmt.Errorf("%s: %w", protocol, ErrUnsupportedProtocol)
	}
	return ctor(args, logger)
}

// Create starts the server of cfg's primary service, picked in tcp, pg, web
// order from the service list. The server receives the flag sequence built
// from cfg unchanged.
func (r Registry) Create(ctx context.Context, cfg *core.Configuration, logger *slog.Logger) (Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	args := core.BuildArgs(cfg)
	primary, ok := cfg.Primary()
	if len(args) == 0 || !ok {
		return nil, fmt.Errorf("create in-process server: %w", core.ErrNoServices)
	}

	srv, err := r.New(primary.ID(), args, logger)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return srv, nil
}

// CreateAll starts one server per configured service concurrently and
// returns them in service order. Every server listens on its own service
// port, since they cannot share the legacy single port. If any server fails
// to start, the ones already running are stopped.
func (r Registry) CreateAll(ctx context.Context, cfg *core.Configuration, logger *slog.Logger) ([]Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	services := cfg.Services()
	if len(services) == 0 {
		return nil, fmt.Errorf("create in-process servers: %w", core.ErrNoServices)
	}

	perService := cfg.Clone()
	perService.EmitServicePorts = true
	args := core.BuildArgs(perService)

	servers := make([]Server, len(services))
	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range services {
		g.Go(func() error {
			srv, err := r.New(svc.ID(), args, logger)
			if err != nil {
				return err
			}
			if err := srv.Start(gctx); err != nil {
				return err
			}
			servers[i] = srv
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var started []Server
		for _, srv := range servers {
			if srv != nil {
				started = append(started, srv)
			}
		}
		if stopErr := stopServers(started, 0); stopErr != nil {
			logger.Warn("stop servers after failed start", "error", stopErr)
		}
		return nil, err
	}
	return servers, nil
}
