package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/h2env"
	"github.com/giantswarm/h2env/internal/core"
	"github.com/giantswarm/h2env/internal/fileutil"
	"github.com/giantswarm/h2env/internal/netutil"
)

const defaultReadyTimeout = 30 * time.Second

func (a *app) newArgsCommand() *cobra.Command {
	var serverOnly bool
	cmd := &cobra.Command{
		Use:   "args",
		Short: "Print the server command line",
		Long: `Print the command line h2env spawn would execute, quoted for a POSIX
shell. With --server-only only the server flags are printed, including the
daemon flags that spawn strips.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.configuration()
			if err != nil {
				return err
			}
			line := h2env.Args(cfg)
			if !serverOnly {
				if line, err = h2env.CommandLine(cfg); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.out, shellJoin(line))
			return nil
		},
	}
	cmd.Flags().BoolVar(&serverOnly, "server-only", false, "Print only the server flags")
	return cmd
}

func (a *app) newSpawnCommand() *cobra.Command {
	var (
		wait        bool
		waitTimeout time.Duration
		freePort    bool
	)
	cmd := &cobra.Command{
		Use:   "spawn",
		Short: "Start the server as a detached process",
		Long: `Start the external server in its own session and print its process id
and shutdown port. The process keeps running after h2env exits; stop it by
signalling the printed process id. Its output goes to log_dir, or is
discarded when log_dir is unset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.configuration()
			if err != nil {
				return err
			}
			if freePort {
				if err := assignFreePorts(cfg, cfg.EmitServicePorts); err != nil {
					return err
				}
			}
			cfg.Detach = true

			p, err := h2env.Spawn(cfg)
			if err != nil {
				return err
			}
			if wait {
				if err := p.WaitReady(cmd.Context(), waitTimeout); err != nil {
					p.Close()
					return err
				}
			}
			fmt.Fprintf(a.out, "%d\t%d\n", p.PID(), cfg.ShutdownPort())
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the server accepts connections")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", defaultReadyTimeout, "Maximum time to wait with --wait")
	cmd.Flags().BoolVar(&freePort, "free-port", false, "Listen on free ports instead of the configured ones")
	return cmd
}

func (a *app) newStopCommand() *cobra.Command {
	var force, all bool
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask a running server to shut down",
		Long: `Send the remote shutdown request to the configured shutdown host and
port and wait for the acknowledgement. The target must be a server started
with h2env serve. The configured PID file is removed once the server has
stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.configuration()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("force") {
				cfg.ForceShutdown = force
			}
			if cmd.Flags().Changed("all") {
				cfg.ShutdownAllInstances = all
			}

			if err := h2env.Shutdown(cmd.Context(), cfg); err != nil {
				return err
			}
			if cfg.PIDFile != "" {
				return fileutil.RemovePIDFile(cfg.PIDFile)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Close open connections immediately")
	cmd.Flags().BoolVar(&all, "all", false, "Stop every server instance of the target process")
	return cmd
}

func (a *app) newServeCommand() *cobra.Command {
	var (
		freePort bool
		grace    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run in-process servers in the foreground",
		Long: `Start one in-process server per configured service, each on its own
port, and print one "<protocol> <address>" line per server. serve returns
when it receives SIGINT or SIGTERM or when any server stops, for example
after a remote shutdown. The remaining servers are stopped then.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.configuration()
			if err != nil {
				return err
			}
			if freePort {
				if err := assignFreePorts(cfg, true); err != nil {
					return err
				}
			}
			return a.serve(cmd.Context(), cfg, grace)
		},
	}
	cmd.Flags().BoolVar(&freePort, "free-port", false, "Listen on free ports instead of the configured ones")
	cmd.Flags().DurationVar(&grace, "grace", h2env.DefaultServerStopTimeout, "Time open connections get to finish on exit")
	return cmd
}

// serve runs the servers of cfg until ctx is done or one of them stops.
func (a *app) serve(ctx context.Context, cfg *h2env.Configuration, grace time.Duration) error {
	servers, err := h2env.CreateAll(ctx, cfg)
	if err != nil {
		return err
	}

	stopped := make(chan h2env.Server, len(servers))
	for _, srv := range servers {
		fmt.Fprintf(a.out, "%s\t%s\n", srv.Protocol(), srv.Addr())
		go func() {
			<-srv.Done()
			stopped <- srv
		}()
	}

	log := core.Logger()
	select {
	case <-ctx.Done():
		log.Info("stopping servers", "reason", context.Cause(ctx))
	case srv := <-stopped:
		log.Info("stopping servers", "reason", "server stopped", "protocol", srv.Protocol())
	}

	var errs []error
	for _, srv := range servers {
		if err := srv.Stop(grace); err != nil {
			errs = append(errs, fmt.Errorf("stop %s server: %w", srv.Protocol(), err))
		}
	}
	return errors.Join(errs...)
}

// assignFreePorts moves cfg onto free loopback ports: one per service when
// perService is set, otherwise a single legacy port.
func assignFreePorts(cfg *h2env.Configuration, perService bool) error {
	reg := netutil.NewPortRegistry(core.Logger())
	if !perService {
		port, err := reg.AllocatePort()
		if err != nil {
			return err
		}
		cfg.SetPort(port) //nolint:staticcheck // the legacy port is what spawn emits without service ports
		return nil
	}

	services := cfg.Services()
	ports, err := reg.AllocatePorts(len(services))
	if err != nil {
		return err
	}
	moved := make([]h2env.Service, len(services))
	for i, s := range services {
		if moved[i], err = h2env.NewService(s.ID(), ports[i], s.AllowRemoteAccess(), s.UseEncryption()); err != nil {
			return err
		}
	}
	cfg.SetServices(moved...)
	cfg.EmitServicePorts = true
	return nil
}

// shellJoin joins args into one line a POSIX shell splits back into args.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, needsQuoting) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=,@+%", r)
}
