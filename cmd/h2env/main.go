// Command h2env launches, serves and stops H2 database servers from shell
// pipelines.
//
// Settings come from an h2env.yaml configuration file and H2ENV_*
// environment variables; see internal/config.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/h2env"
	"github.com/giantswarm/h2env/internal/config"
)

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	cfg        *config.Config
	closeLog   func() error
	out        io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "h2env: %v\n", err)
		os.Exit(1)
	}
}

// run executes the command line args, writing command output to out.
func run(ctx context.Context, args []string, out io.Writer) error {
	a := &app{out: out}
	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetOut(out)

	err := root.ExecuteContext(ctx)
	if a.closeLog != nil {
		if closeErr := a.closeLog(); closeErr != nil && err == nil {
			err = fmt.Errorf("close log output: %w", closeErr)
		}
	}
	return err
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "h2env",
		Short: "Launch, serve and stop H2 database servers",
		Long: `h2env builds the H2 server command line from a configuration file,
spawns the server as a detached process, runs Go-native stand-in servers in
the foreground and stops running servers through the remote shutdown
protocol.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"Configuration file (default: h2env.yaml in the working or user config directory)")

	root.AddCommand(
		a.newArgsCommand(),
		a.newSpawnCommand(),
		a.newStopCommand(),
		a.newServeCommand(),
	)
	return root
}

// setup loads the configuration and installs the configured logger.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := cfg.Logging.NewLogger()
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	a.cfg = cfg
	a.closeLog = closeLog
	h2env.SetLogger(logger.With("component", "h2env"))
	return nil
}

// configuration builds a fresh launcher configuration from the loaded file.
func (a *app) configuration() (*h2env.Configuration, error) {
	return a.cfg.Build()
}
