package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/giantswarm/h2env/internal/core"
	"github.com/giantswarm/h2env/internal/fileutil"
	"github.com/giantswarm/h2env/internal/sentinel"
)

// ErrSpawn is matched by every error returned when the server process could
// not be created.
const ErrSpawn = sentinel.Error("spawn server process")

// LibraryFlag precedes the server library path on the command line.
const LibraryFlag = "-cp"

// processName prefixes log file names and log messages.
const processName = "h2"

// SpawnError reports a failure to create the server process together with the
// command line that was attempted.
type SpawnError struct {
	Command []string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %q: %v", strings.Join(e.Command, " "), e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is reports whether target is ErrSpawn.
func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// SpawnConfig describes the external server process.
type SpawnConfig struct {
	// Launcher is the runtime executable. A bare name is resolved on PATH.
	Launcher string
	// LauncherOptions are passed verbatim; blank entries are dropped.
	LauncherOptions []string
	// Library is the server archive passed after LibraryFlag.
	Library string
	// EntryPoint is the server main class.
	EntryPoint string
	// Args are the server arguments, usually from core.BuildArgs.
	Args []string
	// StripFlags are removed from Args wherever they occur.
	StripFlags []string

	// LogDir, when set, receives h2-stdout.log and h2-stderr.log.
	LogDir string
	// PIDFile, when set, is written atomically once the process started.
	PIDFile string
	// Detach starts the process in its own session. A detached process
	// without a LogDir writes its output to the null device.
	Detach bool

	// ReadyHost and ReadyPort are checked by Process.WaitReady.
	ReadyHost string
	ReadyPort int

	Logger      *slog.Logger
	StopTimeout time.Duration
}

// CommandLine assembles the full command line:
//
//	<launcher> [options...] -cp <abs library> <entry point> <args minus StripFlags...>
func CommandLine(cfg SpawnConfig) ([]string, error) {
	var errs []error
	if strings.TrimSpace(cfg.Launcher) == "" {
		errs = append(errs, fmt.Errorf("launcher must not be empty: %w", core.ErrInvalidArgument))
	}
	if strings.TrimSpace(cfg.Library) == "" {
		errs = append(errs, fmt.Errorf("server library must not be empty: %w", core.ErrInvalidArgument))
	}
	if strings.TrimSpace(cfg.EntryPoint) == "" {
		errs = append(errs, fmt.Errorf("entry point must not be empty: %w", core.ErrInvalidArgument))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	launcher := cfg.Launcher
	if strings.ContainsRune(launcher, filepath.Separator) || strings.ContainsRune(launcher, '/') {
		abs, err := filepath.Abs(launcher)
		if err != nil {
			return nil, fmt.Errorf("resolve launcher path: %w", err)
		}
		launcher = abs
	}
	library, err := filepath.Abs(cfg.Library)
	if err != nil {
		return nil, fmt.Errorf("resolve server library path: %w", err)
	}

	line := make([]string, 0, len(cfg.LauncherOptions)+len(cfg.Args)+4)
	line = append(line, launcher)
	for _, opt := range cfg.LauncherOptions {
		if strings.TrimSpace(opt) == "" {
			continue
		}
		line = append(line, opt)
	}
	line = append(line, LibraryFlag, library, cfg.EntryPoint)
	line = append(line, StripTokens(cfg.Args, cfg.StripFlags)...)
	return line, nil
}

// StripTokens returns args without any token contained in strip.
func StripTokens(args, strip []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if slices.Contains(strip, a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Process is a spawned server process.
type Process struct {
	BaseProcess

	args      []string
	pid       int
	pidFile   string
	readyHost string
	readyPort int
}

// Spawn starts the server described by cfg and returns without waiting for
// it to exit or become ready.
func Spawn(cfg SpawnConfig) (*Process, error) {
	line, err := CommandLine(cfg)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	p := &Process{
		BaseProcess: NewBaseProcess(processName, log, cfg.StopTimeout),
		args:        line,
		pidFile:     cfg.PIDFile,
		readyHost:   cfg.ReadyHost,
		readyPort:   cfg.ReadyPort,
	}
	if p.readyHost == "" {
		p.readyHost = "localhost"
	}

	log.Debug("spawning server", "args", line)

	cmd := exec.Command(line[0], line[1:]...) //nolint:gosec // command line is assembled from caller configuration
	// A detached server outlives the caller; without a LogDir its output
	// goes to the null device so it does not hold the caller's stdout open.
	if cfg.LogDir == "" && !cfg.Detach {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := p.Start(cmd, cfg.LogDir, cfg.Detach); err != nil {
		p.logFiles.Close()
		return nil, &SpawnError{Command: line, Err: err}
	}
	p.pid = cmd.Process.Pid

	if p.pidFile != "" {
		if err := fileutil.WritePIDFile(p.pidFile, p.PID()); err != nil {
			_ = p.BaseProcess.Stop(DefaultStopTimeout)
			p.logFiles.Close()
			return nil, &SpawnError{Command: line, Err: err}
		}
	}

	log.Info("server spawned", "pid", p.PID(), "detached", cfg.Detach)
	return p, nil
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.pid
}

// Args returns a copy of the command line the process was started with.
func (p *Process) Args() []string {
	return slices.Clone(p.args)
}

// PIDFile returns the PID file path, or "" if none was written.
func (p *Process) PIDFile() string {
	return p.pidFile
}

// Stop terminates the process and removes its PID file.
func (p *Process) Stop(timeout time.Duration) error {
	err := p.BaseProcess.Stop(timeout)
	if p.pidFile != "" {
		err = errors.Join(err, fileutil.RemovePIDFile(p.pidFile))
	}
	return err
}

// Close stops the process if it is still running, removes its PID file and
// closes its log files.
func (p *Process) Close() {
	p.BaseProcess.Close()
	if p.pidFile != "" {
		if err := fileutil.RemovePIDFile(p.pidFile); err != nil {
			p.log.Warn("remove pid file", "path", p.pidFile, "error", err)
		}
	}
}

// WaitReady blocks until the server accepts TCP connections on its ready
// port, the process exits, ctx is done or timeout elapses.
func (p *Process) WaitReady(ctx context.Context, timeout time.Duration) error {
	if p.readyPort <= 0 {
		return fmt.Errorf("wait for %s: no ready port configured: %w", processName, core.ErrInvalidArgument)
	}
	return WaitReady(ctx, WaitReadyConfig{
		Interval:      DefaultReadyInterval,
		Timeout:       timeout,
		Name:          processName,
		Port:          p.readyPort,
		Logger:        p.log,
		ProcessExited: p.Exited(),
	}, DialCheck(p.readyHost, p.readyPort))
}
