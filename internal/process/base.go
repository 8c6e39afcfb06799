package process

import (
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/giantswarm/h2env/internal/fileutil"
	"github.com/giantswarm/h2env/internal/sentinel"
)

// ErrAlreadyStarted is returned when Start is called on a process that is
// already running. Callers must Stop the process before starting it again.
const ErrAlreadyStarted = sentinel.Error("process already started")

// ErrNilCmd is returned when Start is called with a nil *exec.Cmd.
const ErrNilCmd = sentinel.Error("cmd must not be nil")

// ErrEmptyCmdPath is returned when Start is called with an empty cmd.Path.
const ErrEmptyCmdPath = sentinel.Error("cmd.Path must not be empty")

// BaseProcess provides common process lifecycle management: start, a single
// cmd.Wait goroutine, SIGTERM/SIGKILL stop and log file ownership.
//
// BaseProcess is not safe for concurrent use, with the exception of Exited
// and Wait, which may be called from any goroutine once Start has returned.
type BaseProcess struct {
	cmd      *exec.Cmd
	exited   chan struct{} // closed when the process exits
	waitErr  error         // cmd.Wait result; written before exited is closed
	logFiles LogFiles

	name        string        // Process name for logging and log file names
	log         *slog.Logger  // Logger for operational messages
	stopTimeout time.Duration // Timeout for auto-stop in Close; zero uses DefaultStopTimeout
}

// NewBaseProcess creates a BaseProcess with the given name, logger, and stop
// timeout. If stopTimeout is zero, DefaultStopTimeout is used by Close. If
// logger is nil, slog.Default() is used. Panics if name is empty.
func NewBaseProcess(name string, logger *slog.Logger, stopTimeout time.Duration) BaseProcess {
	if name == "" {
		panic("h2env: process name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return BaseProcess{name: name, log: logger, stopTimeout: stopTimeout}
}

// Start starts cmd. When logDir is non-empty, stdout and stderr are written to
// <logDir>/<name>-stdout.log and <logDir>/<name>-stderr.log; otherwise they
// are left as configured on cmd. Start does not wait for the process.
func (b *BaseProcess) Start(cmd *exec.Cmd, logDir string, detach bool) error {
	if cmd == nil {
		return ErrNilCmd
	}
	if cmd.Path == "" {
		return ErrEmptyCmdPath
	}
	if b.cmd != nil {
		return ErrAlreadyStarted
	}

	configureSysProcAttr(cmd, detach)

	if logDir != "" {
		if err := fileutil.EnsureDir(logDir); err != nil {
			return fmt.Errorf("create %s log directory: %w", b.name, err)
		}
		logFiles, err := StartCmd(cmd, logDir, b.name)
		if err != nil {
			return err
		}
		b.logFiles = logFiles
	} else if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s process: %w", b.name, err)
	}
	b.cmd = cmd

	// cmd.Wait must be called exactly once per started process. The result
	// is published through waitErr before exited is closed, so every reader
	// of exited observes it.
	exited := make(chan struct{})
	go func() {
		b.waitErr = cmd.Wait()
		close(exited)
	}()
	b.exited = exited

	return nil
}

// Stop terminates the process with the given timeout.
// After Stop returns, IsStarted reports false regardless of whether the stop
// succeeded. Safe to call when the process was never started.
func (b *BaseProcess) Stop(timeout time.Duration) error {
	if b.cmd == nil || b.cmd.Process == nil {
		b.cmd = nil
		return nil
	}
	pid := b.cmd.Process.Pid
	err := stopWithDone(b.cmd, b.exited, b.exitErr, timeout, b.name)
	if err != nil {
		b.log.Warn("process stop failed; process may be orphaned",
			"process", b.name, "pid", pid, "error", err)
	}
	b.cmd = nil
	return err
}

// Close closes log file handles. If the process is still running, Close logs
// a warning and stops it first using the configured stop timeout.
func (b *BaseProcess) Close() {
	if b.cmd != nil {
		b.log.Warn("process.Close called without Stop; stopping automatically",
			"process", b.name)
		timeout := b.stopTimeout
		if timeout <= 0 {
			timeout = DefaultStopTimeout
		}
		if err := b.Stop(timeout); err != nil {
			b.log.Warn("auto-stop during Close failed",
				"process", b.name, "error", err)
		}
	}
	b.logFiles.Close()
}

// Wait blocks until the process exits and returns the cmd.Wait result.
// It returns nil immediately if the process was never started.
func (b *BaseProcess) Wait() error {
	if b.exited == nil {
		return nil
	}
	<-b.exited
	return b.waitErr
}

// exitErr returns the cmd.Wait result. Only valid after exited is closed.
func (b *BaseProcess) exitErr() error {
	return b.waitErr
}

// Logger returns the logger used by this process.
func (b *BaseProcess) Logger() *slog.Logger {
	return b.log
}

// Exited returns a channel that is closed when the process exits. It stays
// valid after Stop. Returns nil if the process has never been started.
func (b *BaseProcess) Exited() <-chan struct{} {
	return b.exited
}

// IsStarted reports whether the process has been started and not yet stopped.
func (b *BaseProcess) IsStarted() bool {
	return b.cmd != nil
}

// LogFiles returns the process log files. Paths are empty when output is not
// redirected.
func (b *BaseProcess) LogFiles() *LogFiles {
	return &b.logFiles
}
