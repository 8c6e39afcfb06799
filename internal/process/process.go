package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// LogFiles owns the stdout and stderr files of a spawned server.
type LogFiles struct {
	stdout *os.File
	stderr *os.File
	dir    string
	prefix string // e.g. "h2" -> h2-stdout.log, h2-stderr.log
}

// NewLogFiles creates <dir>/<prefix>-stdout.log and <dir>/<prefix>-stderr.log,
// truncating any previous content.
func NewLogFiles(dir, prefix string) (LogFiles, error) {
	l := LogFiles{dir: dir, prefix: prefix}
	stdout, err := os.Create(l.StdoutPath())
	if err != nil {
		return LogFiles{}, fmt.Errorf("create stdout log: %w", err)
	}
	stderr, err := os.Create(l.StderrPath())
	if err != nil {
		_ = stdout.Close()
		return LogFiles{}, fmt.Errorf("create stderr log: %w", err)
	}
	l.stdout = stdout
	l.stderr = stderr
	return l, nil
}

// Close closes both handles. Safe to call more than once.
func (l *LogFiles) Close() {
	if l.stdout != nil {
		_ = l.stdout.Close()
		l.stdout = nil
	}
	if l.stderr != nil {
		_ = l.stderr.Close()
		l.stderr = nil
	}
}

// StdoutPath returns the stdout log path, or "" when output is not redirected.
func (l *LogFiles) StdoutPath() string {
	if l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, l.prefix+"-stdout.log")
}

// StderrPath returns the stderr log path, or "" when output is not redirected.
func (l *LogFiles) StderrPath() string {
	if l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, l.prefix+"-stderr.log")
}

// DefaultStopTimeout is used by Close when no stop timeout was configured.
const DefaultStopTimeout = 10 * time.Second

// termGracePeriod caps the time between SIGTERM and SIGKILL.
const termGracePeriod = 5 * time.Second

// killDrainTimeout bounds the wait for cmd.Wait after SIGKILL. SIGKILL cannot
// be caught, so this only fires if cmd.Wait is stuck on I/O.
const killDrainTimeout = 10 * time.Second

// awaitExit blocks until exited is closed or timeout elapses and reports
// whether the process exited in time.
func awaitExit(exited <-chan struct{}, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-exited:
		return true
	case <-t.C:
		return false
	}
}

// stopWithDone sends SIGTERM, escalates to SIGKILL after the grace period and
// waits for exited to close. exitErr must return the single cmd.Wait result
// and is only called after exited is closed.
//
// Worst-case blocking duration is timeout + killDrainTimeout.
func stopWithDone(cmd *exec.Cmd, exited <-chan struct{}, exitErr func() error, timeout time.Duration, name string) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if exited == nil {
		return fmt.Errorf("%s: exited channel must not be nil", name)
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone; collect the wait result.
		if !awaitExit(exited, killDrainTimeout) {
			return fmt.Errorf("%s: timed out draining process after signal failure", name)
		}
		return expectSignalExit(exitErr(), name)
	}

	grace := min(termGracePeriod, timeout)
	killTimer := time.AfterFunc(grace, func() {
		_ = cmd.Process.Kill()
	})
	defer killTimer.Stop()

	if awaitExit(exited, timeout) {
		return expectSignalExit(exitErr(), name)
	}
	if !awaitExit(exited, killDrainTimeout) {
		return fmt.Errorf("%s: timed out waiting for process to exit after SIGKILL", name)
	}
	if err := expectSignalExit(exitErr(), name); err != nil {
		return fmt.Errorf("%s stop timeout: %w", name, err)
	}
	return nil
}

// expectSignalExit treats exits caused by SIGTERM or SIGKILL as a clean stop.
// A Java server exits with status 143 after handling SIGTERM, which is also
// accepted.
func expectSignalExit(err error, name string) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 128+int(syscall.SIGTERM) {
			return nil
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			sig := status.Signal()
			if sig == syscall.SIGTERM || sig == syscall.SIGKILL {
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

// StartCmd creates log files in dir, redirects cmd's output into them and
// starts cmd. On success the caller owns the LogFiles.
func StartCmd(cmd *exec.Cmd, dir, name string) (LogFiles, error) {
	logFiles, err := NewLogFiles(dir, name)
	if err != nil {
		return LogFiles{}, fmt.Errorf("create %s logs: %w", name, err)
	}

	cmd.Stdout = logFiles.stdout
	cmd.Stderr = logFiles.stderr

	if err := cmd.Start(); err != nil {
		logFiles.Close()
		return LogFiles{}, fmt.Errorf("start %s process: %w", name, err)
	}

	return logFiles, nil
}
