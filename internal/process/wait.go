package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/giantswarm/h2env/internal/sentinel"
)

const (
	// ErrIntervalNotPositive indicates a non-positive poll interval.
	ErrIntervalNotPositive = sentinel.Error("interval must be positive")

	// ErrTimeoutNotPositive indicates a non-positive timeout.
	ErrTimeoutNotPositive = sentinel.Error("timeout must be positive")

	// ErrProcessExited indicates the process exited before becoming ready.
	ErrProcessExited = sentinel.Error("process exited before becoming ready")
)

// DefaultReadyInterval is the poll interval used when probing a spawned
// server's port.
const DefaultReadyInterval = 100 * time.Millisecond

// ReadinessCheck reports whether a process is ready. attempt is 1-based.
// A non-nil error aborts polling.
type ReadinessCheck func(ctx context.Context, attempt int) (ready bool, err error)

// WaitReadyConfig configures WaitReady.
type WaitReadyConfig struct {
	// Interval is the delay between checks.
	Interval time.Duration
	// Timeout bounds the whole wait.
	Timeout time.Duration
	// Name and Port identify the waited-for server in errors and logs.
	Name string
	Port int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// ProcessExited, when non-nil, ends the wait with ErrProcessExited once
	// it is closed.
	ProcessExited <-chan struct{}
}

func (c WaitReadyConfig) validate() error {
	switch {
	case c.Name == "":
		return errors.New("wait ready: name must not be empty")
	case c.Interval <= 0:
		return fmt.Errorf("wait for %s: %w", c.Name, ErrIntervalNotPositive)
	case c.Timeout <= 0:
		return fmt.Errorf("wait for %s: %w", c.Name, ErrTimeoutNotPositive)
	}
	return nil
}

// readiness counts the checks made on behalf of one WaitReady call.
type readiness struct {
	check    ReadinessCheck
	attempts int
}

func (r *readiness) poll(ctx context.Context) (bool, error) {
	r.attempts++
	return r.check(ctx, r.attempts)
}

// WaitReady runs check every cfg.Interval until it reports ready, returns an
// error, the process exits or cfg.Timeout elapses. The first check runs
// immediately.
func WaitReady(ctx context.Context, cfg WaitReadyConfig, check ReadinessCheck) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if isClosed(cfg.ProcessExited) {
		return fmt.Errorf("process %s: %w", cfg.Name, ErrProcessExited)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	ctx, release := cancelOnExit(ctx, cfg.ProcessExited)
	defer release()

	r := &readiness{check: check}
	err := wait.PollUntilContextCancel(ctx, cfg.Interval, true, r.poll)
	switch {
	case err == nil:
		log := cfg.Logger
		if log == nil {
			log = slog.Default()
		}
		log.Debug("server ready", "name", cfg.Name, "port", cfg.Port, "attempts", r.attempts)
		return nil
	case errors.Is(context.Cause(ctx), ErrProcessExited):
		return fmt.Errorf("process %s after %d checks: %w", cfg.Name, r.attempts, ErrProcessExited)
	default:
		return fmt.Errorf("wait for %s readiness on port %d after %d checks: %w", cfg.Name, cfg.Port, r.attempts, err)
	}
}

// cancelOnExit returns a context canceled with cause ErrProcessExited once
// exited is closed. The returned func releases the watcher.
func cancelOnExit(ctx context.Context, exited <-chan struct{}) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	if exited != nil {
		go func() {
			select {
			case <-exited:
				cancel(ErrProcessExited)
			case <-ctx.Done():
			}
		}()
	}
	return ctx, func() { cancel(nil) }
}

func isClosed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// DialCheck returns a ReadinessCheck that succeeds once a TCP connection to
// host:port can be established.
func DialCheck(host string, port int) ReadinessCheck {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	return func(ctx context.Context, _ int) (bool, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false, nil
		}
		_ = conn.Close()
		return true, nil
	}
}
