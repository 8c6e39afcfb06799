package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"vawter.tech/stopper"
)

// DefaultStopTimeout is the grace period used when a server is stopped
// without an explicit timeout, for example by a non-forced remote shutdown.
const DefaultStopTimeout = 5 * time.Second

// drainTimeout bounds the wait for connection handlers after the grace
// period has elapsed and their connections were closed.
const drainTimeout = 5 * time.Second

// Server is a database server running inside the calling process.
type Server interface {
	// ID is unique per server instance.
	ID() string
	// Protocol is the catalog protocol id.
	Protocol() string
	// Addr is the bound listener address; nil before Start.
	Addr() net.Addr
	// Port is the bound port, or the configured port before Start.
	Port() int
	// Start binds the listener and serves in the background. ctx bounds
	// startup only.
	Start(ctx context.Context) error
	// Stop stops accepting connections and waits up to timeout for open
	// connections to finish before closing them. Zero closes them at once.
	Stop(timeout time.Duration) error
	// Done is closed once the server has fully stopped.
	Done() <-chan struct{}
}

// serveFunc runs the protocol loop on ln until it is closed.
type serveFunc func(sctx *stopper.Context, ln net.Listener) error

// connHandler serves one accepted connection. The connection is closed by
// the caller.
type connHandler func(sctx *stopper.Context, conn net.Conn)

// base implements the Server lifecycle shared by the protocol servers.
type base struct {
	id   string
	opts Options
	log  *slog.Logger

	serve   serveFunc
	prepare func(ctx context.Context) error // optional, before listen
	cleanup func()                          // optional, after the last handler returned

	mu      sync.Mutex
	ln      net.Listener
	sctx    *stopper.Context
	conns   map[net.Conn]struct{}
	forced  bool // connections are closed as soon as they are tracked
	done    chan struct{}
	waitErr error
}

func newBase(opts Options, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return base{
		id:    id,
		opts:  opts,
		log:   logger.With("protocol", opts.Protocol, "server", id),
		conns: make(map[net.Conn]struct{}),
		done:  make(chan struct{}),
	}
}

func (b *base) ID() string       { return b.id }
func (b *base) Protocol() string { return b.opts.Protocol }

func (b *base) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln == nil {
		return nil
	}
	return b.ln.Addr()
}

func (b *base) Port() int {
	if addr, ok := b.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return b.opts.Port
}

func (b *base) Done() <-chan struct{} { return b.done }

// Options returns the decoded server options.
func (b *base) Options() Options { return b.opts }

// start binds the listener and launches self's serve loop. self is the
// concrete server registered in the running set.
func (b *base) start(ctx context.Context, self Server) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sctx != nil {
		return ErrAlreadyStarted
	}
	if b.prepare != nil {
		if err := b.prepare(ctx); err != nil {
			return err
		}
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", b.opts.ListenAddress())
	if err != nil {
		if b.cleanup != nil {
			b.cleanup()
		}
		return fmt.Errorf("listen %s %s: %w", b.opts.Protocol, b.opts.ListenAddress(), err)
	}
	b.ln = ln

	// The server outlives the startup context.
	sctx := stopper.WithContext(context.WithoutCancel(ctx))
	b.sctx = sctx

	sctx.Go(func(sctx *stopper.Context) error {
		<-sctx.Stopping()
		_ = ln.Close()
		return nil
	})
	sctx.Go(func(sctx *stopper.Context) error {
		err := b.serve(sctx, ln)
		if !sctx.IsStopping() {
			sctx.Stop(0)
		}
		return err
	})
	go func() {
		select {
		case <-sctx.Done():
			b.closeConns()
		case <-b.done:
		}
	}()

	instances.add(self)
	go func() {
		err := sctx.Wait()
		if b.cleanup != nil {
			b.cleanup()
		}
		instances.remove(b.id)
		b.mu.Lock()
		b.waitErr = err
		b.mu.Unlock()
		b.log.Info("server stopped")
		close(b.done)
	}()

	b.log.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Stop implements Server.
func (b *base) Stop(timeout time.Duration) error {
	b.mu.Lock()
	sctx := b.sctx
	b.mu.Unlock()
	if sctx == nil {
		return nil
	}

	// stopper cancels on a zero grace period only when no task is running,
	// so idle connection handlers have to be released by closing them.
	if timeout <= 0 {
		b.mu.Lock()
		b.forced = true
		b.mu.Unlock()
	}
	sctx.Stop(max(timeout, 0))
	if timeout <= 0 {
		b.closeConns()
	}

	t := time.NewTimer(max(timeout, 0) + drainTimeout)
	defer t.Stop()
	select {
	case <-b.done:
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.waitErr
	case <-t.C:
		return fmt.Errorf("stop %s server: timed out waiting for connections to close", b.opts.Protocol)
	}
}

// acceptLoop returns a serveFunc that hands every accepted connection to
// handle on its own goroutine.
func (b *base) acceptLoop(handle connHandler) serveFunc {
	return func(sctx *stopper.Context, ln net.Listener) error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if sctx.IsStopping() || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			b.track(conn)
			sctx.Go(func(sctx *stopper.Context) error {
				defer b.untrack(conn)
				handle(sctx, conn)
				return nil
			})
		}
	}
}

// isForced reports whether Stop was called without a grace period.
func (b *base) isForced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.forced
}

func (b *base) track(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[conn] = struct{}{}
	if b.forced {
		_ = conn.Close()
	}
}

func (b *base) untrack(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, conn)
	_ = conn.Close()
}

func (b *base) closeConns() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		_ = conn.Close()
	}
}
