package shutdown

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/giantswarm/h2env/internal/sentinel"
)

const (
	// ErrShutdown is matched by every error returned from Shutdown.
	ErrShutdown = sentinel.Error("remote shutdown failed")

	// ErrRejected is returned when the server answered with ERR.
	ErrRejected = sentinel.Error("request rejected by server")
)

// Scheme prefixes every control address.
const Scheme = "tcp"

// DefaultTimeout bounds a call when no timeout is given.
const DefaultTimeout = 10 * time.Second

// Error reports a failed control call together with the attempted address.
type Error struct {
	Op      Op
	Address string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", strings.ToLower(string(e.Op)), e.Address, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is ErrShutdown for a failed SHUTDOWN call.
func (e *Error) Is(target error) bool {
	return target == ErrShutdown && e.Op == OpShutdown
}

// Address formats the control address of host and port as tcp://host:port.
// An empty or blank host means localhost.
func Address(host string, port int) string {
	host = strings.TrimSpace(host)
	if host == "" {
		host = "localhost"
	}
	return Scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// ParseAddress returns the host:port dial target of a tcp:// address.
func ParseAddress(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", address, err)
	}
	if u.Scheme != Scheme {
		return "", fmt.Errorf("address %q: scheme must be %q", address, Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return "", fmt.Errorf("address %q: host and port are required", address)
	}
	return u.Host, nil
}

// Shutdown asks the server at address to stop. It blocks until the server
// acknowledges, ctx is done or timeout elapses. The server must speak this
// package's control protocol.
func Shutdown(ctx context.Context, address, credential string, force, allInstances bool, timeout time.Duration) error {
	_, err := Call(ctx, address, Request{
		Op:           OpShutdown,
		Credential:   credential,
		Force:        force,
		AllInstances: allInstances,
	}, timeout)
	return err
}

// Ping checks that a control server answers at address.
func Ping(ctx context.Context, address string, timeout time.Duration) error {
	_, err := Call(ctx, address, Request{Op: OpPing}, timeout)
	return err
}

// Open asks the server at address to open (and possibly create) database and
// returns the server's detail, usually the database location.
func Open(ctx context.Context, address, database string, timeout time.Duration) (string, error) {
	resp, err := Call(ctx, address, Request{Op: OpOpen, Database: database}, timeout)
	if err != nil {
		return "", err
	}
	return resp.Detail, nil
}

// Call sends req and reads one response. Every failure, including an ERR
// response, is returned as *Error.
func Call(ctx context.Context, address string, req Request, timeout time.Duration) (Response, error) {
	resp, err := call(ctx, address, req, timeout)
	if err != nil {
		return Response{}, &Error{Op: req.Op, Address: address, Err: err}
	}
	return resp, nil
}

func call(ctx context.Context, address string, req Request, timeout time.Duration) (Response, error) {
	target, err := ParseAddress(address)
	if err != nil {
		return Response{}, err
	}
	line := req.Encode()
	if len(line) >= MaxLineLength {
		return Response{}, fmt.Errorf("send %s: %w", req.Op, ErrLineTooLong)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return Response{}, fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return Response{}, fmt.Errorf("set deadline: %w", err)
		}
	}
	// Unblock reads and writes when ctx is canceled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := WriteLine(conn, line); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", req.Op, wrapCtx(ctx, err))
	}

	sc := NewScanner(conn)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return Response{}, fmt.Errorf("read response: %w", wrapCtx(ctx, err))
		}
		return Response{}, errors.New("read response: connection closed by server")
	}
	resp, err := ParseResponse(sc.Text())
	if err != nil {
		return Response{}, err
	}
	if !resp.OK {
		return Response{}, fmt.Errorf("%w: %s", ErrRejected, resp.Detail)
	}
	return resp, nil
}

// wrapCtx attaches the context error to err so that callers can match
// context.Canceled and context.DeadlineExceeded. The connection deadline can
// fire just before ctx reports it.
func wrapCtx(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(err, ctxErr)
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return errors.Join(err, context.DeadlineExceeded)
	}
	return err
}
