package server

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"vawter.tech/stopper"

	"github.com/giantswarm/h2env/internal/core"
	"github.com/giantswarm/h2env/internal/fileutil"
	"github.com/giantswarm/h2env/internal/sentinel"
	"github.com/giantswarm/h2env/internal/shutdown"

	// Register the pure-Go SQLite driver (no CGO required).
	_ "modernc.org/sqlite"
)

// ErrDatabaseNotFound is returned by OPEN when the database does not exist
// and the server runs with -ifExists.
const ErrDatabaseNotFound = sentinel.Error("database not found")

// LockFileName is created in the storage directory while a tcp server runs.
const LockFileName = ".h2env.lock"

// DatabaseExt is the file extension of databases in the storage directory.
const DatabaseExt = ".db"

const (
	lockTimeout       = time.Second
	lockRetryInterval = 50 * time.Millisecond
)

// TCPServer serves the control protocol and owns SQLite databases in the
// storage directory.
type TCPServer struct {
	base

	dbMu sync.Mutex
	dbs  map[string]*sql.DB
	lock *flock.Flock
}

var _ Server = (*TCPServer)(nil)

// NewTCP creates a tcp server from the flag sequence. It does not start it.
func NewTCP(args []string, logger *slog.Logger) (*TCPServer, error) {
	opts, err := ParseArgs(core.ProtocolTCP, args)
	if err != nil {
		return nil, err
	}
	if opts.SSL {
		return nil, fmt.Errorf("%s: %w", core.SSLFlag(core.ProtocolTCP), ErrEncryptionUnsupported)
	}

	s := &TCPServer{
		base: newBase(opts, logger),
		dbs:  make(map[string]*sql.DB),
	}
	s.serve = s.acceptLoop(s.handle)
	s.prepare = s.lockStorage
	s.cleanup = s.release
	return s, nil
}

// Start implements Server.
func (s *TCPServer) Start(ctx context.Context) error {
	return s.start(ctx, s)
}

// Address returns the control address of the running server.
func (s *TCPServer) Address() string {
	return shutdown.Address("127.0.0.1", s.Port())
}

func (s *TCPServer) lockStorage(ctx context.Context) error {
	if s.opts.BaseDir == "" {
		return nil
	}
	if err := fileutil.EnsureDir(s.opts.BaseDir); err != nil {
		return err
	}

	path := filepath.Join(s.opts.BaseDir, LockFileName)
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fl := flock.New(path)
	locked, err := fl.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil || !locked {
		_ = fl.Close()
		return fmt.Errorf("lock %s: %w", path, ErrStorageLocked)
	}
	s.lock = fl
	return nil
}

func (s *TCPServer) release() {
	s.dbMu.Lock()
	for name, db := range s.dbs {
		if err := db.Close(); err != nil {
			s.log.Warn("close database", "database", name, "error", err)
		}
	}
	clear(s.dbs)
	s.dbMu.Unlock()

	if s.lock != nil {
		if err := s.lock.Close(); err != nil {
			s.log.Debug("failed to release storage lock", "path", s.lock.Path(), "err", err)
		}
		s.lock = nil
	}
}

func (s *TCPServer) handle(sctx *stopper.Context, conn net.Conn) {
	sc := shutdown.NewScanner(conn)
	for sc.Scan() {
		req, err := shutdown.ParseRequest(sc.Text())
		var resp shutdown.Response
		if err != nil {
			resp = shutdown.Errorf("%v", err)
		} else {
			if s.opts.Trace {
				s.log.Debug("control request", "op", req.Op, "remote", conn.RemoteAddr().String())
			}
			resp = s.respond(sctx, req)
		}
		if err := shutdown.WriteLine(conn, resp.Encode()); err != nil {
			return
		}
		if req.Op == shutdown.OpShutdown && resp.OK {
			// Stopping waits for this handler, so it must not block it.
			go s.shutdown(req)
			return
		}
	}
	if err := sc.Err(); errors.Is(err, bufio.ErrTooLong) {
		_ = shutdown.WriteLine(conn, shutdown.Errorf("%v", shutdown.ErrLineTooLong).Encode())
	}
}

func (s *TCPServer) respond(ctx context.Context, req shutdown.Request) shutdown.Response {
	switch req.Op {
	case shutdown.OpPing:
		return shutdown.OK(s.id)
	case shutdown.OpOpen:
		location, err := s.Open(ctx, req.Database)
		if err != nil {
			return shutdown.Errorf("%v", err)
		}
		return shutdown.OK(location)
	case shutdown.OpShutdown:
		if req.Credential != s.opts.Password {
			s.log.Warn("shutdown rejected: invalid credential")
			return shutdown.Errorf("invalid shutdown credential")
		}
		s.log.Info("shutdown requested", "force", req.Force, "all_instances", req.AllInstances)
		return shutdown.OK("")
	default:
		return shutdown.Errorf("unsupported operation %q", req.Op)
	}
}

// shutdown stops the server, or every running server, after an accepted
// shutdown request has been acknowledged. A forced request gets no grace
// period.
func (s *TCPServer) shutdown(req shutdown.Request) {
	grace := DefaultStopTimeout
	if req.Force {
		grace = 0
	}
	var err error
	if req.AllInstances {
		err = StopAll(grace)
	} else {
		err = s.Stop(grace)
	}
	if err != nil {
		s.log.Warn("shutdown failed", "error", err)
	}
}

// Open opens database name, creating it unless the server runs with
// -ifExists, and returns its location: the file path, or "mem:<name>"
// without a storage directory.
func (s *TCPServer) Open(ctx context.Context, name string) (string, error) {
	if err := validDatabaseName(name); err != nil {
		return "", err
	}

	location, dsn := s.locate(name)

	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if _, ok := s.dbs[name]; ok {
		return location, nil
	}
	if s.opts.IfExists {
		if s.opts.BaseDir == "" {
			return "", fmt.Errorf("%s: %w", name, ErrDatabaseNotFound)
		}
		ok, err := fileutil.Exists(location)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("%s: %w", location, ErrDatabaseNotFound)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return "", fmt.Errorf("open sqlite %s: %w", location, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return "", fmt.Errorf("open sqlite %s: %w", location, err)
	}
	s.dbs[name] = db
	s.log.Debug("database opened", "database", name, "location", location)
	return location, nil
}

// DB returns the handle of an opened database.
func (s *TCPServer) DB(name string) (*sql.DB, bool) {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	db, ok := s.dbs[name]
	return db, ok
}

func (s *TCPServer) locate(name string) (location, dsn string) {
	if s.opts.BaseDir == "" {
		return "mem:" + name, fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", s.id, name)
	}
	path := filepath.Join(s.opts.BaseDir, name+DatabaseExt)
	return path, fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
}

func validDatabaseName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\?#`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("database name %q: %w", name, core.ErrInvalidArgument)
	}
	return nil
}
