package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"vawter.tech/stopper"

	"github.com/giantswarm/h2env/internal/core"
)

const readHeaderTimeout = 5 * time.Second

// WebServer serves a small HTTP console listing the servers running in the
// process.
type WebServer struct {
	base
}

var _ Server = (*WebServer)(nil)

// Status is the JSON body of GET /status.
type Status struct {
	ID      string         `json:"id"`
	Servers []ServerStatus `json:"servers"`
}

// ServerStatus describes one running server.
type ServerStatus struct {
	ID       string `json:"id"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	Address  string `json:"address,omitempty"`
}

// NewWeb creates a web server from the flag sequence. It does not start it.
func NewWeb(args []string, logger *slog.Logger) (*WebServer, error) {
	opts, err := ParseArgs(core.ProtocolWeb, args)
	if err != nil {
		return nil, err
	}
	if opts.SSL {
		return nil, fmt.Errorf("%s: %w", core.SSLFlag(core.ProtocolWeb), ErrEncryptionUnsupported)
	}

	s := &WebServer{base: newBase(opts, logger)}
	s.serve = s.serveHTTP
	return s, nil
}

// Start implements Server.
func (s *WebServer) Start(ctx context.Context) error {
	return s.start(ctx, s)
}

// Handler returns the console routes.
func (s *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	return mux
}

func (s *WebServer) serveHTTP(sctx *stopper.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return sctx },
	}
	sctx.Go(func(sctx *stopper.Context) error {
		<-sctx.Stopping()
		if s.isForced() {
			_ = hs.Close()
			return nil
		}
		// sctx is canceled when the grace period ends, which cuts off
		// in-flight requests.
		if err := hs.Shutdown(sctx); err != nil {
			_ = hs.Close()
		}
		return nil
	})

	err := hs.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *WebServer) status() Status {
	st := Status{ID: s.id, Servers: []ServerStatus{}}
	for _, srv := range Running() {
		ss := ServerStatus{ID: srv.ID(), Protocol: srv.Protocol(), Port: srv.Port()}
		if addr := srv.Addr(); addr != nil {
			ss.Address = addr.String()
		}
		st.Servers = append(st.Servers, ss)
	}
	return st
}

func (s *WebServer) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "h2env console")
	for _, srv := range s.status().Servers {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", srv.Protocol, srv.Address, srv.ID)
	}
}

func (s *WebServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		s.log.Warn("encode status", "error", err)
	}
}
