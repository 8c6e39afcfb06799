package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"vawter.tech/stopper"

	"github.com/giantswarm/h2env/internal/core"
)

// PGServer reserves the Postgres-compatible port. Connections are accepted
// and closed immediately.
type PGServer struct {
	base
}

var _ Server = (*PGServer)(nil)

// NewPG creates a pg server from the flag sequence. It does not start it.
func NewPG(args []string, logger *slog.Logger) (*PGServer, error) {
	opts, err := ParseArgs(core.ProtocolPG, args)
	if err != nil {
		return nil, err
	}
	if opts.SSL {
		return nil, fmt.Errorf("%s: %w", core.SSLFlag(core.ProtocolPG), ErrEncryptionUnsupported)
	}

	s := &PGServer{base: newBase(opts, logger)}
	s.serve = s.acceptLoop(func(_ *stopper.Context, conn net.Conn) {
		if s.opts.Trace {
			s.log.Debug("connection refused", "remote", conn.RemoteAddr().String())
		}
	})
	return s, nil
}

// Start implements Server.
func (s *PGServer) Start(ctx context.Context) error {
	return s.start(ctx, s)
}
