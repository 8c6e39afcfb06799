package h2env

import (
	"github.com/giantswarm/h2env/internal/core"
	"github.com/giantswarm/h2env/internal/process"
	"github.com/giantswarm/h2env/internal/server"
)

// Default configuration values for New.
// These constants are exported so callers can reference the defaults when
// building configurations relative to them.
const (
	// DefaultShutdownCredential is passed as -tcpPassword and sent with the
	// shutdown request unless WithShutdownCredential overrides it.
	DefaultShutdownCredential = core.DefaultShutdownCredential

	// DefaultShutdownTimeout bounds the shutdown round trip.
	DefaultShutdownTimeout = core.DefaultShutdownTimeout

	// DefaultEntryPoint is the server main class used when neither
	// WithEntryPoint nor H2ENV_ENTRY_POINT is set.
	DefaultEntryPoint = core.DefaultEntryPoint

	// DefaultStopTimeout is used by Process.Close when the process is still
	// running.
	DefaultStopTimeout = process.DefaultStopTimeout

	// DefaultServerStopTimeout is the grace period of in-process servers
	// stopped by a non-forced remote shutdown.
	DefaultServerStopTimeout = server.DefaultStopTimeout
)

// Protocol identifiers.
const (
	ProtocolTCP = core.ProtocolTCP
	ProtocolPG  = core.ProtocolPG
	ProtocolWeb = core.ProtocolWeb
)

// UnsupportedPort is returned by DefaultPort for unknown protocol ids.
const UnsupportedPort = core.UnsupportedPort
