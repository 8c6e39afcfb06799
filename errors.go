package h2env

import (
	"github.com/giantswarm/h2env/internal/core"
	"github.com/giantswarm/h2env/internal/process"
	"github.com/giantswarm/h2env/internal/server"
	"github.com/giantswarm/h2env/internal/shutdown"
)

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrInvalidArgument is returned for an unknown or empty service id and
	// for malformed settings.
	ErrInvalidArgument = core.ErrInvalidArgument

	// ErrNoServices is returned by Spawn, Create and CreateAll when the
	// configuration has no services.
	ErrNoServices = core.ErrNoServices

	// ErrUnsupportedProtocol is returned by Create when the primary service
	// has no in-process server.
	ErrUnsupportedProtocol = server.ErrUnsupportedProtocol

	// ErrEncryptionUnsupported is returned by Create for services with
	// encryption enabled.
	ErrEncryptionUnsupported = server.ErrEncryptionUnsupported

	// ErrStorageLocked is returned by Create when another in-process tcp
	// server uses the same storage directory.
	ErrStorageLocked = server.ErrStorageLocked

	// ErrSpawn is matched by every error from Spawn that occurred while
	// creating the operating system process. Use errors.As with
	// *SpawnError to get the attempted command line.
	ErrSpawn = process.ErrSpawn

	// ErrShutdown is matched by every error from Shutdown. Use errors.As
	// with *ShutdownError to get the attempted address.
	ErrShutdown = shutdown.ErrShutdown
)

// SpawnError reports the command line of a failed Spawn.
type SpawnError = process.SpawnError

// ShutdownError reports the address of a failed Shutdown.
type ShutdownError = shutdown.Error
