package server

import "github.com/giantswarm/h2env/internal/sentinel"

const (
	// ErrUnsupportedProtocol is returned when no in-process constructor is
	// registered for the selected protocol.
	ErrUnsupportedProtocol = sentinel.Error("protocol has no in-process server")

	// ErrEncryptionUnsupported is returned when an in-process server is asked
	// to use SSL.
	ErrEncryptionUnsupported = sentinel.Error("in-process servers do not support encryption")

	// ErrAlreadyStarted is returned by Start on a running server.
	ErrAlreadyStarted = sentinel.Error("server already started")

	// ErrStorageLocked is returned when another server holds the storage
	// directory lock.
	ErrStorageLocked = sentinel.Error("storage directory is locked by another server")
)
