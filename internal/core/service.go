package core

import (
	"fmt"
	"strings"
)

// Service describes one configured protocol endpoint of the server.
//
// Service values are comparable: two descriptors are equal (==) iff id, port,
// remote access and encryption all match. The id is fixed at construction.
// The zero value is not a valid descriptor; use NewService.
type Service struct {
	id                string
	port              int
	allowRemoteAccess bool
	useEncryption     bool
}

// NewService validates id against the catalog and returns a descriptor.
//
// Surrounding whitespace in id is ignored. An empty or unknown id returns an
// error wrapping ErrInvalidArgument. A port outside [MinPort, MaxPort] is not
// rejected: it is replaced by the catalog default port for id.
func NewService(id string, port int, allowRemoteAccess, useEncryption bool) (Service, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Service{}, fmt.Errorf("service id must not be empty: %w", ErrInvalidArgument)
	}
	if !IsSupported(id) {
		return Service{}, fmt.Errorf("service id %q is not supported: %w", id, ErrInvalidArgument)
	}
	if port < MinPort || port > MaxPort {
		port = DefaultPort(id)
	}
	return Service{
		id:                id,
		port:              port,
		allowRemoteAccess: allowRemoteAccess,
		useEncryption:     useEncryption,
	}, nil
}

// ID returns the protocol identifier.
func (s Service) ID() string { return s.id }

// Port returns the configured port.
func (s Service) Port() int { return s.port }

// AllowRemoteAccess reports whether hosts other than the local machine may connect.
func (s Service) AllowRemoteAccess() bool { return s.allowRemoteAccess }

// UseEncryption reports whether the endpoint requires a secure transport.
func (s Service) UseEncryption() bool { return s.useEncryption }

// IsZero reports whether s is the zero value, i.e. was not built by NewService.
func (s Service) IsZero() bool { return s == Service{} }

// String returns a compact description, e.g. "tcp:9092+others+ssl".
func (s Service) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d", s.id, s.port)
	if s.allowRemoteAccess {
		b.WriteString("+others")
	}
	if s.useEncryption {
		b.WriteString("+ssl")
	}
	return b.String()
}
