package core

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"
)

// DefaultShutdownCredential is the credential used for the server's
// -tcpPassword and for remote shutdown when none is configured.
const DefaultShutdownCredential = "h2env"

// DefaultShutdownTimeout bounds the remote shutdown round trip when
// Configuration.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 10 * time.Second

// MaxCredentialLength bounds the shutdown credential in its quoted wire form,
// keeping a shutdown request within one control line.
const MaxCredentialLength = 1024

// legacyField names one of the deprecated single-service settings.
type legacyField int

const (
	legacyPort legacyField = iota
	legacyAllowOthers
	legacyUseSSL
)

// legacyState holds the deprecated single-service settings. They predate the
// service list and only ever write into it through projectLegacy. The port
// value is also what BuildArgs emits for every -<id>Port flag unless
// Configuration.EmitServicePorts is set.
type legacyState struct {
	port        int
	allowOthers bool
	useSSL      bool
}

// Configuration aggregates the service descriptors and the cross-cutting
// server, launcher and shutdown settings.
//
// Build one with NewConfiguration, adjust it, then pass it to BuildArgs or to
// the spawn, create and shutdown operations. A Configuration is not safe for
// concurrent mutation.
type Configuration struct {
	// services is the canonical descriptor list, in insertion order.
	services []Service
	legacy   legacyState

	// StorageDirectory is where the server keeps its database files (-baseDir).
	StorageDirectory string
	// RequireExisting refuses to create databases on connect (-ifExists).
	RequireExisting bool
	// Trace enables server tracing (-trace).
	Trace bool
	// Daemon asks each protocol to run on a daemon thread (-<id>Daemon).
	// Spawned servers never receive these flags.
	Daemon bool
	// EmitServicePorts makes BuildArgs emit each descriptor's own port instead
	// of the legacy single port.
	EmitServicePorts bool

	// ShutdownCredential authenticates remote shutdown and is passed to the
	// server as -tcpPassword. Empty means no credential.
	ShutdownCredential string
	// ShutdownHost is the host targeted by remote shutdown; empty means localhost.
	ShutdownHost string
	// ForceShutdown closes open client connections immediately.
	ForceShutdown bool
	// ShutdownAllInstances stops every server in the target process.
	ShutdownAllInstances bool
	// ShutdownTimeout bounds the remote shutdown call; zero means
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// Launcher is the runtime executable used to spawn the server.
	Launcher string
	// LauncherOptions are passed verbatim to the launcher, never split.
	LauncherOptions []string
	// ServerLibrary is the archive holding the server entry point (-cp).
	ServerLibrary string
	// EntryPoint is the fully-qualified server main class.
	EntryPoint string
	// LogDir, when set, receives the spawned server's stdout and stderr.
	LogDir string
	// PIDFile, when set, receives the spawned server's process id.
	PIDFile string
	// Detach starts the spawned server in its own session so that it
	// outlives the spawning process.
	Detach bool
}

// NewConfiguration returns a Configuration with a single tcp service on its
// default port and the default shutdown credential. The launcher, server
// library and entry point are left empty; spawning resolves them from the
// environment (see LoadEnvironment).
func NewConfiguration() *Configuration {
	port := DefaultPort(ProtocolTCP)
	tcp, err := NewService(ProtocolTCP, port, false, false)
	if err != nil {
		panic(fmt.Sprintf("h2env: default tcp service: %v", err))
	}
	return &Configuration{
		services:           []Service{tcp},
		legacy:             legacyState{port: port},
		ShutdownCredential: DefaultShutdownCredential,
	}
}

// Services returns a copy of the descriptor list in insertion order.
func (c *Configuration) Services() []Service {
	return slices.Clone(c.services)
}

// SetServices replaces the descriptor list. Legacy settings are not
// re-projected onto the new list.
func (c *Configuration) SetServices(services ...Service) {
	c.services = slices.Clone(services)
}

// AddService appends s to the descriptor list.
func (c *Configuration) AddService(s Service) {
	c.services = append(c.services, s)
}

// Service returns the first descriptor with the given id.
func (c *Configuration) Service(id string) (Service, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return Service{}, false
	}
	return c.services[i], true
}

// Primary returns the descriptor used for in-process creation: the first tcp,
// pg or web descriptor, in that priority order.
func (c *Configuration) Primary() (Service, bool) {
	for _, id := range protocolPriority {
		if s, ok := c.Service(id); ok {
			return s, true
		}
	}
	return Service{}, false
}

func (c *Configuration) indexOf(id string) int {
	return slices.IndexFunc(c.services, func(s Service) bool { return s.id == id })
}

// Port returns the legacy single-service port.
func (c *Configuration) Port() int { return c.legacy.port }

// AllowOthers returns the legacy single-service remote access flag.
func (c *Configuration) AllowOthers() bool { return c.legacy.allowOthers }

// UseSSL returns the legacy single-service encryption flag.
func (c *Configuration) UseSSL() bool { return c.legacy.useSSL }

// SetPort sets the legacy single-service port, clamped to [MinPort, MaxPort],
// and copies it onto the tcp descriptor if one exists.
//
// Deprecated: configure ports per service with NewService.
func (c *Configuration) SetPort(port int) {
	c.legacy.port = ClampPort(port)
	c.projectLegacy(legacyPort)
}

// SetAllowOthers sets the legacy remote access flag and copies it onto the
// tcp descriptor if one exists.
//
// Deprecated: configure remote access per service with NewService.
func (c *Configuration) SetAllowOthers(allow bool) {
	c.legacy.allowOthers = allow
	c.projectLegacy(legacyAllowOthers)
}

// SetUseSSL sets the legacy encryption flag and copies it onto the tcp
// descriptor if one exists.
//
// Deprecated: configure encryption per service with NewService.
func (c *Configuration) SetUseSSL(useSSL bool) {
	c.legacy.useSSL = useSSL
	c.projectLegacy(legacyUseSSL)
}

// projectLegacy is the only path from legacy settings into the descriptor
// list. It overwrites field f of the first tcp descriptor; without one the
// list is left unchanged.
func (c *Configuration) projectLegacy(f legacyField) {
	i := c.indexOf(ProtocolTCP)
	if i < 0 {
		return
	}
	switch f {
	case legacyPort:
		c.services[i].port = c.legacy.port
	case legacyAllowOthers:
		c.services[i].allowRemoteAccess = c.legacy.allowOthers
	case legacyUseSSL:
		c.services[i].useEncryption = c.legacy.useSSL
	}
}

// ShutdownPort returns the port targeted by remote shutdown: the port the
// tcp service was told to listen on by BuildArgs.
func (c *Configuration) ShutdownPort() int {
	if c.EmitServicePorts {
		if s, ok := c.Service(ProtocolTCP); ok {
			return s.port
		}
	}
	return ClampPort(c.legacy.port)
}

// Clone returns a deep copy of c.
func (c *Configuration) Clone() *Configuration {
	out := *c
	out.services = slices.Clone(c.services)
	out.LauncherOptions = slices.Clone(c.LauncherOptions)
	return &out
}

// Validate checks all Configuration invariants and returns an error describing
// every violation found, joined with errors.Join. Each violation wraps
// ErrInvalidArgument.
func (c *Configuration) Validate() error {
	var errs []error

	seen := make(map[string]bool, len(c.services))
	for i, s := range c.services {
		if s.IsZero() || !IsSupported(s.id) {
			errs = append(errs, fmt.Errorf("services[%d]: descriptor was not created with NewService: %w", i, ErrInvalidArgument))
			continue
		}
		if seen[s.id] {
			errs = append(errs, fmt.Errorf("services[%d]: duplicate service id %q: %w", i, s.id, ErrInvalidArgument))
		}
		seen[s.id] = true
	}
	if n := len(strconv.Quote(c.ShutdownCredential)); n > MaxCredentialLength {
		errs = append(errs, fmt.Errorf("shutdown credential is %d bytes when quoted, limit %d: %w", n, MaxCredentialLength, ErrInvalidArgument))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must not be negative, got %s: %w", c.ShutdownTimeout, ErrInvalidArgument))
	}

	return errors.Join(errs...)
}
