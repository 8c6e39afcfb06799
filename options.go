package h2env

import (
	"fmt"
	"slices"
	"time"
)

// requirePositive panics if v <= 0 with a descriptive message.
func requirePositive[T int | time.Duration](name string, v T) {
	if v <= 0 {
		panic(fmt.Sprintf("h2env: %s must be greater than 0, got %v", name, v))
	}
}

// requireNonEmpty panics if s is empty with a descriptive message.
func requireNonEmpty(name, s string) {
	if s == "" {
		panic(fmt.Sprintf("h2env: %s must not be empty", name))
	}
}

// Option configures a Configuration during construction via New.
//
// Several With* functions panic on invalid input (empty paths, non-positive
// durations). Option values are typically constants in test setup code, so an
// invalid value is a programmer error and fails fast, like
// [regexp.MustCompile].
type Option func(*Configuration)

// WithServices replaces the default tcp service with services, emitted in
// the given order. Calling it without arguments leaves the configuration
// without services: Args then returns an empty slice and Spawn, Create and
// CreateAll fail with ErrNoServices.
func WithServices(services ...Service) Option {
	services = slices.Clone(services)
	return func(c *Configuration) {
		c.SetServices(services...)
	}
}

// WithStorageDirectory sets the directory the server keeps its databases in
// (-baseDir). Relative paths are made absolute when arguments are built.
// Panics if dir is empty.
func WithStorageDirectory(dir string) Option {
	requireNonEmpty("storage directory", dir)
	return func(c *Configuration) {
		c.StorageDirectory = dir
	}
}

// WithRequireExisting makes the server refuse to create databases on
// connect (-ifExists).
func WithRequireExisting(enabled bool) Option {
	return func(c *Configuration) {
		c.RequireExisting = enabled
	}
}

// WithTrace enables server tracing (-trace).
func WithTrace(enabled bool) Option {
	return func(c *Configuration) {
		c.Trace = enabled
	}
}

// WithDaemon emits -<id>Daemon for every service. Spawn removes these flags
// again; they only matter to callers that pass Args to a server themselves.
func WithDaemon(enabled bool) Option {
	return func(c *Configuration) {
		c.Daemon = enabled
	}
}

// WithServicePorts makes Args emit each service's own port instead of the
// single legacy port.
//
// Default: false. Every -<id>Port flag carries Configuration.Port.
func WithServicePorts(enabled bool) Option {
	return func(c *Configuration) {
		c.EmitServicePorts = enabled
	}
}

// WithShutdownCredential sets the credential passed as -tcpPassword and sent
// with the shutdown request. An empty credential omits -tcpPassword.
//
// Default: DefaultShutdownCredential.
func WithShutdownCredential(credential string) Option {
	return func(c *Configuration) {
		c.ShutdownCredential = credential
	}
}

// WithShutdownHost sets the host targeted by Shutdown.
//
// Default: localhost.
//
// Panics if host is empty.
func WithShutdownHost(host string) Option {
	requireNonEmpty("shutdown host", host)
	return func(c *Configuration) {
		c.ShutdownHost = host
	}
}

// WithForceShutdown asks the server to close open client connections
// immediately on shutdown.
func WithForceShutdown(enabled bool) Option {
	return func(c *Configuration) {
		c.ForceShutdown = enabled
	}
}

// WithShutdownAllInstances asks the server to stop every server instance in
// its process, not only the one receiving the request.
func WithShutdownAllInstances(enabled bool) Option {
	return func(c *Configuration) {
		c.ShutdownAllInstances = enabled
	}
}

// WithShutdownTimeout bounds the shutdown round trip: dialing, sending the
// request and reading the acknowledgement.
//
// Default: 10 seconds.
//
// Panics if d <= 0.
func WithShutdownTimeout(d time.Duration) Option {
	requirePositive("shutdown timeout", d)
	return func(c *Configuration) {
		c.ShutdownTimeout = d
	}
}

// WithLauncher sets the runtime executable used by Spawn.
// If not set, Spawn uses $JAVA_HOME/bin/java, then java on PATH.
// Panics if path is empty.
func WithLauncher(path string) Option {
	requireNonEmpty("launcher path", path)
	return func(c *Configuration) {
		c.Launcher = path
	}
}

// WithLauncherOptions sets options placed between the launcher and -cp, such
// as "-Xmx512m". Each option is one token; blank options are dropped.
func WithLauncherOptions(opts ...string) Option {
	opts = slices.Clone(opts)
	return func(c *Configuration) {
		c.LauncherOptions = opts
	}
}

// WithServerLibrary sets the archive holding the server entry point.
// If not set, Spawn reads H2ENV_SERVER_LIBRARY.
// Panics if path is empty.
func WithServerLibrary(path string) Option {
	requireNonEmpty("server library path", path)
	return func(c *Configuration) {
		c.ServerLibrary = path
	}
}

// WithEntryPoint sets the fully-qualified server main class.
//
// Default: H2ENV_ENTRY_POINT, then DefaultEntryPoint.
//
// Panics if class is empty.
func WithEntryPoint(class string) Option {
	requireNonEmpty("entry point", class)
	return func(c *Configuration) {
		c.EntryPoint = class
	}
}

// WithLogDir redirects the spawned server's stdout and stderr to
// h2-stdout.log and h2-stderr.log in dir instead of inheriting them.
// Panics if dir is empty.
func WithLogDir(dir string) Option {
	requireNonEmpty("log directory", dir)
	return func(c *Configuration) {
		c.LogDir = dir
	}
}

// WithPIDFile makes Spawn write the server's process id to path.
// Panics if path is empty.
func WithPIDFile(path string) Option {
	requireNonEmpty("PID file path", path)
	return func(c *Configuration) {
		c.PIDFile = path
	}
}

// WithDetach starts the spawned server in its own session so that it keeps
// running after the spawning process exits. Without it the server is
// terminated together with its parent on Linux.
func WithDetach(enabled bool) Option {
	return func(c *Configuration) {
		c.Detach = enabled
	}
}
