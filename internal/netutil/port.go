package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// maxPortRetries is the maximum number of attempts to find a port not already
// in the registry.
const maxPortRetries = 20

// PortRegistry tracks ports handed out by this process. The kernel may return
// a just-closed port to the next caller, so a port stays reserved until
// Release is called.
type PortRegistry struct {
	mu    sync.Mutex
	ports map[int]struct{}
	log   *slog.Logger
}

// NewPortRegistry creates a new PortRegistry ready for use.
// If logger is nil, slog.Default() is used as a fallback.
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{
		ports: make(map[int]struct{}),
		log:   logger,
	}
}

// reserve registers port. It returns false if the port is already taken.
func (r *PortRegistry) reserve(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; ok {
		return false
	}
	r.ports[port] = struct{}{}
	return true
}

// Release removes a port from the registry, allowing it to be reused.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, port)
}

// listenFree asks the kernel for a free loopback port that is not in the
// registry. The returned listener holds the port until closed; the port
// stays registered after that.
func (r *PortRegistry) listenFree() (*net.TCPListener, int, error) {
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}

	for range maxPortRetries {
		l, err := net.ListenTCP("tcp", addr)
		if err != nil {
			return nil, 0, fmt.Errorf("listen on tcp address: %w", err)
		}
		port := l.Addr().(*net.TCPAddr).Port
		if r.reserve(port) {
			return l, port, nil
		}
		r.log.Debug("port already in registry, retrying", "port", port)
		_ = l.Close()
	}
	return nil, 0, fmt.Errorf("allocate unique port: exhausted %d attempts", maxPortRetries)
}

// AllocatePorts allocates n distinct free ports. All listeners are held open
// until the last port is found. Callers must call Release for each port when
// it is no longer needed.
func (r *PortRegistry) AllocatePorts(n int) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("allocate ports: count must be positive, got %d", n)
	}

	listeners := make([]*net.TCPListener, 0, n)
	ports := make([]int, 0, n)
	closeAll := func() {
		for i, l := range listeners {
			if err := l.Close(); err != nil {
				r.log.Warn("close listener after port allocation", "port", ports[i], "error", err)
			}
		}
	}

	for i := range n {
		l, port, err := r.listenFree()
		if err != nil {
			// Close before releasing so no other caller gets a port that is
			// still bound here.
			closeAll()
			for _, p := range ports {
				r.Release(p)
			}
			return nil, fmt.Errorf("allocate port %d of %d: %w", i+1, n, err)
		}
		listeners = append(listeners, l)
		ports = append(ports, port)
	}

	closeAll()
	return ports, nil
}

// AllocatePort allocates a single free port.
func (r *PortRegistry) AllocatePort() (int, error) {
	ports, err := r.AllocatePorts(1)
	if err != nil {
		return 0, err
	}
	return ports[0], nil
}
