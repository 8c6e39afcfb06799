package core

import "slices"

// Protocol identifiers known to the catalog.
const (
	ProtocolTCP = "tcp"
	ProtocolPG  = "pg"
	ProtocolWeb = "web"
)

// UnsupportedPort is returned by DefaultPort for identifiers that are not in
// the catalog.
const UnsupportedPort = -1

// Valid port range. Out-of-range values are clamped by ClampPort.
const (
	MinPort = 0
	MaxPort = 65535
)

// defaultPorts is the catalog. Its key set is the authoritative list of
// supported protocols; it is never mutated after package initialization.
var defaultPorts = map[string]int{
	ProtocolTCP: 9092,
	ProtocolPG:  5435,
	ProtocolWeb: 8082,
}

// protocolPriority is the order in which in-process creation picks the
// primary descriptor of a Configuration.
var protocolPriority = []string{ProtocolTCP, ProtocolPG, ProtocolWeb}

// DefaultPort returns the registered default port for id, or UnsupportedPort
// if id is not in the catalog. The id is matched exactly, without trimming.
func DefaultPort(id string) int {
	port, ok := defaultPorts[id]
	if !ok {
		return UnsupportedPort
	}
	return port
}

// IsSupported reports whether id is a catalog protocol identifier.
func IsSupported(id string) bool {
	_, ok := defaultPorts[id]
	return ok
}

// Protocols returns the supported protocol identifiers in dispatch priority
// order. The returned slice is a copy.
func Protocols() []string {
	return slices.Clone(protocolPriority)
}

// ClampPort limits port to [MinPort, MaxPort].
func ClampPort(port int) int {
	return min(MaxPort, max(MinPort, port))
}
