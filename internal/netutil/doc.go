// Package netutil allocates free loopback ports for h2env servers.
// PortRegistry holds every listener of one allocation open at the same time,
// so the ports it hands out are distinct, and remembers reserved ports so
// that concurrent callers in the same process never receive the same port.
package netutil
