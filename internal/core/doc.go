// Package core provides the internal implementation of h2env.
// It contains the service catalog (supported protocol ids and their default
// ports), the Service descriptor, the Configuration aggregate with its legacy
// single-service projection, and BuildArgs, which turns a Configuration into
// the ordered flag sequence understood by the H2 server entry point.
package core
