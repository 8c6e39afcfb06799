// Package server creates database servers inside the calling process.
//
// A Constructor turns the flag sequence produced by core.BuildArgs into a
// Server for one protocol. Registry maps protocol ids to constructors and
// dispatches on the configuration's primary service (tcp, then pg, then web).
//
// The built-in servers are lightweight stand-ins for the external server:
//
//   - tcp answers the control protocol of package shutdown and keeps SQLite
//     databases in the storage directory.
//   - pg accepts connections and closes them.
//   - web serves a small HTTP status console.
//
// Every started server is tracked in a process-wide set so that a shutdown
// request with "all instances" set can stop them together.
package server
