// Package process spawns and tracks external server processes.
//
// Spawn assembles the launcher command line (launcher, launcher options,
// -cp <library>, entry point, server flags), drops daemon-mode flags, starts
// the process without waiting for it and returns a Process handle. BaseProcess
// holds the start/stop mechanics (SIGTERM then SIGKILL), LogFiles redirects
// stdout/stderr, and WaitReady polls a readiness check.
package process
