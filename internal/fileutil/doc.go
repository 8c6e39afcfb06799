// Package fileutil prepares the directories and files h2env writes: server
// storage and log directories, and the PID file of a spawned server.
package fileutil
