package core

import (
	"path/filepath"
	"strconv"
)

// Global server flags emitted after the per-service flags.
const (
	FlagBaseDir  = "-baseDir"
	FlagIfExists = "-ifExists"
	FlagTrace    = "-trace"
	FlagPassword = "-tcpPassword"
)

// SelectorFlag returns the flag that enables protocol id, e.g. "-tcp".
func SelectorFlag(id string) string { return "-" + id }

// PortFlag returns the port flag of protocol id, e.g. "-tcpPort".
func PortFlag(id string) string { return "-" + id + "Port" }

// AllowOthersFlag returns the remote access flag of protocol id.
func AllowOthersFlag(id string) string { return "-" + id + "AllowOthers" }

// SSLFlag returns the encryption flag of protocol id.
func SSLFlag(id string) string { return "-" + id + "SSL" }

// DaemonFlag returns the daemon-mode flag of protocol id.
func DaemonFlag(id string) string { return "-" + id + "Daemon" }

// DaemonFlags returns the daemon-mode flags of every catalog protocol.
func DaemonFlags() []string {
	flags := make([]string, 0, len(protocolPriority))
	for _, id := range protocolPriority {
		flags = append(flags, DaemonFlag(id))
	}
	return flags
}

// BuildArgs turns c into the ordered server flag sequence:
//
//	-<id> [-<id>Port <n>] [-<id>AllowOthers] [-<id>SSL] [-<id>Daemon] ...
//	[-baseDir <path>] [-ifExists] [-trace] [-tcpPassword <credential>]
//
// Services are emitted in insertion order. The port value is the legacy
// single port for every service unless c.EmitServicePorts is set. Global
// flags are only emitted after at least one service; a Configuration without
// services yields an empty, non-nil slice. BuildArgs does not modify c.
func BuildArgs(c *Configuration) []string {
	args := []string{}
	if c == nil || len(c.services) == 0 {
		return args
	}

	legacyPort := strconv.Itoa(ClampPort(c.legacy.port))
	for _, s := range c.services {
		args = append(args, SelectorFlag(s.id))
		if s.port >= 0 {
			port := legacyPort
			if c.EmitServicePorts {
				port = strconv.Itoa(ClampPort(s.port))
			}
			args = append(args, PortFlag(s.id), port)
		}
		if s.allowRemoteAccess {
			args = append(args, AllowOthersFlag(s.id))
		}
		if s.useEncryption {
			args = append(args, SSLFlag(s.id))
		}
		if c.Daemon {
			args = append(args, DaemonFlag(s.id))
		}
	}

	if c.StorageDirectory != "" {
		args = append(args, FlagBaseDir, absPath(c.StorageDirectory))
	}
	if c.RequireExisting {
		args = append(args, FlagIfExists)
	}
	if c.Trace {
		args = append(args, FlagTrace)
	}
	if c.ShutdownCredential != "" {
		args = append(args, FlagPassword, c.ShutdownCredential)
	}
	return args
}

// absPath returns the absolute form of path, or path itself if it cannot be
// resolved.
func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
