package core

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// DefaultEntryPoint is the fully-qualified main class of the H2 server.
const DefaultEntryPoint = "org.h2.tools.Server"

// javaBinary is the launcher name looked up when JAVA_HOME is not set.
const javaBinary = "java"

// Environment holds the launcher defaults read from environment variables.
type Environment struct {
	// JavaHome is the runtime installation the default launcher is derived from.
	JavaHome string `env:"JAVA_HOME"`
	// ServerLibrary is the default server archive passed after -cp.
	ServerLibrary string `env:"H2ENV_SERVER_LIBRARY"`
	// EntryPoint overrides DefaultEntryPoint.
	EntryPoint string `env:"H2ENV_ENTRY_POINT" envDefault:"org.h2.tools.Server"`
}

// LoadEnvironment reads the launcher defaults from the process environment.
func LoadEnvironment() (Environment, error) {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return Environment{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Launcher returns the default launcher executable: $JAVA_HOME/bin/java if
// JAVA_HOME is set, otherwise java resolved on PATH, otherwise the bare name.
func (e Environment) Launcher() string {
	if e.JavaHome != "" {
		return filepath.Join(e.JavaHome, "bin", javaBinary)
	}
	if path, err := exec.LookPath(javaBinary); err == nil {
		return path
	}
	return javaBinary
}
