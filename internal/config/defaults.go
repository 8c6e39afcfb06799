package config

import (
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/giantswarm/h2env/internal/core"
)

// setDefaults registers the default of every scalar key so that H2ENV_*
// variables override keys missing from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("server.port", 0)
	v.SetDefault("server.service_ports", false)
	v.SetDefault("server.storage_directory", "")
	v.SetDefault("server.require_existing", false)
	v.SetDefault("server.trace", false)
	v.SetDefault("server.daemon", false)

	v.SetDefault("shutdown.credential", core.DefaultShutdownCredential)
	v.SetDefault("shutdown.host", "localhost")
	v.SetDefault("shutdown.force", false)
	v.SetDefault("shutdown.all_instances", false)
	v.SetDefault("shutdown.timeout", core.DefaultShutdownTimeout)

	v.SetDefault("launcher.path", "")
	v.SetDefault("launcher.options", []string{})
	v.SetDefault("launcher.library", "")
	v.SetDefault("launcher.entry_point", "")
	v.SetDefault("launcher.log_dir", "")
	v.SetDefault("launcher.pid_file", "")
}

// ApplyDefaults sets default values for any unspecified configuration fields.
// Explicit values are preserved, except that the log format is lowercased.
// A configuration without services gets a single tcp service.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if len(cfg.Services) == 0 {
		cfg.Services = []ServiceConfig{{
			ID:   core.ProtocolTCP,
			Port: core.DefaultPort(core.ProtocolTCP),
		}}
	}
	for i := range cfg.Services {
		cfg.Services[i].ID = strings.ToLower(strings.TrimSpace(cfg.Services[i].ID))
	}

	if strings.TrimSpace(cfg.Shutdown.Host) == "" {
		cfg.Shutdown.Host = "localhost"
	}
	if cfg.Shutdown.Timeout == 0 {
		cfg.Shutdown.Timeout = core.DefaultShutdownTimeout
	}
}

// Default returns the configuration used when no file and no environment
// overrides exist.
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Level: slog.LevelInfo},
		Shutdown: ShutdownConfig{
			Credential: core.DefaultShutdownCredential,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
