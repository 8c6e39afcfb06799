package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/giantswarm/h2env/internal/core"
)

// EnvPrefix prefixes every environment override, e.g. H2ENV_SHUTDOWN_HOST.
const EnvPrefix = "H2ENV"

// Config represents the complete h2env command line configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (H2ENV_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// The service list can only be set in the configuration file.
type Config struct {
	Logging  LoggingConfig   `mapstructure:"logging"`
	Services []ServiceConfig `mapstructure:"services" validate:"dive"`
	Server   ServerConfig    `mapstructure:"server"`
	Shutdown ShutdownConfig  `mapstructure:"shutdown"`
	Launcher LauncherConfig  `mapstructure:"launcher"`
}

// ServiceConfig describes one protocol endpoint.
type ServiceConfig struct {
	// ID is the protocol id: tcp, pg or web.
	ID string `mapstructure:"id" validate:"required,protocol"`
	// Port is the service port. Zero or omitted means the protocol default.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
	// AllowRemoteAccess lets other hosts connect.
	AllowRemoteAccess bool `mapstructure:"allow_remote_access"`
	// UseEncryption enables the protocol's TLS.
	UseEncryption bool `mapstructure:"use_encryption"`
}

// ServerConfig holds the global server flags.
type ServerConfig struct {
	// Port is the legacy single port emitted for every service. Zero means
	// the port of the tcp service, or the tcp default without one.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
	// ServicePorts emits each service's own port instead of Port.
	ServicePorts     bool   `mapstructure:"service_ports"`
	StorageDirectory string `mapstructure:"storage_directory"`
	RequireExisting  bool   `mapstructure:"require_existing"`
	Trace            bool   `mapstructure:"trace"`
	Daemon           bool   `mapstructure:"daemon"`
}

// ShutdownConfig controls the remote shutdown request.
type ShutdownConfig struct {
	Credential   string        `mapstructure:"credential"`
	Host         string        `mapstructure:"host" validate:"required"`
	Force        bool          `mapstructure:"force"`
	AllInstances bool          `mapstructure:"all_instances"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// LauncherConfig describes how the external server is spawned. Empty values
// fall back to JAVA_HOME, H2ENV_SERVER_LIBRARY and H2ENV_ENTRY_POINT.
type LauncherConfig struct {
	Path       string   `mapstructure:"path"`
	Options    []string `mapstructure:"options"`
	Library    string   `mapstructure:"library"`
	EntryPoint string   `mapstructure:"entry_point"`
	LogDir     string   `mapstructure:"log_dir"`
	PIDFile    string   `mapstructure:"pid_file"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty path searches h2env.yaml in the working directory and in the
// user configuration directory; a missing file is not an error then. An
// explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setupViper configures environment overrides, defaults and the file search.
func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.SetConfigName("h2env")
	v.AddConfigPath(".")
	v.AddConfigPath(Dir())
}

// readConfigFile reads the configuration file. Only a file found by search
// may be missing.
func readConfigFile(v *viper.Viper, path string) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("read config file: %w", err)
}

// decodeHook converts durations ("10s"), comma separated lists and
// text-encoded values such as slog levels.
func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
}

// Dir returns the user configuration directory of h2env:
// $XDG_CONFIG_HOME/h2env, else ~/.config/h2env, else the working directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "h2env")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "h2env")
}

// Build turns cfg into a launcher Configuration. Service errors wrap
// core.ErrInvalidArgument.
func (c *Config) Build() (*core.Configuration, error) {
	out := core.NewConfiguration()

	services := make([]core.Service, 0, len(c.Services))
	var errs []error
	for i, sc := range c.Services {
		port := sc.Port
		if port == 0 {
			port = core.DefaultPort(strings.TrimSpace(sc.ID))
		}
		s, err := core.NewService(sc.ID, port, sc.AllowRemoteAccess, sc.UseEncryption)
		if err != nil {
			errs = append(errs, fmt.Errorf("services[%d]: %w", i, err))
			continue
		}
		services = append(services, s)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	out.SetServices(services...)

	legacyPort := c.Server.Port
	if legacyPort == 0 {
		if tcp, ok := out.Service(core.ProtocolTCP); ok {
			legacyPort = tcp.Port()
		}
	}
	if legacyPort != 0 {
		out.SetPort(legacyPort) //nolint:staticcheck // the config file keeps the single-port setting
	}

	out.EmitServicePorts = c.Server.ServicePorts
	out.StorageDirectory = c.Server.StorageDirectory
	out.RequireExisting = c.Server.RequireExisting
	out.Trace = c.Server.Trace
	out.Daemon = c.Server.Daemon

	out.ShutdownCredential = c.Shutdown.Credential
	out.ShutdownHost = c.Shutdown.Host
	out.ForceShutdown = c.Shutdown.Force
	out.ShutdownAllInstances = c.Shutdown.AllInstances
	out.ShutdownTimeout = c.Shutdown.Timeout

	out.Launcher = c.Launcher.Path
	out.LauncherOptions = c.Launcher.Options
	out.ServerLibrary = c.Launcher.Library
	out.EntryPoint = c.Launcher.EntryPoint
	out.LogDir = c.Launcher.LogDir
	out.PIDFile = c.Launcher.PIDFile

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
