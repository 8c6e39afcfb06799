// Package config loads the h2env command line configuration from a YAML or
// TOML file and H2ENV_* environment variables, validates it and turns it
// into a launcher Configuration.
package config
