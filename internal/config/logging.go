package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/giantswarm/h2env/internal/fileutil"
)

// LoggingConfig controls log output of the command line tool.
type LoggingConfig struct {
	// Level is the minimum level: debug, info, warn or error.
	Level slog.Level `mapstructure:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
	// Output is stderr, stdout or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// NewLogger builds the logger described by c. The returned close function
// releases the log file, if any.
func (c LoggingConfig) NewLogger() (*slog.Logger, func() error, error) {
	w, closeFn, err := c.open()
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: c.Level}
	var h slog.Handler
	switch c.Format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closeFn, nil
}

func (c LoggingConfig) open() (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch c.Output {
	case "", "stderr":
		return os.Stderr, noop, nil
	case "stdout":
		return os.Stdout, noop, nil
	}

	if err := fileutil.EnsureDirForFile(c.Output); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return f, f.Close, nil
}
