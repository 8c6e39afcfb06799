package h2env

import (
	"log/slog"

	"github.com/giantswarm/h2env/internal/core"
)

// SetLogger replaces the package-level logger used by h2env.
// The provided logger should already have any desired attributes; h2env will
// not add additional attributes.
//
// If l is nil, the logger resets to the default: slog.Default() with a
// "component" attribute. Call SetLogger(nil) after slog.SetDefault() to pick
// up changes.
//
// SetLogger is safe to call concurrently with other h2env operations.
//
// Example:
//
//	h2env.SetLogger(myLogger.With("component", "h2env"))
func SetLogger(l *slog.Logger) {
	core.SetLogger(l)
}
