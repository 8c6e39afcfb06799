package core

import (
	"log/slog"
	"sync/atomic"
)

// logger is the package-level logger used by h2env. A nil value means no
// custom logger has been set; Logger falls back to a cached default derived
// from slog.Default().
var logger atomic.Pointer[slog.Logger]

// defaultLogger caches the default-derived logger so it is not re-created on
// every Logger call. SetLogger(nil) clears it so that a later
// slog.SetDefault is picked up.
var defaultLogger atomic.Pointer[slog.Logger]

// Logger returns the current package-level logger. It is safe to call from
// multiple goroutines.
func Logger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	l := newDefaultLogger()
	if defaultLogger.CompareAndSwap(nil, l) {
		return l
	}
	if l2 := defaultLogger.Load(); l2 != nil {
		return l2
	}
	return l
}

// newDefaultLogger creates the default logger with the h2env component attribute.
func newDefaultLogger() *slog.Logger {
	return slog.Default().With("component", "h2env")
}

// SetLogger replaces the package-level logger used by h2env. If l is nil the
// logger resets to slog.Default() with the component attribute.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	defaultLogger.Store(nil)
}
