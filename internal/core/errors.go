package core

import "github.com/giantswarm/h2env/internal/sentinel"

// ErrInvalidArgument is returned for an unknown or empty service id and for
// malformed settings. It is reported at configuration time.
const ErrInvalidArgument = sentinel.Error("invalid argument")

// ErrNoServices is returned when an operation needs at least one configured
// service but the Configuration has none.
const ErrNoServices = sentinel.Error("no services configured")
