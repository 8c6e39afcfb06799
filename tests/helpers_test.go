//go:build integration

package h2env_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/giantswarm/h2env"
	"github.com/giantswarm/h2env/tests/internal/testutil"
)

// readyTimeout bounds startup of a spawned server, including JVM start.
const readyTimeout = time.Minute

// newConfig returns a configuration for one test with a private storage and
// log directory and a free legacy port. opts are applied last, so
// WithServices keeps the ports it is given.
func newConfig(t *testing.T, opts ...h2env.Option) *h2env.Configuration {
	t.Helper()

	dir := filepath.Join(tmpDir, testutil.UniqueName("server"))
	cfg := h2env.New(
		h2env.WithStorageDirectory(filepath.Join(dir, "data")),
		h2env.WithLogDir(filepath.Join(dir, "logs")),
	)
	cfg.SetPort(testutil.FreePorts(t, 1)[0]) //nolint:staticcheck // the legacy port is what every service listens on by default
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func mustService(t *testing.T, id string, port int) h2env.Service {
	t.Helper()

	s, err := h2env.NewService(id, port, false, false)
	if err != nil {
		t.Fatalf("NewService(%q, %d) failed: %v", id, port, err)
	}
	return s
}
