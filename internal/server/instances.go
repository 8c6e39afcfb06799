package server

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/h2env/internal/core"
)

// instances tracks every running server in the process.
var instances = &instanceSet{m: make(map[string]Server)}

type instanceSet struct {
	mu sync.Mutex
	m  map[string]Server
}

func (s *instanceSet) add(srv Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[srv.ID()] = srv
}

func (s *instanceSet) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}

func (s *instanceSet) list() []Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := slices.Collect(maps.Values(s.m))
	slices.SortFunc(list, func(a, b Server) int {
		if a.Protocol() != b.Protocol() {
			return protocolRank(a.Protocol()) - protocolRank(b.Protocol())
		}
		return a.Port() - b.Port()
	})
	return list
}

func protocolRank(id string) int {
	return slices.Index(core.Protocols(), id)
}

// Running returns the servers currently running in this process, ordered by
// protocol and port.
func Running() []Server {
	return instances.list()
}

// StopAll stops every running server concurrently and returns the joined
// errors of the ones that failed.
func StopAll(timeout time.Duration) error {
	return stopServers(instances.list(), timeout)
}

func stopServers(servers []Server, timeout time.Duration) error {
	var g errgroup.Group
	errs := make([]error, len(servers))
	for i, srv := range servers {
		g.Go(func() error {
			errs[i] = srv.Stop(timeout)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
