// Package memstore registers the "memory" blob store: a process-local map
// for development and tests, so the bridge runs without object-store
// infrastructure.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/chirino/solace-bridge/internal/config"
	registryblob "github.com/chirino/solace-bridge/internal/registry/blob"
)

func init() {
	registryblob.Register(registryblob.Plugin{
		Name: "memory",
		Loader: func(_ context.Context, _ *config.Config) (registryblob.Store, error) {
			return New(), nil
		},
	})
}

// New returns an empty in-memory blob store.
func New() *MemBlobStore {
	return &MemBlobStore{blobs: map[string][]byte{}}
}

type MemBlobStore struct {
	mu    sync.RWMutex
	seq   int
	blobs map[string][]byte
	order map[string]int
}

func (s *MemBlobStore) Put(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil {
		s.order = map[string]int{}
	}
	own := make([]byte, len(data))
	copy(own, data)
	s.blobs[name] = own
	s.seq++
	s.order[name] = s.seq
	return nil
}

func (s *MemBlobStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[name]
	if !ok {
		return nil, registryblob.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemBlobStore) List(_ context.Context, prefix string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	for name := range s.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	// Newest first, matching the S3 backend.
	sort.Slice(names, func(i, j int) bool { return s.order[names[i]] > s.order[names[j]] })
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (s *MemBlobStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[name]; !ok {
		return registryblob.ErrNotFound
	}
	delete(s.blobs, name)
	return nil
}

var _ registryblob.Store = (*MemBlobStore)(nil)
