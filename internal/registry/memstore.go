package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/genway/genway/model"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	descs map[string]model.ProviderDescriptor
}

// NewMemoryStore creates an empty in-memory provider store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{descs: make(map[string]model.ProviderDescriptor)}
}

// List returns all descriptors ordered by kind then name.
func (s *MemoryStore) List(_ context.Context) ([]model.ProviderDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ProviderDescriptor, 0, len(s.descs))
	for _, d := range s.descs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Upsert inserts or replaces a descriptor.
func (s *MemoryStore) Upsert(_ context.Context, desc model.ProviderDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.descs[storeKey(desc.Name, desc.Kind)] = desc
	return nil
}

// Delete removes a descriptor.
func (s *MemoryStore) Delete(_ context.Context, name string, kind model.GenerationKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(name, kind)
	if _, ok := s.descs[key]; !ok {
		return model.NewNotFoundError(fmt.Sprintf("provider %s/%s not found", kind, name))
	}
	delete(s.descs, key)
	return nil
}

func storeKey(name string, kind model.GenerationKind) string {
	return string(kind) + "/" + name
}
