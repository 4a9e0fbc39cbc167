package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/genway/genway/model"
)

// MemoryResultStore is an in-memory ResultStore for development and tests.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string]model.GenerationResult
}

// NewMemoryResultStore creates an empty in-memory result store.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: make(map[string]model.GenerationResult)}
}

// Create inserts a new result.
func (s *MemoryResultStore) Create(_ context.Context, result model.GenerationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[result.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("result %q already exists", result.ID))
	}
	s.results[result.ID] = result
	return nil
}

// Get retrieves a result by ID, scoped to its owner.
func (s *MemoryResultStore) Get(_ context.Context, userID, resultID string) (model.GenerationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[resultID]
	if !ok || r.UserID != userID {
		return model.GenerationResult{}, model.NewNotFoundError(
			fmt.Sprintf("generation result %q not found", resultID))
	}
	return r, nil
}

// List returns the caller's results, newest first.
func (s *MemoryResultStore) List(_ context.Context, userID string, filters ResultFilters) ([]model.GenerationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.GenerationResult
	for _, r := range s.results {
		if r.UserID != userID {
			continue
		}
		if filters.Kind != "" && r.Kind != filters.Kind {
			continue
		}
		if filters.Provider != "" && r.Provider != filters.Provider {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(out) {
			return nil, nil
		}
		out = out[filters.Offset:]
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

// Len returns the number of stored results. For testing.
func (s *MemoryResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
