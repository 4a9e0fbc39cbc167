package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/genway/genway/model"
)

// MemoryRunStore is an in-memory RunStore for development and tests.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]model.WorkflowRun
}

// NewMemoryRunStore creates an empty in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]model.WorkflowRun)}
}

// Create inserts a new run.
func (s *MemoryRunStore) Create(_ context.Context, run model.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("workflow run %q already exists", run.ID))
	}
	s.runs[run.ID] = cloneRun(run)
	return nil
}

// Get retrieves a run by ID, scoped to its owner.
func (s *MemoryRunStore) Get(_ context.Context, userID, runID string) (model.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok || run.UserID != userID {
		return model.WorkflowRun{}, model.NewNotFoundError(
			fmt.Sprintf("workflow run %q not found", runID))
	}
	return cloneRun(run), nil
}

// Update persists an updated run with optimistic locking.
func (s *MemoryRunStore) Update(_ context.Context, run model.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.ID]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("workflow run %q not found", run.ID))
	}
	if stored.Version != run.Version {
		return model.NewConflictError(fmt.Sprintf(
			"workflow run %q version conflict (expected %d, stored %d)",
			run.ID, run.Version, stored.Version))
	}

	updated := cloneRun(run)
	updated.Version = run.Version + 1
	s.runs[run.ID] = updated
	return nil
}

// List returns the caller's runs, newest first.
func (s *MemoryRunStore) List(_ context.Context, userID string, filters RunFilters) ([]model.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.WorkflowRun
	for _, run := range s.runs {
		if run.UserID != userID {
			continue
		}
		if filters.DefinitionID != "" && run.DefinitionID != filters.DefinitionID {
			continue
		}
		if filters.Status != "" && run.Status != filters.Status {
			continue
		}
		out = append(out, cloneRun(run))
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

// cloneRun copies the run deeply enough that callers cannot mutate stored
// state through the returned slices.
func cloneRun(run model.WorkflowRun) model.WorkflowRun {
	out := run
	out.Steps = append([]model.StepResult(nil), run.Steps...)
	out.Definition.Steps = append([]model.WorkflowStep(nil), run.Definition.Steps...)
	return out
}
