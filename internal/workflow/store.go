package workflow

import (
	"context"

	"github.com/genway/genway/model"
)

// RunFilters narrows run listings.
type RunFilters struct {
	DefinitionID string
	Status       string
	Limit        int
	Offset       int
}

// RunStore persists workflow runs. Updates use optimistic locking on the
// run's version; a stale write returns CONFLICT.
type RunStore interface {
	// Create inserts a new run.
	Create(ctx context.Context, run model.WorkflowRun) error

	// Get retrieves a run by ID, scoped to its owner.
	Get(ctx context.Context, userID, runID string) (model.WorkflowRun, error)

	// Update persists an updated run. The stored version must match
	// run.Version; on success the stored version becomes run.Version+1.
	Update(ctx context.Context, run model.WorkflowRun) error

	// List returns the caller's runs, newest first.
	List(ctx context.Context, userID string, filters RunFilters) ([]model.WorkflowRun, error)
}
