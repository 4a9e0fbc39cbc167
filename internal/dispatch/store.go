package dispatch

import (
	"context"

	"github.com/genway/genway/model"
)

// ResultFilters narrows result listings.
type ResultFilters struct {
	Kind     model.GenerationKind
	Provider string
	Limit    int
	Offset   int
}

// ResultStore persists generation results. Results are append-only: exactly
// one row is written per dispatch and never mutated afterwards.
type ResultStore interface {
	// Create inserts a new result.
	Create(ctx context.Context, result model.GenerationResult) error

	// Get retrieves a result by ID, scoped to its owner.
	Get(ctx context.Context, userID, resultID string) (model.GenerationResult, error)

	// List returns the caller's results, newest first.
	List(ctx context.Context, userID string, filters ResultFilters) ([]model.GenerationResult, error)
}
