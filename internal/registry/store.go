package registry

import (
	"context"

	"github.com/genway/genway/model"
)

// Store persists provider descriptors. Implementations must make each write
// atomic per descriptor; no cross-descriptor transactions are required.
type Store interface {
	// List returns every stored descriptor, active or not, in name order
	// within each kind.
	List(ctx context.Context) ([]model.ProviderDescriptor, error)

	// Upsert inserts or replaces the descriptor keyed by (name, kind).
	Upsert(ctx context.Context, desc model.ProviderDescriptor) error

	// Delete removes the descriptor keyed by (name, kind). Returns
	// NOT_FOUND if no such descriptor exists.
	Delete(ctx context.Context, name string, kind model.GenerationKind) error
}
