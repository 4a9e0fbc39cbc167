// Package registry maintains the catalog of provider descriptors. Reads go
// through an immutable in-memory snapshot swapped atomically on every
// mutation, so the dispatch hot path never touches the store or a lock.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/genway/genway/model"
)

// snapshot is an immutable view of all descriptors indexed by (kind, name).
type snapshot struct {
	byKey map[string]model.ProviderDescriptor
	list  []model.ProviderDescriptor
}

// Registry is a read-optimized, thread-safe catalog of provider descriptors
// backed by a Store. Mutations write through to the store and then rebuild
// the snapshot; concurrent readers always see a complete catalog.
type Registry struct {
	store  Store
	logger *zap.Logger

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// New creates a Registry and loads the current store contents.
func New(ctx context.Context, store Store, logger *zap.Logger) (*Registry, error) {
	r := &Registry{store: store, logger: logger}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds the snapshot from the store.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reloadLocked(ctx)
}

func (r *Registry) reloadLocked(ctx context.Context) error {
	descs, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("registry: loading descriptors: %w", err)
	}

	s := &snapshot{
		byKey: make(map[string]model.ProviderDescriptor, len(descs)),
		list:  descs,
	}
	for _, d := range descs {
		s.byKey[storeKey(d.Name, d.Kind)] = d
	}
	r.snap.Store(s)
	return nil
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the descriptor for (name, kind), active or not.
func (r *Registry) Get(name string, kind model.GenerationKind) (model.ProviderDescriptor, bool) {
	d, ok := r.current().byKey[storeKey(name, kind)]
	return d, ok
}

// GetActive returns the descriptor for (name, kind) only if it is active.
// The second return distinguishes "unknown" from "known but inactive".
func (r *Registry) GetActive(name string, kind model.GenerationKind) (model.ProviderDescriptor, bool) {
	d, ok := r.current().byKey[storeKey(name, kind)]
	if !ok || !d.IsActive {
		return model.ProviderDescriptor{}, false
	}
	return d, true
}

// List returns all descriptors, ordered by kind then name.
func (r *Registry) List() []model.ProviderDescriptor {
	s := r.current()
	out := make([]model.ProviderDescriptor, len(s.list))
	copy(out, s.list)
	return out
}

// ListByKind returns active descriptors of the given kind.
func (r *Registry) ListByKind(kind model.GenerationKind) []model.ProviderDescriptor {
	var out []model.ProviderDescriptor
	for _, d := range r.current().list {
		if d.Kind == kind && d.IsActive {
			out = append(out, d)
		}
	}
	return out
}

// Upsert validates and stores a descriptor, then refreshes the snapshot.
func (r *Registry) Upsert(ctx context.Context, desc model.ProviderDescriptor) error {
	if ferrs := desc.Validate(); len(ferrs) > 0 {
		return model.NewValidationError(ferrs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Upsert(ctx, desc); err != nil {
		return fmt.Errorf("registry: upsert %s/%s: %w", desc.Kind, desc.Name, err)
	}
	return r.reloadLocked(ctx)
}

// Delete removes a descriptor and refreshes the snapshot.
func (r *Registry) Delete(ctx context.Context, name string, kind model.GenerationKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, name, kind); err != nil {
		return err
	}
	return r.reloadLocked(ctx)
}

// Seed inserts the given descriptors only where no descriptor with the same
// (name, kind) exists yet. Operator edits and deactivations survive restarts:
// seeding never overwrites an existing entry.
func (r *Registry) Seed(ctx context.Context, presets []model.ProviderDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("registry: listing before seed: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, d := range existing {
		have[storeKey(d.Name, d.Kind)] = true
	}

	var seeded int
	for _, p := range presets {
		if have[storeKey(p.Name, p.Kind)] {
			continue
		}
		if err := r.store.Upsert(ctx, p); err != nil {
			return fmt.Errorf("registry: seeding %s/%s: %w", p.Kind, p.Name, err)
		}
		seeded++
	}
	if r.logger != nil {
		r.logger.Info("seeded provider presets",
			zap.Int("seeded", seeded),
			zap.Int("skipped", len(presets)-seeded))
	}
	return r.reloadLocked(ctx)
}
