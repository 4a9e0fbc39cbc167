package registry

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/genway/genway/model"
)

func testDescriptor(name string, kind model.GenerationKind) model.ProviderDescriptor {
	return model.ProviderDescriptor{
		Name:           name,
		Kind:           kind,
		BaseURL:        "https://api.example.com/generate",
		Method:         "POST",
		ResponseParser: model.ResponseParser{ContentPath: "data.0.url"},
		Models:         []string{"m-1"},
		IsActive:       true,
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(context.Background(), NewMemoryStore(), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRegistry_upsertAndGet(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Upsert(ctx, testDescriptor("openai", model.KindText)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if _, ok := r.Get("openai", model.KindText); !ok {
		t.Error("descriptor not found after upsert")
	}
	if _, ok := r.Get("openai", model.KindImage); ok {
		t.Error("same name under a different kind should not resolve")
	}
}

func TestRegistry_getActiveSkipsInactive(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	d := testDescriptor("openai", model.KindText)
	d.IsActive = false
	if err := r.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if _, ok := r.GetActive("openai", model.KindText); ok {
		t.Error("inactive descriptor resolved via GetActive")
	}
	if _, ok := r.Get("openai", model.KindText); !ok {
		t.Error("inactive descriptor should still be visible via Get")
	}
}

func TestRegistry_upsertRejectsInvalid(t *testing.T) {
	r := newTestRegistry(t)

	d := testDescriptor("bad", model.KindText)
	d.Models = nil
	err := r.Upsert(context.Background(), d)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrValidationError {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestRegistry_deleteRemovesFromSnapshot(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Upsert(ctx, testDescriptor("openai", model.KindText)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := r.Delete(ctx, "openai", model.KindText); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := r.Get("openai", model.KindText); ok {
		t.Error("descriptor still resolvable after delete")
	}

	err := r.Delete(ctx, "openai", model.KindText)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrNotFound {
		t.Errorf("second delete: expected NOT_FOUND, got %v", err)
	}
}

func TestRegistry_seedIsIdempotentAndPreservesEdits(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	presets := []model.ProviderDescriptor{
		testDescriptor("openai", model.KindText),
		testDescriptor("stability", model.KindImage),
	}
	if err := r.Seed(ctx, presets); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	// Operator deactivates one provider and changes its models.
	edited, _ := r.Get("openai", model.KindText)
	edited.IsActive = false
	edited.Models = []string{"custom-model"}
	if err := r.Upsert(ctx, edited); err != nil {
		t.Fatalf("Upsert edit: %v", err)
	}

	// Re-seeding, as happens on every restart, must not undo the edit.
	if err := r.Seed(ctx, presets); err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	got, ok := r.Get("openai", model.KindText)
	if !ok {
		t.Fatal("descriptor missing after reseed")
	}
	if got.IsActive {
		t.Error("reseed reactivated an operator-deactivated provider")
	}
	if len(got.Models) != 1 || got.Models[0] != "custom-model" {
		t.Errorf("reseed overwrote operator models: %v", got.Models)
	}
}

func TestRegistry_listByKind(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	for _, d := range []model.ProviderDescriptor{
		testDescriptor("a", model.KindText),
		testDescriptor("b", model.KindImage),
		testDescriptor("c", model.KindText),
	} {
		if err := r.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	inactive := testDescriptor("d", model.KindText)
	inactive.IsActive = false
	if err := r.Upsert(ctx, inactive); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	texts := r.ListByKind(model.KindText)
	if len(texts) != 2 {
		t.Errorf("ListByKind(text) = %d entries, want 2 (inactive excluded)", len(texts))
	}
	if len(r.List()) != 4 {
		t.Errorf("List() = %d entries, want 4", len(r.List()))
	}
}

func TestRegistry_concurrentReadsDuringMutation(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Upsert(ctx, testDescriptor("openai", model.KindText)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, ok := r.Get("openai", model.KindText); !ok {
					t.Error("descriptor vanished during concurrent mutation")
					return
				}
			}
		}()
	}
	for j := 0; j < 50; j++ {
		if err := r.Upsert(ctx, testDescriptor("openai", model.KindText)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	wg.Wait()
}
