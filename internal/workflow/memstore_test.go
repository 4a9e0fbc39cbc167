package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/genway/genway/model"
)

func sampleRun(id, userID string) model.WorkflowRun {
	now := time.Now().UTC()
	return model.WorkflowRun{
		ID:     id,
		UserID: userID,
		Definition: model.WorkflowDefinition{
			Steps: []model.WorkflowStep{
				{ID: "a", Kind: model.KindText, Provider: "p"},
			},
		},
		Status:    model.RunRunning,
		Steps:     []model.StepResult{{StepID: "a", Status: model.StepPending}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryRunStore_userScoping(t *testing.T) {
	s := NewMemoryRunStore()
	ctx := context.Background()

	if err := s.Create(ctx, sampleRun("run-1", "user-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.Get(ctx, "user-1", "run-1"); err != nil {
		t.Errorf("owner Get: %v", err)
	}
	_, err := s.Get(ctx, "user-2", "run-1")
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrNotFound {
		t.Errorf("foreign Get: expected NOT_FOUND, got %v", err)
	}
}

func TestMemoryRunStore_optimisticVersioning(t *testing.T) {
	s := NewMemoryRunStore()
	ctx := context.Background()

	run := sampleRun("run-1", "user-1")
	if err := s.Create(ctx, run); err != nil {
		t.Fatalf("Create: %v", err)
	}

	run.Status = model.RunSucceeded
	if err := s.Update(ctx, run); err != nil {
		t.Fatalf("first Update: %v", err)
	}

	// Writing with the stale version again must conflict.
	err := s.Update(ctx, run)
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok || ee.Code != model.ErrConflict {
		t.Fatalf("stale Update: expected CONFLICT, got %v", err)
	}

	stored, err := s.Get(ctx, "user-1", "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Version != 1 {
		t.Errorf("version = %d, want 1", stored.Version)
	}
}

func TestMemoryRunStore_listFilters(t *testing.T) {
	s := NewMemoryRunStore()
	ctx := context.Background()

	a := sampleRun("run-1", "user-1")
	a.DefinitionID = "def-a"
	a.Status = model.RunSucceeded
	b := sampleRun("run-2", "user-1")
	b.DefinitionID = "def-b"
	c := sampleRun("run-3", "user-2")
	for _, run := range []model.WorkflowRun{a, b, c} {
		if err := s.Create(ctx, run); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	all, err := s.List(ctx, "user-1", RunFilters{})
	if err != nil || len(all) != 2 {
		t.Fatalf("List all = %d runs, err %v", len(all), err)
	}

	byDef, err := s.List(ctx, "user-1", RunFilters{DefinitionID: "def-a"})
	if err != nil || len(byDef) != 1 || byDef[0].ID != "run-1" {
		t.Errorf("List by definition = %+v, err %v", byDef, err)
	}

	byStatus, err := s.List(ctx, "user-1", RunFilters{Status: model.RunRunning})
	if err != nil || len(byStatus) != 1 || byStatus[0].ID != "run-2" {
		t.Errorf("List by status = %+v, err %v", byStatus, err)
	}
}

func TestMemoryRunStore_cloneIsolation(t *testing.T) {
	s := NewMemoryRunStore()
	ctx := context.Background()

	if err := s.Create(ctx, sampleRun("run-1", "user-1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := s.Get(ctx, "user-1", "run-1")
	got.Steps[0].Status = model.StepSucceeded

	again, _ := s.Get(ctx, "user-1", "run-1")
	if again.Steps[0].Status != model.StepPending {
		t.Error("mutating a returned run leaked into the store")
	}
}
