package model

import (
	"fmt"
	"time"
)

// Workflow run statuses.
const (
	RunPending         = "pending"
	RunRunning         = "running"
	RunSucceeded       = "succeeded"
	RunPartiallyFailed = "partially_failed"
	RunFailed          = "failed"
)

// Step result statuses.
const (
	StepPending   = "pending"
	StepSucceeded = "succeeded"
	StepFailed    = "failed"
)

// Step failure policies.
const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

// InputBinding declares that a step consumes a prior step's output.
type InputBinding struct {
	// StepID names the earlier step whose output feeds this step.
	StepID string `json:"step_id" yaml:"step_id"`
	// Param is the request parameter the output is injected as.
	// Empty means "prompt".
	Param string `json:"param,omitempty" yaml:"param,omitempty"`
}

// WorkflowStep is one generation call within an ordered pipeline.
type WorkflowStep struct {
	ID       string         `json:"step_id" yaml:"step_id"`
	Kind     GenerationKind `json:"kind" yaml:"kind"`
	Provider string         `json:"provider" yaml:"provider"`
	Model    string         `json:"model" yaml:"model"`

	// Prompt is used when the step has no input binding, or as a template
	// for the bound content when it contains an {input} placeholder.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Params are additional template parameters for this step's request.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	InputBinding *InputBinding `json:"input_binding,omitempty" yaml:"input_binding,omitempty"`

	// OnError is "abort" (default) or "skip".
	OnError string `json:"on_error,omitempty" yaml:"on_error,omitempty"`
}

// WorkflowDefinition is an ordered, linear sequence of steps. Bindings may
// only reference earlier steps; the sequence is a DAG collapsed to a chain.
type WorkflowDefinition struct {
	ID    string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name  string         `json:"name,omitempty" yaml:"name,omitempty"`
	Steps []WorkflowStep `json:"steps" yaml:"steps"`
}

// Validate checks structural invariants: at least one step, unique step IDs,
// valid kinds and failure policies, and backward-only input bindings.
func (d *WorkflowDefinition) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow: at least one step is required")
	}

	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("workflow: step %d has no step_id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("workflow: duplicate step_id %q", s.ID)
		}
		if !s.Kind.Valid() {
			return fmt.Errorf("workflow: step %q has invalid kind %q", s.ID, s.Kind)
		}
		if s.Provider == "" {
			return fmt.Errorf("workflow: step %q has no provider", s.ID)
		}
		switch s.OnError {
		case "", OnErrorAbort, OnErrorSkip:
		default:
			return fmt.Errorf("workflow: step %q has invalid on_error %q", s.ID, s.OnError)
		}
		if s.InputBinding != nil {
			if !seen[s.InputBinding.StepID] {
				return fmt.Errorf("workflow: step %q binds to %q which is not an earlier step",
					s.ID, s.InputBinding.StepID)
			}
		}
		seen[s.ID] = true
	}
	return nil
}

// FailurePolicy returns the effective policy for a step.
func (s *WorkflowStep) FailurePolicy() string {
	if s.OnError == OnErrorSkip {
		return OnErrorSkip
	}
	return OnErrorAbort
}

// StepResult records the outcome of one step within a run.
type StepResult struct {
	StepID      string `json:"step_id"`
	Status      string `json:"status"`
	ResultID    string `json:"result_id,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

// WorkflowRun is the persisted execution of a definition. The definition is
// snapshotted into the run so that later edits to a stored definition never
// change an in-flight or historical run.
type WorkflowRun struct {
	ID           string             `json:"id"`
	DefinitionID string             `json:"definition_id,omitempty"`
	UserID       string             `json:"user_id"`
	Definition   WorkflowDefinition `json:"definition"`
	Status       string             `json:"status"`
	Steps        []StepResult       `json:"steps"`
	ErrorDetail  string             `json:"error_detail,omitempty"`
	Version      int                `json:"version"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Terminal reports whether the run has reached a final status.
func (r *WorkflowRun) Terminal() bool {
	switch r.Status {
	case RunSucceeded, RunPartiallyFailed, RunFailed:
		return true
	}
	return false
}
