// Package workflow executes ordered sequences of generation steps. Runs are
// asynchronous: Start persists the run and returns immediately while a
// goroutine works through the steps, feeding earlier outputs into later
// requests and persisting progress after every step.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/genway/genway/internal/observability"
	"github.com/genway/genway/model"
)

// Generator dispatches a single generation request. Satisfied by
// dispatch.Dispatcher.
type Generator interface {
	Generate(ctx context.Context, req model.GenerationRequest) (model.GenerationResult, error)
}

// Engine runs workflow definitions.
type Engine struct {
	gen     Generator
	store   RunStore
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics attaches metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine.
func NewEngine(gen Generator, store RunStore, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		gen:     gen,
		store:   store,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start validates the definition, persists a new pending run, and begins
// executing it in the background. The executor moves the run to running
// before its first step; the returned run is the initial pending snapshot,
// poll Get for progress.
func (e *Engine) Start(ctx context.Context, def model.WorkflowDefinition) (model.WorkflowRun, error) {
	if err := def.Validate(); err != nil {
		return model.WorkflowRun{}, model.NewBadRequestError(err.Error())
	}

	rctx := model.RequestContextFrom(ctx)
	userID := ""
	if rctx != nil {
		userID = rctx.SubjectID
	}

	now := time.Now().UTC()
	run := model.WorkflowRun{
		ID:           uuid.NewString(),
		DefinitionID: def.ID,
		UserID:       userID,
		Definition:   def,
		Status:       model.RunPending,
		Steps:        make([]model.StepResult, len(def.Steps)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, step := range def.Steps {
		run.Steps[i] = model.StepResult{StepID: step.ID, Status: model.StepPending}
	}

	if err := e.store.Create(ctx, run); err != nil {
		return model.WorkflowRun{}, fmt.Errorf("workflow: creating run: %w", err)
	}

	// The run outlives the HTTP request that started it, so execution gets a
	// fresh context carrying only the caller's identity.
	runCtx, cancel := context.WithCancel(model.WithRequestContext(context.Background(), rctx))
	e.mu.Lock()
	e.cancels[run.ID] = cancel
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordWorkflowStart(run.DefinitionID)
	}
	e.logger.Info("workflow run started",
		zap.String("run_id", run.ID),
		zap.String("definition_id", run.DefinitionID),
		zap.Int("steps", len(def.Steps)))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(run.ID)
		e.execute(runCtx, run)
	}()

	return run, nil
}

// Cancel stops an executing run. Steps already completed keep their results;
// the run settles into a terminal status once the executor observes the
// cancellation.
func (e *Engine) Cancel(ctx context.Context, userID, runID string) error {
	run, err := e.store.Get(ctx, userID, runID)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return model.NewRunNotActiveError(
			fmt.Sprintf("workflow run %q already finished with status %q", runID, run.Status))
	}

	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if !ok {
		return model.NewRunNotActiveError(
			fmt.Sprintf("workflow run %q is not executing on this instance", runID))
	}

	cancel()
	return nil
}

// Get retrieves a run, scoped to its owner.
func (e *Engine) Get(ctx context.Context, userID, runID string) (model.WorkflowRun, error) {
	return e.store.Get(ctx, userID, runID)
}

// List returns the caller's runs, newest first.
func (e *Engine) List(ctx context.Context, userID string, filters RunFilters) ([]model.WorkflowRun, error) {
	return e.store.List(ctx, userID, filters)
}

// Shutdown cancels all executing runs and waits for their executors to
// persist final state, or until ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release(runID string) {
	e.mu.Lock()
	delete(e.cancels, runID)
	e.mu.Unlock()
}

// execute walks the steps sequentially. An abort-policy failure halts the
// walk with the remaining steps left pending; a skip-policy failure records
// the failure and moves on. Later steps that bind to a skipped step fail
// with UNRESOLVED_BINDING and their own policy decides what happens next.
func (e *Engine) execute(ctx context.Context, run model.WorkflowRun) {
	ctx, span := observability.StartSpan(ctx, "workflow.run",
		observability.AttrRunID.String(run.ID),
		observability.AttrDefinitionID.String(run.DefinitionID),
	)
	defer span.End()

	logger := observability.RequestLogger(ctx, e.logger).With(
		zap.String("run_id", run.ID))

	run.Status = model.RunRunning
	e.persist(&run)

	outputs := make(map[string]string)
	cancelled := false

steps:
	for i := range run.Definition.Steps {
		step := run.Definition.Steps[i]

		if ctx.Err() != nil {
			cancelled = true
			break
		}

		req, bindErr := buildStepRequest(step, outputs)
		if bindErr != nil {
			run.Steps[i] = failedStep(step.ID, bindErr)
			e.persist(&run)
			e.recordStep(run.DefinitionID, model.StepFailed, 0)
			logger.Warn("workflow step binding unresolved",
				zap.String("step_id", step.ID),
				zap.String("bound_to", step.InputBinding.StepID))
			if step.FailurePolicy() == model.OnErrorAbort {
				break
			}
			continue
		}

		stepCtx, stepSpan := observability.StartSpan(ctx, "workflow.step",
			observability.AttrStepID.String(step.ID))
		stepStart := time.Now()
		result, err := e.gen.Generate(stepCtx, req)
		stepDuration := time.Since(stepStart)
		observability.EndSpanWithError(stepSpan, err)

		if err != nil {
			ee, ok := err.(*model.ErrorEnvelope)
			if !ok {
				ee = model.NewInternalError()
			}
			run.Steps[i] = failedStep(step.ID, ee)
			if result.ID != "" {
				run.Steps[i].ResultID = result.ID
			}
			e.persist(&run)
			e.recordStep(run.DefinitionID, model.StepFailed, stepDuration)
			logger.Warn("workflow step failed",
				zap.String("step_id", step.ID),
				zap.String("error_code", ee.Code),
				zap.Duration("duration", stepDuration))

			switch {
			case ee.Code == model.ErrCancelled:
				cancelled = true
				break steps
			case step.FailurePolicy() == model.OnErrorAbort:
				break steps
			}
			continue
		}

		run.Steps[i] = model.StepResult{
			StepID:   step.ID,
			Status:   model.StepSucceeded,
			ResultID: result.ID,
		}
		outputs[step.ID] = result.Content
		e.persist(&run)
		e.recordStep(run.DefinitionID, model.StepSucceeded, stepDuration)
		logger.Info("workflow step succeeded",
			zap.String("step_id", step.ID),
			zap.String("result_id", result.ID),
			zap.Duration("duration", stepDuration))
	}

	finalizeStatus(&run, cancelled)
	e.persist(&run)

	if e.metrics != nil {
		e.metrics.RecordWorkflowCompletion(run.DefinitionID, run.Status)
	}
	logger.Info("workflow run finished", zap.String("status", run.Status))
}

// persist writes the run using a background context so that final state is
// recorded even when the run context was cancelled. Version tracking follows
// the store's optimistic increment.
func (e *Engine) persist(run *model.WorkflowRun) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	run.UpdatedAt = time.Now().UTC()
	if err := e.store.Update(ctx, *run); err != nil {
		e.logger.Error("persisting workflow run",
			zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	run.Version++
}

func (e *Engine) recordStep(definitionID, status string, duration time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordWorkflowStep(definitionID, status, duration)
	}
}

// buildStepRequest assembles the generation request for one step, resolving
// its input binding against earlier outputs.
func buildStepRequest(step model.WorkflowStep, outputs map[string]string) (model.GenerationRequest, *model.ErrorEnvelope) {
	prompt := step.Prompt
	extra := make(map[string]any, len(step.Params)+1)
	for k, v := range step.Params {
		extra[k] = v
	}

	if step.InputBinding != nil {
		content, ok := outputs[step.InputBinding.StepID]
		if !ok {
			return model.GenerationRequest{},
				model.NewUnresolvedBindingError(step.ID, step.InputBinding.StepID)
		}
		param := step.InputBinding.Param
		if param == "" || param == "prompt" {
			if strings.Contains(step.Prompt, "{input}") {
				prompt = strings.ReplaceAll(step.Prompt, "{input}", content)
			} else {
				prompt = content
			}
		} else {
			extra[param] = content
		}
	}

	return model.GenerationRequest{
		Provider: step.Provider,
		Model:    step.Model,
		Kind:     step.Kind,
		Prompt:   prompt,
		Extra:    extra,
	}, nil
}

func failedStep(stepID string, ee *model.ErrorEnvelope) model.StepResult {
	return model.StepResult{
		StepID:      stepID,
		Status:      model.StepFailed,
		ErrorCode:   ee.Code,
		ErrorDetail: ee.Message,
	}
}

// finalizeStatus derives the run's terminal status from its step outcomes:
// every step succeeded means succeeded, none succeeded means failed, and a
// mix settles as partially_failed. A cancelled run is always failed; the
// error detail distinguishes cancellation from step errors, and completed
// steps keep their results.
func finalizeStatus(run *model.WorkflowRun, cancelled bool) {
	if cancelled {
		run.Status = model.RunFailed
		run.ErrorDetail = "run cancelled before completion"
		return
	}

	succeeded := 0
	for _, s := range run.Steps {
		if s.Status == model.StepSucceeded {
			succeeded++
		}
	}

	switch {
	case succeeded == len(run.Steps):
		run.Status = model.RunSucceeded
	case succeeded == 0:
		run.Status = model.RunFailed
	default:
		run.Status = model.RunPartiallyFailed
	}
}
