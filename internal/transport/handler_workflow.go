package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/genway/genway/internal/workflow"
	"github.com/genway/genway/model"
)

func (h *handlers) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var def model.WorkflowDefinition
	if ee := decodeJSON(w, r, &def); ee != nil {
		WriteError(w, ee)
		return
	}

	run, err := h.deps.Workflows.Start(r.Context(), def)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, run)
}

func (h *handlers) handleListRuns(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())

	filters := workflow.RunFilters{
		DefinitionID: r.URL.Query().Get("definition_id"),
		Status:       r.URL.Query().Get("status"),
		Limit:        queryInt(r, "limit", 50),
		Offset:       queryInt(r, "offset", 0),
	}

	runs, err := h.deps.Workflows.List(r.Context(), rctx.SubjectID, filters)
	if err != nil {
		WriteError(w, err)
		return
	}
	if runs == nil {
		runs = []model.WorkflowRun{}
	}

	type listResponse struct {
		Runs []model.WorkflowRun `json:"runs"`
	}
	WriteJSON(w, http.StatusOK, listResponse{Runs: runs})
}

func (h *handlers) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())

	run, err := h.deps.Workflows.Get(r.Context(), rctx.SubjectID, chi.URLParam(r, "runID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

func (h *handlers) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())
	runID := chi.URLParam(r, "runID")

	if err := h.deps.Workflows.Cancel(r.Context(), rctx.SubjectID, runID); err != nil {
		WriteError(w, err)
		return
	}

	type cancelResponse struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	WriteJSON(w, http.StatusAccepted, cancelResponse{RunID: runID, Status: "cancelling"})
}
