package transport

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/genway/genway/internal/curl"
	"github.com/genway/genway/internal/observability"
	"github.com/genway/genway/model"
)

// handleListProviders returns active provider summaries. Headers and body
// templates never leave the admin surface.
func (h *handlers) handleListProviders(w http.ResponseWriter, r *http.Request) {
	kind := model.GenerationKind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		WriteError(w, model.NewBadRequestError(fmt.Sprintf("unknown kind %q", kind)))
		return
	}

	summaries := []model.ProviderSummary{}
	for _, d := range h.deps.Registry.List() {
		if !d.IsActive {
			continue
		}
		if kind != "" && d.Kind != kind {
			continue
		}
		summaries = append(summaries, d.Summary())
	}

	type listResponse struct {
		Providers []model.ProviderSummary `json:"providers"`
	}
	WriteJSON(w, http.StatusOK, listResponse{Providers: summaries})
}

// handleAdminListProviders returns full descriptors, active or not, with
// credential-bearing header values masked.
func (h *handlers) handleAdminListProviders(w http.ResponseWriter, r *http.Request) {
	descs := h.deps.Registry.List()
	for i := range descs {
		descs[i].Headers = observability.RedactHeaders(descs[i].Headers)
	}

	type listResponse struct {
		Providers []model.ProviderDescriptor `json:"providers"`
	}
	WriteJSON(w, http.StatusOK, listResponse{Providers: descs})
}

func (h *handlers) handleAdminUpsertProvider(w http.ResponseWriter, r *http.Request) {
	var desc model.ProviderDescriptor
	if ee := decodeJSON(w, r, &desc); ee != nil {
		WriteError(w, ee)
		return
	}

	if err := h.deps.Registry.Upsert(r.Context(), desc); err != nil {
		WriteError(w, err)
		return
	}
	h.recordMutation("upsert")

	stored, _ := h.deps.Registry.Get(desc.Name, desc.Kind)
	stored.Headers = observability.RedactHeaders(stored.Headers)
	WriteJSON(w, http.StatusOK, stored)
}

// curlImportRequest wraps a pasted curl command with the registry metadata
// the command itself cannot carry.
type curlImportRequest struct {
	Command     string   `json:"command"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Kind        string   `json:"kind"`
	Models      []string `json:"models"`
	ContentPath string   `json:"content_path"`
	IsActive    bool     `json:"is_active"`
}

func (h *handlers) handleAdminImportCurl(w http.ResponseWriter, r *http.Request) {
	var req curlImportRequest
	if ee := decodeJSON(w, r, &req); ee != nil {
		WriteError(w, ee)
		return
	}
	if req.Command == "" {
		WriteError(w, model.NewBadRequestError("command is required"))
		return
	}

	desc, err := curl.Parse(req.Command)
	if err != nil {
		WriteError(w, err)
		return
	}
	desc.Name = req.Name
	desc.Description = req.Description
	desc.Kind = model.GenerationKind(req.Kind)
	desc.Models = req.Models
	desc.ResponseParser.ContentPath = req.ContentPath
	desc.IsActive = req.IsActive

	if err := h.deps.Registry.Upsert(r.Context(), desc); err != nil {
		WriteError(w, err)
		return
	}
	h.recordMutation("import_curl")

	stored, _ := h.deps.Registry.Get(desc.Name, desc.Kind)
	stored.Headers = observability.RedactHeaders(stored.Headers)
	WriteJSON(w, http.StatusCreated, stored)
}

func (h *handlers) handleAdminDeleteProvider(w http.ResponseWriter, r *http.Request) {
	kind := model.GenerationKind(chi.URLParam(r, "kind"))
	name := chi.URLParam(r, "name")
	if !kind.Valid() {
		WriteError(w, model.NewBadRequestError(fmt.Sprintf("unknown kind %q", kind)))
		return
	}

	if err := h.deps.Registry.Delete(r.Context(), name, kind); err != nil {
		WriteError(w, err)
		return
	}
	h.recordMutation("delete")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) recordMutation(operation string) {
	if h.deps.Metrics != nil {
		h.deps.Metrics.RecordRegistryMutation(operation)
	}
}
