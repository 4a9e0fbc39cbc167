package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/genway/genway/internal/dispatch"
	"github.com/genway/genway/model"
)

const maxRequestBodyBytes = 1 << 20

// decodeJSON reads and parses a JSON request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) *model.ErrorEnvelope {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return model.NewBadRequestError("request body is not valid JSON: " + err.Error())
	}
	return nil
}

func (h *handlers) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req model.GenerationRequest
	if ee := decodeJSON(w, r, &req); ee != nil {
		WriteError(w, ee)
		return
	}
	req.IdempotencyKey = r.Header.Get("X-Idempotency-Key")

	result, err := h.deps.Generator.Generate(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (h *handlers) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())

	filters := dispatch.ResultFilters{
		Kind:     model.GenerationKind(r.URL.Query().Get("kind")),
		Provider: r.URL.Query().Get("provider"),
		Limit:    queryInt(r, "limit", 50),
		Offset:   queryInt(r, "offset", 0),
	}
	if filters.Kind != "" && !filters.Kind.Valid() {
		WriteError(w, model.NewBadRequestError("unknown kind "+strconv.Quote(string(filters.Kind))))
		return
	}

	results, err := h.deps.Results.List(r.Context(), rctx.SubjectID, filters)
	if err != nil {
		WriteError(w, err)
		return
	}
	if results == nil {
		results = []model.GenerationResult{}
	}

	type listResponse struct {
		Results []model.GenerationResult `json:"results"`
	}
	WriteJSON(w, http.StatusOK, listResponse{Results: results})
}

func (h *handlers) handleGetGeneration(w http.ResponseWriter, r *http.Request) {
	rctx := model.RequestContextFrom(r.Context())

	result, err := h.deps.Results.Get(r.Context(), rctx.SubjectID, chi.URLParam(r, "resultID"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
