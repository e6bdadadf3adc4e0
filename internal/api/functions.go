package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/itstheanurag/fnrunner/internal/failure"
	"github.com/itstheanurag/fnrunner/internal/model"
	"github.com/itstheanurag/fnrunner/internal/store"
)

type createFunctionRequest struct {
	Name     string         `json:"name"`
	Route    string         `json:"route"`
	Code     string         `json:"code"`
	Language model.Language `json:"language"`
	Timeout  int64          `json:"timeout"`
}

func (h *Handler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.functions.ListFunctions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (h *Handler) GetFunction(w http.ResponseWriter, r *http.Request) {
	def, err := h.functions.GetFunction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, storeError(err, ""))
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *Handler) CreateFunction(w http.ResponseWriter, r *http.Request) {
	var req createFunctionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, r, failure.Invalid("invalid request body: %v", err))
		return
	}

	def, err := model.NewDefinition(req.Name, req.Route, req.Code, req.Language, req.Timeout)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.functions.CreateFunction(r.Context(), def); err != nil {
		h.writeError(w, r, storeError(err, def.Route))
		return
	}

	h.logger.Info().Str("function_id", def.ID).Str("route", def.Route).Msg("function registered")
	writeJSON(w, http.StatusCreated, def)
}

func (h *Handler) UpdateFunction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	current, err := h.functions.GetFunction(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, storeError(err, ""))
		return
	}

	var patch model.DefinitionPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&patch); err != nil {
		h.writeError(w, r, failure.Invalid("invalid request body: %v", err))
		return
	}

	next, err := patch.Apply(current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.functions.UpdateFunction(ctx, next); err != nil {
		h.writeError(w, r, storeError(err, next.Route))
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (h *Handler) DeleteFunction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.functions.DeleteFunction(r.Context(), id); err != nil {
		h.writeError(w, r, storeError(err, ""))
		return
	}
	h.logger.Info().Str("function_id", id).Msg("function deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Function deleted"})
}

// ListExecutions returns the function's most recent execution records.
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	def, err := h.functions.GetFunction(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, storeError(err, ""))
		return
	}

	limit := store.DefaultRecordLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, failure.Invalid("limit must be a positive integer"))
			return
		}
		limit = n
	}

	records, err := h.records.ListRecords(ctx, def.ID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": records})
}
