package api

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/fnrunner/internal/failure"
	"github.com/itstheanurag/fnrunner/internal/queue"
	"github.com/itstheanurag/fnrunner/internal/store"
)

type Handler struct {
	queueManager *queue.Manager
	functions    store.FunctionStore
	records      store.RecordStore
	logger       *zerolog.Logger
}

func NewHandler(manager *queue.Manager, functions store.FunctionStore, records store.RecordStore, logger *zerolog.Logger) *Handler {
	return &Handler{
		queueManager: manager,
		functions:    functions,
		records:      records,
		logger:       logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := failure.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, errorResponse{Error: failure.Message(err)})
}

// storeError translates store sentinels into the categories HTTPStatus knows.
func storeError(err error, route string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return failure.NotFound()
	case errors.Is(err, store.ErrRouteTaken):
		return failure.Conflict(route)
	default:
		return err
	}
}
