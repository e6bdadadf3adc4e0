package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/itstheanurag/fnrunner/internal/model"
	"github.com/itstheanurag/fnrunner/internal/queue"
)

const maxBodyBytes = 1 << 20

type invokeMetadata struct {
	ExecutionTime int64  `json:"executionTime"`
	FunctionName  string `json:"functionName"`
}

type invokeResponse struct {
	Result   any            `json:"result"`
	Metadata invokeMetadata `json:"metadata"`
}

// Invoke runs the function registered at {route} with the whole request as
// its input. Any method is accepted.
func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	route := chi.URLParam(r, "route")

	input, err := invocationInput(w, r, route)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	ctx := r.Context()
	job := queue.NewJob(ctx, route, input)
	if err := h.queueManager.Submit(ctx, job); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Server is busy"})
		return
	}

	select {
	case res := <-job.Result:
		writeJSON(w, http.StatusOK, invokeResponse{
			Result: res.Output,
			Metadata: invokeMetadata{
				ExecutionTime: res.Duration.Milliseconds(),
				FunctionName:  res.FunctionName,
			},
		})
	case err := <-job.Err:
		h.writeError(w, r, err)
	case <-ctx.Done():
		h.logger.Debug().Str("route", route).Str("job_id", job.ID).Msg("client went away")
	}
}

func invocationInput(w http.ResponseWriter, r *http.Request, route string) (model.InvocationContext, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return model.InvocationContext{}, err
	}

	query := make(map[string]any, len(r.URL.Query()))
	for key, values := range r.URL.Query() {
		if len(values) == 1 {
			query[key] = values[0]
		} else {
			query[key] = values
		}
	}

	headers := make(map[string]string, len(r.Header)+1)
	for key, values := range r.Header {
		headers[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	if r.Host != "" {
		headers["host"] = r.Host
	}

	return model.InvocationContext{
		Body:    model.RequestBody(raw),
		Query:   query,
		Params:  map[string]string{"route": route},
		Headers: headers,
	}, nil
}
