package metrics

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/fnrunner/internal/failure"
	"github.com/itstheanurag/fnrunner/internal/model"
	"github.com/itstheanurag/fnrunner/internal/store"
)

const persistTimeout = 5 * time.Second

// Recorder writes one ExecutionRecord per invocation attempt.
type Recorder struct {
	records store.RecordStore
	logger  *zerolog.Logger
}

func NewRecorder(records store.RecordStore, logger *zerolog.Logger) *Recorder {
	return &Recorder{records: records, logger: logger}
}

// Record persists the outcome of an invocation. A store failure is logged
// and counted; it never replaces the invocation's own outcome.
func (r *Recorder) Record(ctx context.Context, def *model.Definition, duration time.Duration, invokeErr error) *model.ExecutionRecord {
	rec := &model.ExecutionRecord{
		ID:         uuid.NewString(),
		FunctionID: def.ID,
		DurationMS: duration.Milliseconds(),
		Status:     model.ExecutionSuccess,
		Timestamp:  time.Now().UTC(),
	}
	if invokeErr != nil {
		rec.Status = model.ExecutionError
		rec.Error = invokeErr.Error()
	}

	InvocationsTotal.WithLabelValues(string(def.Language), failure.Status(invokeErr)).Inc()
	InvocationDuration.WithLabelValues(string(def.Language)).Observe(float64(rec.DurationMS))

	// The caller may already be gone; the record is still owed.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := r.records.AppendRecord(persistCtx, rec); err != nil {
		RecordPersistFailures.Inc()
		r.logger.Error().
			Err(errors.Mark(err, failure.ErrMetricsPersist)).
			Str("function_id", def.ID).
			Str("status", string(rec.Status)).
			Int64("duration_ms", rec.DurationMS).
			Msg("failed to persist execution record")
	}
	return rec
}
