// Package executor coordinates one function invocation from lookup to
// cleanup.
package executor

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/fnrunner/internal/failure"
	"github.com/itstheanurag/fnrunner/internal/metrics"
	"github.com/itstheanurag/fnrunner/internal/model"
	"github.com/itstheanurag/fnrunner/internal/output"
	"github.com/itstheanurag/fnrunner/internal/sandbox"
	"github.com/itstheanurag/fnrunner/internal/store"
	"github.com/itstheanurag/fnrunner/internal/workspace"
)

type Result struct {
	Output       any
	Duration     time.Duration
	FunctionName string
}

type Executor struct {
	functions   store.FunctionStore
	provisioner *workspace.Provisioner
	runner      *sandbox.Runner
	collector   *output.Collector
	recorder    *metrics.Recorder
	logger      *zerolog.Logger
}

func NewExecutor(
	functions store.FunctionStore,
	provisioner *workspace.Provisioner,
	runner *sandbox.Runner,
	collector *output.Collector,
	recorder *metrics.Recorder,
	logger *zerolog.Logger,
) *Executor {
	return &Executor{
		functions:   functions,
		provisioner: provisioner,
		runner:      runner,
		collector:   collector,
		recorder:    recorder,
		logger:      logger,
	}
}

// Invoke resolves route and executes the function behind it. An unknown
// route returns failure.ErrNotFound without touching disk, sandbox or
// records.
func (e *Executor) Invoke(ctx context.Context, route string, input model.InvocationContext) (*Result, error) {
	def, err := e.functions.GetFunctionByRoute(ctx, route)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, failure.NotFound()
		}
		return nil, errors.Wrapf(err, "look up route %q", route)
	}
	return e.Execute(ctx, def, input)
}

// Execute runs def against input. Exactly one execution record is written,
// and the workspace is released on every path once it exists.
func (e *Executor) Execute(ctx context.Context, def *model.Definition, input model.InvocationContext) (*Result, error) {
	log := e.logger.With().
		Str("function_id", def.ID).
		Str("route", def.Route).
		Str("language", string(def.Language)).
		Logger()

	started := time.Now()

	ws, err := e.provisioner.Provision(def, input)
	defer e.provisioner.Release(ws)

	var result any
	if err == nil {
		err = e.runner.Run(ctx, def.Language, ws, def.Timeout())
	}
	if err == nil {
		result = e.collector.Collect(ws)
	}

	duration := time.Since(started)
	e.recorder.Record(ctx, def, duration, err)

	if err != nil {
		log.Warn().
			Err(err).
			Str("status", failure.Status(err)).
			Bool("retryable", failure.Retryable(err)).
			Dur("duration", duration).
			Msg("invocation failed")
		return nil, err
	}

	log.Info().Str("status", failure.Status(nil)).Dur("duration", duration).Msg("invocation completed")
	return &Result{
		Output:       result,
		Duration:     duration,
		FunctionName: def.Name,
	}, nil
}
