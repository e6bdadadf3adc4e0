// Package store persists function definitions and execution records.
package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/itstheanurag/fnrunner/internal/model"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrRouteTaken = errors.New("route already taken")
)

const DefaultRecordLimit = 50

type FunctionStore interface {
	CreateFunction(ctx context.Context, def *model.Definition) error
	GetFunction(ctx context.Context, id string) (*model.Definition, error)
	GetFunctionByRoute(ctx context.Context, route string) (*model.Definition, error)
	ListFunctions(ctx context.Context) ([]*model.Definition, error)
	UpdateFunction(ctx context.Context, def *model.Definition) error
	DeleteFunction(ctx context.Context, id string) error
}

type RecordStore interface {
	AppendRecord(ctx context.Context, rec *model.ExecutionRecord) error
	// ListRecords returns the most recent records of a function first.
	ListRecords(ctx context.Context, functionID string, limit int) ([]model.ExecutionRecord, error)
}
