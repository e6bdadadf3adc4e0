package model

import "time"

type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
)

// ExecutionRecord is the append-only trace of one invocation attempt.
type ExecutionRecord struct {
	ID         string          `json:"id"`
	FunctionID string          `json:"functionId"`
	DurationMS int64           `json:"duration"`
	Status     ExecutionStatus `json:"status"`
	Timestamp  time.Time       `json:"timestamp"`
	Error      string          `json:"error,omitempty"`
}
