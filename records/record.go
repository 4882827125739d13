package records

import "time"

// Record is the materialized view of an executions row, returned by
// Store.Get for callers that need the full row rather than just an
// outcome.
type Record struct {
	JobID           string
	Language        string
	Status          string
	Output          string
	ExitCode        int
	ExecutionTimeMs int64
	Error           string
	SubmittedAt     time.Time
	StartedAt       time.Time
	CompletedAt     time.Time
}
