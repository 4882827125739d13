// Package errs defines the per-job error taxonomy used across the
// dispatch pipeline. Each sentinel corresponds to one row of the error
// taxonomy table in SPEC_FULL.md §7; callers wrap it with fmt.Errorf's
// %w verb to add context without losing errors.Is matchability.
package errs

import "errors"

var (
	// ErrQueueUnreachable is fatal at startup, transient at runtime.
	ErrQueueUnreachable = errors.New("work queue unreachable")
	// ErrRecordStoreUnreachable is fatal at startup, transient at runtime.
	ErrRecordStoreUnreachable = errors.New("record store unreachable")
	// ErrMalformedJob means the dequeued payload isn't valid JSON or is
	// missing required fields. The job is dropped, not retried.
	ErrMalformedJob = errors.New("malformed job payload")
	// ErrUnsupportedLanguage means the job named a language absent from
	// the registry. Terminal failed outcome, not a process error.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrImageUnavailable means the sandbox image could not be pulled.
	ErrImageUnavailable = errors.New("sandbox image unavailable")
	// ErrScratchUnavailable means the per-job scratch directory could not
	// be created or written.
	ErrScratchUnavailable = errors.New("scratch workspace unavailable")
	// ErrSandboxRuntime covers container create/start/wait/kill/remove
	// failures reported by the container runtime.
	ErrSandboxRuntime = errors.New("sandbox runtime error")
	// ErrDeadlineExceeded means the per-job wall-clock timeout fired
	// before the container exited.
	ErrDeadlineExceeded = errors.New("execution deadline exceeded")
	// ErrCleanup is never surfaced as a job outcome; cleanup failures are
	// logged only.
	ErrCleanup = errors.New("cleanup error")
)
