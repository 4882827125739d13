// Package models holds the data shapes shared across the dispatch pipeline:
// the job envelope read from the queue, the language table entry that
// drives sandboxing, and the terminal outcome handed back to callers.
package models

// Job is the envelope read off the work queue. It is immutable once
// dequeued; nothing downstream mutates it in place. The field names and
// JSON tags MUST match the submission API's Job interface exactly - this
// struct is a cross-language contract, not an internal convenience type.
type Job struct {
	JobID       string `json:"jobId"`
	Language    string `json:"language"`
	Code        string `json:"code"`
	SubmittedAt string `json:"submittedAt"`
}

// AnalysisNotification is published to the broadcast channel once a job
// reaches a terminal state. It intentionally omits execution results - the
// analysis worker only needs enough to re-derive its own view of the code.
type AnalysisNotification struct {
	JobID    string `json:"jobId"`
	Language string `json:"language"`
	Code     string `json:"code"`
}
