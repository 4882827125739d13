package models

import "time"

// LanguageSpec is a single entry in the language registry: everything the
// executor needs to materialize and run a job's code inside a sandbox.
type LanguageSpec struct {
	// Image is the sandbox image reference, pulled lazily on first use.
	Image string
	// Extension is the file suffix used when the code is written to the
	// scratch slot, e.g. ".py".
	Extension string
	// Executor is the argv the sandbox runs; the script path is appended
	// as the final argument.
	Executor []string
	// Timeout is the wall-clock cap applied to a single execution of this
	// language.
	Timeout time.Duration
}
