package models

// ScratchSlot is the per-job workspace allocated by the scratch manager. It
// is owned by exactly one job for the job's lifetime; naming by JobID
// guarantees no two jobs ever collide on the same directory.
type ScratchSlot struct {
	JobID string
	// HostPath is where the dispatcher process sees the directory.
	HostPath string
	// SandboxPath is where the same directory is mounted inside the
	// sandbox container (read-only).
	SandboxPath string
}
