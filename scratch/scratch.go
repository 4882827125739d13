// Package scratch manages the per-job workspace directories on the shared
// volume that both the dispatcher process and spawned sandbox containers
// can see. Grounded on
// original_source/backend/execution-worker/docker_provider.go's
// execDir handling, with the orphan sweep adapted from
// other_examples/alexdev-tb-CodePortal__runner.go's purgeOrphanedJobDirs.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/softgate/rce-dispatcher/errs"
	"github.com/softgate/rce-dispatcher/models"
)

// Manager allocates and reclaims ScratchSlots under a single host root.
// SandboxMountPath is the fixed path sandbox containers see the same
// volume at (read-only).
type Manager struct {
	hostRoot         string
	sandboxMountPath string
	logger           *zap.Logger
}

// New builds a Manager rooted at hostRoot, creating it if necessary.
func New(hostRoot, sandboxMountPath string, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(hostRoot, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create scratch root %s: %v", errs.ErrScratchUnavailable, hostRoot, err)
	}
	return &Manager{hostRoot: hostRoot, sandboxMountPath: sandboxMountPath, logger: logger}, nil
}

// Allocate creates <hostRoot>/<jobId>/ and returns the slot describing it.
func (m *Manager) Allocate(jobID string) (models.ScratchSlot, error) {
	hostPath := filepath.Join(m.hostRoot, jobID)
	if err := os.MkdirAll(hostPath, 0o755); err != nil {
		return models.ScratchSlot{}, fmt.Errorf("%w: %v", errs.ErrScratchUnavailable, err)
	}
	return models.ScratchSlot{
		JobID:       jobID,
		HostPath:    hostPath,
		SandboxPath: filepath.Join(m.sandboxMountPath, jobID),
	}, nil
}

// WriteCode writes filename into the slot's host directory, overwriting
// any existing content, and returns the sandbox-visible path to it.
func (m *Manager) WriteCode(slot models.ScratchSlot, filename string, code []byte) (string, error) {
	hostFile := filepath.Join(slot.HostPath, filename)
	if err := os.WriteFile(hostFile, code, 0o644); err != nil {
		return "", fmt.Errorf("%w: write code file: %v", errs.ErrScratchUnavailable, err)
	}
	return filepath.Join(slot.SandboxPath, filename), nil
}

// Release recursively removes the job's directory. Best-effort: failures
// are logged, never returned, matching SPEC_FULL.md §4.2; SweepOrphans
// reclaims directories left behind.
func (m *Manager) Release(slot models.ScratchSlot) {
	if err := os.RemoveAll(slot.HostPath); err != nil {
		m.logger.Warn("failed to release scratch slot",
			zap.String("jobId", slot.JobID),
			zap.String("path", slot.HostPath),
			zap.Error(err),
		)
	}
}

// SweepOrphans removes any job directories left behind under the scratch
// root, e.g. after an unclean process restart. Intended to run once at
// dispatcher startup.
func (m *Manager) SweepOrphans() {
	entries, err := os.ReadDir(m.hostRoot)
	if err != nil {
		m.logger.Warn("failed to scan scratch root for orphans", zap.String("root", m.hostRoot), zap.Error(err))
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.hostRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("failed to purge orphaned scratch directory", zap.String("path", path), zap.Error(err))
			continue
		}
		m.logger.Info("purged orphaned scratch directory", zap.String("path", path))
	}
}
