package scratch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAllocateWriteRelease(t *testing.T) {
	root := t.TempDir()
	m, err := New(root, "/code", zap.NewNop())
	require.NoError(t, err)

	slot, err := m.Allocate("job-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "job-1"), slot.HostPath)
	assert.Equal(t, "/code/job-1", slot.SandboxPath)
	assert.DirExists(t, slot.HostPath)

	sandboxPath, err := m.WriteCode(slot, "script.py", []byte("print(1)"))
	require.NoError(t, err)
	assert.Equal(t, "/code/job-1/script.py", sandboxPath)

	data, err := os.ReadFile(filepath.Join(slot.HostPath, "script.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)", string(data))

	m.Release(slot)
	assert.NoDirExists(t, slot.HostPath)
}

func TestAllocateNeverCollides(t *testing.T) {
	root := t.TempDir()
	m, err := New(root, "/code", zap.NewNop())
	require.NoError(t, err)

	a, err := m.Allocate("job-a")
	require.NoError(t, err)
	b, err := m.Allocate("job-b")
	require.NoError(t, err)

	assert.NotEqual(t, a.HostPath, b.HostPath)
}

func TestSweepOrphansRemovesLeftoverDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "leaked-job"), 0o755))

	m, err := New(root, "/code", zap.NewNop())
	require.NoError(t, err)

	m.SweepOrphans()

	assert.NoDirExists(t, filepath.Join(root, "leaked-job"))
}

func TestReleaseIsBestEffortOnMissingDirectory(t *testing.T) {
	root := t.TempDir()
	m, err := New(root, "/code", zap.NewNop())
	require.NoError(t, err)

	slot, err := m.Allocate("job-missing")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(slot.HostPath))

	assert.NotPanics(t, func() { m.Release(slot) })
}
