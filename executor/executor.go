// Package executor implements the per-job orchestrator: given a job, it
// composes the language registry, scratch manager, and sandbox runtime to
// produce a terminal ExecutionOutcome. Grounded on
// original_source/backend/execution-worker/docker_provider.go's
// ExecuteCode, restructured into explicit scoped-guard cleanup per
// SPEC_FULL.md §9.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/softgate/rce-dispatcher/models"
	"github.com/softgate/rce-dispatcher/registry"
	"github.com/softgate/rce-dispatcher/sandbox"
	"github.com/softgate/rce-dispatcher/scratch"
)

// cleanupTimeout bounds container removal during cleanup so a wedged
// daemon can't hang the executor forever.
const cleanupTimeout = 10 * time.Second

// killTimeout bounds the SIGKILL issued once a timeout fires.
const killTimeout = 5 * time.Second

// Executor composes the registry, scratch manager, and sandbox runtime
// into the single Execute entry point the dispatcher calls per job.
type Executor struct {
	registry *registry.Registry
	scratch  *scratch.Manager
	runtime  sandbox.ContainerRuntime
	volume   string
	mount    string
	logger   *zap.Logger
}

// New builds an Executor. volume and mount mirror SPEC_FULL.md §6's
// SCRATCH_VOLUME_NAME and sandbox-visible /code mount point.
func New(reg *registry.Registry, scr *scratch.Manager, rt sandbox.ContainerRuntime, volume, mount string, logger *zap.Logger) *Executor {
	return &Executor{registry: reg, scratch: scr, runtime: rt, volume: volume, mount: mount, logger: logger}
}

// Execute runs job to completion and returns its terminal outcome. It
// never returns an error - every failure mode is represented in the
// returned ExecutionOutcome, per SPEC_FULL.md §4.4.
func (e *Executor) Execute(parentCtx context.Context, job models.Job) models.ExecutionOutcome {
	start := time.Now()
	elapsed := func() time.Duration { return time.Since(start) }

	// 1. Validate language.
	spec, err := e.registry.Lookup(job.Language)
	if err != nil {
		return models.ExecutionOutcome{
			Status:        models.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("unsupported language: %s", job.Language),
		}
	}

	// 2. Derive timeout context.
	execCtx, cancel := context.WithTimeout(parentCtx, spec.Timeout)
	defer cancel()

	// 3. Ensure image.
	if err := e.runtime.EnsureImage(execCtx, spec.Image); err != nil {
		return models.ExecutionOutcome{
			Status:        models.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to pull image: %v", err),
		}
	}

	// 4. Allocate scratch.
	slot, err := e.scratch.Allocate(job.JobID)
	if err != nil {
		return models.ExecutionOutcome{
			Status:        models.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to allocate scratch: %v", err),
		}
	}

	// 5. Materialize code.
	scriptName := "script" + spec.Extension
	sandboxScriptPath, err := e.scratch.WriteCode(slot, scriptName, []byte(job.Code))
	if err != nil {
		e.scratch.Release(slot)
		return models.ExecutionOutcome{
			Status:        models.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to write code: %v", err),
		}
	}

	// 6. Create container.
	cmd := append(append([]string{}, spec.Executor...), sandboxScriptPath)
	handle, err := e.runtime.Create(execCtx, sandbox.CreateSpec{
		Name:       containerName(job.JobID),
		Image:      spec.Image,
		Cmd:        cmd,
		WorkingDir: e.mount,
		Env:        languageEnv(job.Language),
		VolumeName: e.volume,
		Mount:      e.mount,
	})
	if err != nil {
		e.scratch.Release(slot)
		return models.ExecutionOutcome{
			Status:        models.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to create container: %v", err),
		}
	}

	// 7. Register cleanup: runs on every exit path below, container
	// removal before scratch release (SPEC_FULL.md §3 invariant).
	timedOut := false
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cleanupCancel()
		if timedOut {
			// Drain and discard the logs of a killed container; a read
			// failure here is not part of the outcome.
			_, _, _ = e.runtime.Logs(cleanupCtx, handle)
		}
		if err := e.runtime.Remove(cleanupCtx, handle); err != nil {
			e.logger.Warn("failed to remove container", zap.String("jobId", job.JobID), zap.Error(err))
		}
		e.scratch.Release(slot)
	}()

	// 8. Start container.
	if err := e.runtime.Start(execCtx, handle); err != nil {
		return models.ExecutionOutcome{
			Status:        models.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("failed to start container: %v", err),
		}
	}

	// 9. Wait.
	exitCode, waitErr := e.runtime.Wait(execCtx, handle)

	if waitErr != nil {
		if deadlineExceeded(execCtx, waitErr) {
			timedOut = true
			return e.handleTimeout(handle, spec.Timeout, elapsed)
		}
		if errors.Is(parentCtx.Err(), context.Canceled) {
			output, _, _ := e.runtime.Logs(context.Background(), handle)
			return models.ExecutionOutcome{
				Status:        models.StatusFailed,
				Output:        output,
				ExitCode:      1,
				ExecutionTime: elapsed(),
				Error:         "cancelled",
			}
		}
		return models.ExecutionOutcome{
			Status:        models.StatusFailed,
			ExitCode:      1,
			ExecutionTime: elapsed(),
			Error:         fmt.Sprintf("container wait error: %v", waitErr),
		}
	}

	// 10-11. Retrieve and demux logs for non-timeout exits.
	stdout, stderr, logErr := e.runtime.Logs(context.Background(), handle)
	output := sandbox.CombineOutput(stdout, stderr)

	status := models.StatusCompleted
	outcomeErr := ""
	if exitCode != 0 {
		status = models.StatusFailed
	}
	if logErr != nil {
		outcomeErr = fmt.Sprintf("failed to retrieve output: %v", logErr)
	}

	return models.ExecutionOutcome{
		Status:        status,
		Output:        output,
		ExitCode:      int(exitCode),
		ExecutionTime: elapsed(),
		Error:         outcomeErr,
	}
}

// handleTimeout kills the container with a fresh context (so the kill
// itself isn't aborted by the context that just expired) and returns the
// canned timeout outcome. Logs are still drained by the deferred cleanup
// so the container's log buffer doesn't block Remove, but a log-read
// failure here is never surfaced (SPEC_FULL.md §9 open question).
func (e *Executor) handleTimeout(handle sandbox.Handle, timeout time.Duration, elapsed func() time.Duration) models.ExecutionOutcome {
	killCtx, cancel := context.WithTimeout(context.Background(), killTimeout)
	defer cancel()
	if err := e.runtime.Kill(killCtx, handle); err != nil {
		e.logger.Warn("failed to kill timed-out container", zap.String("container", handle.Name), zap.Error(err))
	}

	return models.ExecutionOutcome{
		Status:        models.StatusTimeout,
		Output:        "Execution timed out. Your code took too long to execute.",
		ExitCode:      models.TimeoutExitCode,
		ExecutionTime: elapsed(),
		Error:         fmt.Sprintf("execution exceeded %v limit", timeout),
	}
}

func deadlineExceeded(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
}

func containerName(jobID string) string {
	return "rce-exec-" + jobID
}

// languageEnv returns the minimal, hygienic environment for a sandbox
// process, per SPEC_FULL.md §4.3.
func languageEnv(language string) []string {
	env := []string{"HOME=/tmp"}
	switch language {
	case "python":
		env = append(env, "PYTHONDONTWRITEBYTECODE=1")
	case "javascript":
		env = append(env, "NODE_ENV=production")
	case "go":
		env = append(env, "GOFLAGS=-mod=mod", "GOCACHE=/tmp/gocache")
	}
	return env
}
