// Package sandbox wraps the host container runtime (Docker Engine) behind
// a narrow, testable ContainerRuntime interface: image presence check and
// lazy pull, container create with a security profile, start, wait, kill,
// log retrieval with stream demultiplexing, remove. Grounded directly on
// original_source/backend/execution-worker/docker_provider.go's
// DockerProvider.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/softgate/rce-dispatcher/errs"
)

// Handle identifies a created container.
type Handle struct {
	ID   string
	Name string
}

// CreateSpec describes the container a job's execution needs.
type CreateSpec struct {
	Name       string
	Image      string
	Cmd        []string
	WorkingDir string
	Env        []string
	// VolumeName is the shared Docker volume mounted read-only at Mount.
	VolumeName string
	Mount      string
}

// ContainerRuntime is the narrow surface the executor drives. A fake
// implementation of this interface is enough to unit test the executor
// without a Docker daemon.
type ContainerRuntime interface {
	EnsureImage(ctx context.Context, imageRef string) error
	Create(ctx context.Context, spec CreateSpec) (Handle, error)
	Start(ctx context.Context, h Handle) error
	Wait(ctx context.Context, h Handle) (exitCode int64, err error)
	Kill(ctx context.Context, h Handle) error
	Logs(ctx context.Context, h Handle) (stdout, stderr string, err error)
	Remove(ctx context.Context, h Handle) error
}

// Resource limits applied to every sandbox container, per SPEC_FULL.md
// §4.3's security profile table.
const (
	memoryLimit int64 = 128 * 1024 * 1024
	memorySwap  int64 = 128 * 1024 * 1024
	cpuQuota    int64 = 50000
	cpuPeriod   int64 = 100000
)

// pidsLimit is a var (not const) because container.Resources.PidsLimit
// requires a pointer.
var pidsLimit int64 = 50

// DockerRuntime implements ContainerRuntime against the Docker Engine API.
type DockerRuntime struct {
	client *client.Client
}

// NewDockerRuntime connects to the Docker daemon at socketOrURL (empty
// string means "use DOCKER_HOST / the default socket", via
// client.FromEnv).
func NewDockerRuntime(ctx context.Context, socketOrURL string) (*DockerRuntime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if socketOrURL != "" {
		opts = append(opts, client.WithHost(socketOrURL))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create docker client: %v", errs.ErrSandboxRuntime, err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: connect to docker daemon: %v", errs.ErrSandboxRuntime, err)
	}

	return &DockerRuntime{client: cli}, nil
}

// Close releases the underlying Docker client.
func (d *DockerRuntime) Close() error {
	return d.client.Close()
}

// EnsureImage pulls imageRef if it isn't present locally. Idempotent.
func (d *DockerRuntime) EnsureImage(ctx context.Context, imageRef string) error {
	if _, _, err := d.client.ImageInspectWithRaw(ctx, imageRef); err == nil {
		return nil
	}

	reader, err := d.client.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: pull image %s: %v", errs.ErrImageUnavailable, imageRef, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("%w: drain pull output for %s: %v", errs.ErrImageUnavailable, imageRef, err)
	}
	return nil
}

// Create builds the container config and host config implementing the
// security profile in SPEC_FULL.md §4.3, then calls ContainerCreate. The
// container is not started.
func (d *DockerRuntime) Create(ctx context.Context, spec CreateSpec) (Handle, error) {
	containerConfig := &container.Config{
		Image:           spec.Image,
		Cmd:             spec.Cmd,
		WorkingDir:      spec.WorkingDir,
		NetworkDisabled: true,
		User:            "nobody",
		Env:             spec.Env,
		AttachStdin:     false,
		AttachStdout:    true,
		AttachStderr:    true,
		Tty:             false,
	}

	hostConfig := containerHostConfig(spec)

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: create container %s: %v", errs.ErrSandboxRuntime, spec.Name, err)
	}

	return Handle{ID: resp.ID, Name: spec.Name}, nil
}

// Start begins execution of a created container.
func (d *DockerRuntime) Start(ctx context.Context, h Handle) error {
	if err := d.client.ContainerStart(ctx, h.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: start container %s: %v", errs.ErrSandboxRuntime, h.Name, err)
	}
	return nil
}

// Wait blocks until the container exits, a runtime error surfaces, or ctx
// is cancelled.
func (d *DockerRuntime) Wait(ctx context.Context, h Handle) (int64, error) {
	statusCh, errCh := d.client.ContainerWait(ctx, h.ID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		if err != nil {
			return 0, fmt.Errorf("%w: wait for container %s: %v", errs.ErrSandboxRuntime, h.Name, err)
		}
		return 0, nil
	case status := <-statusCh:
		if status.Error != nil {
			return status.StatusCode, fmt.Errorf("%w: %s", errs.ErrSandboxRuntime, status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Kill delivers SIGKILL. Tolerant of already-exited containers.
func (d *DockerRuntime) Kill(ctx context.Context, h Handle) error {
	if err := d.client.ContainerKill(ctx, h.ID, "SIGKILL"); err != nil {
		if isAlreadyExited(err) {
			return nil
		}
		return fmt.Errorf("%w: kill container %s: %v", errs.ErrSandboxRuntime, h.Name, err)
	}
	return nil
}

// Logs retrieves the full captured stdout/stderr, demultiplexing Docker's
// framed log stream with stdcopy.
func (d *DockerRuntime) Logs(ctx context.Context, h Handle) (string, string, error) {
	options := container.LogsOptions{ShowStdout: true, ShowStderr: true}

	logs, err := d.client.ContainerLogs(ctx, h.ID, options)
	if err != nil {
		return "", "", fmt.Errorf("%w: get logs for %s: %v", errs.ErrSandboxRuntime, h.Name, err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return "", "", fmt.Errorf("%w: demux logs for %s: %v", errs.ErrSandboxRuntime, h.Name, err)
	}

	return stdout.String(), stderr.String(), nil
}

// Remove force-removes the container and its anonymous volumes.
// Idempotent.
func (d *DockerRuntime) Remove(ctx context.Context, h Handle) error {
	err := d.client.ContainerRemove(ctx, h.ID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !isNoSuchContainer(err) {
		return fmt.Errorf("%w: remove container %s: %v", errs.ErrSandboxRuntime, h.Name, err)
	}
	return nil
}

func containerHostConfig(spec CreateSpec) *container.HostConfig {
	return &container.HostConfig{
		Resources: container.Resources{
			Memory:     memoryLimit,
			MemorySwap: memorySwap,
			CPUQuota:   cpuQuota,
			CPUPeriod:  cpuPeriod,
			PidsLimit:  &pidsLimit,
		},
		ReadonlyRootfs: false,
		AutoRemove:     false,
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		Mounts:         volumeMounts(spec),
	}
}

// CombineOutput joins stdout and stderr the way ExecutionOutcome.Output is
// built: stdout then stderr, newline-joined if stdout is non-empty and
// unterminated, trailing whitespace trimmed.
func CombineOutput(stdout, stderr string) string {
	output := stdout
	if stderr != "" {
		if output != "" && !strings.HasSuffix(output, "\n") {
			output += "\n"
		}
		output += stderr
	}
	return strings.TrimRight(output, "\n\r\t ")
}

func isAlreadyExited(err error) bool {
	return client.IsErrNotFound(err) || strings.Contains(err.Error(), "is not running")
}

func isNoSuchContainer(err error) bool {
	return client.IsErrNotFound(err) || strings.Contains(err.Error(), "No such container")
}
