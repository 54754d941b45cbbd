package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	units "github.com/docker/go-units"
)

const (
	// sandboxUser runs submitted code as an unprivileged, non-root uid
	// inside the (otherwise read-only) sandbox image.
	sandboxUser    = "1000:1000"
	tmpfsSizeBytes = 64 * 1024 * 1024
)

// Spec describes one sandboxed step (a compile or a run) to execute.
type Spec struct {
	Image           string
	Cmd             []string
	WorkDir         string
	Files           map[string][]byte
	Stdin           []byte
	Timeout         time.Duration
	MemoryBytes     int64
	NanoCPUs        int64
	PidsLimit       int64
	CPUTimeLimitS   int64 // RLIMIT_CPU, seconds; 0 disables the ulimit
	NetworkDisabled bool
	MaxOutputBytes  int64
	// ArtifactPath, if set, is copied out of WorkDir once the command
	// exits successfully, so a compiled binary can be carried into a
	// later run container.
	ArtifactPath string
	// Sandboxed locks the container down for executing untrusted code:
	// read-only rootfs plus a non-root uid. Left false for the compile
	// step, which needs to write its build output into WorkDir and
	// otherwise runs a trusted toolchain, not submitted code.
	Sandboxed bool
}

// Result is what the harness needs to build a verdict: exit status,
// captured output (already truncated to MaxOutputBytes), and whether
// the sandbox itself intervened.
type Result struct {
	ExitCode   int
	Stdout     []byte
	Stderr     []byte
	TimedOut   bool
	OOMKilled  bool
	DurationMs int64
	// Artifact holds the bytes copied from ArtifactPath, when set.
	Artifact []byte
}

// Run creates a fresh container for spec, copies in its workspace
// files, executes the command under the given resource limits, and
// removes the container unconditionally before returning.
func (c *Client) Run(ctx context.Context, spec Spec) (Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	pidsLimit := spec.PidsLimit
	resources := container.Resources{
		Memory:     spec.MemoryBytes,
		MemorySwap: spec.MemoryBytes,
		NanoCPUs:   spec.NanoCPUs,
		PidsLimit:  &pidsLimit,
	}
	if spec.CPUTimeLimitS > 0 {
		resources.Ulimits = []*units.Ulimit{
			{Name: "cpu", Soft: spec.CPUTimeLimitS, Hard: spec.CPUTimeLimitS},
		}
	}

	hostConfig := &container.HostConfig{
		Resources: resources,
		Tmpfs: map[string]string{
			"/tmp": fmt.Sprintf("size=%d,mode=1777", tmpfsSizeBytes),
		},
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		AutoRemove:  false,
	}
	if spec.NetworkDisabled {
		hostConfig.NetworkMode = "none"
	}
	if spec.Sandboxed {
		hostConfig.ReadonlyRootfs = true
	}

	containerCfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Cmd,
		WorkingDir:   spec.WorkDir,
		Tty:          false,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  len(spec.Stdin) > 0,
		OpenStdin:    len(spec.Stdin) > 0,
		StdinOnce:    len(spec.Stdin) > 0,
	}
	if spec.Sandboxed {
		containerCfg.User = sandboxUser
	}

	created, err := c.cli.ContainerCreate(runCtx, containerCfg, hostConfig, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create sandbox container for image %s: %w", spec.Image, err)
	}
	id := created.ID
	defer func() {
		removeCtx, removeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer removeCancel()
		_ = c.cli.ContainerRemove(removeCtx, id, container.RemoveOptions{Force: true})
	}()

	if len(spec.Files) > 0 {
		archive, err := buildTar(spec.Files)
		if err != nil {
			return Result{}, err
		}
		if err := c.cli.CopyToContainer(runCtx, id, spec.WorkDir, bytes.NewReader(archive), container.CopyToContainerOptions{}); err != nil {
			return Result{}, fmt.Errorf("failed to copy workspace into container %s: %w", id, err)
		}
	}

	start := time.Now()

	if len(spec.Stdin) > 0 {
		attach, err := c.cli.ContainerAttach(runCtx, id, container.AttachOptions{Stream: true, Stdin: true})
		if err != nil {
			return Result{}, fmt.Errorf("failed to attach stdin for container %s: %w", id, err)
		}
		go func() {
			defer attach.CloseWrite()
			_, _ = attach.Conn.Write(spec.Stdin)
		}()
	}

	if err := c.cli.ContainerStart(runCtx, id, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("failed to start container %s: %w", id, err)
	}

	waitCh, errCh := c.cli.ContainerWait(runCtx, id, container.WaitConditionNotRunning)

	var exitCode int
	var timedOut bool
	select {
	case <-runCtx.Done():
		timedOut = true
		killCtx, killCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.cli.ContainerKill(killCtx, id, "KILL")
		killCancel()
		<-waitCh
	case werr := <-errCh:
		if werr != nil {
			return Result{}, fmt.Errorf("error waiting for container %s: %w", id, werr)
		}
	case res := <-waitCh:
		exitCode = int(res.StatusCode)
	}

	duration := time.Since(start)

	logCtx, logCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer logCancel()
	logs, err := c.cli.ContainerLogs(logCtx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read logs for container %s: %w", id, err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	maxOut := spec.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = 1 << 20
	}
	_, _ = stdcopy.StdCopy(limitedWriter{&stdout, maxOut}, limitedWriter{&stderr, maxOut}, logs)

	oomKilled := false
	inspectCtx, inspectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer inspectCancel()
	if info, err := c.cli.ContainerInspect(inspectCtx, id); err == nil {
		oomKilled = info.State.OOMKilled
		if !timedOut {
			exitCode = info.State.ExitCode
		}
	}

	var artifact []byte
	if spec.ArtifactPath != "" && !timedOut && exitCode == 0 {
		copyCtx, copyCancel := context.WithTimeout(context.Background(), 10*time.Second)
		artifact, err = c.copyFileFromContainer(copyCtx, id, spec.WorkDir+"/"+spec.ArtifactPath)
		copyCancel()
		if err != nil {
			return Result{}, fmt.Errorf("failed to extract artifact %s from container %s: %w", spec.ArtifactPath, id, err)
		}
	}

	return Result{
		ExitCode:   exitCode,
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
		TimedOut:   timedOut,
		OOMKilled:  oomKilled,
		DurationMs: duration.Milliseconds(),
		Artifact:   artifact,
	}, nil
}

// copyFileFromContainer reads path out of container id as a tar stream
// and returns the single file's contents.
func (c *Client) copyFileFromContainer(ctx context.Context, id, path string) ([]byte, error) {
	reader, _, err := c.cli.CopyFromContainer(ctx, id, path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return extractTarSingle(reader, filepath.Base(path))
}

// limitedWriter truncates writes once the cumulative byte count
// exceeds limit, so a runaway process cannot make the harness buffer
// unbounded output in memory. It always reports the caller's full
// length as written (per io.Writer's contract for a non-erroring
// sink) so stdcopy doesn't treat the silent truncation as a failure.
type limitedWriter struct {
	buf   *bytes.Buffer
	limit int64
}

func (w limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	remaining := w.limit - int64(w.buf.Len())
	if remaining <= 0 {
		return total, nil
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	if _, err := w.buf.Write(p); err != nil {
		return 0, err
	}
	return total, nil
}

var _ io.Writer = limitedWriter{}
