package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/nexusdb/guardian/pkg/types"
)

// DefaultContainerNamespace is the containerd namespace Guardian operates
// its backup/restore execs under.
const DefaultContainerNamespace = "guardian"

// DefaultContainerdSocket is the default containerd socket path.
const DefaultContainerdSocket = "/run/containerd/containerd.sock"

// containerExecutor runs commands inside a running container via
// containerd's task.Exec. File transfer has no first-class containerd
// primitive, so it runs cat over the same exec path Execute uses, without
// Execute's validation: "cat <path>" for download, and a stdin-fed
// "sh -c cat > path" for upload.
type containerExecutor struct {
	client        *containerd.Client
	namespace     string
	containerName string
	execSeq       int
}

func newContainerExecutor(server *types.Server) (*containerExecutor, error) {
	client, err := containerd.New(DefaultContainerdSocket)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}
	return &containerExecutor{
		client:        client,
		namespace:     DefaultContainerNamespace,
		containerName: server.ContainerName,
	}, nil
}

func (e *containerExecutor) nextExecID() string {
	e.execSeq++
	return fmt.Sprintf("%s-exec-%d", e.containerName, e.execSeq)
}

func (e *containerExecutor) execWithStdin(ctx context.Context, command string, env map[string]string, timeout time.Duration, stdin io.Reader) (*types.ExecutionResult, error) {
	ctx = namespaces.WithNamespace(ctx, e.namespace)

	container, err := e.client.LoadContainer(ctx, e.containerName)
	if err != nil {
		return nil, fmt.Errorf("load container %s: %w", e.containerName, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get task for container %s: %w", e.containerName, err)
	}

	spec := &specs.Process{
		Args: []string{"/bin/sh", "-c", command},
		Cwd:  "/",
		Env:  envSlice(env),
	}

	var stdout, stderr bytes.Buffer
	ioCreator := cio.NewCreator(cio.WithStreams(stdin, &stdout, &stderr))

	process, err := task.Exec(ctx, e.nextExecID(), spec, ioCreator)
	if err != nil {
		return nil, fmt.Errorf("exec in container %s: %w", e.containerName, err)
	}
	defer process.Delete(ctx)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusC, err := process.Wait(execCtx)
	if err != nil {
		return nil, fmt.Errorf("wait for exec: %w", err)
	}

	if err := process.Start(ctx); err != nil {
		return nil, fmt.Errorf("start exec: %w", err)
	}

	select {
	case status := <-statusC:
		code, _, err := status.Result()
		if err != nil {
			return nil, fmt.Errorf("exec result: %w", err)
		}
		return &types.ExecutionResult{
			Success:  code == 0,
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
			ExitCode: int(code),
		}, nil
	case <-execCtx.Done():
		_ = process.Kill(ctx, 9)
		return nil, fmt.Errorf("command timed out after %s", timeout)
	}
}

func (e *containerExecutor) Execute(ctx context.Context, command string, env map[string]string, timeout time.Duration) (*types.ExecutionResult, error) {
	if err := validateCommand(command); err != nil {
		return &types.ExecutionResult{
			Success: false,
			Stderr:  fmt.Sprintf("validation failed: %s", err),
		}, nil
	}
	return e.execWithStdin(ctx, command, env, timeout, nil)
}

func (e *containerExecutor) UploadFile(ctx context.Context, localPath, remotePath string) error {
	local, err := openLocalForRead(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	command := fmt.Sprintf("cat > %s", remotePath)
	result, err := e.execWithStdin(ctx, command, nil, 5*time.Minute, local)
	if err != nil {
		return fmt.Errorf("upload to container %s: %w", e.containerName, err)
	}
	if !result.Success {
		return fmt.Errorf("upload to container %s failed: %s", e.containerName, result.Stderr)
	}
	return nil
}

func (e *containerExecutor) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	result, err := e.execWithStdin(ctx, fmt.Sprintf("cat %s", remotePath), nil, 5*time.Minute, nil)
	if err != nil {
		return fmt.Errorf("download from container %s: %w", e.containerName, err)
	}
	if !result.Success {
		return fmt.Errorf("download from container %s failed: %s", e.containerName, result.Stderr)
	}

	local, err := createLocalForWrite(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	if _, err := local.WriteString(result.Stdout); err != nil {
		return fmt.Errorf("write local file %s: %w", localPath, err)
	}
	return nil
}

func (e *containerExecutor) Close() error {
	return e.client.Close()
}

// envSlice renders env as the KEY=VALUE pairs specs.Process.Env expects,
// in sorted order so Execute calls are deterministic for a given map.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}
