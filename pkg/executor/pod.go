package executor

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/nexusdb/guardian/pkg/types"
)

// podExecutor runs commands in a Kubernetes pod's container via the exec
// subresource. File transfer has no first-class primitive here either, so
// it reuses the same cat-over-exec-stream trick as the container transport.
type podExecutor struct {
	client    kubernetes.Interface
	config    *rest.Config
	namespace string
	pod       string
	container string
}

func newPodExecutor(server *types.Server, creds Credentials) (*podExecutor, error) {
	var restConfig *rest.Config
	var err error

	if creds.KubeconfigPath != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", creds.KubeconfigPath)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("build kubernetes client config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes clientset: %w", err)
	}

	return &podExecutor{
		client:    clientset,
		config:    restConfig,
		namespace: server.Namespace,
		pod:       server.Host,
		container: server.ContainerName,
	}, nil
}

func (e *podExecutor) execWithStdin(ctx context.Context, args []string, timeout time.Duration, stdin *bytes.Buffer) (*types.ExecutionResult, error) {
	req := e.client.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(e.pod).
		Namespace(e.namespace).
		SubResource("exec")

	req.VersionedParams(&corev1.PodExecOptions{
		Container: e.container,
		Command:   args,
		Stdin:     stdin != nil,
		Stdout:    true,
		Stderr:    true,
		TTY:       false,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(e.config, "POST", req.URL())
	if err != nil {
		return nil, fmt.Errorf("build spdy executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	streamCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	streamOpts := remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	}
	if stdin != nil {
		streamOpts.Stdin = stdin
	}

	err = executor.StreamWithContext(streamCtx, streamOpts)
	if err != nil {
		return &types.ExecutionResult{
			Success: false,
			Stdout:  stdout.String(),
			Stderr:  stderr.String() + err.Error(),
		}, nil
	}

	return &types.ExecutionResult{
		Success: true,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}, nil
}

func (e *podExecutor) Execute(ctx context.Context, command string, env map[string]string, timeout time.Duration) (*types.ExecutionResult, error) {
	if err := validateCommand(command); err != nil {
		return &types.ExecutionResult{
			Success: false,
			Stderr:  fmt.Sprintf("validation failed: %s", err),
		}, nil
	}
	// The pod exec subresource has no Env field on PodExecOptions, so
	// credentials are exported into the shell invocation after command has
	// already cleared validateCommand, never before: the export prefix
	// itself is never run through the allow-list.
	args := []string{"/bin/sh", "-c", shellExports(env) + command}
	return e.execWithStdin(ctx, args, timeout, nil)
}

// shellExports renders env as a "export K='v'; " prefix for a /bin/sh -c
// invocation, single-quoting each value so it can never terminate the
// quoted literal and inject a second statement.
func shellExports(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString("export ")
		b.WriteString(k)
		b.WriteString("='")
		b.WriteString(strings.ReplaceAll(env[k], "'", `'\''`))
		b.WriteString("'; ")
	}
	return b.String()
}

func (e *podExecutor) UploadFile(ctx context.Context, localPath, remotePath string) error {
	local, err := openLocalForRead(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(local); err != nil {
		return fmt.Errorf("read local file %s: %w", localPath, err)
	}

	args := []string{"/bin/sh", "-c", fmt.Sprintf("cat > %s", remotePath)}
	result, err := e.execWithStdin(ctx, args, 5*time.Minute, buf)
	if err != nil {
		return fmt.Errorf("upload to pod %s/%s: %w", e.namespace, e.pod, err)
	}
	if !result.Success {
		return fmt.Errorf("upload to pod %s/%s failed: %s", e.namespace, e.pod, result.Stderr)
	}
	return nil
}

func (e *podExecutor) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	args := []string{"cat", remotePath}
	result, err := e.execWithStdin(ctx, args, 5*time.Minute, nil)
	if err != nil {
		return fmt.Errorf("download from pod %s/%s: %w", e.namespace, e.pod, err)
	}
	if !result.Success {
		return fmt.Errorf("download from pod %s/%s failed: %s", e.namespace, e.pod, result.Stderr)
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

func (e *podExecutor) Close() error {
	return nil
}
