// Package executor implements the three remote-execution transports a
// Server can be reached through (shell, container, pod), behind a single
// Executor interface. Every variant's Execute runs validateCommand before
// touching the network. The cat commands that the container and pod
// variants build internally for UploadFile/DownloadFile are not passed
// through validateCommand.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nexusdb/guardian/pkg/crypto"
	"github.com/nexusdb/guardian/pkg/metrics"
	"github.com/nexusdb/guardian/pkg/types"
)

// Executor runs commands and moves files against one Server. env carries
// process-local environment variables (e.g. PGPASSWORD) the caller needs
// set for the duration of command, without ever appending them to argv;
// it may be nil when the command needs no extra environment.
type Executor interface {
	Execute(ctx context.Context, command string, env map[string]string, timeout time.Duration) (*types.ExecutionResult, error)
	UploadFile(ctx context.Context, localPath, remotePath string) error
	DownloadFile(ctx context.Context, remotePath, localPath string) error
	Close() error
}

// Credentials is the decrypted payload behind Server.EncryptedCreds. Which
// fields are populated depends on Server.Transport.
type Credentials struct {
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	SSHKey         string `json:"ssh_key,omitempty"`
	KubeconfigPath string `json:"kubeconfig_path,omitempty"`
}

// DecryptCredentials opens a Server's envelope-encrypted credentials.
// Exported so callers that need the same Credentials for both the
// executor (transport auth) and an engine dialect (database auth) decrypt
// the envelope exactly once, rather than each constructing its own view.
func DecryptCredentials(server *types.Server, secrets *crypto.SecretsManager) (Credentials, error) {
	var creds Credentials
	if len(server.EncryptedCreds) == 0 {
		return creds, nil
	}
	plaintext, err := secrets.Decrypt(server.EncryptedCreds)
	if err != nil {
		return creds, fmt.Errorf("decrypt server credentials: %w", err)
	}
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return creds, fmt.Errorf("unmarshal server credentials: %w", err)
	}
	return creds, nil
}

// NewExecutor builds the Executor variant matching server.Transport.
func NewExecutor(server *types.Server, secrets *crypto.SecretsManager) (Executor, error) {
	creds, err := DecryptCredentials(server, secrets)
	if err != nil {
		return nil, err
	}

	var inner Executor
	switch server.Transport {
	case types.TransportShell:
		inner = newShellExecutor(server, creds)
	case types.TransportContainer:
		inner, err = newContainerExecutor(server)
	case types.TransportPod:
		inner, err = newPodExecutor(server, creds)
	default:
		return nil, fmt.Errorf("unsupported transport: %s", server.Transport)
	}
	if err != nil {
		return nil, err
	}
	return &instrumentedExecutor{inner: inner, transport: string(server.Transport)}, nil
}

// instrumentedExecutor wraps an Executor to record guardian_executor_commands_total
// by transport and outcome, without requiring every transport implementation
// to know about pkg/metrics itself.
type instrumentedExecutor struct {
	inner     Executor
	transport string
}

// Execute forwards to the wrapped transport. A non-positive timeout (the
// engines pass 0 and bound each call through ctx) is replaced by the time
// left until ctx's deadline, or by 300 seconds when ctx has no deadline.
func (e *instrumentedExecutor) Execute(ctx context.Context, command string, env map[string]string, timeout time.Duration) (*types.ExecutionResult, error) {
	if timeout <= 0 {
		timeout = 300 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
	}
	result, err := e.inner.Execute(ctx, command, env, timeout)
	outcome := "success"
	if err != nil || (result != nil && result.ExitCode != 0) {
		outcome = "failure"
	}
	metrics.ExecutorCommandsTotal.WithLabelValues(e.transport, outcome).Inc()
	return result, err
}

func (e *instrumentedExecutor) UploadFile(ctx context.Context, localPath, remotePath string) error {
	return e.inner.UploadFile(ctx, localPath, remotePath)
}

func (e *instrumentedExecutor) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	return e.inner.DownloadFile(ctx, remotePath, localPath)
}

func (e *instrumentedExecutor) Close() error {
	return e.inner.Close()
}

var _ Executor = (*instrumentedExecutor)(nil)
