package executor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/nexusdb/guardian/pkg/types"
)

// shellExecutor runs commands over SSH and moves files over SFTP on the
// same connection. The connection is dialed lazily on first use and
// redialed when a later Execute finds it has gone away; UploadFile and
// DownloadFile do not redial.
type shellExecutor struct {
	host  string
	port  int
	creds Credentials

	mu     sync.Mutex
	client *ssh.Client
}

func newShellExecutor(server *types.Server, creds Credentials) *shellExecutor {
	port := server.Port
	if port == 0 {
		port = 22
	}
	return &shellExecutor{host: server.Host, port: port, creds: creds}
}

func (e *shellExecutor) dial() (*ssh.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		return e.client, nil
	}

	config := &ssh.ClientConfig{
		User:            e.creds.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	if e.creds.SSHKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(e.creds.SSHKey))
		if err != nil {
			return nil, fmt.Errorf("parse ssh private key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	} else {
		config.Auth = []ssh.AuthMethod{ssh.Password(e.creds.Password)}
	}

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, fmt.Errorf("dial ssh %s: %w", addr, err)
	}

	e.client = client
	return client, nil
}

func (e *shellExecutor) dropConnection() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		_ = e.client.Close()
		e.client = nil
	}
}

func (e *shellExecutor) Execute(ctx context.Context, command string, env map[string]string, timeout time.Duration) (*types.ExecutionResult, error) {
	if err := validateCommand(command); err != nil {
		return &types.ExecutionResult{
			Success: false,
			Stderr:  fmt.Sprintf("validation failed: %s", err),
		}, nil
	}

	client, err := e.dial()
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		if isConnectionLost(err) {
			e.dropConnection()
			client, err = e.dial()
			if err != nil {
				return nil, err
			}
			session, err = client.NewSession()
		}
		if err != nil {
			return nil, fmt.Errorf("open ssh session: %w", err)
		}
	}
	defer session.Close()

	for key, value := range env {
		if err := session.Setenv(key, value); err != nil {
			return nil, fmt.Errorf("set session env %s: %w", key, err)
		}
	}

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-runCtx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("command timed out after %s", timeout)
	}

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
		} else {
			return nil, fmt.Errorf("run ssh command: %w", runErr)
		}
	}

	return &types.ExecutionResult{
		Success:  exitCode == 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

func (e *shellExecutor) UploadFile(ctx context.Context, localPath, remotePath string) error {
	client, err := e.dial()
	if err != nil {
		return err
	}

	sc, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("open sftp client: %w", err)
	}
	defer sc.Close()

	local, err := openLocalForRead(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	remote, err := sc.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer remote.Close()

	if _, err := remote.ReadFrom(local); err != nil {
		return fmt.Errorf("sftp upload %s -> %s: %w", localPath, remotePath, err)
	}
	return nil
}

func (e *shellExecutor) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	client, err := e.dial()
	if err != nil {
		return err
	}

	sc, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("open sftp client: %w", err)
	}
	defer sc.Close()

	remote, err := sc.Open(remotePath)
	if err != nil {
		return fmt.Errorf("open remote file %s: %w", remotePath, err)
	}
	defer remote.Close()

	local, err := createLocalForWrite(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	if _, err := remote.WriteTo(local); err != nil {
		return fmt.Errorf("sftp download %s -> %s: %w", remotePath, localPath, err)
	}
	return nil
}

func (e *shellExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

// isConnectionLost reports whether err indicates the SSH connection needs
// redialing rather than being a command-level failure.
func isConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "EOF") || strings.Contains(msg, "closed pipe") || strings.Contains(msg, "broken pipe")
}
