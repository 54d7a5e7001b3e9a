package health

import (
	"context"
	"time"

	"github.com/nexusdb/guardian/pkg/executor"
)

// ExecChecker runs a command through a Server's executor.Executor and
// reports success iff the command exits zero. Guardian probes with a bare
// "echo ping" so the check exercises the transport (SSH/containerd/pod exec)
// without touching the database engine itself.
type ExecChecker struct {
	Exec    executor.Executor
	Command string
	Timeout time.Duration
}

// NewExecChecker builds a checker that runs command through exec.
func NewExecChecker(exec executor.Executor, command string) *ExecChecker {
	return &ExecChecker{
		Exec:    exec,
		Command: command,
		Timeout: 10 * time.Second,
	}
}

// Check runs the command and reports the outcome.
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	result, err := e.Exec.Execute(ctx, e.Command, nil, e.Timeout)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   err.Error(),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if !result.Success || result.ExitCode != 0 {
		return Result{
			Healthy:   false,
			Message:   result.Stderr,
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   result.Stdout,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type.
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the execution timeout.
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}
