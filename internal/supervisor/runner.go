package supervisor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// Result captures one finished one-shot command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a command to completion and returns its captured output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs one-shot commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = exitCode(err)
		return result, err
	}

	return result, nil
}

// exitCode maps a wait error to a process exit code, -1 when unknown.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
