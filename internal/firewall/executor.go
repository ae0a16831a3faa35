package firewall

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Executor abstracts command execution for iptables interactions.
type Executor interface {
	Run(ctx context.Context, command string, args ...string) error
	Output(ctx context.Context, command string, args ...string) (string, error)
}

// CommandError captures detailed failure information from command execution.
type CommandError struct {
	Command string
	Args    []string
	Output  string
	Err     error
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	joined := strings.Join(e.Args, " ")
	if e.Output != "" {
		return fmt.Sprintf("command %s %s failed: %v: %s", e.Command, joined, e.Err, strings.TrimSpace(e.Output))
	}
	return fmt.Sprintf("command %s %s failed: %v", e.Command, joined, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As checks.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// RealExecutor executes commands on the host system.
type RealExecutor struct{}

// NewExecutor constructs a RealExecutor instance.
func NewExecutor() Executor {
	return &RealExecutor{}
}

// Run executes the provided command and returns detailed errors when it fails.
func (r *RealExecutor) Run(ctx context.Context, command string, args ...string) error {
	cmd := exec.CommandContext(ctx, command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &CommandError{
			Command: command,
			Args:    append([]string(nil), args...),
			Output:  string(output),
			Err:     err,
		}
	}
	return nil
}

// Output executes the provided command and returns its standard output.
func (r *RealExecutor) Output(ctx context.Context, command string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return "", &CommandError{
			Command: command,
			Args:    append([]string(nil), args...),
			Output:  stderr.String(),
			Err:     err,
		}
	}
	return string(output), nil
}

var (
	binaryOnce sync.Once
	binaryName string
)

// Binary returns the iptables binary to invoke, preferring the legacy variant
// when present so rules land in the same table other legacy-based managers on
// the host operate on. Resolved once per process.
func Binary() string {
	binaryOnce.Do(func() {
		binaryName = detectBinary(exec.LookPath)
	})
	return binaryName
}

func detectBinary(lookPath func(string) (string, error)) string {
	if _, err := lookPath("iptables-legacy"); err == nil {
		return "iptables-legacy"
	}
	return "iptables"
}
