// Package terminal executes shell-command actions.
package terminal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
)

// Executor runs terminal actions through a shell. Failures of any kind
// surface through the result, never as errors or panics.
type Executor struct {
	shell  string
	logger *logging.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithShell sets the shell binary used to run commands.
func WithShell(shell string) ExecutorOption {
	return func(e *Executor) {
		if shell != "" {
			e.shell = shell
		}
	}
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates a shell executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		shell:  "/bin/sh",
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one terminal action. The timeout bounds the command; an
// expired deadline kills the process and reports failure.
func (e *Executor) Execute(ctx context.Context, action *core.Action, timeout time.Duration) core.ExecutionResult {
	if action == nil || !action.IsTerminal() {
		actionType := ""
		if action != nil {
			actionType = action.Type
		}
		return core.ExecutionResult{
			Success: false,
			Message: fmt.Sprintf("terminal executor does not support %q actions", actionType),
		}
	}

	command, ok := action.ParamString("command")
	if !ok || strings.TrimSpace(command) == "" {
		return core.ExecutionResult{
			Success:        false,
			Message:        "no command provided",
			TerminalOutput: "No command provided",
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.shell, "-c", command) // #nosec G204 -- gated by the safety check upstream
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	errText := strings.TrimSpace(stderr.String())

	result := core.ExecutionResult{
		TerminalOutput: output,
	}

	switch {
	case ctx.Err() != nil:
		result.Success = false
		result.ExitCode = -1
		result.Message = fmt.Sprintf("command timed out after %s", timeout)
	case runErr == nil:
		result.Success = true
		result.ExitCode = 0
		result.Message = "command completed"
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		result.Success = false
		if errText != "" {
			result.Message = errText
		} else {
			result.Message = runErr.Error()
		}
	}

	e.logger.Debug("terminal command finished",
		"exit_code", result.ExitCode,
		"success", result.Success,
		"output_bytes", len(output))
	return result
}

// Verify that Executor implements core.ActionExecutor.
var _ core.ActionExecutor = (*Executor)(nil)
