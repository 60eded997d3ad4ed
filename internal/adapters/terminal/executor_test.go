package terminal

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

func TestExecutorRunsCommand(t *testing.T) {
	e := NewExecutor()
	action := core.NewAction("terminal").With("command", "echo hello")

	result := e.Execute(context.Background(), action, 5*time.Second)
	if !result.Success {
		t.Fatalf("Execute() failed: %s", result.Message)
	}
	if result.TerminalOutput != "hello" {
		t.Errorf("TerminalOutput = %q, want %q", result.TerminalOutput, "hello")
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestExecutorReportsNonZeroExit(t *testing.T) {
	e := NewExecutor()
	action := core.NewAction("terminal").With("command", "exit 3")

	result := e.Execute(context.Background(), action, 5*time.Second)
	if result.Success {
		t.Error("failing command should not report success")
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
}

func TestExecutorCapturesStderrAsMessage(t *testing.T) {
	e := NewExecutor()
	action := core.NewAction("terminal").With("command", "echo oops >&2; exit 1")

	result := e.Execute(context.Background(), action, 5*time.Second)
	if result.Success {
		t.Error("failing command should not report success")
	}
	if !strings.Contains(result.Message, "oops") {
		t.Errorf("Message = %q, want stderr text", result.Message)
	}
}

func TestExecutorTimesOut(t *testing.T) {
	e := NewExecutor()
	action := core.NewAction("terminal").With("command", "sleep 5")

	result := e.Execute(context.Background(), action, 50*time.Millisecond)
	if result.Success {
		t.Error("timed-out command should not report success")
	}
	if result.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", result.ExitCode)
	}
	if !strings.Contains(result.Message, "timed out") {
		t.Errorf("Message = %q, want a timeout message", result.Message)
	}
}

func TestExecutorRejectsMissingCommand(t *testing.T) {
	e := NewExecutor()
	action := core.NewAction("terminal")

	result := e.Execute(context.Background(), action, time.Second)
	if result.Success {
		t.Error("action without a command should fail")
	}
	if result.TerminalOutput != "No command provided" {
		t.Errorf("TerminalOutput = %q", result.TerminalOutput)
	}
}

func TestExecutorRejectsNonTerminalActions(t *testing.T) {
	e := NewExecutor()
	result := e.Execute(context.Background(), core.NewAction("click"), time.Second)
	if result.Success {
		t.Error("non-terminal action should fail")
	}

	result = e.Execute(context.Background(), nil, time.Second)
	if result.Success {
		t.Error("nil action should fail")
	}
}
