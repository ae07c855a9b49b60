package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"openclaw/internal/agent"
)

const (
	defaultBashTimeoutMS = 120_000
	maxBashTimeoutMS     = 600_000
)

type bashArgs struct {
	Command string `json:"command"`
	Timeout int64  `json:"timeout"` // milliseconds
}

func bashDefinition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "bash",
		Description: "Execute a bash command. Capture stdout and stderr.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["command"],
			"properties": {
				"command": {"type": "string", "description": "The bash command to execute"},
				"timeout": {"type": "integer", "description": "Timeout in milliseconds (max 600000)"}
			}
		}`),
	}
}

func execBash(ctx context.Context, args bashArgs) agent.ToolResult {
	timeoutMS := args.Timeout
	if timeoutMS <= 0 {
		timeoutMS = defaultBashTimeoutMS
	}
	if timeoutMS > maxBashTimeoutMS {
		timeoutMS = maxBashTimeoutMS
	}
	timeout := time.Duration(timeoutMS) * time.Millisecond

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, resolveShell(), "-c", args.Command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return agent.ToolResult{
			Content: fmt.Sprintf("Command timed out after %dms", timeoutMS),
			IsError: true,
		}
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return agent.ToolResult{
				Content: fmt.Sprintf("failed to run command: %v", err),
				IsError: true,
			}
		}
	}

	return agent.ToolResult{
		Content: formatOutput(stdout.String(), stderr.String(), exitCode),
		IsError: exitCode != 0,
	}
}

// resolveShell prefers $SHELL when it points at a real binary, then bash,
// then sh.
func resolveShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	if _, err := os.Stat("/bin/bash"); err == nil {
		return "/bin/bash"
	}
	return "/bin/sh"
}

func formatOutput(stdout, stderr string, exitCode int) string {
	var b strings.Builder
	if stdout != "" {
		b.WriteString(stdout)
	}
	if stderr != "" {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("STDERR:\n")
		b.WriteString(stderr)
	}
	if exitCode != 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Exit code: %d", exitCode)
	}
	if b.Len() == 0 {
		return "(no output)"
	}
	return b.String()
}
