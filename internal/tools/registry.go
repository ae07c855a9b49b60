package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"openclaw/internal/agent"
	"openclaw/internal/logger"
)

// ExecPolicy configures how the bash tool screens commands.
type ExecPolicy struct {
	Security  string // "full", "allowlist", or "deny"
	Allowlist []string
}

// Registry dispatches tool calls from the model. It implements
// agent.ToolExecutor.
type Registry struct {
	policy Policy
	exec   ExecPolicy
	log    *logger.LogEntry
}

func NewRegistry(policy Policy, exec ExecPolicy) *Registry {
	return &Registry{policy: policy, exec: exec, log: logger.Named("tools")}
}

// Definitions returns the definitions of all tools allowed by the policy,
// in the order they are sent to the model.
func (r *Registry) Definitions() []agent.ToolDefinition {
	all := []agent.ToolDefinition{
		bashDefinition(),
		readDefinition(),
		writeDefinition(),
		editDefinition(),
		globDefinition(),
		grepDefinition(),
		webFetchDefinition(),
	}
	defs := all[:0]
	for _, d := range all {
		if r.policy.IsToolAllowed(d.Name) {
			defs = append(defs, d)
		}
	}
	return defs
}

// Execute runs the named tool. Expected failures (bad paths, denied
// commands, missing files) come back as error results; only malformed
// arguments produce a Go error.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (agent.ToolResult, error) {
	if !r.policy.IsToolAllowed(name) {
		return errResult("Tool '%s' is not allowed by the current policy.", name), nil
	}

	var result agent.ToolResult
	var err error
	switch name {
	case "bash":
		result, err = r.runBash(ctx, input)
	case "read", "write", "edit":
		if denied := checkFileArg(input); denied != "" {
			return errResult("%s", denied), nil
		}
		switch name {
		case "read":
			result, err = readFile(input)
		case "write":
			result, err = writeFile(input)
		case "edit":
			result, err = editFile(input)
		}
	case "glob":
		result, err = globFiles(input)
	case "grep":
		result, err = grepFiles(ctx, input)
	case "web_fetch":
		result, err = webFetch(ctx, input)
	default:
		return errResult("Unknown tool: '%s'", name), nil
	}
	if err != nil {
		return agent.ToolResult{}, err
	}
	return truncateResult(result), nil
}

func (r *Registry) runBash(ctx context.Context, input json.RawMessage) (agent.ToolResult, error) {
	var args bashArgs
	if err := json.Unmarshal(input, &args); err != nil || args.Command == "" {
		return agent.ToolResult{}, fmt.Errorf("missing 'command' parameter")
	}
	if !IsCommandAllowed(args.Command, r.exec.Allowlist, r.exec.Security) {
		r.log.WithField("security", r.exec.Security).Warnf("command blocked: %s", previewChars(args.Command, 200))
		return errResult("Command not allowed by exec policy (security=%q): %s",
			r.exec.Security, previewChars(args.Command, 200)), nil
	}
	return execBash(ctx, args), nil
}

func errResult(format string, a ...any) agent.ToolResult {
	return agent.ToolResult{Content: fmt.Sprintf(format, a...), IsError: true}
}

// deniedPaths are sensitive locations the file tools refuse to touch.
var deniedPaths = []string{
	"/etc/shadow",
	"/etc/gshadow",
	"/etc/master.passwd",
	"/.ssh/",
	"/.gnupg/",
	"/.aws/credentials",
	"/.config/gcloud/",
	"/.docker/config.json",
}

// validateFilePath normalizes the path lexically so "." and ".." tricks
// cannot dodge the denied list, then screens it.
func validateFilePath(path string) string {
	normalized := filepath.Clean(path)
	for _, denied := range deniedPaths {
		if strings.Contains(normalized, denied) {
			return fmt.Sprintf("Access denied: path matches sensitive pattern '%s'", denied)
		}
	}
	return ""
}

func checkFileArg(input json.RawMessage) string {
	var args struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(input, &args); err != nil || args.FilePath == "" {
		return ""
	}
	return validateFilePath(args.FilePath)
}

const maxResultChars = 30_000

// truncateResult keeps the head and tail of oversized output, the head
// getting twice the budget.
func truncateResult(result agent.ToolResult) agent.ToolResult {
	runes := []rune(result.Content)
	if len(runes) <= maxResultChars {
		return result
	}

	keepStart := maxResultChars * 2 / 3
	keepEnd := maxResultChars/3 - 60
	omitted := len(runes) - keepStart - keepEnd

	result.Content = fmt.Sprintf("%s\n\n... [truncated %d characters] ...\n\n%s",
		string(runes[:keepStart]), omitted, string(runes[len(runes)-keepEnd:]))
	return result
}

func previewChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
