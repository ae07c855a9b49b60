package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"openclaw/internal/agent"
)

const defaultReadLimit = 2000

func readDefinition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "read",
		Description: "Read a file from the filesystem with line numbers.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["file_path"],
			"properties": {
				"file_path": {"type": "string", "description": "Absolute path to the file to read"},
				"offset": {"type": "integer", "description": "Line number to start reading from (1-based)"},
				"limit": {"type": "integer", "description": "Maximum number of lines to read"}
			}
		}`),
	}
}

func readFile(input json.RawMessage) (agent.ToolResult, error) {
	var args struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &args); err != nil || args.FilePath == "" {
		return agent.ToolResult{}, fmt.Errorf("missing 'file_path' parameter")
	}

	data, err := os.ReadFile(args.FilePath)
	if err != nil {
		return errResult("Failed to read %s: %v", args.FilePath, err), nil
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(data) == 0 {
		lines = nil
	}

	start := 0
	if args.Offset > 0 {
		start = args.Offset - 1
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}
	end := start + limit
	if start > len(lines) {
		start = len(lines)
	}
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		// cat -n style: right-aligned line number, tab, content.
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	if b.Len() == 0 {
		if len(lines) > 0 {
			return agent.ToolResult{Content: fmt.Sprintf("(no lines in range: file has %d lines, offset was %d)", len(lines), args.Offset)}, nil
		}
		return agent.ToolResult{Content: "(empty file)"}, nil
	}
	return agent.ToolResult{Content: b.String()}, nil
}

func writeDefinition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "write",
		Description: "Write content to a file, creating parent directories if needed.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["file_path", "content"],
			"properties": {
				"file_path": {"type": "string", "description": "Absolute path to the file to write"},
				"content": {"type": "string", "description": "Content to write to the file"}
			}
		}`),
	}
}

func writeFile(input json.RawMessage) (agent.ToolResult, error) {
	var args struct {
		FilePath string  `json:"file_path"`
		Content  *string `json:"content"`
	}
	if err := json.Unmarshal(input, &args); err != nil || args.FilePath == "" {
		return agent.ToolResult{}, fmt.Errorf("missing 'file_path' parameter")
	}
	if args.Content == nil {
		return agent.ToolResult{}, fmt.Errorf("missing 'content' parameter")
	}

	if parent := filepath.Dir(args.FilePath); parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return errResult("Failed to create directory %s: %v", parent, err), nil
		}
	}
	if err := os.WriteFile(args.FilePath, []byte(*args.Content), 0o644); err != nil {
		return errResult("Failed to write %s: %v", args.FilePath, err), nil
	}
	return agent.ToolResult{Content: "Successfully wrote to " + args.FilePath}, nil
}

func editDefinition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "edit",
		Description: "Perform exact string replacement in a file.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["file_path", "old_string", "new_string"],
			"properties": {
				"file_path": {"type": "string", "description": "Absolute path to the file to modify"},
				"old_string": {"type": "string", "description": "The exact text to replace"},
				"new_string": {"type": "string", "description": "The replacement text"},
				"replace_all": {"type": "boolean", "description": "Replace all occurrences (default: false)"}
			}
		}`),
	}
}

func editFile(input json.RawMessage) (agent.ToolResult, error) {
	var args struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &args); err != nil || args.FilePath == "" {
		return agent.ToolResult{}, fmt.Errorf("missing 'file_path' parameter")
	}
	if args.OldString == "" {
		return agent.ToolResult{}, fmt.Errorf("missing 'old_string' parameter")
	}
	if args.OldString == args.NewString {
		return errResult("old_string and new_string are identical."), nil
	}

	data, err := os.ReadFile(args.FilePath)
	if err != nil {
		return errResult("Failed to read %s: %v", args.FilePath, err), nil
	}
	content := string(data)

	occurrences := strings.Count(content, args.OldString)
	if occurrences == 0 {
		return errResult("Error: old_string not found in %s. Ensure it matches exactly.", args.FilePath), nil
	}
	if !args.ReplaceAll && occurrences > 1 {
		return errResult("Error: old_string found %d times in %s. Provide more context to make it unique, or use replace_all.",
			occurrences, args.FilePath), nil
	}

	replaced := 1
	var updated string
	if args.ReplaceAll {
		updated = strings.ReplaceAll(content, args.OldString, args.NewString)
		replaced = occurrences
	} else {
		updated = strings.Replace(content, args.OldString, args.NewString, 1)
	}

	if err := atomicWrite(args.FilePath, updated); err != nil {
		return errResult("Failed to write %s: %v", args.FilePath, err), nil
	}
	return agent.ToolResult{Content: fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, args.FilePath)}, nil
}

// atomicWrite writes to a temp file in the same directory, then renames
// over the target.
func atomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%d.tmp", filepath.Base(path), os.Getpid()))
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

const maxGlobResults = 10_000

func globDefinition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "glob",
		Description: "Find files matching a glob pattern.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["pattern"],
			"properties": {
				"pattern": {"type": "string", "description": "Glob pattern (e.g. '**/*.go')"},
				"path": {"type": "string", "description": "Directory to search in (defaults to cwd)"}
			}
		}`),
	}
}

func globFiles(input json.RawMessage) (agent.ToolResult, error) {
	var args struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(input, &args); err != nil || args.Pattern == "" {
		return agent.ToolResult{}, fmt.Errorf("missing 'pattern' parameter")
	}

	base := args.Path
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return errResult("Failed to resolve working directory: %v", err), nil
		}
		base = cwd
	}

	if !doublestar.ValidatePattern(args.Pattern) {
		return errResult("invalid glob pattern: %s", args.Pattern), nil
	}
	matches, err := doublestar.Glob(os.DirFS(base), args.Pattern)
	if err != nil {
		return errResult("glob failed: %v", err), nil
	}

	truncated := false
	if len(matches) > maxGlobResults {
		matches = matches[:maxGlobResults]
		truncated = true
	}
	for i, m := range matches {
		matches[i] = filepath.Join(base, m)
	}

	content := "No files found matching the pattern."
	if len(matches) > 0 {
		content = strings.Join(matches, "\n")
	}
	if truncated {
		content += fmt.Sprintf("\n\n[truncated: showing first %d results]", maxGlobResults)
	}
	return agent.ToolResult{Content: content}, nil
}

func grepDefinition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "grep",
		Description: "Search file contents using regular expressions.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["pattern"],
			"properties": {
				"pattern": {"type": "string", "description": "Regex pattern to search for"},
				"path": {"type": "string", "description": "File or directory to search in"},
				"include": {"type": "string", "description": "File pattern filter (e.g. '*.go')"}
			}
		}`),
	}
}

func grepFiles(ctx context.Context, input json.RawMessage) (agent.ToolResult, error) {
	var args struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
		Include string `json:"include"`
	}
	if err := json.Unmarshal(input, &args); err != nil || args.Pattern == "" {
		return agent.ToolResult{}, fmt.Errorf("missing 'pattern' parameter")
	}
	if args.Path == "" {
		args.Path = "."
	}

	output, err := runGrep(ctx, args.Pattern, args.Path, args.Include)
	if err != nil {
		return errResult("grep failed: %v", err), nil
	}
	if output == "" {
		return agent.ToolResult{Content: "No matches found."}, nil
	}
	return agent.ToolResult{Content: output}, nil
}

// runGrep shells out to ripgrep when available, falling back to grep -rn.
// A non-zero exit with empty output means no matches, not failure.
func runGrep(ctx context.Context, pattern, path, include string) (string, error) {
	if _, err := exec.LookPath("rg"); err == nil {
		cmdArgs := []string{"--no-heading", "-n"}
		if include != "" {
			cmdArgs = append(cmdArgs, "--glob="+include)
		}
		cmdArgs = append(cmdArgs, pattern, path)
		out, _ := exec.CommandContext(ctx, "rg", cmdArgs...).Output()
		return string(out), nil
	}

	cmdArgs := []string{"-rn"}
	if include != "" {
		cmdArgs = append(cmdArgs, "--include="+include)
	}
	cmdArgs = append(cmdArgs, pattern, path)
	out, err := exec.CommandContext(ctx, "grep", cmdArgs...).Output()
	if err != nil && len(out) == 0 {
		var exitErr *exec.ExitError
		// grep exits 1 on no matches.
		if errors.As(err, &exitErr) {
			if exitErr.ExitCode() == 1 {
				return "", nil
			}
		} else {
			return "", fmt.Errorf("neither rg nor grep available: %w", err)
		}
	}
	return string(out), nil
}
