package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultSystemPrompt is used when the configuration does not override it.
const DefaultSystemPrompt = "You are an AI assistant with access to tools for reading files, writing code, and running commands."

// projectInstructionsFile is picked up from the working directory when present.
const projectInstructionsFile = "CLAUDE.md"

// BuildSystemPrompt assembles the full system prompt: the base prompt,
// tool descriptions, project instructions, persistent memory, and
// workspace metadata. An empty base falls back to DefaultSystemPrompt.
func BuildSystemPrompt(base string, tools ToolExecutor) string {
	var parts []string

	if base == "" {
		base = DefaultSystemPrompt
	}
	parts = append(parts, base)

	if defs := tools.Definitions(); len(defs) > 0 {
		var section strings.Builder
		section.WriteString("\n\n## Available Tools\n")
		for _, def := range defs {
			fmt.Fprintf(&section, "\n- **%s**: %s", def.Name, def.Description)
		}
		parts = append(parts, section.String())
	}

	if cwd, err := os.Getwd(); err == nil {
		if data, err := os.ReadFile(filepath.Join(cwd, projectInstructionsFile)); err == nil {
			if content := strings.TrimSpace(string(data)); content != "" {
				parts = append(parts, "\n\n## Project Instructions\n\n"+content)
			}
		}
	}

	if content, err := ReadMemoryFile("MEMORY.md"); err == nil {
		if content = strings.TrimSpace(content); content != "" {
			parts = append(parts, "\n\n## Memory\n\n"+content)
		}
	}

	var meta strings.Builder
	meta.WriteString("\n\n## Workspace\n")
	if cwd, err := os.Getwd(); err == nil {
		fmt.Fprintf(&meta, "\n- Working directory: %s", cwd)
	}
	fmt.Fprintf(&meta, "\n- Date: %s", time.Now().Format("2006-01-02"))
	if branch := detectGitBranch(); branch != "" {
		fmt.Fprintf(&meta, "\n- Git branch: %s", branch)
	}
	parts = append(parts, meta.String())

	return strings.Join(parts, "")
}

// detectGitBranch walks up from the working directory looking for .git/HEAD.
// Returns "" outside a git repo.
func detectGitBranch() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		head := filepath.Join(dir, ".git", "HEAD")
		if _, err := os.Stat(head); err == nil {
			return parseGitHead(head)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// parseGitHead extracts the branch name from a .git/HEAD file. A detached
// HEAD yields a short SHA prefix.
func parseGitHead(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	content := strings.TrimSpace(string(data))
	if refPath, ok := strings.CutPrefix(content, "ref: "); ok {
		if branch, ok := strings.CutPrefix(refPath, "refs/heads/"); ok {
			return branch
		}
		return refPath
	}
	runes := []rune(content)
	if len(runes) > 12 {
		runes = runes[:12]
	}
	return string(runes)
}
