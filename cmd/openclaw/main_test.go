package main

import (
	"testing"

	"openclaw/internal/config"
)

func TestParseRootArgs(t *testing.T) {
	t.Parallel()

	root, rest, err := parseRootArgs([]string{
		"-config", "/tmp/cfg.toml",
		"-c", "model=haiku",
		"-c", "provider=openai",
		"chat", "-p", "hello",
	})
	if err != nil {
		t.Fatalf("parseRootArgs: %v", err)
	}
	if root.cfgPath != "/tmp/cfg.toml" {
		t.Fatalf("cfgPath = %q", root.cfgPath)
	}
	if len(root.overrides) != 2 || root.overrides[0] != "model=haiku" {
		t.Fatalf("overrides = %v", root.overrides)
	}
	if len(rest) != 3 || rest[0] != "chat" {
		t.Fatalf("rest = %v", rest)
	}
}

func TestChatFlagSet(t *testing.T) {
	t.Parallel()

	fs, args := newChatFlagSet("test")
	if err := fs.Parse([]string{"-p", "hi", "-m", "sonnet", "-i", "-no-tools", "-max-tokens", "512"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if args.prompt != "hi" || args.model != "sonnet" {
		t.Fatalf("args = %+v", args)
	}
	if !args.interactive || !args.noTools || args.maxTokens != 512 {
		t.Fatalf("args = %+v", args)
	}
}

func TestThinkingLevelToBudget(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level  string
		budget int
		ok     bool
	}{
		{"off", 0, true},
		{"none", 0, true},
		{"low", 1024, true},
		{"medium", 4096, true},
		{"med", 4096, true},
		{"HIGH", 16384, true},
		{"bogus", 0, false},
	}
	for _, tc := range cases {
		budget, ok := thinkingLevelToBudget(tc.level)
		if budget != tc.budget || ok != tc.ok {
			t.Errorf("thinkingLevelToBudget(%q) = %d, %v; want %d, %v", tc.level, budget, ok, tc.budget, tc.ok)
		}
	}
}

func TestBudgetToThinkingLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		budget int
		level  string
	}{
		{0, "off"},
		{512, "low"},
		{1024, "low"},
		{4096, "medium"},
		{16384, "high"},
	}
	for _, tc := range cases {
		if got := budgetToThinkingLevel(tc.budget); got != tc.level {
			t.Errorf("budgetToThinkingLevel(%d) = %q, want %q", tc.budget, got, tc.level)
		}
	}
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("OPENAI_API_KEY", "sk-oai-env")

	cfg := config.Default()
	cfg.APIKey = "sk-explicit"
	if got := resolveAPIKey(cfg); got != "sk-explicit" {
		t.Fatalf("explicit key: got %q", got)
	}

	cfg.APIKey = ""
	if got := resolveAPIKey(cfg); got != "sk-ant-env" {
		t.Fatalf("anthropic env fallback: got %q", got)
	}

	// Unresolved env references count as unset.
	cfg.APIKey = "${MISSING_VAR}"
	if got := resolveAPIKey(cfg); got != "sk-ant-env" {
		t.Fatalf("unresolved ref: got %q", got)
	}

	cfg.Provider = "openai"
	cfg.APIKey = ""
	if got := resolveAPIKey(cfg); got != "sk-oai-env" {
		t.Fatalf("openai env fallback: got %q", got)
	}
}
