package tools

import (
	"context"
	"strings"
	"testing"
)

func TestResolveShell(t *testing.T) {
	if shell := resolveShell(); !strings.Contains(shell, "sh") {
		t.Fatalf("resolveShell = %q", shell)
	}
}

func TestFormatOutput(t *testing.T) {
	t.Parallel()

	if got := formatOutput("hello\n", "", 0); got != "hello\n" {
		t.Fatalf("stdout only = %q", got)
	}

	got := formatOutput("out", "err", 1)
	for _, want := range []string{"out", "STDERR:", "err", "Exit code: 1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("combined output missing %q: %q", want, got)
		}
	}

	if got := formatOutput("", "", 0); got != "(no output)" {
		t.Fatalf("empty = %q", got)
	}
}

func TestExecBash(t *testing.T) {
	t.Parallel()

	res := execBash(context.Background(), bashArgs{Command: "echo hello"})
	if res.IsError || !strings.Contains(res.Content, "hello") {
		t.Fatalf("echo failed: %+v", res)
	}

	res = execBash(context.Background(), bashArgs{Command: "exit 3"})
	if !res.IsError || !strings.Contains(res.Content, "Exit code: 3") {
		t.Fatalf("exit code not reported: %+v", res)
	}

	res = execBash(context.Background(), bashArgs{Command: "echo oops >&2; false"})
	if !res.IsError || !strings.Contains(res.Content, "STDERR:\noops") {
		t.Fatalf("stderr not captured: %+v", res)
	}
}

func TestExecBashTimeout(t *testing.T) {
	t.Parallel()

	res := execBash(context.Background(), bashArgs{Command: "sleep 5", Timeout: 100})
	if !res.IsError || !strings.Contains(res.Content, "timed out after 100ms") {
		t.Fatalf("timeout not reported: %+v", res)
	}
}
