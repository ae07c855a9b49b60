package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// memConversation is an in-memory Conversation for tests.
type memConversation struct {
	msgs []Message
}

func (c *memConversation) Messages() []Message { return c.msgs }

func (c *memConversation) AddAssistantMessage(content []ContentBlock) {
	c.msgs = append(c.msgs, Message{Role: RoleAssistant, Content: content})
}

func (c *memConversation) PushMessage(msg Message) { c.msgs = append(c.msgs, msg) }

func (c *memConversation) ReplaceMessages(msgs []Message) { c.msgs = msgs }

// mockProvider returns one canned event slice per StreamChat call.
type mockProvider struct {
	mu        sync.Mutex
	responses [][]Event
	errs      []error
	requests  []ChatRequest
}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) StreamChat(ctx context.Context, req ChatRequest) (<-chan Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(p.responses) == 0 {
		return nil, errors.New("mockProvider: no more canned responses")
	}
	events := p.responses[0]
	p.responses = p.responses[1:]
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// mockTools maps tool name to a fixed result.
type mockTools struct {
	results map[string]ToolResult
	execErr error
	calls   []string
}

func (t *mockTools) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(t.results))
	for name := range t.results {
		defs = append(defs, ToolDefinition{
			Name:        name,
			Description: "mock " + name,
			InputSchema: json.RawMessage(`{"type":"object"}`),
		})
	}
	return defs
}

func (t *mockTools) Execute(ctx context.Context, name string, input json.RawMessage) (ToolResult, error) {
	t.calls = append(t.calls, name)
	if t.execErr != nil {
		return ToolResult{}, t.execErr
	}
	if res, ok := t.results[name]; ok {
		return res, nil
	}
	return ToolResult{Content: "unknown tool: " + name, IsError: true}, nil
}

func runOpts() RunOptions {
	return RunOptions{Model: "test-model", MaxTokens: 128}
}

func TestRun_TextOnly(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: [][]Event{{
		TextDeltaEvent("Hello "),
		TextDeltaEvent("world!"),
		MessageEndEvent(StopEndTurn),
	}}}
	conv := &memConversation{msgs: []Message{UserText("hi")}}

	result, err := Run(context.Background(), provider, conv, &mockTools{}, runOpts())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "Hello world!" {
		t.Fatalf("text = %q", result.Text)
	}
	if result.ToolCalls != 0 {
		t.Fatalf("tool calls = %d", result.ToolCalls)
	}
	if len(conv.msgs) != 2 || conv.msgs[1].Role != RoleAssistant {
		t.Fatalf("unexpected session: %+v", conv.msgs)
	}
}

func TestRun_ToolCallRoundTrip(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: [][]Event{
		{
			ToolUseEvent("t1", "bash", json.RawMessage(`{"command":"echo hello"}`)),
			MessageEndEvent(StopToolUse),
		},
		{
			TextDeltaEvent("The command output: hello"),
			MessageEndEvent(StopEndTurn),
		},
	}}
	tools := &mockTools{results: map[string]ToolResult{"bash": {Content: "hello\n"}}}
	conv := &memConversation{msgs: []Message{UserText("run echo hello")}}

	result, err := Run(context.Background(), provider, conv, tools, runOpts())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ToolCalls != 1 {
		t.Fatalf("tool calls = %d, want 1", result.ToolCalls)
	}
	if result.Text != "The command output: hello" {
		t.Fatalf("text = %q", result.Text)
	}

	// user, assistant(tool_use), user(tool_result), assistant(text)
	if len(conv.msgs) != 4 {
		t.Fatalf("session length = %d, want 4: %+v", len(conv.msgs), conv.msgs)
	}
	if got := conv.msgs[1].ToolUses(); len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("assistant tool_use missing: %+v", conv.msgs[1])
	}
	tr := conv.msgs[2].Content[0]
	if tr.Type != BlockToolResult || tr.ToolUseID != "t1" || tr.Content != "hello\n" || tr.IsError {
		t.Fatalf("tool result wrong: %+v", tr)
	}
	if conv.msgs[3].JoinedText() != "The command output: hello" {
		t.Fatalf("final assistant text wrong: %+v", conv.msgs[3])
	}
}

func TestRun_ToolRunsDespiteTerminalEndTurnEvent(t *testing.T) {
	t.Parallel()

	// A real stream reports tool_use at the message delta and then closes
	// with a terminal end_turn event, with usage in between. The first stop
	// reason must win or the buffered tool call never executes.
	provider := &mockProvider{responses: [][]Event{
		{
			ToolUseEvent("t1", "bash", json.RawMessage(`{"command":"pwd"}`)),
			MessageEndEvent(StopToolUse),
			UsageEvent(Usage{InputTokens: 40, OutputTokens: 12}),
			MessageEndEvent(StopEndTurn),
		},
		{
			TextDeltaEvent("done"),
			MessageEndEvent(StopEndTurn),
			UsageEvent(Usage{InputTokens: 60, OutputTokens: 5}),
		},
	}}
	tools := &mockTools{results: map[string]ToolResult{"bash": {Content: "/tmp\n"}}}
	conv := &memConversation{msgs: []Message{UserText("where am I")}}

	result, err := Run(context.Background(), provider, conv, tools, runOpts())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ToolCalls != 1 {
		t.Fatalf("tool calls = %d, want 1", result.ToolCalls)
	}
	if len(tools.calls) != 1 || tools.calls[0] != "bash" {
		t.Fatalf("executor calls = %v", tools.calls)
	}
	// user, assistant(tool_use), user(tool_result), assistant(text)
	if len(conv.msgs) != 4 {
		t.Fatalf("session length = %d, want 4: %+v", len(conv.msgs), conv.msgs)
	}
	// Usage delivered after MessageEnd still counts.
	if result.Usage.InputTokens != 100 || result.Usage.OutputTokens != 17 {
		t.Fatalf("usage = %+v", result.Usage)
	}
}

func TestRun_ToolErrorBecomesErrorResult(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: [][]Event{
		{
			ToolUseEvent("t1", "bash", json.RawMessage(`{}`)),
			MessageEndEvent(StopToolUse),
		},
		{
			TextDeltaEvent("that failed"),
			MessageEndEvent(StopEndTurn),
		},
	}}
	tools := &mockTools{execErr: errors.New("exec blew up")}
	conv := &memConversation{msgs: []Message{UserText("go")}}

	result, err := Run(context.Background(), provider, conv, tools, runOpts())
	if err != nil {
		t.Fatalf("tool failure must not abort the loop: %v", err)
	}
	if result.ToolCalls != 1 {
		t.Fatalf("tool calls = %d", result.ToolCalls)
	}
	tr := conv.msgs[2].Content[0]
	if !tr.IsError || tr.Content != "Error: exec blew up" {
		t.Fatalf("unexpected error result: %+v", tr)
	}
}

func TestRun_ThinkingExcludedFromRecordedText(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: [][]Event{{
		ThinkingEvent("pondering..."),
		TextDeltaEvent("answer"),
		MessageEndEvent(StopEndTurn),
	}}}
	conv := &memConversation{msgs: []Message{UserText("hi")}}

	var thought string
	opts := runOpts()
	opts.Hooks.OnThinking = func(delta string) { thought += delta }

	result, err := Run(context.Background(), provider, conv, &mockTools{}, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if thought != "pondering..." {
		t.Fatalf("thinking hook got %q", thought)
	}
	if result.Text != "answer" {
		t.Fatalf("text = %q", result.Text)
	}
	if conv.msgs[1].JoinedText() != "answer" {
		t.Fatalf("recorded text must exclude thinking: %+v", conv.msgs[1])
	}
}

func TestRun_UsageAccumulates(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: [][]Event{{
		UsageEvent(Usage{InputTokens: 100}),
		TextDeltaEvent("hi"),
		UsageEvent(Usage{OutputTokens: 25, CacheReadTokens: 10}),
		MessageEndEvent(StopEndTurn),
	}}}
	conv := &memConversation{msgs: []Message{UserText("test")}}

	result, err := Run(context.Background(), provider, conv, &mockTools{}, runOpts())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Usage.InputTokens != 100 || result.Usage.OutputTokens != 25 || result.Usage.CacheReadTokens != 10 {
		t.Fatalf("usage = %+v", result.Usage)
	}
}

func TestRun_StreamErrorSurfaces(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: [][]Event{{
		TextDeltaEvent("partial"),
		ErrorEvent(errors.New("stream broke")),
	}}}
	conv := &memConversation{msgs: []Message{UserText("hi")}}

	_, err := Run(context.Background(), provider, conv, &mockTools{}, runOpts())
	if err == nil || err.Error() != "stream broke" {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestRun_RetriesTransientAcquisitionFailure(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		errs: []error{errors.New("rate limit exceeded (status 429)"), nil},
		responses: [][]Event{{
			TextDeltaEvent("ok"),
			MessageEndEvent(StopEndTurn),
		}},
	}
	conv := &memConversation{msgs: []Message{UserText("hi")}}

	result, err := Run(context.Background(), provider, conv, &mockTools{}, runOpts())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Text != "ok" {
		t.Fatalf("text = %q", result.Text)
	}
	if len(provider.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(provider.requests))
	}
}

func TestRun_FatalAcquisitionFailureAbortsImmediately(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{errs: []error{errors.New("authentication failed (status 401)")}}
	conv := &memConversation{msgs: []Message{UserText("hi")}}

	_, err := Run(context.Background(), provider, conv, &mockTools{}, runOpts())
	if err == nil {
		t.Fatalf("expected error")
	}
	if len(provider.requests) != 1 {
		t.Fatalf("fatal errors must not retry, requests = %d", len(provider.requests))
	}
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	retryable := []string{
		"rate limit exceeded (status 429): slow down",
		"API overloaded (status 529): busy",
		"API error (status 503): unavailable",
	}
	for _, msg := range retryable {
		if !isRetryableError(errors.New(msg)) {
			t.Fatalf("%q should be retryable", msg)
		}
	}
	fatal := []string{
		"authentication failed (status 401): check your API key",
		"billing issue (status 402): check your account balance",
		"request failed: connection refused",
	}
	for _, msg := range fatal {
		if isRetryableError(errors.New(msg)) {
			t.Fatalf("%q should not be retryable", msg)
		}
	}
}

func TestTruncatePreview(t *testing.T) {
	t.Parallel()

	if got := TruncatePreview("hello", 10); got != "hello" {
		t.Fatalf("short = %q", got)
	}
	got := TruncatePreview("hello world this is long", 10)
	if got != "hello worl…" {
		t.Fatalf("long = %q", got)
	}
	if got := TruncatePreview("line1\nline2", 20); got != "line1 line2" {
		t.Fatalf("multiline = %q", got)
	}
}
