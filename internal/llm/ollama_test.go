package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"openclaw/internal/agent"
)

func TestResolveOllamaChatURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"http://localhost:11434", "http://localhost:11434/api/chat"},
		{"http://localhost:11434/v1", "http://localhost:11434/api/chat"},
		{"http://localhost:11434/v1/", "http://localhost:11434/api/chat"},
	}
	for _, tc := range cases {
		if got := resolveOllamaChatURL(tc.in); got != tc.want {
			t.Fatalf("resolveOllamaChatURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func runOllamaObjects(t *testing.T, tr *ollamaTranslator, lines ...string) []agent.Event {
	t.Helper()
	var events []agent.Event
	for _, line := range lines {
		out, err := tr.object(json.RawMessage(line))
		if err != nil {
			t.Fatalf("object returned error: %v", err)
		}
		events = append(events, out...)
	}
	return events
}

func TestOllamaTranslator_ToolCallsHeldUntilDone(t *testing.T) {
	t.Parallel()

	tr := &ollamaTranslator{}
	events := runOllamaObjects(t, tr,
		`{"message":{"content":"","tool_calls":[{"function":{"name":"bash","arguments":{"command":"ls"}}}]},"done":false}`,
		`{"message":{"content":"Let me check."},"done":false}`,
	)
	for _, ev := range events {
		if ev.Type == agent.EventToolUse {
			t.Fatalf("tool call emitted before done:true: %+v", ev)
		}
	}
	if len(events) != 1 || events[0].Text != "Let me check." {
		t.Fatalf("unexpected events: %+v", events)
	}

	events = runOllamaObjects(t, tr,
		`{"message":{"content":""},"done":true,"prompt_eval_count":50,"eval_count":12}`,
	)
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3 (%+v)", len(events), events)
	}
	if events[0].Type != agent.EventToolUse || events[0].ToolName != "bash" {
		t.Fatalf("unexpected tool event: %+v", events[0])
	}
	if !strings.HasPrefix(events[0].ToolID, "ollama_call_") {
		t.Fatalf("tool id = %q, want ollama_call_ prefix", events[0].ToolID)
	}
	var input map[string]string
	if err := json.Unmarshal(events[0].ToolInput, &input); err != nil || input["command"] != "ls" {
		t.Fatalf("tool input = %s (%v)", events[0].ToolInput, err)
	}
	if events[1].Type != agent.EventUsage || events[1].Usage.InputTokens != 50 || events[1].Usage.OutputTokens != 12 {
		t.Fatalf("unexpected usage: %+v", events[1])
	}
	if events[2].Type != agent.EventMessageEnd || events[2].Stop != agent.StopToolUse {
		t.Fatalf("unexpected end: %+v", events[2])
	}

	if _, err := tr.done(); err != nil {
		t.Fatalf("done after done:true must not error: %v", err)
	}
}

func TestOllamaTranslator_EndTurnWithoutTools(t *testing.T) {
	t.Parallel()

	tr := &ollamaTranslator{}
	events := runOllamaObjects(t, tr,
		`{"message":{"content":"hi"},"done":false}`,
		`{"message":{"content":""},"done":true}`,
	)
	last := events[len(events)-1]
	if last.Type != agent.EventMessageEnd || last.Stop != agent.StopEndTurn {
		t.Fatalf("unexpected final event: %+v", last)
	}
}

func TestOllamaTranslator_MissingDoneIsError(t *testing.T) {
	t.Parallel()

	tr := &ollamaTranslator{}
	runOllamaObjects(t, tr, `{"message":{"content":"partial"},"done":false}`)
	if _, err := tr.done(); err == nil {
		t.Fatalf("stream without done:true must error")
	}
}

func TestBuildOllamaRequest(t *testing.T) {
	t.Parallel()

	req := agent.ChatRequest{
		Model:  "llama3.2",
		System: "be brief",
		Messages: []agent.Message{
			agent.UserText("hi"),
			{Role: agent.RoleAssistant, Content: []agent.ContentBlock{
				agent.ToolUseBlock("c1", "bash", json.RawMessage(`{"command":"ls"}`)),
			}},
			{Role: agent.RoleUser, Content: []agent.ContentBlock{
				agent.ToolResultBlock("c1", "a.txt\n", false),
			}},
		},
		MaxTokens: 256,
	}
	body := buildOllamaRequest(req)

	if body.Options.NumCtx != 65536 {
		t.Fatalf("num_ctx = %d, want 65536", body.Options.NumCtx)
	}
	if body.Options.NumPredict != 256 {
		t.Fatalf("num_predict = %d", body.Options.NumPredict)
	}
	roles := make([]string, 0, len(body.Messages))
	for _, m := range body.Messages {
		roles = append(roles, m.Role)
	}
	want := []string{"system", "user", "assistant", "tool"}
	if strings.Join(roles, ",") != strings.Join(want, ",") {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	if len(body.Messages[2].ToolCalls) != 1 || body.Messages[2].ToolCalls[0].Function.Name != "bash" {
		t.Fatalf("assistant tool call missing: %+v", body.Messages[2])
	}
	if body.Messages[3].Content != "a.txt\n" {
		t.Fatalf("tool result content = %q", body.Messages[3].Content)
	}
}

func TestOllamaStreamChat_EndToEnd(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"message":{"content":"he"},"done":false}` + "\n"))
		w.Write([]byte(`not valid json` + "\n"))
		w.Write([]byte(`{"message":{"content":"llo"},"done":false}` + "\n"))
		w.Write([]byte(`{"message":{"content":""},"done":true,"prompt_eval_count":5,"eval_count":2}` + "\n"))
	}))
	defer srv.Close()

	p := newOllamaProvider(Options{BaseURL: srv.URL + "/v1"})
	ch, err := p.StreamChat(context.Background(), agent.ChatRequest{
		Model:     "llama3.2",
		Messages:  []agent.Message{agent.UserText("hi")},
		MaxTokens: 16,
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	var text strings.Builder
	var last agent.Event
	for ev := range ch {
		if ev.Type == agent.EventTextDelta {
			text.WriteString(ev.Text)
		}
		last = ev
	}
	if text.String() != "hello" {
		t.Fatalf("text = %q, want hello", text.String())
	}
	if last.Type != agent.EventMessageEnd || last.Stop != agent.StopEndTurn {
		t.Fatalf("unexpected final event: %+v", last)
	}
}
