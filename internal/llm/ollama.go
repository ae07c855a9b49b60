package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"openclaw/internal/agent"
)

// ollamaProvider speaks Ollama's native /api/chat endpoint, which streams
// NDJSON rather than SSE and needs no auth.
type ollamaProvider struct {
	baseURL string
}

func newOllamaProvider(opts Options) *ollamaProvider {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = defaultOllamaBaseURL
	}
	return &ollamaProvider{baseURL: base}
}

func (p *ollamaProvider) Name() string { return "ollama" }

// resolveOllamaChatURL derives the native chat endpoint. Configs often carry
// a /v1 suffix for OpenAI compatibility; the native API lives off the root.
func resolveOllamaChatURL(baseURL string) string {
	base := strings.TrimSuffix(baseURL, "/")
	base = strings.TrimSuffix(base, "/v1")
	return base + "/api/chat"
}

func (p *ollamaProvider) StreamChat(ctx context.Context, req agent.ChatRequest) (<-chan agent.Event, error) {
	payload, err := json.Marshal(buildOllamaRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, resolveOllamaChatURL(p.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := doStreamRequest(httpReq)
	if err != nil {
		return nil, err
	}
	ch := make(chan agent.Event, 16)
	go pumpNDJSON(ctx, resp.Body, ch, &ollamaTranslator{})
	return ch, nil
}

type ollamaToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type ollamaWireMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaOptions struct {
	NumCtx      int      `json:"num_ctx"`
	NumPredict  int      `json:"num_predict"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type ollamaRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaWireMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  ollamaOptions       `json:"options"`
	Tools    []openaiTool        `json:"tools,omitempty"`
}

func buildOllamaRequest(req agent.ChatRequest) ollamaRequest {
	out := ollamaRequest{
		Model:  req.Model,
		Stream: true,
		// Ollama's default context window (4096) is too small for a system
		// prompt plus tool definitions.
		Options: ollamaOptions{NumCtx: 65536, NumPredict: req.MaxTokens, Temperature: req.Temperature},
	}

	if req.System != "" {
		out.Messages = append(out.Messages, ollamaWireMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertOllamaMessage(msg)...)
	}

	for _, t := range req.Tools {
		tool := openaiTool{Type: "function"}
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.InputSchema
		out.Tools = append(out.Tools, tool)
	}
	return out
}

func convertOllamaMessage(msg agent.Message) []ollamaWireMessage {
	if msg.Role == agent.RoleUser {
		var results []ollamaWireMessage
		for _, b := range msg.Content {
			if b.Type == agent.BlockToolResult {
				results = append(results, ollamaWireMessage{Role: "tool", Content: b.Content})
			}
		}
		if len(results) > 0 {
			return results
		}
		return []ollamaWireMessage{{Role: "user", Content: msg.JoinedText()}}
	}

	out := ollamaWireMessage{Role: "assistant", Content: msg.JoinedText()}
	for _, b := range msg.ToolUses() {
		var call ollamaToolCall
		call.Function.Name = b.Name
		call.Function.Arguments = b.Input
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return []ollamaWireMessage{out}
}

type ollamaChunk struct {
	Message struct {
		Content   string           `json:"content"`
		ToolCalls []ollamaToolCall `json:"tool_calls"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// ollamaTranslator turns NDJSON chunks into normalized events. Tool calls
// can show up in any done:false chunk, so they are collected across the
// whole stream and only emitted when done:true arrives.
type ollamaTranslator struct {
	toolCalls []ollamaToolCall
	finished  bool
}

func (t *ollamaTranslator) object(obj json.RawMessage) ([]agent.Event, error) {
	if t.finished {
		return nil, nil
	}
	var chunk ollamaChunk
	if err := json.Unmarshal(obj, &chunk); err != nil {
		// The line parser already validated JSON; a shape mismatch here
		// still must not kill the stream.
		return nil, nil
	}

	var events []agent.Event
	if chunk.Message.Content != "" {
		events = append(events, agent.TextDeltaEvent(chunk.Message.Content))
	}
	t.toolCalls = append(t.toolCalls, chunk.Message.ToolCalls...)

	if chunk.Done {
		t.finished = true
		hadTools := len(t.toolCalls) > 0
		for _, tc := range t.toolCalls {
			input := tc.Function.Arguments
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			events = append(events, agent.ToolUseEvent("ollama_call_"+uuid.NewString(), tc.Function.Name, input))
		}
		t.toolCalls = nil

		if chunk.PromptEvalCount > 0 || chunk.EvalCount > 0 {
			events = append(events, agent.UsageEvent(agent.Usage{
				InputTokens:  chunk.PromptEvalCount,
				OutputTokens: chunk.EvalCount,
			}))
		}
		stop := agent.StopEndTurn
		if hadTools {
			stop = agent.StopToolUse
		}
		events = append(events, agent.MessageEndEvent(stop))
	}
	return events, nil
}

func (t *ollamaTranslator) done() ([]agent.Event, error) {
	if !t.finished {
		return nil, errors.New("ollama stream ended without final response")
	}
	return nil, nil
}

// ndjsonTranslator mirrors sseTranslator for NDJSON streams.
type ndjsonTranslator interface {
	object(obj json.RawMessage) ([]agent.Event, error)
	done() ([]agent.Event, error)
}

// pumpNDJSON reads the body to completion, feeding parsed objects through
// tr and events into ch. Same lifecycle as pumpSSE.
func pumpNDJSON(ctx context.Context, body io.ReadCloser, ch chan<- agent.Event, tr ndjsonTranslator) {
	defer close(ch)
	defer body.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			body.Close()
		case <-stop:
		}
	}()

	parser := &ndjsonParser{}
	buf := make([]byte, 4096)
	emit := func(events []agent.Event) bool {
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}
	handleObjects := func(objs []json.RawMessage) bool {
		for _, obj := range objs {
			events, err := tr.object(obj)
			if !emit(events) {
				return false
			}
			if err != nil {
				emit([]agent.Event{agent.ErrorEvent(err)})
				return false
			}
		}
		return true
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if !handleObjects(parser.feed(buf[:n])) {
				return
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				emit([]agent.Event{agent.ErrorEvent(fmt.Errorf("stream read failed: %w", err))})
				return
			}
			break
		}
	}
	if ctx.Err() != nil {
		return
	}
	if obj, ok := parser.flush(); ok {
		if !handleObjects([]json.RawMessage{obj}) {
			return
		}
	}
	events, err := tr.done()
	if !emit(events) {
		return
	}
	if err != nil {
		emit([]agent.Event{agent.ErrorEvent(err)})
	}
}
