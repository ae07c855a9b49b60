package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"openclaw/internal/agent"
	"openclaw/internal/logger"
)

// openaiProvider speaks the Chat Completions wire format, which also covers
// OpenAI-compatible backends (OpenRouter, Together, and the like).
type openaiProvider struct {
	apiKey  string
	baseURL string
}

func newOpenAIProvider(opts Options) *openaiProvider {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return &openaiProvider{apiKey: opts.APIKey, baseURL: base}
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) StreamChat(ctx context.Context, req agent.ChatRequest) (<-chan agent.Event, error) {
	payload, err := json.Marshal(buildOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("content-type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := doStreamRequest(httpReq)
	if err != nil {
		return nil, err
	}
	ch := make(chan agent.Event, 16)
	go pumpSSE(ctx, resp.Body, ch, newOpenAITranslator())
	return ch, nil
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type openaiRequest struct {
	Model         string          `json:"model"`
	Messages      []openaiMessage `json:"messages"`
	MaxTokens     int             `json:"max_tokens"`
	Stream        bool            `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
	Temperature *float64     `json:"temperature,omitempty"`
	Tools       []openaiTool `json:"tools,omitempty"`
}

func buildOpenAIRequest(req agent.ChatRequest) openaiRequest {
	out := openaiRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
		Temperature: req.Temperature,
	}
	out.StreamOptions.IncludeUsage = true

	if req.System != "" {
		out.Messages = append(out.Messages, openaiMessage{Role: "system", Content: req.System})
	}
	for _, msg := range req.Messages {
		out.Messages = append(out.Messages, convertOpenAIMessage(msg))
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

func convertOpenAIMessage(msg agent.Message) openaiMessage {
	if msg.Role == agent.RoleUser {
		// Tool results travel as user messages internally; Chat Completions
		// wants a dedicated tool role keyed by the call id.
		for _, b := range msg.Content {
			if b.Type == agent.BlockToolResult {
				return openaiMessage{Role: "tool", ToolCallID: b.ToolUseID, Content: b.Content}
			}
		}
		return openaiMessage{Role: "user", Content: msg.JoinedText()}
	}

	out := openaiMessage{Role: "assistant", Content: msg.JoinedText()}
	for _, b := range msg.ToolUses() {
		call := openaiToolCall{ID: b.ID, Type: "function"}
		call.Function.Name = b.Name
		call.Function.Arguments = string(b.Input)
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out
}

func parseFinishReason(reason string) agent.StopReason {
	switch reason {
	case "tool_calls":
		return agent.StopToolUse
	case "length":
		return agent.StopMaxTokens
	default:
		return agent.StopEndTurn
	}
}

// openaiToolAcc accumulates one streamed tool call addressed by array index.
type openaiToolAcc struct {
	id   string
	name string
	args strings.Builder
}

// openaiTranslator reconstructs normalized events from Chat Completions SSE
// chunks. Tool-call fragments arrive addressed by index, potentially
// interleaved; they are flushed in ascending index order once finish_reason
// arrives.
type openaiTranslator struct {
	toolCalls map[int]*openaiToolAcc
	finished  bool
}

func newOpenAITranslator() *openaiTranslator {
	return &openaiTranslator{toolCalls: make(map[int]*openaiToolAcc)}
}

type openaiChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (t *openaiTranslator) frame(f sseFrame) ([]agent.Event, error) {
	if t.finished {
		return nil, nil
	}
	if strings.TrimSpace(f.data) == "[DONE]" {
		t.finished = true
		return nil, nil
	}

	var chunk openaiChunk
	if err := json.Unmarshal([]byte(f.data), &chunk); err != nil {
		logger.Named("llm").WithField("error", err).Warn("skipping malformed chunk")
		return nil, nil
	}

	var events []agent.Event
	if len(chunk.Choices) > 0 {
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			events = append(events, agent.TextDeltaEvent(delta.Content))
		}
		for _, tc := range delta.ToolCalls {
			acc := t.toolCalls[tc.Index]
			if acc == nil {
				acc = &openaiToolAcc{}
				t.toolCalls[tc.Index] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args.WriteString(tc.Function.Arguments)
		}
	}

	if u := chunk.Usage; u != nil && (u.PromptTokens > 0 || u.CompletionTokens > 0) {
		events = append(events, agent.UsageEvent(agent.Usage{
			InputTokens:  u.PromptTokens,
			OutputTokens: u.CompletionTokens,
		}))
	}

	if len(chunk.Choices) > 0 && chunk.Choices[0].FinishReason != "" {
		stop := parseFinishReason(chunk.Choices[0].FinishReason)
		if stop == agent.StopToolUse {
			events = append(events, t.flushToolCalls()...)
		}
		events = append(events, agent.MessageEndEvent(stop))
	}
	return events, nil
}

func (t *openaiTranslator) done() ([]agent.Event, error) {
	return nil, nil
}

// flushToolCalls emits accumulated calls in ascending index order. Argument
// strings that fail to parse are forwarded anyway, wrapped in a payload that
// carries the raw text and the parse error, so the model's call is never
// silently dropped.
func (t *openaiTranslator) flushToolCalls() []agent.Event {
	indices := make([]int, 0, len(t.toolCalls))
	for idx := range t.toolCalls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var events []agent.Event
	for _, idx := range indices {
		acc := t.toolCalls[idx]
		args := acc.args.String()
		input := json.RawMessage(args)
		if args == "" {
			input = json.RawMessage("{}")
		} else if !json.Valid([]byte(args)) {
			logger.Named("llm").WithField("tool", acc.name).
				Warn("tool call arguments were not valid JSON, forwarding raw string")
			wrapped, _ := json.Marshal(map[string]string{
				"_parse_error": "invalid JSON in tool call arguments",
				"_raw_args":    args,
			})
			input = wrapped
		}
		events = append(events, agent.ToolUseEvent(acc.id, acc.name, input))
	}
	t.toolCalls = make(map[int]*openaiToolAcc)
	return events
}
