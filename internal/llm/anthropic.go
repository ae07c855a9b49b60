package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"openclaw/internal/agent"
	"openclaw/internal/logger"
)

const anthropicVersion = "2023-06-01"

type anthropicProvider struct {
	apiKey  string
	baseURL string
}

func newAnthropicProvider(opts Options) *anthropicProvider {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	return &anthropicProvider{apiKey: opts.APIKey, baseURL: base}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) StreamChat(ctx context.Context, req agent.ChatRequest) (<-chan agent.Event, error) {
	payload, err := json.Marshal(buildAnthropicRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := doStreamRequest(httpReq)
	if err != nil {
		return nil, err
	}
	ch := make(chan agent.Event, 16)
	go pumpSSE(ctx, resp.Body, ch, &anthropicTranslator{})
	return ch, nil
}

type cacheControl struct {
	Type string `json:"type"`
}

var ephemeral = &cacheControl{Type: "ephemeral"}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type         string                `json:"type"`
	Text         string                `json:"text,omitempty"`
	ID           string                `json:"id,omitempty"`
	Name         string                `json:"name,omitempty"`
	Input        json.RawMessage       `json:"input,omitempty"`
	ToolUseID    string                `json:"tool_use_id,omitempty"`
	Content      string                `json:"content,omitempty"`
	IsError      bool                  `json:"is_error,omitempty"`
	Source       *anthropicImageSource `json:"source,omitempty"`
	CacheControl *cacheControl         `json:"cache_control,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicTool struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"input_schema"`
	CacheControl *cacheControl   `json:"cache_control,omitempty"`
}

type anthropicThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream"`
	System      []anthropicBlock   `json:"system,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Thinking    *anthropicThinking `json:"thinking,omitempty"`
}

func buildAnthropicRequest(req agent.ChatRequest) anthropicRequest {
	out := anthropicRequest{
		Model:     req.Model,
		Messages:  convertAnthropicMessages(req.Messages),
		MaxTokens: req.MaxTokens,
		Stream:    true,
	}

	if req.System != "" {
		out.System = []anthropicBlock{{Type: "text", Text: req.System, CacheControl: ephemeral}}
	}

	for i, t := range req.Tools {
		tool := anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
		if i == len(req.Tools)-1 {
			tool.CacheControl = ephemeral
		}
		out.Tools = append(out.Tools, tool)
	}

	if req.ThinkingBudget > 0 {
		// The API rejects temperature alongside thinking, and the budget
		// counts against max_tokens, so both are adjusted together.
		out.MaxTokens = req.MaxTokens + req.ThinkingBudget
		out.Thinking = &anthropicThinking{Type: "enabled", BudgetTokens: req.ThinkingBudget}
	} else {
		out.Temperature = req.Temperature
	}

	markLastUserBlock(out.Messages)
	return out
}

// markLastUserBlock puts a cache breakpoint on the last content block of
// the last user message, so the conversation prefix stays cached across
// turns.
func markLastUserBlock(messages []anthropicMessage) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" || len(messages[i].Content) == 0 {
			continue
		}
		messages[i].Content[len(messages[i].Content)-1].CacheControl = ephemeral
		return
	}
}

func convertAnthropicMessages(messages []agent.Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != agent.RoleUser && msg.Role != agent.RoleAssistant {
			continue
		}
		conv := anthropicMessage{Role: string(msg.Role)}
		for _, b := range msg.Content {
			switch b.Type {
			case agent.BlockText:
				conv.Content = append(conv.Content, anthropicBlock{Type: "text", Text: b.Text})
			case agent.BlockToolUse:
				input := b.Input
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				conv.Content = append(conv.Content, anthropicBlock{Type: "tool_use", ID: b.ID, Name: b.Name, Input: input})
			case agent.BlockToolResult:
				blk := anthropicBlock{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Content}
				blk.IsError = b.IsError
				conv.Content = append(conv.Content, blk)
			case agent.BlockImage:
				conv.Content = append(conv.Content, anthropicBlock{
					Type:   "image",
					Source: &anthropicImageSource{Type: "base64", MediaType: b.MediaType, Data: b.Data},
				})
			}
		}
		out = append(out, conv)
	}
	return out
}

func parseStopReason(reason string) agent.StopReason {
	switch reason {
	case "tool_use":
		return agent.StopToolUse
	case "max_tokens":
		return agent.StopMaxTokens
	default:
		return agent.StopEndTurn
	}
}

// anthropicTranslator reconstructs normalized events from the Messages API
// SSE stream. Tool-call input arrives as partial-JSON fragments and is only
// emitted once complete, at content_block_stop.
type anthropicTranslator struct {
	toolID       string
	toolName     string
	toolJSON     strings.Builder
	thinkingOpen bool
}

func (t *anthropicTranslator) frame(f sseFrame) ([]agent.Event, error) {
	switch f.event {
	case "content_block_start":
		var data struct {
			ContentBlock struct {
				Type string `json:"type"`
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"content_block"`
		}
		if err := json.Unmarshal([]byte(f.data), &data); err != nil {
			return nil, nil
		}
		switch data.ContentBlock.Type {
		case "tool_use":
			t.toolID = data.ContentBlock.ID
			t.toolName = data.ContentBlock.Name
			t.toolJSON.Reset()
		case "thinking":
			t.thinkingOpen = true
		}

	case "content_block_delta":
		var data struct {
			Delta struct {
				Type        string `json:"type"`
				Text        string `json:"text"`
				Thinking    string `json:"thinking"`
				PartialJSON string `json:"partial_json"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(f.data), &data); err != nil {
			return nil, nil
		}
		switch data.Delta.Type {
		case "text_delta":
			if data.Delta.Text != "" {
				return []agent.Event{agent.TextDeltaEvent(data.Delta.Text)}, nil
			}
		case "thinking_delta":
			if data.Delta.Thinking != "" {
				return []agent.Event{agent.ThinkingEvent(data.Delta.Thinking)}, nil
			}
		case "input_json_delta":
			t.toolJSON.WriteString(data.Delta.PartialJSON)
		}

	case "content_block_stop":
		if t.thinkingOpen {
			t.thinkingOpen = false
			return nil, nil
		}
		if t.toolID != "" {
			input := t.takeToolInput()
			ev := agent.ToolUseEvent(t.toolID, t.toolName, input)
			t.toolID = ""
			t.toolName = ""
			return []agent.Event{ev}, nil
		}

	case "message_start":
		var data struct {
			Message struct {
				Usage struct {
					InputTokens              int `json:"input_tokens"`
					CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
					CacheReadInputTokens     int `json:"cache_read_input_tokens"`
				} `json:"usage"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(f.data), &data); err != nil {
			return nil, nil
		}
		u := data.Message.Usage
		if u.InputTokens > 0 || u.CacheCreationInputTokens > 0 || u.CacheReadInputTokens > 0 {
			return []agent.Event{agent.UsageEvent(agent.Usage{
				InputTokens:         u.InputTokens,
				CacheCreationTokens: u.CacheCreationInputTokens,
				CacheReadTokens:     u.CacheReadInputTokens,
			})}, nil
		}

	case "message_delta":
		var data struct {
			Delta struct {
				StopReason string `json:"stop_reason"`
			} `json:"delta"`
			Usage struct {
				OutputTokens int `json:"output_tokens"`
			} `json:"usage"`
		}
		if err := json.Unmarshal([]byte(f.data), &data); err != nil {
			return nil, nil
		}
		var events []agent.Event
		if data.Delta.StopReason != "" {
			events = append(events, agent.MessageEndEvent(parseStopReason(data.Delta.StopReason)))
		}
		if data.Usage.OutputTokens > 0 {
			events = append(events, agent.UsageEvent(agent.Usage{OutputTokens: data.Usage.OutputTokens}))
		}
		return events, nil

	case "message_stop":
		// Safety net: consumers stop at the first MessageEnd, so this is
		// harmless when message_delta already carried a stop reason.
		return []agent.Event{agent.MessageEndEvent(agent.StopEndTurn)}, nil

	case "error":
		var data struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		msg := "unknown error"
		if err := json.Unmarshal([]byte(f.data), &data); err == nil && data.Error.Message != "" {
			msg = data.Error.Message
		}
		return nil, fmt.Errorf("anthropic stream error: %s", msg)
	}
	// ping and anything unrecognized are ignored.
	return nil, nil
}

func (t *anthropicTranslator) done() ([]agent.Event, error) {
	return nil, nil
}

func (t *anthropicTranslator) takeToolInput() json.RawMessage {
	raw := t.toolJSON.String()
	t.toolJSON.Reset()
	if raw == "" {
		return json.RawMessage("{}")
	}
	if !json.Valid([]byte(raw)) {
		logger.Named("llm").WithField("tool", t.toolName).
			Warn("tool input was not valid JSON, substituting empty object")
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}
