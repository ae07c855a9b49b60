package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"openclaw/internal/logger"
	"openclaw/internal/models"
)

const (
	// MaxTurns bounds the request/tool-execution loop for one user input.
	MaxTurns = 20

	// maxRetries applies to stream acquisition only; mid-stream failures
	// are never retried.
	maxRetries = 2

	// streamEventTimeout is the longest we wait for the next event before
	// treating the stream as ended.
	streamEventTimeout = 300 * time.Second
)

// Conversation is the session collaborator: the turn loop is its only
// writer while a run is in flight.
type Conversation interface {
	Messages() []Message
	AddAssistantMessage(content []ContentBlock)
	PushMessage(msg Message)
	ReplaceMessages(msgs []Message)
}

// RunHooks receives run progress for display. All fields are optional.
type RunHooks struct {
	OnText       func(delta string)
	OnThinking   func(delta string)
	OnToolStart  func(name, id string)
	OnToolResult func(name string, result ToolResult, elapsed time.Duration)
	OnNotice     func(msg string)
}

func (h RunHooks) text(delta string) {
	if h.OnText != nil {
		h.OnText(delta)
	}
}

func (h RunHooks) thinking(delta string) {
	if h.OnThinking != nil {
		h.OnThinking(delta)
	}
}

func (h RunHooks) notice(msg string) {
	if h.OnNotice != nil {
		h.OnNotice(msg)
	}
}

// RunOptions configures one run of the loop.
type RunOptions struct {
	Model          string
	MaxTokens      int // 0 means the model's registry default
	Temperature    *float64
	ThinkingBudget int

	// SystemPrompt is re-evaluated every turn so workspace state stays
	// fresh across tool executions.
	SystemPrompt func() string

	Hooks RunHooks
}

// RunResult is what one full run produced.
type RunResult struct {
	Text      string
	ToolCalls int
	Usage     Usage
}

type pendingToolCall struct {
	id    string
	name  string
	input []byte
}

// Run drives the agent loop: stream a completion, execute any tool calls,
// feed results back, repeat. Returns when the model stops asking for tools,
// the turn budget runs out, or an error surfaces.
func Run(ctx context.Context, provider Provider, conv Conversation, tools ToolExecutor, opts RunOptions) (RunResult, error) {
	var result RunResult
	log := logger.Named("agent")

	for turn := 0; turn < MaxTurns; turn++ {
		system := ""
		if opts.SystemPrompt != nil {
			system = opts.SystemPrompt()
		}
		defs := tools.Definitions()

		toolDefTokens := EstimateToolDefinitionTokens(defs)
		if compacted, stats := MaybeCompact(ctx, provider, conv.Messages(), opts.Model, system, toolDefTokens); stats != nil {
			conv.ReplaceMessages(compacted)
		}

		maxTokens := opts.MaxTokens
		if maxTokens == 0 {
			maxTokens = models.MaxOutputTokens(opts.Model)
		}
		request := ChatRequest{
			Model:          opts.Model,
			Messages:       conv.Messages(),
			System:         system,
			Tools:          defs,
			MaxTokens:      maxTokens,
			Temperature:    opts.Temperature,
			ThinkingBudget: opts.ThinkingBudget,
		}

		ch, err := acquireStream(ctx, provider, request, opts.Hooks)
		if err != nil {
			return result, err
		}

		var textBuf strings.Builder
		var toolCalls []pendingToolCall
		stopReason := StopEndTurn
		sawMessageEnd := false

		timer := time.NewTimer(streamEventTimeout)
	consume:
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					break consume
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(streamEventTimeout)

				switch ev.Type {
				case EventTextDelta:
					textBuf.WriteString(ev.Text)
					opts.Hooks.text(ev.Text)
				case EventThinking:
					// Side channel only; never part of the recorded message.
					opts.Hooks.thinking(ev.Text)
				case EventToolUse:
					if opts.Hooks.OnToolStart != nil {
						opts.Hooks.OnToolStart(ev.ToolName, ev.ToolID)
					}
					toolCalls = append(toolCalls, pendingToolCall{id: ev.ToolID, name: ev.ToolName, input: ev.ToolInput})
				case EventMessageEnd:
					// Only the first MessageEnd carries the real stop
					// reason; the stream's terminal event repeats as
					// end_turn and must not clobber tool_use. Consumption
					// continues because usage can still arrive after it.
					if !sawMessageEnd {
						stopReason = ev.Stop
						sawMessageEnd = true
					}
				case EventUsage:
					result.Usage.Add(ev.Usage)
				case EventError:
					timer.Stop()
					return result, ev.Err
				}
			case <-timer.C:
				opts.Hooks.notice(fmt.Sprintf("stream timed out after %s, ending turn", streamEventTimeout))
				break consume
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			}
		}
		timer.Stop()

		content := make([]ContentBlock, 0, 1+len(toolCalls))
		if textBuf.Len() > 0 {
			content = append(content, TextBlock(textBuf.String()))
		}
		for _, tc := range toolCalls {
			content = append(content, ToolUseBlock(tc.id, tc.name, tc.input))
		}
		conv.AddAssistantMessage(content)

		if len(toolCalls) == 0 || stopReason != StopToolUse {
			result.Text = textBuf.String()
			return result, nil
		}

		// Sequential by design: results thread back in call order.
		for _, tc := range toolCalls {
			result.ToolCalls++
			log.WithField("tool", tc.name).WithField("id", tc.id).Info("executing tool")

			start := time.Now()
			res, err := tools.Execute(ctx, tc.name, tc.input)
			if err != nil {
				res = ToolResult{Content: fmt.Sprintf("Error: %v", err), IsError: true}
			}
			if opts.Hooks.OnToolResult != nil {
				opts.Hooks.OnToolResult(tc.name, res, time.Since(start))
			}

			conv.PushMessage(Message{
				Role:    RoleUser,
				Content: []ContentBlock{ToolResultBlock(tc.id, res.Content, res.IsError)},
			})
		}
	}

	opts.Hooks.notice(fmt.Sprintf("reached max agent turns (%d)", MaxTurns))
	return result, nil
}

// isRetryableError classifies transient provider failures by message text,
// matching both our own HTTPError wording and upstream-provided bodies.
func isRetryableError(err error) bool {
	msg := err.Error()
	for _, marker := range []string{"rate limit", "429", "overloaded", "529", "503"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// acquireStream opens the completion stream, retrying transient failures
// with exponential backoff. Retries happen only here: once bytes are
// flowing, errors surface directly.
func acquireStream(ctx context.Context, provider Provider, request ChatRequest, hooks RunHooks) (<-chan Event, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		ch, err := provider.StreamChat(ctx, request)
		if err == nil {
			return ch, nil
		}
		lastErr = err
		if attempt >= maxRetries || !isRetryableError(err) {
			return nil, err
		}
		delay := time.Duration(1<<attempt) * time.Second
		hooks.notice(fmt.Sprintf("retryable error (attempt %d/%d): %v, retrying in %s", attempt+1, maxRetries, err, delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// TruncatePreview flattens and shortens tool output for one-line display.
func TruncatePreview(s string, maxLen int) string {
	single := strings.ReplaceAll(s, "\n", " ")
	runes := []rune(single)
	if len(runes) <= maxLen {
		return single
	}
	return string(runes[:maxLen]) + "…"
}
