package agent

import "encoding/json"

// StopReason tells the turn loop why the model stopped emitting.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

type EventType string

const (
	EventTextDelta  EventType = "text_delta"
	EventThinking   EventType = "thinking"
	EventToolUse    EventType = "tool_use"
	EventMessageEnd EventType = "message_end"
	EventUsage      EventType = "usage"
	EventError      EventType = "error"
)

// Usage carries token accounting for one request/response pair. Providers
// report whichever fields they know; zero means unreported.
type Usage struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_tokens,omitempty"`
}

func (u *Usage) Add(delta Usage) {
	u.InputTokens += delta.InputTokens
	u.OutputTokens += delta.OutputTokens
	u.CacheCreationTokens += delta.CacheCreationTokens
	u.CacheReadTokens += delta.CacheReadTokens
}

// Event is one normalized streaming event. Type selects the populated
// fields. EventError terminates the stream; the channel is closed after it.
type Event struct {
	Type EventType

	// text_delta, thinking
	Text string

	// tool_use: complete call, input fully accumulated by the translator
	ToolID    string
	ToolName  string
	ToolInput json.RawMessage

	// message_end
	Stop StopReason

	// usage
	Usage Usage

	// error
	Err error
}

func TextDeltaEvent(text string) Event {
	return Event{Type: EventTextDelta, Text: text}
}

func ThinkingEvent(text string) Event {
	return Event{Type: EventThinking, Text: text}
}

func ToolUseEvent(id, name string, input json.RawMessage) Event {
	return Event{Type: EventToolUse, ToolID: id, ToolName: name, ToolInput: input}
}

func MessageEndEvent(stop StopReason) Event {
	return Event{Type: EventMessageEnd, Stop: stop}
}

func UsageEvent(u Usage) Event {
	return Event{Type: EventUsage, Usage: u}
}

func ErrorEvent(err error) Event {
	return Event{Type: EventError, Err: err}
}
