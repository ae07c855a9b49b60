package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"openclaw/internal/logger"
	"openclaw/internal/models"
)

// Number of recent messages preserved verbatim during compaction.
const keepRecentMessages = 6

// Compaction triggers when the estimated context use crosses this share of
// the model's window.
const compactThresholdPercent = 80

const summarySystemPrompt = "You are a conversation summarizer. Produce a concise summary."

const summaryPrefix = "[Conversation summary -- earlier messages were compacted to save context]\n\n"

// CompactStats reports what a compaction pass did.
type CompactStats struct {
	MessagesBefore int
	MessagesAfter  int
	TokensBefore   int
	TokensAfter    int
}

// MaybeCompact checks the estimated context use and compacts the history
// when it crosses the threshold. Returns the (possibly unchanged) message
// list and stats when compaction ran.
func MaybeCompact(ctx context.Context, provider Provider, messages []Message, model, system string, toolDefTokens int) ([]Message, *CompactStats) {
	limit := models.ContextLimit(model)
	threshold := limit * compactThresholdPercent / 100

	msgTokens := EstimateMessagesTokens(messages)
	total := EstimateTokens(system) + msgTokens + toolDefTokens
	if total <= threshold {
		return messages, nil
	}

	logger.Named("context").WithField("tokens", total).WithField("limit", limit).
		Warn("context near limit, compacting conversation")

	compacted := CompactMessages(ctx, provider, messages, model)
	stats := &CompactStats{
		MessagesBefore: len(messages),
		MessagesAfter:  len(compacted),
		TokensBefore:   msgTokens,
		TokensAfter:    EstimateMessagesTokens(compacted),
	}
	logger.Named("context").
		WithField("messages", fmt.Sprintf("%d->%d", stats.MessagesBefore, stats.MessagesAfter)).
		WithField("tokens", fmt.Sprintf("%d->%d", stats.TokensBefore, stats.TokensAfter)).
		Info("compacted conversation")
	return compacted, stats
}

// CompactMessages summarizes the middle of the conversation via the model,
// producing [first, summary-as-user, ...recent]. Histories too short to have
// a middle come back unchanged. Summarization failure degrades to dropping
// the middle outright; compaction never blocks the conversation.
func CompactMessages(ctx context.Context, provider Provider, messages []Message, model string) []Message {
	if len(messages) <= keepRecentMessages+1 {
		return messages
	}

	first := messages[0]
	split := len(messages) - keepRecentMessages
	middle := messages[1:split]
	recent := messages[split:]
	if len(middle) == 0 {
		return messages
	}

	summary, err := summarizeViaLLM(ctx, provider, renderForSummary(middle), model)
	if err != nil {
		logger.Named("context").WithField("error", err).
			Warn("compaction summary failed, keeping recent messages only")
		out := make([]Message, 0, 1+len(recent))
		out = append(out, first)
		return append(out, recent...)
	}

	out := make([]Message, 0, 2+len(recent))
	out = append(out, first, UserText(summaryPrefix+summary))
	return append(out, recent...)
}

// renderForSummary flattens messages into a plain transcript for the
// summarization prompt.
func renderForSummary(messages []Message) string {
	var buf strings.Builder
	for _, msg := range messages {
		label := "User"
		if msg.Role == RoleAssistant {
			label = "Assistant"
		}
		for _, b := range msg.Content {
			switch b.Type {
			case BlockText:
				fmt.Fprintf(&buf, "%s: %s\n", label, b.Text)
			case BlockToolUse:
				fmt.Fprintf(&buf, "%s: [called tool '%s' with %s]\n", label, b.Name, b.Input)
			case BlockToolResult:
				fmt.Fprintf(&buf, "%s: [tool result: %s]\n", label, previewRunes(b.Content, 500))
			case BlockImage:
				fmt.Fprintf(&buf, "%s: [image]\n", label)
			}
		}
	}
	return buf.String()
}

func previewRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func summarizeViaLLM(ctx context.Context, provider Provider, transcript, model string) (string, error) {
	prompt := "Summarize the following conversation excerpt concisely. " +
		"Preserve key facts, decisions, file paths, code snippets, and tool results " +
		"that would be needed to continue the conversation. " +
		"Be brief but complete.\n\n---\n" + transcript + "\n---"

	temp := 0.0
	ch, err := provider.StreamChat(ctx, ChatRequest{
		Model:       model,
		Messages:    []Message{UserText(prompt)},
		System:      summarySystemPrompt,
		MaxTokens:   1024,
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}

	var summary strings.Builder
consume:
	for ev := range ch {
		switch ev.Type {
		case EventTextDelta:
			summary.WriteString(ev.Text)
		case EventMessageEnd:
			break consume
		case EventError:
			return "", ev.Err
		}
	}
	if summary.Len() == 0 {
		return "", errors.New("model returned empty summary")
	}
	return summary.String(), nil
}
