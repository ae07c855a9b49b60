package agent

// Heuristic token estimation: roughly 4 characters per token. Good enough
// for context-window decisions, not for billing.

const charsPerToken = 4

// Per-message allowance for role framing.
const messageOverheadTokens = 4

func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

func EstimateMessageTokens(msg Message) int {
	total := messageOverheadTokens
	for _, b := range msg.Content {
		switch b.Type {
		case BlockText, BlockThinking:
			total += EstimateTokens(b.Text)
		case BlockToolUse:
			total += EstimateTokens(b.ID) + EstimateTokens(b.Name) + EstimateTokens(string(b.Input))
		case BlockToolResult:
			total += EstimateTokens(b.ToolUseID) + EstimateTokens(b.Content)
		case BlockImage:
			// Base64 image data runs ~1 token per 750 chars plus a fixed
			// overhead for the block itself.
			total += len(b.Data)/750 + 100
		}
	}
	return total
}

func EstimateMessagesTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessageTokens(m)
	}
	return total
}

// EstimateToolDefinitionTokens approximates the context cost of the tool
// definitions sent with each request.
func EstimateToolDefinitionTokens(defs []ToolDefinition) int {
	total := 0
	for _, d := range defs {
		total += EstimateTokens(d.Name) + EstimateTokens(d.Description) + EstimateTokens(string(d.InputSchema))
	}
	return total
}
