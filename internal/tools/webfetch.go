package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"openclaw/internal/agent"
)

const (
	maxFetchChars    = 50_000
	fetchUserAgent   = "openclaw/0.1"
	fetchTimeout     = 30 * time.Second
	maxFetchBodySize = 10 * 1024 * 1024
)

var fetchClient = &http.Client{Timeout: fetchTimeout}

func webFetchDefinition() agent.ToolDefinition {
	return agent.ToolDefinition{
		Name: "web_fetch",
		Description: "Fetch content from a URL. Returns the page content as text. " +
			"Supports HTML (converted to readable text), JSON, and plain text.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["url"],
			"properties": {
				"url": {"type": "string", "description": "The URL to fetch"},
				"prompt": {"type": "string", "description": "Optional instruction for what to extract from the page"}
			}
		}`),
	}
}

func webFetch(ctx context.Context, input json.RawMessage) (agent.ToolResult, error) {
	var args struct {
		URL    string `json:"url"`
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(input, &args); err != nil || args.URL == "" {
		return errResult("Missing required 'url' parameter."), nil
	}
	if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
		return errResult("Invalid URL scheme. Only http:// and https:// are supported: %s", args.URL), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return errResult("Failed to fetch URL '%s': %v", args.URL, err), nil
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := fetchClient.Do(req)
	if err != nil {
		return errResult("Failed to fetch URL '%s': %v", args.URL, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errResult("HTTP error %d fetching '%s': %s",
			resp.StatusCode, args.URL, http.StatusText(resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodySize))
	if err != nil {
		return errResult("Failed to read response body from '%s': %v", args.URL, err), nil
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	var processed string
	switch {
	case strings.Contains(contentType, "text/html"):
		processed = extractText(string(body))
	case strings.Contains(contentType, "json"):
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			processed = pretty.String()
		} else {
			processed = string(body)
		}
	default:
		processed = string(body)
	}

	truncated := truncateFetchOutput(processed)
	var content string
	if args.Prompt != "" {
		content = fmt.Sprintf("URL: %s\nPrompt: %s\n\n---\n\n%s", args.URL, args.Prompt, truncated)
	} else {
		content = fmt.Sprintf("URL: %s\n\n---\n\n%s", args.URL, truncated)
	}
	return agent.ToolResult{Content: content}, nil
}

// extractText renders an HTML document as plain text: script and style
// subtrees are dropped, tag boundaries become spaces, and whitespace is
// collapsed.
func extractText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return collapseWhitespace(src)
	}
	var b strings.Builder
	collectText(doc, &b)
	return collapseWhitespace(b.String())
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
			b.WriteByte('\n')
		}
	}
}

// collapseWhitespace squeezes runs of spaces and caps blank lines at one.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	newlines := 0
	prevSpace := false
	for _, ch := range s {
		switch {
		case ch == '\r':
			continue
		case ch == '\n':
			newlines++
			if newlines <= 2 {
				b.WriteByte('\n')
			}
			prevSpace = false
		case ch == ' ' || ch == '\t':
			if !prevSpace && newlines == 0 {
				b.WriteByte(' ')
			}
			prevSpace = true
		default:
			b.WriteRune(ch)
			prevSpace = false
			newlines = 0
		}
	}
	return strings.TrimSpace(b.String())
}

func truncateFetchOutput(content string) string {
	runes := []rune(content)
	if len(runes) <= maxFetchChars {
		return content
	}
	return fmt.Sprintf("%s\n\n[truncated: %d characters total, showing first %d]",
		string(runes[:maxFetchChars]), len(runes), maxFetchChars)
}
