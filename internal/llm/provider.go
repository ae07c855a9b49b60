package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"openclaw/internal/agent"
)

// Default endpoints when config leaves base_url empty.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultOllamaBaseURL    = "http://localhost:11434"
)

// Options selects and configures a provider.
type Options struct {
	Provider string
	APIKey   string
	BaseURL  string
}

// New builds the provider named in opts.
func New(opts Options) (agent.Provider, error) {
	switch strings.ToLower(opts.Provider) {
	case "anthropic":
		return newAnthropicProvider(opts), nil
	case "openai":
		return newOpenAIProvider(opts), nil
	case "ollama":
		return newOllamaProvider(opts), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (expected anthropic, openai, or ollama)", opts.Provider)
	}
}

// HTTPError is a non-2xx response from a provider endpoint.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("authentication failed (status %d): check your API key", e.Status)
	case http.StatusPaymentRequired:
		return fmt.Sprintf("billing issue (status %d): check your account balance", e.Status)
	case http.StatusTooManyRequests:
		return fmt.Sprintf("rate limit exceeded (status %d): %s", e.Status, e.Body)
	case 529:
		return fmt.Sprintf("API overloaded (status %d): %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
	}
}

// streamClient has no overall timeout: responses stream for minutes. Dial
// and TLS handshake still time out.
var streamClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	},
}

// doStreamRequest issues the request and classifies a non-2xx status into
// an *HTTPError, consuming the body either way on failure.
func doStreamRequest(req *http.Request) (*http.Response, error) {
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// sseTranslator turns provider SSE frames into normalized events.
// A returned error terminates the stream. done is called once at end of
// stream, after the parser's final flush.
type sseTranslator interface {
	frame(f sseFrame) ([]agent.Event, error)
	done() ([]agent.Event, error)
}

// pumpSSE reads the body to completion, feeding frames through tr and
// events into ch. It closes both the body and the channel, and stops early
// on ctx cancellation or translator error.
func pumpSSE(ctx context.Context, body io.ReadCloser, ch chan<- agent.Event, tr sseTranslator) {
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

	parser := &sseParser{}
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
	handleFrames := func(frames []sseFrame) bool {
		for _, f := range frames {
			events, err := tr.frame(f)
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
			if !handleFrames(parser.feed(buf[:n])) {
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
	if frame, ok := parser.flush(); ok {
		if !handleFrames([]sseFrame{frame}) {
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
