package llm

import (
	"bytes"
	"encoding/json"
	"strings"

	"openclaw/internal/logger"
)

// ndjsonParser splits a newline-delimited JSON stream into objects. Lines
// that fail to parse are logged and skipped; the stream keeps going.
type ndjsonParser struct {
	buf []byte
}

// feed consumes one chunk and returns the JSON objects completed by it.
func (p *ndjsonParser) feed(chunk []byte) []json.RawMessage {
	p.buf = append(p.buf, chunk...)
	var objs []json.RawMessage
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(p.buf[:idx])
		p.buf = p.buf[idx+1:]
		if obj, ok := parseNDJSONLine(line); ok {
			objs = append(objs, obj)
		}
	}
	return objs
}

// flush processes a trailing line left without a newline at end of stream.
func (p *ndjsonParser) flush() (json.RawMessage, bool) {
	if len(p.buf) == 0 {
		return nil, false
	}
	line := string(p.buf)
	p.buf = nil
	return parseNDJSONLine(line)
}

func parseNDJSONLine(line string) (json.RawMessage, bool) {
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if line == "" {
		return nil, false
	}
	if !json.Valid([]byte(line)) {
		logger.Named("llm").WithField("line", truncateForLog(line, 200)).
			Warn("skipping malformed NDJSON line")
		return nil, false
	}
	return json.RawMessage(line), true
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
