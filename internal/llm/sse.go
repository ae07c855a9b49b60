package llm

import (
	"bytes"
	"strings"
)

// sseFrame is one server-sent event: the event name (may be empty) and the
// joined data payload.
type sseFrame struct {
	event string
	data  string
}

// sseParser is an incremental SSE parser. Feed it raw body chunks as they
// arrive; it returns the frames completed by each chunk. Bytes are buffered
// until a full line is available, so chunk boundaries may fall anywhere,
// including inside a multi-byte UTF-8 sequence.
type sseParser struct {
	buf   []byte
	event string
	data  []string
}

// feed consumes one chunk and returns any frames it completed.
func (p *sseParser) feed(chunk []byte) []sseFrame {
	p.buf = append(p.buf, chunk...)
	var frames []sseFrame
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(p.buf[:idx])
		p.buf = p.buf[idx+1:]
		line = strings.TrimSuffix(line, "\r")
		if frame, ok := p.processLine(line); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

// flush drains the parser at end of stream: a trailing line without a
// newline is processed, and a pending event without its terminating blank
// line is still emitted.
func (p *sseParser) flush() (sseFrame, bool) {
	if len(p.buf) > 0 {
		line := strings.TrimSuffix(string(p.buf), "\r")
		p.buf = nil
		if frame, ok := p.processLine(line); ok {
			return frame, true
		}
	}
	return p.takeFrame()
}

func (p *sseParser) processLine(line string) (sseFrame, bool) {
	if line == "" {
		return p.takeFrame()
	}
	if strings.HasPrefix(line, ":") {
		return sseFrame{}, false
	}
	field := line
	value := ""
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		field = line[:idx]
		value = strings.TrimPrefix(line[idx+1:], " ")
	}
	switch field {
	case "event":
		p.event = value
	case "data":
		p.data = append(p.data, value)
	}
	// id and retry are irrelevant here: no reconnection support.
	return sseFrame{}, false
}

func (p *sseParser) takeFrame() (sseFrame, bool) {
	if len(p.data) == 0 {
		p.event = ""
		return sseFrame{}, false
	}
	frame := sseFrame{event: p.event, data: strings.Join(p.data, "\n")}
	p.event = ""
	p.data = nil
	return frame, true
}
