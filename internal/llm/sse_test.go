package llm

import (
	"reflect"
	"testing"
)

func collectSSE(p *sseParser, chunks ...[]byte) []sseFrame {
	var frames []sseFrame
	for _, c := range chunks {
		frames = append(frames, p.feed(c)...)
	}
	if frame, ok := p.flush(); ok {
		frames = append(frames, frame)
	}
	return frames
}

func TestSSEParser(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  []sseFrame
	}{
		{
			name:  "single_event",
			input: "event: message_start\ndata: {\"a\":1}\n\n",
			want:  []sseFrame{{event: "message_start", data: `{"a":1}`}},
		},
		{
			name:  "data_only",
			input: "data: hello\n\n",
			want:  []sseFrame{{event: "", data: "hello"}},
		},
		{
			name:  "multi_data_joined",
			input: "data: line1\ndata: line2\n\n",
			want:  []sseFrame{{event: "", data: "line1\nline2"}},
		},
		{
			name:  "comment_ignored",
			input: ": keepalive\ndata: x\n\n",
			want:  []sseFrame{{event: "", data: "x"}},
		},
		{
			name:  "crlf_lines",
			input: "event: ping\r\ndata: {}\r\n\r\n",
			want:  []sseFrame{{event: "ping", data: "{}"}},
		},
		{
			name:  "id_and_retry_ignored",
			input: "id: 7\nretry: 100\ndata: x\n\n",
			want:  []sseFrame{{event: "", data: "x"}},
		},
		{
			name:  "blank_line_without_data",
			input: "event: ping\n\n",
			want:  nil,
		},
		{
			name:  "no_space_after_colon",
			input: "data:tight\n\n",
			want:  []sseFrame{{event: "", data: "tight"}},
		},
		{
			name:  "only_one_leading_space_stripped",
			input: "data:  two spaces\n\n",
			want:  []sseFrame{{event: "", data: " two spaces"}},
		},
		{
			name:  "two_events",
			input: "event: a\ndata: 1\n\nevent: b\ndata: 2\n\n",
			want:  []sseFrame{{event: "a", data: "1"}, {event: "b", data: "2"}},
		},
		{
			name:  "eof_flush_without_blank_line",
			input: "event: tail\ndata: pending",
			want:  []sseFrame{{event: "tail", data: "pending"}},
		},
		{
			name:  "event_name_does_not_leak",
			input: "event: a\n\ndata: x\n\n",
			want:  []sseFrame{{event: "", data: "x"}},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := collectSSE(&sseParser{}, []byte(tc.input))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("frames mismatch:\ngot:  %+v\nwant: %+v", got, tc.want)
			}
		})
	}
}

func TestSSEParser_ChunkingInvariance(t *testing.T) {
	t.Parallel()

	input := "event: text\ndata: héllo 😀 wörld\n\n: comment\ndata: a\ndata: b\n\n"
	whole := collectSSE(&sseParser{}, []byte(input))

	for _, size := range []int{1, 2, 3, 5, 7} {
		var chunks [][]byte
		raw := []byte(input)
		for i := 0; i < len(raw); i += size {
			end := i + size
			if end > len(raw) {
				end = len(raw)
			}
			chunks = append(chunks, raw[i:end])
		}
		got := collectSSE(&sseParser{}, chunks...)
		if !reflect.DeepEqual(got, whole) {
			t.Fatalf("chunk size %d changed output:\ngot:  %+v\nwant: %+v", size, got, whole)
		}
	}
}
