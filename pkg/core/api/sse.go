// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SSEFormat selects how raw upstream lines are interpreted.
type SSEFormat int

const (
	// SSEFormatOpenAI expects "data: {json}" lines with an optional
	// terminal "data: [DONE]".
	SSEFormatOpenAI SSEFormat = iota
	// SSEFormatGemini additionally accepts bare JSON lines without the
	// "data: " prefix.
	SSEFormatGemini
)

// SSEParser reassembles chat completion chunks from an SSE byte stream.
// Packets may split lines at arbitrary byte boundaries; the parser buffers
// incomplete lines until the next Feed call. Every emitted event carries
// RawBytes holding the exact wire bytes of its line, including the
// "data: " prefix and the trailing newline, so downstream hashing sees
// precisely what the provider sent.
type SSEParser struct {
	format SSEFormat
	buf    []byte
}

// NewSSEParser returns a parser for the given wire format.
func NewSSEParser(format SSEFormat) *SSEParser {
	return &SSEParser{format: format}
}

// Feed consumes one packet of stream bytes and returns every complete
// event it terminates. A single packet can carry several events; a line
// split across packets yields its event only once the newline arrives.
func (p *SSEParser) Feed(data []byte) []StreamEvent {
	p.buf = append(p.buf, data...)

	var events []StreamEvent
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		raw := make([]byte, idx+1)
		copy(raw, p.buf[:idx+1])
		p.buf = p.buf[idx+1:]

		if ev, ok := p.parseLine(raw); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Finish reports whether unterminated bytes remain buffered at stream
// end. A well-formed stream always ends on a line boundary.
func (p *SSEParser) Finish() (remaining []byte) {
	if len(p.buf) == 0 {
		return nil
	}
	return p.buf
}

func (p *SSEParser) parseLine(raw []byte) (StreamEvent, bool) {
	line := bytes.TrimRight(raw, "\r\n")
	if len(line) == 0 {
		return StreamEvent{}, false
	}
	// SSE comment lines keep connections alive; they carry no payload.
	if line[0] == ':' {
		return StreamEvent{}, false
	}

	var payload []byte
	switch {
	case bytes.HasPrefix(line, []byte("data: ")):
		payload = line[len("data: "):]
	case bytes.HasPrefix(line, []byte("data:")):
		payload = line[len("data:"):]
	case p.format == SSEFormatGemini && (line[0] == '{' || line[0] == '['):
		payload = line
	default:
		// Other SSE fields (event:, id:, retry:) carry no chunk data.
		return StreamEvent{}, false
	}

	payload = bytes.TrimSpace(payload)
	if bytes.Equal(payload, []byte("[DONE]")) {
		return StreamEvent{}, false
	}

	var chunk StreamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return StreamEvent{
			RawBytes: raw,
			Err:      fmt.Errorf("malformed stream chunk: %w", err),
		}, true
	}
	return StreamEvent{RawBytes: raw, Chunk: &chunk}, true
}
