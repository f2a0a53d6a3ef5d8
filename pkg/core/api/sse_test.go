// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"testing"
)

func chunkLine(content string) string {
	return `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"` + content + `"}}]}` + "\n"
}

func TestSSEParseSingleEvent(t *testing.T) {
	p := NewSSEParser(SSEFormatOpenAI)
	line := chunkLine("hello")
	events := p.Feed([]byte(line))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Err != nil {
		t.Fatalf("unexpected error: %v", ev.Err)
	}
	if string(ev.RawBytes) != line {
		t.Errorf("raw bytes mismatch:\n got %q\nwant %q", ev.RawBytes, line)
	}
	if got := ev.Chunk.Choices[0].Delta.Content; got != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
}

func TestSSEMultipleEventsOnePacket(t *testing.T) {
	p := NewSSEParser(SSEFormatOpenAI)
	packet := chunkLine("a") + "\n" + chunkLine("b") + "\n"
	events := p.Feed([]byte(packet))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Chunk.Choices[0].Delta.Content != "a" {
		t.Errorf("first content = %q", events[0].Chunk.Choices[0].Delta.Content)
	}
	if events[1].Chunk.Choices[0].Delta.Content != "b" {
		t.Errorf("second content = %q", events[1].Chunk.Choices[0].Delta.Content)
	}
}

func TestSSEEventSplitAcrossPackets(t *testing.T) {
	line := chunkLine("split")
	for cut := 1; cut < len(line)-1; cut++ {
		p := NewSSEParser(SSEFormatOpenAI)
		first := p.Feed([]byte(line[:cut]))
		if len(first) != 0 {
			t.Fatalf("cut %d: partial line produced %d events", cut, len(first))
		}
		second := p.Feed([]byte(line[cut:]))
		if len(second) != 1 {
			t.Fatalf("cut %d: expected 1 event after completion, got %d", cut, len(second))
		}
		if string(second[0].RawBytes) != line {
			t.Errorf("cut %d: raw bytes mismatch", cut)
		}
	}
}

func TestSSEByteLevelSplitInvariance(t *testing.T) {
	stream := chunkLine("x") + "\n" + chunkLine("y") + "\n" + "data: [DONE]\n\n"

	whole := NewSSEParser(SSEFormatOpenAI)
	want := whole.Feed([]byte(stream))

	perByte := NewSSEParser(SSEFormatOpenAI)
	var got []StreamEvent
	for i := 0; i < len(stream); i++ {
		got = append(got, perByte.Feed([]byte{stream[i]})...)
	}

	if len(got) != len(want) {
		t.Fatalf("per-byte feed produced %d events, whole feed %d", len(got), len(want))
	}
	for i := range got {
		if string(got[i].RawBytes) != string(want[i].RawBytes) {
			t.Errorf("event %d raw bytes differ", i)
		}
	}
}

func TestSSEDoneMarkerSkipped(t *testing.T) {
	p := NewSSEParser(SSEFormatOpenAI)
	events := p.Feed([]byte("data: [DONE]\n"))
	if len(events) != 0 {
		t.Fatalf("[DONE] produced %d events", len(events))
	}
	if rem := p.Finish(); rem != nil {
		t.Errorf("unexpected leftover bytes: %q", rem)
	}
}

func TestSSECommentAndBlankLinesSkipped(t *testing.T) {
	p := NewSSEParser(SSEFormatOpenAI)
	packet := ": keep-alive\n\n" + chunkLine("v") + "\n"
	events := p.Feed([]byte(packet))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestSSEMalformedJSONYieldsError(t *testing.T) {
	p := NewSSEParser(SSEFormatOpenAI)
	events := p.Feed([]byte("data: {not json\n" + chunkLine("after")))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Err == nil {
		t.Error("malformed line should carry an error")
	}
	if events[1].Err != nil || events[1].Chunk == nil {
		t.Error("stream should continue past a malformed line")
	}
}

func TestSSEGeminiRawJSONLines(t *testing.T) {
	p := NewSSEParser(SSEFormatGemini)
	raw := `{"id":"g1","object":"chat.completion.chunk","created":2,"model":"gem","choices":[{"index":0,"delta":{"content":"hi"}}]}` + "\n"
	events := p.Feed([]byte(raw))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Chunk.Choices[0].Delta.Content != "hi" {
		t.Errorf("content = %q", events[0].Chunk.Choices[0].Delta.Content)
	}
	if string(events[0].RawBytes) != raw {
		t.Errorf("raw bytes mismatch")
	}
}

func TestSSEFinishReportsIncompleteBuffer(t *testing.T) {
	p := NewSSEParser(SSEFormatOpenAI)
	p.Feed([]byte("data: {\"truncat"))
	rem := p.Finish()
	if string(rem) != "data: {\"truncat" {
		t.Errorf("leftover = %q", rem)
	}
}
