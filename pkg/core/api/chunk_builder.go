// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
)

// ChunkContext builds normalized chat completion chunks that share one
// stream identity. Backends that do not speak the OpenAI wire format use
// it to synthesize chunks downstream clients understand.
type ChunkContext struct {
	ID      string
	Model   string
	Created int64
}

// NewChunkContext seeds a builder for one upstream stream.
func NewChunkContext(id, model string, created int64) *ChunkContext {
	return &ChunkContext{ID: id, Model: model, Created: created}
}

func (c *ChunkContext) base(delta MessageDelta, finishReason *string) *StreamChunk {
	return &StreamChunk{
		ID:      c.ID,
		Object:  "chat.completion.chunk",
		Created: c.Created,
		Model:   c.Model,
		Choices: []StreamDelta{{Index: 0, Delta: delta, FinishReason: finishReason}},
	}
}

// RoleChunk opens the assistant turn.
func (c *ChunkContext) RoleChunk() *StreamChunk {
	role := "assistant"
	return c.base(MessageDelta{Role: role}, nil)
}

// TextChunk carries one content fragment.
func (c *ChunkContext) TextChunk(content string) *StreamChunk {
	return c.base(MessageDelta{Content: content}, nil)
}

// ToolCallStartChunk announces a tool call slot with its id and name.
func (c *ChunkContext) ToolCallStartChunk(index int, id, name string) *StreamChunk {
	return c.base(MessageDelta{ToolCalls: []ToolCallDelta{{
		Index:    index,
		ID:       id,
		Type:     "function",
		Function: ToolCallFunctionDelta{Name: name},
	}}}, nil)
}

// ToolCallArgsChunk appends an arguments fragment to an open slot.
func (c *ChunkContext) ToolCallArgsChunk(index int, args string) *StreamChunk {
	return c.base(MessageDelta{ToolCalls: []ToolCallDelta{{
		Index:    index,
		Function: ToolCallFunctionDelta{Arguments: args},
	}}}, nil)
}

// FinishChunk closes the stream with a finish reason and, when the
// provider reported it, final usage.
func (c *ChunkContext) FinishChunk(reason string, usage *Usage) *StreamChunk {
	chunk := c.base(MessageDelta{}, &reason)
	chunk.Usage = usage
	return chunk
}

// FrameSSE renders a chunk as the exact SSE line a downstream client
// receives. These bytes are what response hashing must cover.
func FrameSSE(chunk *StreamChunk) ([]byte, error) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("marshal stream chunk: %w", err)
	}
	return []byte(fmt.Sprintf("data: %s\n\n", payload)), nil
}

// SSEDone is the terminal marker appended to every downstream stream.
var SSEDone = []byte("data: [DONE]\n\n")
