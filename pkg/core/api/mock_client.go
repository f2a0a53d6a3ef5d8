// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SignatureHashRegistrar records the request/response hash pair for a
// completed chat so signatures can be verified later.
type SignatureHashRegistrar interface {
	RegisterSignatureHashesForChat(chatID, requestHash, responseHash string)
}

// MockClient is a deterministic Provider used in tests and local
// development. Responses are derived from the request, the chat id is
// derived from the request hash, and the response hash is computed over
// the exact SSE bytes the mock emits, mirroring a verifiable backend.
//
// The last user message drives the script:
//
//	"tool:<name>:<args>"  emits a tool call to <name> with raw <args>
//	anything else         is echoed back as streamed text
//
// When the conversation already contains tool results, the mock answers
// with a closing summary so agent loops terminate.
type MockClient struct {
	registrar SignatureHashRegistrar

	mu     sync.Mutex
	hashes map[string][2]string
}

// NewMockClient creates a mock backend. registrar may be nil.
func NewMockClient(registrar SignatureHashRegistrar) *MockClient {
	return &MockClient{
		registrar: registrar,
		hashes:    make(map[string][2]string),
	}
}

func (m *MockClient) storeHashes(chatID, requestHash, responseHash string) {
	m.mu.Lock()
	m.hashes[chatID] = [2]string{requestHash, responseHash}
	m.mu.Unlock()
	if m.registrar != nil {
		m.registrar.RegisterSignatureHashesForChat(chatID, requestHash, responseHash)
	}
}

// Models implements Provider.Models.
func (m *MockClient) Models(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{
		{ID: "mock-model", Object: "model", Created: 0, OwnedBy: "mock"},
	}, nil
}

func mockChatID(requestHash string) string {
	if len(requestHash) >= 16 {
		return "chatcmpl-mock-" + requestHash[:16]
	}
	sum := sha256.Sum256([]byte(requestHash))
	return "chatcmpl-mock-" + hex.EncodeToString(sum[:8])
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func hasToolResults(messages []Message) bool {
	for _, msg := range messages {
		if msg.Role == "tool" {
			return true
		}
	}
	return false
}

func (m *MockClient) scriptContent(req *ChatCompletionRequest) (content string, toolName, toolArgs string) {
	userMessage := lastUserMessage(req.Messages)
	if hasToolResults(req.Messages) {
		return "Based on the tool results, here is the answer.", "", ""
	}
	if rest, ok := strings.CutPrefix(userMessage, "tool:"); ok {
		name, args, found := strings.Cut(rest, ":")
		if !found {
			args = "{}"
		}
		return "", name, args
	}
	return fmt.Sprintf("Mock response to: %s", userMessage), "", ""
}

// CreateChatCompletion implements Provider.CreateChatCompletion.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest, requestHash string) (*ChatCompletionWithRaw, error) {
	chatID := mockChatID(requestHash)
	content, toolName, toolArgs := m.scriptContent(req)

	msg := Message{Role: "assistant", Content: content}
	finishReason := FinishReasonStop
	if toolName != "" {
		msg.ToolCalls = []ToolCall{{
			ID:   "call_" + chatID,
			Type: "function",
			Function: ToolCallFunction{
				Name:      toolName,
				Arguments: toolArgs,
			},
		}}
		finishReason = FinishReasonToolCalls
	}

	userMessage := lastUserMessage(req.Messages)
	resp := &ChatCompletionResponse{
		ID:      chatID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{Index: 0, Message: msg, FinishReason: finishReason}},
		Usage: Usage{
			PromptTokens:     estimateTokens(userMessage),
			CompletionTokens: estimateTokens(content),
			TotalTokens:      estimateTokens(userMessage) + estimateTokens(content),
		},
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, NewInternalError(fmt.Sprintf("marshal mock response: %v", err))
	}

	sum := sha256.Sum256(raw)
	m.storeHashes(chatID, requestHash, hex.EncodeToString(sum[:]))

	return &ChatCompletionWithRaw{Response: resp, RawBytes: raw}, nil
}

// CreateChatCompletionStream implements Provider.CreateChatCompletionStream.
func (m *MockClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, requestHash string) (<-chan StreamEvent, error) {
	chatID := mockChatID(requestHash)
	content, toolName, toolArgs := m.scriptContent(req)
	created := time.Now().Unix()
	builder := NewChunkContext(chatID, req.Model, created)

	var chunks []*StreamChunk
	chunks = append(chunks, builder.RoleChunk())

	finishReason := FinishReasonStop
	if toolName != "" {
		chunks = append(chunks, builder.ToolCallStartChunk(0, "call_"+chatID, toolName))
		// Split arguments so accumulator paths see fragmented input.
		mid := len(toolArgs) / 2
		chunks = append(chunks, builder.ToolCallArgsChunk(0, toolArgs[:mid]))
		chunks = append(chunks, builder.ToolCallArgsChunk(0, toolArgs[mid:]))
		finishReason = FinishReasonToolCalls
	} else {
		for _, word := range strings.Fields(content) {
			chunks = append(chunks, builder.TextChunk(word+" "))
		}
	}

	userMessage := lastUserMessage(req.Messages)
	usage := &Usage{
		PromptTokens:     estimateTokens(userMessage),
		CompletionTokens: estimateTokens(content),
		TotalTokens:      estimateTokens(userMessage) + estimateTokens(content),
	}
	chunks = append(chunks, builder.FinishChunk(finishReason, usage))

	events := make(chan StreamEvent, len(chunks))
	hasher := sha256.New()
	for _, chunk := range chunks {
		raw, err := FrameSSE(chunk)
		if err != nil {
			return nil, NewInternalError(fmt.Sprintf("frame mock chunk: %v", err))
		}
		hasher.Write(raw)
		events <- StreamEvent{RawBytes: raw, Chunk: chunk}
	}
	hasher.Write(SSEDone)
	close(events)

	m.storeHashes(chatID, requestHash, hex.EncodeToString(hasher.Sum(nil)))

	return events, nil
}

// GetSignature implements Provider.GetSignature using the hashes recorded
// when the chat completed.
func (m *MockClient) GetSignature(ctx context.Context, chatID string, signingAlgo string) (*ChatSignature, error) {
	m.mu.Lock()
	pair, ok := m.hashes[chatID]
	m.mu.Unlock()
	if !ok {
		return nil, NewProviderError(fmt.Sprintf("no signature for chat_id: %s", chatID))
	}
	if signingAlgo == "" {
		signingAlgo = "ecdsa"
	}
	text := pair[0] + ":" + pair[1]
	sum := sha256.Sum256([]byte(text))
	return &ChatSignature{
		Text:           text,
		Signature:      hex.EncodeToString(sum[:]),
		SigningAddress: "0x" + hex.EncodeToString(sum[:20]),
		SigningAlgo:    signingAlgo,
	}, nil
}

// estimateTokens is a rough heuristic of ~4 characters per token.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}
