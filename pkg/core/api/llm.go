// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import "context"

// Provider is the interface implemented by every inference backend. All
// streaming goes through the shared StreamEvent shape so callers never see
// backend-specific wire formats.
type Provider interface {
	// Models lists the models served by this backend.
	Models(ctx context.Context) ([]ModelInfo, error)

	// CreateChatCompletionStream starts a streaming chat completion. The
	// request hash travels with the call so verifiable backends can bind it
	// to the response signature. The returned channel is closed when the
	// stream ends; mid-stream failures arrive as events with Err set.
	CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, requestHash string) (<-chan StreamEvent, error)

	// CreateChatCompletion performs a unary chat completion and returns the
	// parsed response together with the exact raw bytes received, which
	// downstream hashing must use instead of re-serializing.
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest, requestHash string) (*ChatCompletionWithRaw, error)

	// GetSignature fetches the cryptographic signature for a completed chat.
	GetSignature(ctx context.Context, chatID string, signingAlgo string) (*ChatSignature, error)
}

// StreamEvent is one item of a provider stream: the decoded chunk plus the
// exact bytes of the SSE data line it came from (or, for backends whose
// native format is not OpenAI-compatible, the SSE framing of the normalized
// chunk forwarded downstream). Err is set for per-event failures; the
// stream continues after a decode error and ends after a transport error.
// Terminal marks the latter: the backend emits it as the final event
// before closing the channel, and consumers must treat the completion as
// failed rather than ended.
type StreamEvent struct {
	RawBytes []byte
	Chunk    *StreamChunk
	Err      error
	Terminal bool
}

// ChatCompletionWithRaw pairs a parsed response with the raw body bytes.
type ChatCompletionWithRaw struct {
	Response *ChatCompletionResponse
	RawBytes []byte
}

// ModelInfo describes one model advertised by a backend.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelsResponse is the standard /v1/models list body.
type ModelsResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ChatSignature binds a request/response hash pair to a signing address.
type ChatSignature struct {
	// Text being signed, formatted "request_hash:response_hash".
	Text           string `json:"text"`
	Signature      string `json:"signature"`
	SigningAddress string `json:"signing_address"`
	SigningAlgo    string `json:"signing_algo"`
}
