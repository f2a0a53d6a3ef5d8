// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"strings"
)

// GeminiClient implements Provider against Google's OpenAI compatibility
// endpoint. It reuses the raw HTTP transport but tolerates Gemini's habit
// of emitting bare JSON lines without the "data: " prefix mid-stream.
type GeminiClient struct {
	inner *VLLMClient
}

// NewGeminiClient creates a client for the Gemini OpenAI-compatible API.
// baseURL defaults to the public generativelanguage endpoint.
func NewGeminiClient(baseURL, apiKey string) *GeminiClient {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	}
	inner := NewVLLMClient(baseURL, apiKey)
	inner.format = SSEFormatGemini
	return &GeminiClient{inner: inner}
}

// Models implements Provider.Models. Gemini model ids come back prefixed
// with "models/"; strip it so routing matches what clients request.
func (c *GeminiClient) Models(ctx context.Context) ([]ModelInfo, error) {
	models, err := c.inner.Models(ctx)
	if err != nil {
		return nil, err
	}
	for i := range models {
		models[i].ID = strings.TrimPrefix(models[i].ID, "models/")
	}
	return models, nil
}

// CreateChatCompletion implements Provider.CreateChatCompletion.
func (c *GeminiClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest, requestHash string) (*ChatCompletionWithRaw, error) {
	return c.inner.CreateChatCompletion(ctx, req, requestHash)
}

// CreateChatCompletionStream implements Provider.CreateChatCompletionStream.
func (c *GeminiClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, requestHash string) (<-chan StreamEvent, error) {
	return c.inner.CreateChatCompletionStream(ctx, req, requestHash)
}

// GetSignature implements Provider.GetSignature. Gemini does not expose
// inference signatures.
func (c *GeminiClient) GetSignature(ctx context.Context, chatID string, signingAlgo string) (*ChatSignature, error) {
	return nil, NewProviderError("signatures not supported by this backend")
}
