// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// VLLMClient implements Provider against a vLLM server over raw HTTP.
// Unlike the SDK-backed client it never re-serializes the upstream
// payload: stream events carry the exact SSE line bytes received, so the
// response hash computed downstream matches the hash the server signed.
type VLLMClient struct {
	baseURL    string
	apiKey     string
	format     SSEFormat
	httpClient *http.Client
}

// NewVLLMClient creates a raw HTTP client for a vLLM-compatible server.
func NewVLLMClient(baseURL, apiKey string) *VLLMClient {
	return &VLLMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		format:  SSEFormatOpenAI,
		// No overall timeout: streams stay open for the full generation.
		httpClient: &http.Client{},
	}
}

func (c *VLLMClient) newRequest(ctx context.Context, method, path string, body io.Reader, requestHash string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if requestHash != "" {
		// The server binds this hash into the signed attestation text.
		req.Header.Set("X-Request-Hash", requestHash)
	}
	return req, nil
}

// Models implements Provider.Models.
func (c *VLLMClient) Models(ctx context.Context) ([]ModelInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/models", nil, "")
	if err != nil {
		return nil, NewInternalError(err.Error())
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("list models: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("read models response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, string(body), true)
	}

	var list ModelsResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, NewProviderError(fmt.Sprintf("decode models response: %v", err))
	}
	return list.Data, nil
}

// CreateChatCompletion implements Provider.CreateChatCompletion. RawBytes
// is the untouched response body.
func (c *VLLMClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest, requestHash string) (*ChatCompletionWithRaw, error) {
	req.Stream = false
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, NewInternalError(fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(payload), requestHash)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("chat completion: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("read completion response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, string(body), true)
	}

	var parsed ChatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewProviderError(fmt.Sprintf("decode completion response: %v", err))
	}
	return &ChatCompletionWithRaw{Response: &parsed, RawBytes: body}, nil
}

// CreateChatCompletionStream implements Provider.CreateChatCompletionStream.
func (c *VLLMClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, requestHash string) (<-chan StreamEvent, error) {
	req.Stream = true
	if req.StreamOptions == nil {
		req.StreamOptions = &StreamOptions{IncludeUsage: true}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, NewInternalError(fmt.Sprintf("marshal request: %v", err))
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(payload), requestHash)
	if err != nil {
		return nil, NewInternalError(err.Error())
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("chat completion stream: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, NewHTTPError(resp.StatusCode, string(body), true)
	}

	events := make(chan StreamEvent, 10)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		parser := NewSSEParser(c.format)
		buf := make([]byte, 4096)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				for _, ev := range parser.Feed(buf[:n]) {
					select {
					case events <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
			if readErr != nil {
				if readErr != io.EOF {
					select {
					case events <- StreamEvent{Err: NewProviderError(fmt.Sprintf("stream read: %v", readErr)), Terminal: true}:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()

	return events, nil
}

// GetSignature implements Provider.GetSignature by querying the server's
// signature endpoint for the given chat id.
func (c *VLLMClient) GetSignature(ctx context.Context, chatID string, signingAlgo string) (*ChatSignature, error) {
	path := fmt.Sprintf("/v1/signature/%s", url.PathEscape(chatID))
	if signingAlgo != "" {
		path += "?signing_algo=" + url.QueryEscape(signingAlgo)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, NewInternalError(err.Error())
	}

	// Signature generation can lag the final chunk slightly.
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	req = req.WithContext(reqCtx)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("get signature: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("read signature response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewHTTPError(resp.StatusCode, string(body), true)
	}

	var sig ChatSignature
	if err := json.Unmarshal(body, &sig); err != nil {
		return nil, NewProviderError(fmt.Sprintf("decode signature response: %v", err))
	}
	return &sig, nil
}
