// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openresponses/inference-gw/pkg/attest"
	"github.com/openresponses/inference-gw/pkg/core/api"
)

// handleChatCompletions handles POST /v1/chat/completions, a direct
// passthrough to the backend that serves the model. The request hash is
// computed over the raw body, and the response is relayed byte-exact so
// hashes recorded for attestation match what the client received.
func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Failed to read request body")
		return
	}
	requestHash := attest.RequestHash(body)

	var req api.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Error("Failed to parse chat completion request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Failed to parse request body")
		return
	}

	h.logger.Info("Processing chat completion request",
		"model", req.Model,
		"messages", len(req.Messages),
		"stream", req.Stream)

	if req.Stream {
		h.handleChatCompletionStream(w, r, &req, requestHash)
		return
	}

	resp, err := h.pool.CreateChatCompletion(r.Context(), &req, requestHash)
	if err != nil {
		h.logger.Error("Failed to create chat completion", "error", err)
		h.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Response != nil && resp.Response.ID != "" {
		w.Header().Set("Inference-Id", attest.InferenceID(resp.Response.ID))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.RawBytes); err != nil {
		h.logger.Error("Failed to write chat completion", "error", err)
	}
}

// handleChatCompletionStream relays the backend SSE stream. Raw bytes are
// forwarded untouched; the response hash recorded by the pool covers
// exactly what goes over this wire.
func (h *Handler) handleChatCompletionStream(w http.ResponseWriter, r *http.Request, req *api.ChatCompletionRequest, requestHash string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "api_error", "Streaming not supported")
		return
	}

	events, err := h.pool.CreateChatCompletionStream(r.Context(), req, requestHash)
	if err != nil {
		h.logger.Error("Failed to start chat completion stream", "error", err)
		h.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		if ev.Err != nil {
			if ev.Terminal {
				h.logger.Error("chat completion stream failed", "error", ev.Err)
				h.writeStreamError(w, flusher, ev.Err)
				return
			}
			h.logger.Warn("chat completion stream error", "error", ev.Err)
			continue
		}
		if len(ev.RawBytes) == 0 {
			continue
		}
		if _, err := w.Write(ev.RawBytes); err != nil {
			h.logger.Warn("client disconnected", "error", err)
			return
		}
		flusher.Flush()
	}

	if _, err := w.Write(api.SSEDone); err == nil {
		flusher.Flush()
	}

	h.logger.Info("Chat completion streaming completed")
}

// writeStreamError surfaces a mid-stream provider failure as an error frame
// before terminating the stream. Headers are already sent at this point, so
// the SSE body is the only channel left to the client.
func (h *Handler) writeStreamError(w http.ResponseWriter, flusher http.Flusher, streamErr error) {
	frame := struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	frame.Error.Type = "api_error"
	frame.Error.Message = streamErr.Error()

	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return
	}
	w.Write(api.SSEDone)
	flusher.Flush()
}
