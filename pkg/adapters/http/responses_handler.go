// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/openresponses/inference-gw/pkg/attest"
	"github.com/openresponses/inference-gw/pkg/core/schema"
)

// maxRequestBody bounds the request body read for hashing.
const maxRequestBody = 10 << 20

// handleResponses handles POST /v1/responses. The body is read raw first:
// the request hash covers the exact bytes the client sent, before any
// JSON normalization.
func (h *Handler) handleResponses(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Failed to read request body")
		return
	}
	requestHash := attest.RequestHash(body)

	var req schema.ResponseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Error("Failed to parse request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Failed to parse request body")
		return
	}

	h.logger.Info("Processing response request",
		"model", req.Model,
		"stream", req.Stream,
		"request_hash", requestHash)

	if req.Stream {
		h.handleStreamingResponse(w, r, &req, requestHash)
		return
	}

	resp, err := h.engine.ProcessRequest(r.Context(), &req, requestHash)
	if err != nil {
		h.logger.Error("Failed to process request", "error", err)
		h.writeEngineError(w, err)
		return
	}

	if stored, err := h.sessions.GetResponse(r.Context(), resp.ID); err == nil && stored.InferenceID != "" {
		w.Header().Set("Inference-Id", stored.InferenceID)
	}
	h.writeJSON(w, http.StatusOK, resp)

	h.logger.Info("Response sent",
		"response_id", resp.ID,
		"status", resp.Status)
}

// handleStreamingResponse handles SSE streaming
func (h *Handler) handleStreamingResponse(w http.ResponseWriter, r *http.Request, req *schema.ResponseRequest, requestHash string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "api_error", "Streaming not supported")
		return
	}

	events, err := h.engine.ProcessRequestStream(r.Context(), req, requestHash)
	if err != nil {
		h.logger.Error("Failed to start streaming", "error", err)
		h.writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("Failed to marshal event", "error", err)
			continue
		}
		if name := eventType(data); name != "" {
			fmt.Fprintf(w, "event: %s\n", name)
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()

	h.logger.Info("Streaming completed")
}

// eventType extracts the "type" field from a marshalled streaming event.
func eventType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return ""
	}
	return head.Type
}

// handleListResponses handles GET /v1/responses. The conversation query
// parameter scopes the listing; without it the unattached responses are
// returned.
func (h *Handler) handleListResponses(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation")

	stored, err := h.sessions.ListResponses(r.Context(), conversationID)
	if err != nil {
		h.logger.Error("Failed to list responses", "error", err)
		h.writeEngineError(w, err)
		return
	}

	responses := make([]schema.Response, 0, len(stored))
	for _, s := range stored {
		responses = append(responses, *s.Response)
	}

	listResp := schema.ListResponsesResponse{
		Object:  "list",
		Data:    responses,
		HasMore: false,
	}
	if len(responses) > 0 {
		listResp.FirstID = responses[0].ID
		listResp.LastID = responses[len(responses)-1].ID
	}
	h.writeJSON(w, http.StatusOK, listResp)
}

// handleGetResponse handles GET /v1/responses/{id}
func (h *Handler) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("id")

	stored, err := h.sessions.GetResponse(r.Context(), responseID)
	if err != nil {
		h.logger.Error("Failed to get response", "error", err, "response_id", responseID)
		h.writeEngineError(w, err)
		return
	}

	if stored.InferenceID != "" {
		w.Header().Set("Inference-Id", stored.InferenceID)
	}
	h.writeJSON(w, http.StatusOK, stored.Response)
}

// handleDeleteResponse handles DELETE /v1/responses/{id}
func (h *Handler) handleDeleteResponse(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("id")

	if err := h.engine.DeleteResponse(r.Context(), responseID); err != nil {
		h.logger.Error("Failed to delete response", "error", err, "response_id", responseID)
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, schema.DeleteResponseResponse{
		ID:      responseID,
		Object:  "response.deleted",
		Deleted: true,
	})
}

// handleCancelResponse handles POST /v1/responses/{id}/cancel
func (h *Handler) handleCancelResponse(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("id")

	resp, err := h.engine.CancelResponse(r.Context(), responseID)
	if err != nil {
		h.logger.Error("Failed to cancel response", "error", err, "response_id", responseID)
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleListResponseInputItems handles GET /v1/responses/{id}/input_items
func (h *Handler) handleListResponseInputItems(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("id")

	items, err := h.engine.GetResponseInputItems(r.Context(), responseID)
	if err != nil {
		h.logger.Error("Failed to get input items", "error", err, "response_id", responseID)
		h.writeEngineError(w, err)
		return
	}
	if items == nil {
		items = []schema.ItemField{}
	}

	listResp := schema.ListInputItemsResponse{
		Object:  "list",
		Data:    items,
		HasMore: false,
	}
	if len(items) > 0 {
		listResp.FirstID = items[0].ID
		listResp.LastID = items[len(items)-1].ID
	}
	h.writeJSON(w, http.StatusOK, listResp)
}
