// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package http is the HTTP adapter: it exposes the Responses API, the
// chat-completions passthrough and the conversations API over an
// OpenAI-compatible surface.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openresponses/inference-gw/pkg/core/api"
	"github.com/openresponses/inference-gw/pkg/core/engine"
	"github.com/openresponses/inference-gw/pkg/core/services"
	"github.com/openresponses/inference-gw/pkg/core/state"
	"github.com/openresponses/inference-gw/pkg/observability/logging"
	"github.com/openresponses/inference-gw/pkg/provider"
)

// Handler implements the HTTP adapter
type Handler struct {
	engine        *engine.Engine
	pool          *provider.Pool
	sessions      state.SessionStore
	modelsService *services.ModelsService
	logger        *logging.Logger
	mux           *http.ServeMux
}

// New creates a new HTTP handler
func New(eng *engine.Engine, pool *provider.Pool, logger *logging.Logger) *Handler {
	h := &Handler{
		engine:        eng,
		pool:          pool,
		sessions:      eng.Store(),
		modelsService: services.NewModelsService(pool),
		logger:        logger,
		mux:           http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /health", h.handleHealth)

	// Responses API
	h.mux.HandleFunc("POST /v1/responses", h.handleResponses)
	h.mux.HandleFunc("GET /v1/responses", h.handleListResponses)
	h.mux.HandleFunc("GET /v1/responses/{id}", h.handleGetResponse)
	h.mux.HandleFunc("DELETE /v1/responses/{id}", h.handleDeleteResponse)
	h.mux.HandleFunc("POST /v1/responses/{id}/cancel", h.handleCancelResponse)
	h.mux.HandleFunc("GET /v1/responses/{id}/input_items", h.handleListResponseInputItems)

	// Chat Completions API (direct backend access)
	h.mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)

	// Conversations API
	h.mux.HandleFunc("POST /v1/conversations", h.handleCreateConversation)
	h.mux.HandleFunc("GET /v1/conversations/{id}", h.handleGetConversation)
	h.mux.HandleFunc("DELETE /v1/conversations/{id}", h.handleDeleteConversation)
	h.mux.HandleFunc("POST /v1/conversations/{id}/items", h.handleAddConversationItems)
	h.mux.HandleFunc("GET /v1/conversations/{id}/items", h.handleListConversationItems)

	// Models API
	h.mux.HandleFunc("GET /v1/models", h.handleListModels)
	h.mux.HandleFunc("GET /v1/models/{id}", h.handleGetModel)

	// Attestation
	h.mux.HandleFunc("GET /v1/signature/{chat_id}", h.handleGetSignature)

	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	h.mux.ServeHTTP(w, r)
}

// handleHealth handles health check requests
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleGetSignature handles GET /v1/signature/{chat_id}: it returns the
// provider attestation over the recorded request/response hash pair.
func (h *Handler) handleGetSignature(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chat_id")
	signingAlgo := r.URL.Query().Get("signing_algo")

	sig, err := h.pool.GetSignature(r.Context(), chatID, signingAlgo)
	if err != nil {
		h.logger.Error("Failed to get signature", "error", err, "chat_id", chatID)
		h.writeError(w, http.StatusNotFound, "signature_not_found", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, sig)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, errType, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}

// writeEngineError maps engine and provider errors onto HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest),
		errors.Is(err, engine.ErrOrphanFunctionCallOutput):
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
	case errors.Is(err, engine.ErrNotCancellable):
		h.writeError(w, http.StatusConflict, "invalid_request_error", err.Error())
	case errors.Is(err, state.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found_error", err.Error())
	default:
		var ce *api.CompletionError
		if errors.As(err, &ce) {
			h.writeError(w, completionErrorStatus(ce), "api_error", ce.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, "api_error", err.Error())
	}
}

func completionErrorStatus(ce *api.CompletionError) int {
	switch ce.Kind {
	case api.ErrKindInvalidModel, api.ErrKindInvalidParams:
		return http.StatusBadRequest
	case api.ErrKindRateLimit:
		return http.StatusTooManyRequests
	case api.ErrKindHTTP:
		if ce.StatusCode >= 400 {
			return ce.StatusCode
		}
		return http.StatusBadGateway
	case api.ErrKindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
