// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/openresponses/inference-gw/pkg/core/schema"
	"github.com/openresponses/inference-gw/pkg/core/state"
)

const maxConversationItemsPerRequest = 20

func generateID(prefix string) string {
	b := make([]byte, 16)
	rand.Read(b)
	return prefix + hex.EncodeToString(b)
}

func conversationToSchema(conv *state.Conversation) schema.Conversation {
	return schema.Conversation{
		ID:        conv.ID,
		Object:    "conversation",
		CreatedAt: conv.CreatedAt.Unix(),
		Metadata:  conv.Metadata,
	}
}

// handleCreateConversation handles POST /v1/conversations
func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req schema.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Failed to parse request body")
		return
	}
	if len(req.Items) > maxConversationItemsPerRequest {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Too many initial items")
		return
	}

	conv := &state.Conversation{
		ID:        generateID("conv_"),
		Items:     req.Items,
		Metadata:  req.Metadata,
		CreatedAt: time.Now(),
	}
	if err := h.sessions.SaveConversation(r.Context(), conv); err != nil {
		h.logger.Error("Failed to create conversation", "error", err)
		h.writeEngineError(w, err)
		return
	}

	h.logger.Info("Conversation created", "conversation_id", conv.ID)
	h.writeJSON(w, http.StatusOK, conversationToSchema(conv))
}

// handleGetConversation handles GET /v1/conversations/{id}
func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	conv, err := h.sessions.GetConversation(r.Context(), conversationID)
	if err != nil {
		h.logger.Error("Failed to get conversation", "error", err, "conversation_id", conversationID)
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conversationToSchema(conv))
}

// handleDeleteConversation handles DELETE /v1/conversations/{id}
func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	if err := h.sessions.DeleteConversation(r.Context(), conversationID); err != nil {
		h.logger.Error("Failed to delete conversation", "error", err, "conversation_id", conversationID)
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, schema.DeleteConversationResponse{
		ID:      conversationID,
		Object:  "conversation.deleted",
		Deleted: true,
	})
}

// handleAddConversationItems handles POST /v1/conversations/{id}/items
func (h *Handler) handleAddConversationItems(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	var req schema.AddConversationItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Failed to parse request body")
		return
	}
	if len(req.Items) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "At least one item is required")
		return
	}
	if len(req.Items) > maxConversationItemsPerRequest {
		h.writeError(w, http.StatusBadRequest, "invalid_request_error", "Too many items")
		return
	}
	for i := range req.Items {
		if req.Items[i].ID == "" {
			req.Items[i].ID = generateID("item_")
		}
	}

	if err := h.sessions.AppendConversationItems(r.Context(), conversationID, req.Items); err != nil {
		h.logger.Error("Failed to add conversation items", "error", err, "conversation_id", conversationID)
		h.writeEngineError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, schema.ListConversationItemsResponse{
		Object: "list",
		Data:   req.Items,
	})
}

// handleListConversationItems handles GET /v1/conversations/{id}/items
func (h *Handler) handleListConversationItems(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	conv, err := h.sessions.GetConversation(r.Context(), conversationID)
	if err != nil {
		h.logger.Error("Failed to list conversation items", "error", err, "conversation_id", conversationID)
		h.writeEngineError(w, err)
		return
	}

	items := conv.Items
	if items == nil {
		items = []schema.ItemField{}
	}
	listResp := schema.ListConversationItemsResponse{
		Object: "list",
		Data:   items,
	}
	if len(items) > 0 {
		listResp.FirstID = items[0].ID
		listResp.LastID = items[len(items)-1].ID
	}
	h.writeJSON(w, http.StatusOK, listResp)
}
