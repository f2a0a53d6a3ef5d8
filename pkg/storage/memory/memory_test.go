// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/openresponses/inference-gw/pkg/core/schema"
	"github.com/openresponses/inference-gw/pkg/core/state"
)

func makeStoredResponse(id, conversationID string) *state.StoredResponse {
	resp := schema.NewResponse(id, "test-model")
	return &state.StoredResponse{
		Response:       resp,
		ConversationID: conversationID,
	}
}

func makeConversation(id string) *state.Conversation {
	return &state.Conversation{
		ID:       id,
		Metadata: map[string]string{"key": "value"},
	}
}

func TestSaveAndGetResponse(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SaveResponse(ctx, makeStoredResponse("resp-1", "conv-1")); err != nil {
		t.Fatalf("SaveResponse: %v", err)
	}

	got, err := s.GetResponse(ctx, "resp-1")
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}
	if got.Response.ID != "resp-1" {
		t.Errorf("expected ID %q, got %q", "resp-1", got.Response.ID)
	}
	if got.ConversationID != "conv-1" {
		t.Errorf("expected ConversationID %q, got %q", "conv-1", got.ConversationID)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be set on save")
	}
}

func TestGetResponse_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetResponse(context.Background(), "nonexistent")
	if !errors.Is(err, state.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveResponse_UpsertKeepsCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()

	resp := makeStoredResponse("resp-up", "conv-1")
	_ = s.SaveResponse(ctx, resp)
	created := resp.CreatedAt

	resp.Response.MarkCompleted()
	if err := s.SaveResponse(ctx, resp); err != nil {
		t.Fatalf("SaveResponse update: %v", err)
	}

	got, _ := s.GetResponse(ctx, "resp-up")
	if got.Response.Status != schema.StatusCompleted {
		t.Errorf("status = %q", got.Response.Status)
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("CreatedAt changed on update")
	}
}

func TestListResponsesOrderedByCreation(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.SaveResponse(ctx, makeStoredResponse("resp-a", "conv-1"))
	_ = s.SaveResponse(ctx, makeStoredResponse("resp-b", "conv-1"))
	_ = s.SaveResponse(ctx, makeStoredResponse("resp-c", "conv-2"))

	resps, err := s.ListResponses(ctx, "conv-1")
	if err != nil {
		t.Fatalf("ListResponses: %v", err)
	}
	if len(resps) != 2 {
		t.Fatalf("expected 2 responses for conv-1, got %d", len(resps))
	}
	if resps[0].CreatedAt.After(resps[1].CreatedAt) {
		t.Error("responses not ordered by creation time")
	}
}

func TestDeleteResponse(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.SaveResponse(ctx, makeStoredResponse("resp-del", "conv-1"))
	if err := s.DeleteResponse(ctx, "resp-del"); err != nil {
		t.Fatalf("DeleteResponse: %v", err)
	}
	if _, err := s.GetResponse(ctx, "resp-del"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteResponse(ctx, "resp-del"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestLinkResponses(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.SaveResponse(ctx, makeStoredResponse("resp-prev", "conv-1"))
	_ = s.SaveResponse(ctx, makeStoredResponse("resp-next", "conv-1"))

	if err := s.LinkResponses(ctx, "resp-prev", "resp-next"); err != nil {
		t.Fatalf("LinkResponses: %v", err)
	}

	prev, _ := s.GetResponse(ctx, "resp-prev")
	if len(prev.NextResponseIDs) != 1 || prev.NextResponseIDs[0] != "resp-next" {
		t.Errorf("NextResponseIDs = %v", prev.NextResponseIDs)
	}
	next, _ := s.GetResponse(ctx, "resp-next")
	if next.PreviousResponseID != "resp-prev" {
		t.Errorf("PreviousResponseID = %q", next.PreviousResponseID)
	}

	// Linking again must not duplicate the edge.
	_ = s.LinkResponses(ctx, "resp-prev", "resp-next")
	prev, _ = s.GetResponse(ctx, "resp-prev")
	if len(prev.NextResponseIDs) != 1 {
		t.Errorf("duplicate edge recorded: %v", prev.NextResponseIDs)
	}
}

func TestLinkResponses_MissingEndpoints(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.SaveResponse(ctx, makeStoredResponse("resp-1", "conv-1"))

	if err := s.LinkResponses(ctx, "nonexistent", "resp-1"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing previous, got %v", err)
	}
	if err := s.LinkResponses(ctx, "resp-1", "nonexistent"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing next, got %v", err)
	}
}

func TestSaveAndGetConversation(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SaveConversation(ctx, makeConversation("conv-1")); err != nil {
		t.Fatalf("SaveConversation: %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Metadata["key"] != "value" {
		t.Errorf("metadata = %v", got.Metadata)
	}
}

func TestDeleteConversation_NotFound(t *testing.T) {
	s := New()
	if err := s.DeleteConversation(context.Background(), "nonexistent"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendConversationItems(t *testing.T) {
	s := New()
	ctx := context.Background()

	_ = s.SaveConversation(ctx, makeConversation("conv-items"))

	role := "user"
	text := "hello"
	items := []schema.ItemField{
		{Type: "message", ID: "item-1", Role: &role, Content: []schema.ContentPart{{Type: "text", Text: &text}}},
	}
	if err := s.AppendConversationItems(ctx, "conv-items", items); err != nil {
		t.Fatalf("AppendConversationItems: %v", err)
	}

	got, _ := s.GetConversation(ctx, "conv-items")
	if len(got.Items) != 1 || got.Items[0].ID != "item-1" {
		t.Errorf("items = %+v", got.Items)
	}

	if err := s.AppendConversationItems(ctx, "nonexistent", items); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
