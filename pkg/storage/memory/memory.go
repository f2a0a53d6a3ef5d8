// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory is the in-memory SessionStore used by tests and
// single-node deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openresponses/inference-gw/pkg/core/schema"
	"github.com/openresponses/inference-gw/pkg/core/state"
)

// Store is an in-memory implementation of state.SessionStore.
type Store struct {
	mu            sync.RWMutex
	responses     map[string]*state.StoredResponse
	conversations map[string]*state.Conversation
}

// New creates an empty store.
func New() *Store {
	return &Store{
		responses:     make(map[string]*state.StoredResponse),
		conversations: make(map[string]*state.Conversation),
	}
}

// SaveResponse inserts or replaces a response.
func (s *Store) SaveResponse(ctx context.Context, resp *state.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp.UpdatedAt = time.Now()
	if existing, ok := s.responses[resp.Response.ID]; ok {
		resp.CreatedAt = existing.CreatedAt
	} else if resp.CreatedAt.IsZero() {
		resp.CreatedAt = resp.UpdatedAt
	}
	s.responses[resp.Response.ID] = resp
	return nil
}

// GetResponse retrieves a response by id.
func (s *Store) GetResponse(ctx context.Context, responseID string) (*state.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp, ok := s.responses[responseID]
	if !ok {
		return nil, fmt.Errorf("response %s: %w", responseID, state.ErrNotFound)
	}
	return resp, nil
}

// DeleteResponse removes a response. Deleting an unknown id is an error.
func (s *Store) DeleteResponse(ctx context.Context, responseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.responses[responseID]; !ok {
		return fmt.Errorf("response %s: %w", responseID, state.ErrNotFound)
	}
	delete(s.responses, responseID)
	return nil
}

// ListResponses returns the responses of a conversation ordered by
// creation time.
func (s *Store) ListResponses(ctx context.Context, conversationID string) ([]*state.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resps []*state.StoredResponse
	for _, resp := range s.responses {
		if resp.ConversationID == conversationID {
			resps = append(resps, resp)
		}
	}
	sort.Slice(resps, func(i, j int) bool {
		return resps[i].CreatedAt.Before(resps[j].CreatedAt)
	})
	return resps, nil
}

// LinkResponses records the chain edge between two stored responses.
func (s *Store) LinkResponses(ctx context.Context, previousID, nextID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.responses[previousID]
	if !ok {
		return fmt.Errorf("previous response %s: %w", previousID, state.ErrNotFound)
	}
	next, ok := s.responses[nextID]
	if !ok {
		return fmt.Errorf("next response %s: %w", nextID, state.ErrNotFound)
	}

	for _, id := range previous.NextResponseIDs {
		if id == nextID {
			next.PreviousResponseID = previousID
			return nil
		}
	}
	previous.NextResponseIDs = append(previous.NextResponseIDs, nextID)
	next.PreviousResponseID = previousID
	return nil
}

// SaveConversation inserts or replaces a conversation.
func (s *Store) SaveConversation(ctx context.Context, conv *state.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv.UpdatedAt = time.Now()
	if existing, ok := s.conversations[conv.ID]; ok {
		conv.CreatedAt = existing.CreatedAt
	} else if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}
	s.conversations[conv.ID] = conv
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*state.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, state.ErrNotFound)
	}
	return conv, nil
}

// DeleteConversation removes a conversation.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, state.ErrNotFound)
	}
	delete(s.conversations, conversationID)
	return nil
}

// AppendConversationItems adds items to a conversation's history.
func (s *Store) AppendConversationItems(ctx context.Context, conversationID string, items []schema.ItemField) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", conversationID, state.ErrNotFound)
	}
	conv.Items = append(conv.Items, items...)
	conv.UpdatedAt = time.Now()
	return nil
}
