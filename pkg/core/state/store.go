// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package state defines the persistence port for responses and
// conversations. Storage backends live under pkg/storage.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/openresponses/inference-gw/pkg/core/schema"
)

// ErrNotFound is returned (wrapped) when a record does not exist.
var ErrNotFound = errors.New("not found")

// SessionStore is the persistence interface for the response service.
type SessionStore interface {
	// Response lifecycle
	SaveResponse(ctx context.Context, resp *StoredResponse) error
	GetResponse(ctx context.Context, responseID string) (*StoredResponse, error)
	DeleteResponse(ctx context.Context, responseID string) error
	ListResponses(ctx context.Context, conversationID string) ([]*StoredResponse, error)

	// LinkResponses records that nextID continues previousID: nextID is
	// appended to the previous response's next ids and the next response's
	// previous pointer is set. Both responses must exist.
	LinkResponses(ctx context.Context, previousID, nextID string) error

	// Conversation management
	SaveConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	AppendConversationItems(ctx context.Context, conversationID string, items []schema.ItemField) error
}

// StoredResponse is the persisted form of a response: the API object plus
// the input snapshot, chain links, and attestation metadata.
type StoredResponse struct {
	Response *schema.Response

	// Input items the response was generated from, in order. Includes
	// items inherited from the chain or conversation.
	Input []schema.ItemField

	ConversationID     string
	PreviousResponseID string
	NextResponseIDs    []string

	// Attestation metadata recorded after the backend stream completes.
	ChatID       string
	InferenceID  string
	RequestHash  string
	ResponseHash string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Conversation accumulates items across responses that share it.
type Conversation struct {
	ID        string
	Items     []schema.ItemField
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}
