// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Conversation represents a conversation
type Conversation struct {
	ID        string            `json:"id"`         // Format: "conv_{hex}"
	Object    string            `json:"object"`     // Always "conversation"
	CreatedAt int64             `json:"created_at"` // Unix timestamp
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CreateConversationRequest represents a request to create a conversation
type CreateConversationRequest struct {
	Metadata map[string]string `json:"metadata,omitempty"`
	Items    []ItemField       `json:"items,omitempty"` // Initial items
}

// DeleteConversationResponse represents the response from deleting a conversation
type DeleteConversationResponse struct {
	ID      string `json:"id"`      // Conversation ID
	Object  string `json:"object"`  // Always "conversation.deleted"
	Deleted bool   `json:"deleted"` // Always true
}

// AddConversationItemsRequest represents a request to add items to a conversation
type AddConversationItemsRequest struct {
	Items []ItemField `json:"items"`
}

// ListConversationItemsResponse represents a list of conversation items
type ListConversationItemsResponse struct {
	Object  string      `json:"object"`             // Always "list"
	Data    []ItemField `json:"data"`               // Array of items
	FirstID string      `json:"first_id,omitempty"` // ID of first item
	LastID  string      `json:"last_id,omitempty"`  // ID of last item
	HasMore bool        `json:"has_more"`           // Whether there are more results
}
