// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlite is the SQLite-backed SessionStore, suitable for
// single-node deployments that need persistence without a database
// server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openresponses/inference-gw/pkg/core/schema"
	"github.com/openresponses/inference-gw/pkg/core/state"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed implementation of state.SessionStore.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store. path is a filesystem path or ":memory:".
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// The driver serializes access per connection; a single connection
	// avoids table-lock errors under concurrent writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL DEFAULT '',
			previous_response_id TEXT NOT NULL DEFAULT '',
			next_response_ids TEXT NOT NULL DEFAULT '[]',
			response TEXT NOT NULL,
			input TEXT NOT NULL DEFAULT '[]',
			chat_id TEXT NOT NULL DEFAULT '',
			inference_id TEXT NOT NULL DEFAULT '',
			request_hash TEXT NOT NULL DEFAULT '',
			response_hash TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_conversation ON responses(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_created ON responses(created_at)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			items TEXT NOT NULL DEFAULT '[]',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("sqlite create tables: %w", err)
		}
	}
	return nil
}

func marshalJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SaveResponse inserts or replaces a response.
func (s *Store) SaveResponse(ctx context.Context, resp *state.StoredResponse) error {
	responseJSON, err := marshalJSON(resp.Response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	inputJSON, err := marshalJSON(resp.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	nextJSON, err := marshalJSON(resp.NextResponseIDs)
	if err != nil {
		return fmt.Errorf("marshal next ids: %w", err)
	}

	now := time.Now()
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = now
	}
	resp.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO responses
		 (id, conversation_id, previous_response_id, next_response_ids, response, input,
		  chat_id, inference_id, request_hash, response_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   conversation_id=excluded.conversation_id,
		   previous_response_id=excluded.previous_response_id,
		   next_response_ids=excluded.next_response_ids,
		   response=excluded.response,
		   input=excluded.input,
		   chat_id=excluded.chat_id,
		   inference_id=excluded.inference_id,
		   request_hash=excluded.request_hash,
		   response_hash=excluded.response_hash,
		   updated_at=excluded.updated_at`,
		resp.Response.ID, resp.ConversationID, resp.PreviousResponseID, nextJSON,
		responseJSON, inputJSON, resp.ChatID, resp.InferenceID, resp.RequestHash,
		resp.ResponseHash, resp.CreatedAt, resp.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save response: %w", err)
	}
	return nil
}

// GetResponse retrieves a response by id.
func (s *Store) GetResponse(ctx context.Context, responseID string) (*state.StoredResponse, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, previous_response_id, next_response_ids, response, input,
		        chat_id, inference_id, request_hash, response_hash, created_at, updated_at
		 FROM responses WHERE id = ?`, responseID)
	resp, err := scanResponse(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("response %s: %w", responseID, state.ErrNotFound)
	}
	return resp, err
}

// DeleteResponse removes a response.
func (s *Store) DeleteResponse(ctx context.Context, responseID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE id=?`, responseID)
	if err != nil {
		return fmt.Errorf("delete response: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("response %s: %w", responseID, state.ErrNotFound)
	}
	return nil
}

// ListResponses returns the responses of a conversation ordered by
// creation time.
func (s *Store) ListResponses(ctx context.Context, conversationID string) ([]*state.StoredResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, previous_response_id, next_response_ids, response, input,
		        chat_id, inference_id, request_hash, response_hash, created_at, updated_at
		 FROM responses WHERE conversation_id=? ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var resps []*state.StoredResponse
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		resps = append(resps, resp)
	}
	return resps, rows.Err()
}

// LinkResponses records the chain edge between two stored responses.
func (s *Store) LinkResponses(ctx context.Context, previousID, nextID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link: %w", err)
	}
	defer tx.Rollback()

	var nextJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT next_response_ids FROM responses WHERE id=?`, previousID).Scan(&nextJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("previous response %s: %w", previousID, state.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load previous response: %w", err)
	}

	var nextIDs []string
	if err := json.Unmarshal([]byte(nextJSON), &nextIDs); err != nil {
		return fmt.Errorf("unmarshal next ids: %w", err)
	}
	linked := false
	for _, id := range nextIDs {
		if id == nextID {
			linked = true
			break
		}
	}
	if !linked {
		nextIDs = append(nextIDs, nextID)
		updated, err := marshalJSON(nextIDs)
		if err != nil {
			return fmt.Errorf("marshal next ids: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE responses SET next_response_ids=? WHERE id=?`, updated, previousID); err != nil {
			return fmt.Errorf("update previous response: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE responses SET previous_response_id=? WHERE id=?`, previousID, nextID)
	if err != nil {
		return fmt.Errorf("update next response: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("next response %s: %w", nextID, state.ErrNotFound)
	}

	return tx.Commit()
}

// SaveConversation inserts or replaces a conversation.
func (s *Store) SaveConversation(ctx context.Context, conv *state.Conversation) error {
	itemsJSON, err := marshalJSON(conv.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	metaJSON, err := marshalJSON(conv.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	conv.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, items, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   items=excluded.items, metadata=excluded.metadata, updated_at=excluded.updated_at`,
		conv.ID, itemsJSON, metaJSON, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by id.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*state.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, items, metadata, created_at, updated_at
		 FROM conversations WHERE id = ?`, conversationID)

	var (
		conv               state.Conversation
		itemsJSON, metaStr string
	)
	err := row.Scan(&conv.ID, &itemsJSON, &metaStr, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, state.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if err := json.Unmarshal([]byte(itemsJSON), &conv.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal([]byte(metaStr), &conv.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &conv, nil
}

// DeleteConversation removes a conversation.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=?`, conversationID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, state.ErrNotFound)
	}
	return nil
}

// AppendConversationItems adds items to a conversation's history.
func (s *Store) AppendConversationItems(ctx context.Context, conversationID string, items []schema.ItemField) error {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.Items = append(conv.Items, items...)
	return s.SaveConversation(ctx, conv)
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanResponse(row scannable) (*state.StoredResponse, error) {
	var (
		resp                            state.StoredResponse
		id                              string
		nextJSON, responseStr, inputStr string
	)
	err := row.Scan(&id, &resp.ConversationID, &resp.PreviousResponseID, &nextJSON,
		&responseStr, &inputStr, &resp.ChatID, &resp.InferenceID, &resp.RequestHash,
		&resp.ResponseHash, &resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(nextJSON), &resp.NextResponseIDs); err != nil {
		return nil, fmt.Errorf("unmarshal next ids: %w", err)
	}
	resp.Response = &schema.Response{}
	if err := json.Unmarshal([]byte(responseStr), resp.Response); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := json.Unmarshal([]byte(inputStr), &resp.Input); err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	return &resp, nil
}
