// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/openresponses/inference-gw/pkg/core/api"
	"github.com/openresponses/inference-gw/pkg/observability/logging"
)

// fakeProvider serves a fixed model list and scripted stream.
type fakeProvider struct {
	models     []api.ModelInfo
	modelsErr  error
	chatID     string
	signatures map[string]*api.ChatSignature
	modelCalls int
}

func (f *fakeProvider) Models(ctx context.Context) ([]api.ModelInfo, error) {
	f.modelCalls++
	if f.modelsErr != nil {
		return nil, f.modelsErr
	}
	return f.models, nil
}

func (f *fakeProvider) CreateChatCompletionStream(ctx context.Context, req *api.ChatCompletionRequest, requestHash string) (<-chan api.StreamEvent, error) {
	events := make(chan api.StreamEvent, 2)
	events <- api.StreamEvent{Chunk: &api.StreamChunk{ID: f.chatID, Object: "chat.completion.chunk", Model: req.Model}}
	close(events)
	return events, nil
}

func (f *fakeProvider) CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, requestHash string) (*api.ChatCompletionWithRaw, error) {
	return &api.ChatCompletionWithRaw{
		Response: &api.ChatCompletionResponse{ID: f.chatID, Model: req.Model},
		RawBytes: []byte("{}"),
	}, nil
}

func (f *fakeProvider) GetSignature(ctx context.Context, chatID string, signingAlgo string) (*api.ChatSignature, error) {
	if sig, ok := f.signatures[chatID]; ok {
		return sig, nil
	}
	return nil, errors.New("not found")
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Output: io.Discard})
}

func TestPoolRoutesByModel(t *testing.T) {
	a := &fakeProvider{models: []api.ModelInfo{{ID: "model-a"}}, chatID: "chat-a"}
	b := &fakeProvider{models: []api.ModelInfo{{ID: "model-b"}}, chatID: "chat-b"}
	pool := NewPool([]PoolEntry{{Name: "a", Provider: a}, {Name: "b", Provider: b}}, testLogger())

	result, err := pool.CreateChatCompletion(context.Background(), &api.ChatCompletionRequest{Model: "model-b"}, "h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Response.ID != "chat-b" {
		t.Errorf("routed to wrong provider, chat id = %q", result.Response.ID)
	}

	if prov, ok := pool.ProviderForChat("chat-b"); !ok || prov != api.Provider(b) {
		t.Error("chat id not mapped to serving provider")
	}
}

func TestPoolUnknownModel(t *testing.T) {
	a := &fakeProvider{models: []api.ModelInfo{{ID: "model-a"}}}
	pool := NewPool([]PoolEntry{{Name: "a", Provider: a}}, testLogger())

	_, err := pool.CreateChatCompletion(context.Background(), &api.ChatCompletionRequest{Model: "nope"}, "h")
	var ce *api.CompletionError
	if !errors.As(err, &ce) || ce.Kind != api.ErrKindInvalidModel {
		t.Fatalf("expected invalid model error, got %v", err)
	}
}

func TestPoolDiscoveryRetriesWhenEmpty(t *testing.T) {
	a := &fakeProvider{modelsErr: errors.New("down")}
	pool := NewPool([]PoolEntry{{Name: "a", Provider: a}}, testLogger())

	_, err := pool.CreateChatCompletion(context.Background(), &api.ChatCompletionRequest{Model: "model-a"}, "h")
	if err == nil {
		t.Fatal("expected error while provider is down")
	}
	firstCalls := a.modelCalls

	// Provider recovers; the empty mapping must trigger rediscovery.
	a.modelsErr = nil
	a.models = []api.ModelInfo{{ID: "model-a"}}
	a.chatID = "chat-1"
	if _, err := pool.CreateChatCompletion(context.Background(), &api.ChatCompletionRequest{Model: "model-a"}, "h"); err != nil {
		t.Fatalf("expected success after recovery, got %v", err)
	}
	if a.modelCalls <= firstCalls {
		t.Error("discovery was not retried after empty mapping")
	}
}

func TestPoolStreamRecordsChatMapping(t *testing.T) {
	a := &fakeProvider{models: []api.ModelInfo{{ID: "model-a"}}, chatID: "chat-xyz"}
	pool := NewPool([]PoolEntry{{Name: "a", Provider: a}}, testLogger())

	events, err := pool.CreateChatCompletionStream(context.Background(), &api.ChatCompletionRequest{Model: "model-a"}, "h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for range events {
	}

	if _, ok := pool.ProviderForChat("chat-xyz"); !ok {
		t.Error("streamed chat id was not mapped")
	}
}

func TestPoolSignatureFallbackScan(t *testing.T) {
	sig := &api.ChatSignature{Text: "r:s", Signature: "sig"}
	a := &fakeProvider{models: []api.ModelInfo{{ID: "model-a"}}}
	b := &fakeProvider{signatures: map[string]*api.ChatSignature{"chat-77": sig}}
	pool := NewPool([]PoolEntry{{Name: "a", Provider: a}, {Name: "b", Provider: b}}, testLogger())

	// No chat mapping exists; the pool must scan all providers.
	got, err := pool.GetSignature(context.Background(), "chat-77", "ecdsa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != sig {
		t.Error("wrong signature returned")
	}

	// The successful scan should have recorded the mapping.
	if prov, ok := pool.ProviderForChat("chat-77"); !ok || prov != api.Provider(b) {
		t.Error("fallback scan did not record chat mapping")
	}

	if _, err := pool.GetSignature(context.Background(), "chat-missing", "ecdsa"); err == nil {
		t.Error("expected error for unknown chat id")
	}
}

func TestPoolSignatureHashRegistryOverwritesPending(t *testing.T) {
	pool := NewPool(nil, testLogger())

	pool.RegisterSignatureHashesForChat("chat-1", "req", PendingResponseHash)
	h, ok := pool.SignatureHashesForChat("chat-1")
	if !ok || h.ResponseHash != PendingResponseHash {
		t.Fatalf("pending entry missing: %+v", h)
	}

	pool.RegisterSignatureHashesForChat("chat-1", "req", "final")
	h, _ = pool.SignatureHashesForChat("chat-1")
	if h.ResponseHash != "final" {
		t.Errorf("pending entry not overwritten: %+v", h)
	}
}

func TestPoolSignatureHashRegistryEvictsOldest(t *testing.T) {
	pool := NewPool(nil, testLogger())

	for i := 0; i <= maxSignatureEntries; i++ {
		pool.RegisterSignatureHashesForChat(fmt.Sprintf("chat-%d", i), "req", "resp")
	}

	if _, ok := pool.SignatureHashesForChat("chat-0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := pool.SignatureHashesForChat(fmt.Sprintf("chat-%d", maxSignatureEntries)); !ok {
		t.Error("newest entry missing")
	}
}
