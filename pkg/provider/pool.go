// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/openresponses/inference-gw/pkg/core/api"
	"github.com/openresponses/inference-gw/pkg/observability/logging"
)

// PendingResponseHash marks a chat whose stream has started but whose
// final response hash is not yet known. The entry is overwritten once the
// stream completes.
const PendingResponseHash = "pending"

// maxSignatureEntries bounds the signature hash registry. Oldest entries
// are evicted first.
const maxSignatureEntries = 10000

// SignatureHashes is the request/response hash pair recorded for a chat.
type SignatureHashes struct {
	RequestHash  string
	ResponseHash string
}

// Backends is the registry of inference backend factories. Backend
// packages register themselves via init().
var Backends = NewRegistry[api.Provider]("inference")

// PoolEntry names one configured backend.
type PoolEntry struct {
	Name     string
	Provider api.Provider
}

// Pool routes requests across the configured inference backends. Models
// are discovered lazily: the first request triggers discovery, and an
// empty mapping (all backends down at startup) is retried on the next
// request rather than cached.
type Pool struct {
	entries []PoolEntry
	logger  *logging.Logger

	mu           sync.RWMutex
	modelMapping map[string]PoolEntry
	chatMapping  map[string]PoolEntry

	sigMu    sync.Mutex
	sigOrder []string
	sigs     map[string]SignatureHashes
}

// NewPool creates a pool over the given backends.
func NewPool(entries []PoolEntry, logger *logging.Logger) *Pool {
	return &Pool{
		entries:      entries,
		logger:       logger,
		modelMapping: make(map[string]PoolEntry),
		chatMapping:  make(map[string]PoolEntry),
		sigs:         make(map[string]SignatureHashes),
	}
}

// discoverModels queries every backend for its model list. A backend that
// fails discovery is skipped, not fatal; it will be retried the next time
// the mapping is empty.
func (p *Pool) discoverModels(ctx context.Context) {
	mapping := make(map[string]PoolEntry)
	for _, entry := range p.entries {
		models, err := entry.Provider.Models(ctx)
		if err != nil {
			p.logger.Warn("model discovery failed", "provider", entry.Name, "error", err)
			continue
		}
		for _, m := range models {
			if _, taken := mapping[m.ID]; taken {
				continue
			}
			mapping[m.ID] = entry
		}
	}
	p.mu.Lock()
	p.modelMapping = mapping
	p.mu.Unlock()
	p.logger.Info("model discovery complete", "models", len(mapping), "providers", len(p.entries))
}

func (p *Pool) ensureModelsDiscovered(ctx context.Context) {
	p.mu.RLock()
	empty := len(p.modelMapping) == 0
	p.mu.RUnlock()
	if empty {
		p.discoverModels(ctx)
	}
}

// Models returns every discovered model across all backends.
func (p *Pool) Models(ctx context.Context) ([]api.ModelInfo, error) {
	p.ensureModelsDiscovered(ctx)
	p.mu.RLock()
	defer p.mu.RUnlock()
	models := make([]api.ModelInfo, 0, len(p.modelMapping))
	for id, entry := range p.modelMapping {
		models = append(models, api.ModelInfo{ID: id, Object: "model", OwnedBy: entry.Name})
	}
	return models, nil
}

// forModel resolves the backend serving a model id.
func (p *Pool) forModel(ctx context.Context, model string) (PoolEntry, error) {
	p.ensureModelsDiscovered(ctx)
	p.mu.RLock()
	entry, ok := p.modelMapping[model]
	p.mu.RUnlock()
	if !ok {
		return PoolEntry{}, api.NewInvalidModelError(model)
	}
	return entry, nil
}

func (p *Pool) recordChatProvider(chatID string, entry PoolEntry) {
	if chatID == "" {
		return
	}
	p.mu.Lock()
	p.chatMapping[chatID] = entry
	p.mu.Unlock()
}

// ProviderForChat returns the backend that served a chat id, if known.
func (p *Pool) ProviderForChat(chatID string) (api.Provider, bool) {
	p.mu.RLock()
	entry, ok := p.chatMapping[chatID]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return entry.Provider, true
}

// CreateChatCompletion routes a unary completion by model. The chat id of
// the response is mapped to the serving backend for later signature
// lookups.
func (p *Pool) CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, requestHash string) (*api.ChatCompletionWithRaw, error) {
	entry, err := p.forModel(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	result, err := entry.Provider.CreateChatCompletion(ctx, req, requestHash)
	if err != nil {
		return nil, err
	}
	p.recordChatProvider(result.Response.ID, entry)
	return result, nil
}

// CreateChatCompletionStream routes a streaming completion by model. The
// stream is relayed through a wrapper that captures the chat id from the
// first chunk and records the chat-to-backend mapping.
func (p *Pool) CreateChatCompletionStream(ctx context.Context, req *api.ChatCompletionRequest, requestHash string) (<-chan api.StreamEvent, error) {
	entry, err := p.forModel(ctx, req.Model)
	if err != nil {
		return nil, err
	}
	upstream, err := entry.Provider.CreateChatCompletionStream(ctx, req, requestHash)
	if err != nil {
		return nil, err
	}

	events := make(chan api.StreamEvent, 10)
	go func() {
		defer close(events)
		recorded := false
		for ev := range upstream {
			if !recorded && ev.Chunk != nil && ev.Chunk.ID != "" {
				p.recordChatProvider(ev.Chunk.ID, entry)
				recorded = true
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// RegisterSignatureHashesForChat records the hash pair for a chat,
// overwriting any previous entry (including a pending placeholder). The
// registry is bounded; the oldest entry is evicted when full.
func (p *Pool) RegisterSignatureHashesForChat(chatID, requestHash, responseHash string) {
	if chatID == "" {
		return
	}
	p.sigMu.Lock()
	defer p.sigMu.Unlock()
	if _, exists := p.sigs[chatID]; !exists {
		p.sigOrder = append(p.sigOrder, chatID)
		if len(p.sigOrder) > maxSignatureEntries {
			oldest := p.sigOrder[0]
			p.sigOrder = p.sigOrder[1:]
			delete(p.sigs, oldest)
		}
	}
	p.sigs[chatID] = SignatureHashes{RequestHash: requestHash, ResponseHash: responseHash}
}

// SignatureHashesForChat returns the recorded hash pair for a chat.
func (p *Pool) SignatureHashesForChat(chatID string) (SignatureHashes, bool) {
	p.sigMu.Lock()
	defer p.sigMu.Unlock()
	h, ok := p.sigs[chatID]
	return h, ok
}

// GetSignature fetches the signature for a chat. The backend recorded for
// the chat id is tried first; if the mapping is missing (for example
// after a restart) every backend is scanned.
func (p *Pool) GetSignature(ctx context.Context, chatID string, signingAlgo string) (*api.ChatSignature, error) {
	if prov, ok := p.ProviderForChat(chatID); ok {
		sig, err := prov.GetSignature(ctx, chatID, signingAlgo)
		if err == nil {
			return sig, nil
		}
		p.logger.Warn("signature lookup failed on mapped provider", "chat_id", chatID, "error", err)
	}
	for _, entry := range p.entries {
		sig, err := entry.Provider.GetSignature(ctx, chatID, signingAlgo)
		if err == nil {
			p.recordChatProvider(chatID, entry)
			return sig, nil
		}
	}
	return nil, fmt.Errorf("no provider found with signature for chat_id: %s", chatID)
}
