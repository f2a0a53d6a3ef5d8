// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"fmt"
	"sync"

	"github.com/openresponses/inference-gw/pkg/observability/logging"
)

// Manager routes tool calls to MCP servers by label. Clients are created
// and initialized lazily on first use, then shared across requests. Tool
// lists are cached after the first discovery; concurrent readers share the
// cache while refreshes are serialized by the write lock.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]string
	clients map[string]*Client
	tools   map[string][]ToolInfo
	logger  *logging.Logger
}

// NewManager creates a manager for the given label to server URL mapping.
func NewManager(servers map[string]string, logger *logging.Logger) *Manager {
	return &Manager{
		servers: servers,
		clients: map[string]*Client{},
		tools:   map[string][]ToolInfo{},
		logger:  logger,
	}
}

// Labels returns the configured server labels.
func (m *Manager) Labels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	labels := make([]string, 0, len(m.servers))
	for label := range m.servers {
		labels = append(labels, label)
	}
	return labels
}

func (m *Manager) clientFor(ctx context.Context, label string) (*Client, error) {
	m.mu.RLock()
	client, ok := m.clients[label]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.clients[label]; ok {
		return client, nil
	}

	url, ok := m.servers[label]
	if !ok {
		return nil, fmt.Errorf("unknown mcp server label %q", label)
	}
	client = NewClient(url, m.logger)
	if err := client.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("mcp server %q initialize: %w", label, err)
	}
	m.logger.Info("mcp server connected", "label", label)
	m.clients[label] = client
	return client, nil
}

// ListTools returns the tools exposed by the labeled server, cached after
// the first call.
func (m *Manager) ListTools(ctx context.Context, label string) ([]ToolInfo, error) {
	m.mu.RLock()
	tools, ok := m.tools[label]
	m.mu.RUnlock()
	if ok {
		return tools, nil
	}

	client, err := m.clientFor(ctx, label)
	if err != nil {
		return nil, err
	}
	tools, err = client.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp server %q list tools: %w", label, err)
	}

	m.mu.Lock()
	m.tools[label] = tools
	m.mu.Unlock()
	return tools, nil
}

// CallTool invokes one tool on the labeled server and returns its text
// output.
func (m *Manager) CallTool(ctx context.Context, label, toolName string, args map[string]interface{}) (string, error) {
	client, err := m.clientFor(ctx, label)
	if err != nil {
		return "", err
	}
	text, isError, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		return "", err
	}
	if isError {
		return "", fmt.Errorf("tool %q returned an error: %s", toolName, text)
	}
	return text, nil
}
