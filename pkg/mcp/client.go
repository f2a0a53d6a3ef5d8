// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/openresponses/inference-gw/pkg/observability/logging"
)

const protocolVersion = "2025-03-26"

// Client speaks JSON-RPC 2.0 to a single MCP server over the
// streamable-http transport. One client holds at most one session; the
// Mcp-Session-Id header from the initialize response is replayed on every
// later request.
type Client struct {
	http    *http.Client
	url     string
	session string
	logger  *logging.Logger
	seq     atomic.Int64
}

// NewClient returns an uninitialized client for the server at serverURL.
// Initialize must succeed before tool methods are used.
func NewClient(serverURL string, logger *logging.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		url:    serverURL,
		logger: logger,
	}
}

// Initialize performs the handshake, records the session ID, and sends the
// initialized notification the protocol requires before tool traffic.
func (c *Client) Initialize(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: protocolVersion,
		ClientInfo:      peerInfo{Name: "inference-gw", Version: "0.1.0"},
		Capabilities:    map[string]any{},
	}

	raw, headers, err := c.roundTrip(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("mcp initialize: %w", err)
	}
	if sid := headers.Get("Mcp-Session-Id"); sid != "" {
		c.session = sid
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("mcp initialize: unmarshal result: %w", err)
	}
	c.logger.Debug("mcp session established",
		"url", c.url,
		"server", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion)

	// The server gives no reply to a notification; a delivery failure here
	// surfaces on the first real call instead.
	if err := c.notify(ctx, "notifications/initialized"); err != nil {
		c.logger.Warn("mcp initialized notification failed", "url", c.url, "error", err)
	}
	return nil
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := c.rpc(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("mcp tools/list: %w", err)
	}
	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcp tools/list: unmarshal result: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes one tool and returns its text content blocks joined by
// newlines. isError reports the protocol-level failure flag; the text then
// carries the server's diagnostic.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (text string, isError bool, err error) {
	raw, err := c.rpc(ctx, "tools/call", toolCallParams{Name: name, Arguments: args})
	if err != nil {
		return "", false, fmt.Errorf("mcp tools/call %s: %w", name, err)
	}
	var result toolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", false, fmt.Errorf("mcp tools/call %s: unmarshal result: %w", name, err)
	}

	var parts []string
	for _, block := range result.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n"), result.IsError, nil
}

func (c *Client) rpc(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, _, err := c.roundTrip(ctx, method, params)
	return raw, err
}

// roundTrip sends one JSON-RPC request and decodes the result, unwrapping
// the SSE framing servers on the streamable-http transport may apply.
func (c *Client) roundTrip(ctx context.Context, method string, params any) (json.RawMessage, http.Header, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      int(c.seq.Add(1)),
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, body)
	if err != nil {
		return nil, nil, err
	}
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, nil, fmt.Errorf("http status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var respBody []byte
	if strings.HasPrefix(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		respBody, err = firstSSEData(httpResp.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("parse SSE response: %w", err)
		}
	} else {
		respBody, err = io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("read response: %w", err)
		}
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, nil, fmt.Errorf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, httpResp.Header, nil
}

// notify sends a JSON-RPC notification. Notifications carry no id and get
// no response body worth reading.
func (c *Client) notify(ctx context.Context, method string) error {
	body, err := json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
	}{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}

	httpReq, err := c.newRequest(ctx, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if c.session != "" {
		req.Header.Set("Mcp-Session-Id", c.session)
	}
	return req, nil
}

// firstSSEData returns the payload of the first data line in an SSE body.
// Servers wrap a single JSON-RPC response as "event: message\ndata: {...}".
func firstSSEData(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if data, ok := strings.CutPrefix(scanner.Text(), "data: "); ok {
			return []byte(data), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("no data line found in SSE stream")
}
