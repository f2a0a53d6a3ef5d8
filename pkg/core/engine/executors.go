// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openresponses/inference-gw/pkg/mcp"
	"github.com/openresponses/inference-gw/pkg/websearch"
)

// maxConsecutiveToolFailures aborts the agent loop when the same tool keeps
// failing, instead of burning iterations re-asking the model to retry it.
const maxConsecutiveToolFailures = 3

// errToolFailureLimit wraps the final failure once a tool hits the
// consecutive-failure cap.
var errToolFailureLimit = errors.New("tool failure limit reached")

// FunctionCallRequired signals that a tool call must be executed by the
// client. It is an error so it travels the executor error path; the
// orchestrator converts it into an incomplete response instead of a failure.
type FunctionCallRequired struct {
	Name   string
	CallID string
}

func (e *FunctionCallRequired) Error() string {
	return fmt.Sprintf("function call required: %s (call_id=%s)", e.Name, e.CallID)
}

// ToolExecutor executes one kind of tool call. Executors are tried in
// registration order; the first whose CanHandle returns true owns the call.
type ToolExecutor interface {
	Name() string
	CanHandle(toolType string) bool
	Execute(ctx context.Context, call ToolCallInfo) (string, error)
}

// VectorSearcher performs similarity search for the file_search tool. The
// vector store itself is an external collaborator; only the search contract
// is part of the gateway.
type VectorSearcher interface {
	Search(ctx context.Context, vectorStoreIDs []string, query string, maxResults int) ([]FileSearchResult, error)
}

// FileSearchResult is one hit returned by a VectorSearcher.
type FileSearchResult struct {
	FileID   string
	Filename string
	Content  string
	Score    float64
}

// MCPConnector dispatches tool calls to MCP servers by server label.
// Implemented by mcp.Manager.
type MCPConnector interface {
	ListTools(ctx context.Context, serverLabel string) ([]mcp.ToolInfo, error)
	CallTool(ctx context.Context, serverLabel, toolName string, args map[string]interface{}) (string, error)
}

// dispatcher routes classified tool calls to executors and tracks
// consecutive failures per tool. One dispatcher serves one response stream.
type dispatcher struct {
	executors []ToolExecutor
	failures  map[string]int
}

func newDispatcher(executors []ToolExecutor) *dispatcher {
	return &dispatcher{
		executors: executors,
		failures:  map[string]int{},
	}
}

// Dispatch executes one call. A *FunctionCallRequired error passes through
// untouched for the orchestrator to handle. Ordinary executor failures are
// converted into a tool-result message for the model until the same tool
// fails maxConsecutiveToolFailures times in a row, at which point the error
// is terminal.
func (d *dispatcher) Dispatch(ctx context.Context, call ToolCallInfo) (string, error) {
	exec := d.executorFor(call.ToolType)
	if exec == nil {
		return fmt.Sprintf("No tool available to handle %q.", call.ToolType), nil
	}

	result, err := exec.Execute(ctx, call)
	if err != nil {
		var fcr *FunctionCallRequired
		if errors.As(err, &fcr) {
			return "", err
		}
		d.failures[call.ToolType]++
		if d.failures[call.ToolType] >= maxConsecutiveToolFailures {
			return "", fmt.Errorf("tool %q failed %d consecutive times: %v: %w",
				call.ToolType, d.failures[call.ToolType], err, errToolFailureLimit)
		}
		return fmt.Sprintf("Error executing tool %q: %v", call.ToolType, err), nil
	}

	d.failures[call.ToolType] = 0
	return result, nil
}

func (d *dispatcher) executorFor(toolType string) ToolExecutor {
	for _, e := range d.executors {
		if e.CanHandle(toolType) {
			return e
		}
	}
	return nil
}

// errorExecutor turns synthetic error calls into tool results so malformed
// provider output is fed back to the model as a normal turn.
type errorExecutor struct{}

func (errorExecutor) Name() string { return "error" }

func (errorExecutor) CanHandle(toolType string) bool { return toolType == ErrorToolType }

func (errorExecutor) Execute(_ context.Context, call ToolCallInfo) (string, error) {
	return call.Query, nil
}

// sourceRecorder accumulates the numbered sources produced by web search so
// citations emitted by the model can be resolved to URLs later in the same
// stream. Source ids are assigned in discovery order across all searches in
// one response.
type sourceRecorder struct {
	sources []websearch.SearchResult
}

func (r *sourceRecorder) add(results []websearch.SearchResult) int {
	offset := len(r.sources)
	r.sources = append(r.sources, results...)
	return offset
}

func (r *sourceRecorder) get(id int) (websearch.SearchResult, bool) {
	if id < 0 || id >= len(r.sources) {
		return websearch.SearchResult{}, false
	}
	return r.sources[id], true
}

// webSearchExecutor runs the web_search built-in via a websearch.Provider.
type webSearchExecutor struct {
	provider   websearch.Provider
	recorder   *sourceRecorder
	maxResults int
}

func (webSearchExecutor) Name() string { return "web_search" }

func (webSearchExecutor) CanHandle(toolType string) bool {
	return toolType == "web_search"
}

func (e *webSearchExecutor) Execute(ctx context.Context, call ToolCallInfo) (string, error) {
	maxResults := e.maxResults
	if n, ok := call.Params["count"].(float64); ok && int(n) > 0 {
		maxResults = int(n)
	}
	results, err := e.provider.Search(ctx, call.Query, maxResults)
	if err != nil {
		return "", fmt.Errorf("web search: %w", err)
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	offset := e.recorder.add(results)

	var sb strings.Builder
	sb.WriteString("Web search results:\n\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n%s\n\n", offset+i, r.Title, r.URL, r.Snippet)
	}
	sb.WriteString("Cite supporting sources in your answer with [s:N]...[/s:N] tags, where N is the source number.")
	return sb.String(), nil
}

// fileSearchExecutor runs the file_search built-in behind the VectorSearcher
// port.
type fileSearchExecutor struct {
	searcher       VectorSearcher
	vectorStoreIDs []string
	maxResults     int
}

func (fileSearchExecutor) Name() string { return "file_search" }

func (fileSearchExecutor) CanHandle(toolType string) bool {
	return toolType == "file_search"
}

func (e *fileSearchExecutor) Execute(ctx context.Context, call ToolCallInfo) (string, error) {
	results, err := e.searcher.Search(ctx, e.vectorStoreIDs, call.Query, e.maxResults)
	if err != nil {
		return "", fmt.Errorf("file search: %w", err)
	}
	if len(results) == 0 {
		return "No relevant results found.", nil
	}

	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		fmt.Fprintf(&sb, "[File: %s, Score: %.4f]\n%s", r.FileID, r.Score, r.Content)
	}
	return sb.String(), nil
}

// mcpExecutor routes "label:tool" calls to the MCP connector.
type mcpExecutor struct {
	connector MCPConnector
}

func (mcpExecutor) Name() string { return "mcp" }

func (mcpExecutor) CanHandle(toolType string) bool {
	return strings.Contains(toolType, ":")
}

func (e *mcpExecutor) Execute(ctx context.Context, call ToolCallInfo) (string, error) {
	label, tool, ok := strings.Cut(call.ToolType, ":")
	if !ok || label == "" || tool == "" {
		return "", fmt.Errorf("malformed mcp tool name %q", call.ToolType)
	}
	result, err := e.connector.CallTool(ctx, label, tool, call.Params)
	if err != nil {
		return "", fmt.Errorf("mcp %s: %w", call.ToolType, err)
	}
	return result, nil
}

// functionExecutor claims client-declared function names plus the
// client-executed built-ins. It never runs anything; Execute always returns
// FunctionCallRequired so the orchestrator pauses the response and waits for
// a function_call_output on resume.
type functionExecutor struct {
	names map[string]bool
}

func (functionExecutor) Name() string { return "function" }

func (e *functionExecutor) CanHandle(toolType string) bool {
	return e.names[toolType] || toolType == toolCodeInterpreter || toolType == toolComputer
}

func (e *functionExecutor) Execute(_ context.Context, call ToolCallInfo) (string, error) {
	return "", &FunctionCallRequired{Name: call.ToolType, CallID: call.ID}
}
