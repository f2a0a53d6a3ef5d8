// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openresponses/inference-gw/pkg/core/api"
)

// ErrorToolType is the reserved tool type for malformed tool calls. The
// diagnostic message travels back to the model as a synthetic tool result,
// so a bad call degrades into a recoverable turn instead of aborting the
// response.
const ErrorToolType = "__error__"

// Tool names the model may call that are executed by the client, not the
// gateway. They follow the same pause protocol as declared functions.
const (
	toolCodeInterpreter = "code_interpreter"
	toolComputer        = "computer"
)

// accumulatedCall collects the fragments of one tool call. Streaming deltas
// scatter the id, name and argument characters across many chunks, indexed
// by position in the parallel tool-calls array.
type accumulatedCall struct {
	ID        string
	Name      string
	Arguments string
}

// toolCallAccumulator merges tool-call deltas by index. Arguments are only
// parsed once the stream signals the calls are complete.
type toolCallAccumulator struct {
	calls []accumulatedCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{}
}

// Add merges one streaming delta into the accumulator.
func (a *toolCallAccumulator) Add(delta api.ToolCallDelta) {
	for len(a.calls) <= delta.Index {
		a.calls = append(a.calls, accumulatedCall{})
	}
	c := &a.calls[delta.Index]
	if delta.ID != "" {
		c.ID = delta.ID
	}
	if delta.Function.Name != "" {
		c.Name += delta.Function.Name
	}
	c.Arguments += delta.Function.Arguments
}

// Empty reports whether any fragment has been accumulated.
func (a *toolCallAccumulator) Empty() bool {
	return len(a.calls) == 0
}

// Drain returns the accumulated calls in index order and resets the
// accumulator for the next provider turn.
func (a *toolCallAccumulator) Drain() []accumulatedCall {
	calls := a.calls
	a.calls = nil
	return calls
}

// ToolCallInfo is the classified form of one accumulated tool call, consumed
// by the dispatcher. ToolType is the tool name, a "label:tool" MCP name, or
// ErrorToolType for malformed calls (Query then carries the diagnostic).
type ToolCallInfo struct {
	ID           string
	ToolType     string
	Query        string
	Params       map[string]interface{}
	RawArguments string
}

// IsError reports whether this call is a synthetic error entry.
func (t ToolCallInfo) IsError() bool {
	return t.ToolType == ErrorToolType
}

// IsMCP reports whether the call routes to an MCP server.
func (t ToolCallInfo) IsMCP() bool {
	return strings.Contains(t.ToolType, ":")
}

// convertToolCalls classifies each accumulated call. functionNames are the
// client-declared function tools for this request; they are accepted without
// the query convention since the client executes them. A call with an empty
// name is inferred only when exactly one tool is available; everything else
// malformed becomes an ErrorToolType entry so the batch always yields one
// result per index.
func convertToolCalls(calls []accumulatedCall, functionNames map[string]bool, availableNames []string) []ToolCallInfo {
	infos := make([]ToolCallInfo, 0, len(calls))
	for idx, c := range calls {
		infos = append(infos, classifyCall(idx, c, functionNames, availableNames))
	}
	return infos
}

func classifyCall(idx int, c accumulatedCall, functionNames map[string]bool, availableNames []string) ToolCallInfo {
	name := strings.TrimSpace(c.Name)

	if name == "" {
		if len(availableNames) == 1 {
			name = availableNames[0]
		} else {
			return ToolCallInfo{
				ID:       c.ID,
				ToolType: ErrorToolType,
				Query: fmt.Sprintf(
					"Tool call at index %d is missing a tool name. This may be due to malformed provider output. Arguments provided: %s",
					idx, c.Arguments),
				Params: map[string]interface{}{
					"error_type": "missing_tool_name",
					"index":      idx,
					"arguments":  c.Arguments,
				},
				RawArguments: c.Arguments,
			}
		}
	}

	if strings.Contains(name, ":") {
		params, err := parseToolArguments(name, c.Arguments)
		if err != nil {
			return invalidJSONCall(c, name)
		}
		return ToolCallInfo{
			ID:           c.ID,
			ToolType:     name,
			Params:       params,
			RawArguments: c.Arguments,
		}
	}

	params, err := parseToolArguments(name, c.Arguments)
	if err != nil {
		return invalidJSONCall(c, name)
	}

	if functionNames[name] || name == toolCodeInterpreter || name == toolComputer {
		return ToolCallInfo{
			ID:           c.ID,
			ToolType:     name,
			Params:       params,
			RawArguments: c.Arguments,
		}
	}

	if query, ok := params["query"].(string); ok {
		return ToolCallInfo{
			ID:           c.ID,
			ToolType:     name,
			Query:        query,
			Params:       params,
			RawArguments: c.Arguments,
		}
	}

	return ToolCallInfo{
		ID:       c.ID,
		ToolType: ErrorToolType,
		Query: fmt.Sprintf(
			"Tool call %q is missing the required 'query' field. Arguments provided: %s",
			name, c.Arguments),
		Params: map[string]interface{}{
			"error_type": "missing_query_field",
			"tool_name":  name,
			"arguments":  c.Arguments,
		},
		RawArguments: c.Arguments,
	}
}

func invalidJSONCall(c accumulatedCall, name string) ToolCallInfo {
	return ToolCallInfo{
		ID:       c.ID,
		ToolType: ErrorToolType,
		Query: fmt.Sprintf(
			"Tool call %q has invalid JSON arguments: %s",
			name, c.Arguments),
		Params: map[string]interface{}{
			"error_type": "invalid_json",
			"tool_name":  name,
			"arguments":  c.Arguments,
		},
		RawArguments: c.Arguments,
	}
}

// parseToolArguments parses accumulated argument JSON. Empty arguments mean
// an empty object. Repair is attempted for web_search only, where providers
// are known to truncate long argument payloads mid-stream.
func parseToolArguments(name, arguments string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(arguments)
	if trimmed == "" {
		return map[string]interface{}{}, nil
	}

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &params); err == nil {
		return params, nil
	}

	if name != "web_search" {
		return nil, fmt.Errorf("invalid JSON arguments for %q", name)
	}
	return repairWebSearchArguments(trimmed)
}

// repairWebSearchArguments recovers a usable object from truncated or
// mangled web_search arguments. Tried in order: close the JSON as-is,
// extract the first balanced object, re-add a dropped opening brace, then
// progressively truncate from the tail closing at each step.
func repairWebSearchArguments(raw string) (map[string]interface{}, error) {
	if params, ok := tryParseObject(tryCloseJSON(raw)); ok {
		return params, nil
	}

	if candidate := findFirstCompleteObject(raw); candidate != "" {
		if params, ok := tryParseObject(candidate); ok {
			return params, nil
		}
	}

	if !strings.HasPrefix(raw, "{") {
		prefixed := raw
		if strings.HasPrefix(raw, `"query`) || strings.HasPrefix(raw, "query") {
			if !strings.HasPrefix(raw, `"`) {
				prefixed = `"` + raw
			}
			prefixed = "{" + prefixed
		} else {
			prefixed = "{" + raw
		}
		if params, ok := tryParseObject(tryCloseJSON(prefixed)); ok {
			return params, nil
		}
	}

	for end := len(raw) - 1; end > 0; end-- {
		if params, ok := tryParseObject(tryCloseJSON(raw[:end])); ok {
			return params, nil
		}
	}

	return nil, fmt.Errorf("unrepairable web_search arguments")
}

func tryParseObject(s string) (map[string]interface{}, bool) {
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(s), &params); err != nil {
		return nil, false
	}
	return params, true
}

// tryCloseJSON appends the closers a truncated JSON document is missing: a
// quote if truncation happened inside a string, then brackets and braces in
// nesting order.
func tryCloseJSON(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}

	// Truncation inside an escape sequence leaves a dangling backslash.
	if escaped {
		s = s[:len(s)-1]
	}
	if inString {
		s += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}

// findFirstCompleteObject returns the first balanced {...} span in s, or ""
// when no object closes before the input ends.
func findFirstCompleteObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
