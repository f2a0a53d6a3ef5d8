// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"reflect"
	"testing"

	"github.com/openresponses/inference-gw/pkg/core/api"
)

func deltasFor(index int, id, name, args string, fragment int) []api.ToolCallDelta {
	var deltas []api.ToolCallDelta
	deltas = append(deltas, api.ToolCallDelta{
		Index:    index,
		ID:       id,
		Function: api.ToolCallFunctionDelta{Name: name},
	})
	if fragment <= 0 || fragment >= len(args) {
		deltas = append(deltas, api.ToolCallDelta{
			Index:    index,
			Function: api.ToolCallFunctionDelta{Arguments: args},
		})
		return deltas
	}
	for i := 0; i < len(args); i += fragment {
		end := i + fragment
		if end > len(args) {
			end = len(args)
		}
		deltas = append(deltas, api.ToolCallDelta{
			Index:    index,
			Function: api.ToolCallFunctionDelta{Arguments: args[i:end]},
		})
	}
	return deltas
}

func TestAccumulatorFragmentationInvariance(t *testing.T) {
	args := `{"query": "weather in Paris", "count": 3}`

	var reference []accumulatedCall
	for _, fragment := range []int{0, 1, 3, 7, len(args)} {
		accum := newToolCallAccumulator()
		for _, d := range deltasFor(0, "call_1", "web_search", args, fragment) {
			accum.Add(d)
		}
		calls := accum.Drain()
		if reference == nil {
			reference = calls
			continue
		}
		if !reflect.DeepEqual(calls, reference) {
			t.Errorf("fragment size %d produced %+v, want %+v", fragment, calls, reference)
		}
	}

	if reference[0].Arguments != args {
		t.Errorf("accumulated arguments = %q, want %q", reference[0].Arguments, args)
	}
}

func TestAccumulatorInterleavedIndexes(t *testing.T) {
	accum := newToolCallAccumulator()
	accum.Add(api.ToolCallDelta{Index: 0, ID: "call_a", Function: api.ToolCallFunctionDelta{Name: "lookup"}})
	accum.Add(api.ToolCallDelta{Index: 1, ID: "call_b", Function: api.ToolCallFunctionDelta{Name: "fetch"}})
	accum.Add(api.ToolCallDelta{Index: 0, Function: api.ToolCallFunctionDelta{Arguments: `{"a":`}})
	accum.Add(api.ToolCallDelta{Index: 1, Function: api.ToolCallFunctionDelta{Arguments: `{"b":2}`}})
	accum.Add(api.ToolCallDelta{Index: 0, Function: api.ToolCallFunctionDelta{Arguments: `1}`}})

	calls := accum.Drain()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	if calls[0].Name != "lookup" || calls[0].Arguments != `{"a":1}` {
		t.Errorf("call 0 = %+v", calls[0])
	}
	if calls[1].Name != "fetch" || calls[1].Arguments != `{"b":2}` {
		t.Errorf("call 1 = %+v", calls[1])
	}
}

func TestConvertToolCallsClassification(t *testing.T) {
	functionNames := map[string]bool{"get_weather": true}
	available := []string{"get_weather", "web_search"}

	tests := []struct {
		name        string
		call        accumulatedCall
		wantType    string
		wantQuery   string
		wantErrType string
	}{
		{
			name:      "builtin with query",
			call:      accumulatedCall{ID: "c1", Name: "web_search", Arguments: `{"query":"go generics"}`},
			wantType:  "web_search",
			wantQuery: "go generics",
		},
		{
			name:     "declared function without query",
			call:     accumulatedCall{ID: "c2", Name: "get_weather", Arguments: `{"location":"Paris"}`},
			wantType: "get_weather",
		},
		{
			name:     "mcp name with colon",
			call:     accumulatedCall{ID: "c3", Name: "docs:search", Arguments: `{"q":"x"}`},
			wantType: "docs:search",
		},
		{
			name:     "code_interpreter passes through",
			call:     accumulatedCall{ID: "c4", Name: "code_interpreter", Arguments: `{"code":"1+1"}`},
			wantType: "code_interpreter",
		},
		{
			name:        "empty name with multiple tools",
			call:        accumulatedCall{ID: "c5", Name: "", Arguments: `{"query":"x"}`},
			wantType:    ErrorToolType,
			wantErrType: "missing_tool_name",
		},
		{
			name:        "invalid json",
			call:        accumulatedCall{ID: "c6", Name: "get_weather", Arguments: `{"location":`},
			wantType:    ErrorToolType,
			wantErrType: "invalid_json",
		},
		{
			name:        "missing query field",
			call:        accumulatedCall{ID: "c7", Name: "web_search", Arguments: `{"q":"x"}`},
			wantType:    ErrorToolType,
			wantErrType: "missing_query_field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			infos := convertToolCalls([]accumulatedCall{tt.call}, functionNames, available)
			if len(infos) != 1 {
				t.Fatalf("expected 1 info, got %d", len(infos))
			}
			info := infos[0]
			if info.ToolType != tt.wantType {
				t.Errorf("ToolType = %q, want %q", info.ToolType, tt.wantType)
			}
			if tt.wantQuery != "" && info.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", info.Query, tt.wantQuery)
			}
			if info.ID != tt.call.ID {
				t.Errorf("ID = %q, want %q", info.ID, tt.call.ID)
			}
			if tt.wantErrType != "" {
				if got, _ := info.Params["error_type"].(string); got != tt.wantErrType {
					t.Errorf("error_type = %q, want %q", got, tt.wantErrType)
				}
				if info.Query == "" {
					t.Error("error call has empty diagnostic")
				}
			}
		})
	}
}

func TestConvertToolCallsInfersSingleTool(t *testing.T) {
	infos := convertToolCalls(
		[]accumulatedCall{{ID: "c1", Name: "", Arguments: `{"query":"rust vs go"}`}},
		nil,
		[]string{"web_search"},
	)
	if infos[0].ToolType != "web_search" {
		t.Errorf("ToolType = %q, want inferred web_search", infos[0].ToolType)
	}
	if infos[0].Query != "rust vs go" {
		t.Errorf("Query = %q", infos[0].Query)
	}
}

func TestConvertToolCallsNeverPanicsOnGarbage(t *testing.T) {
	garbage := []accumulatedCall{
		{},
		{Name: "web_search", Arguments: "not json at all"},
		{Name: "x", Arguments: `[1,2,3]`},
		{Name: ":", Arguments: `{}`},
		{Arguments: `{"unterminated": "`},
	}
	infos := convertToolCalls(garbage, map[string]bool{}, []string{"a", "b"})
	if len(infos) != len(garbage) {
		t.Fatalf("expected one entry per index, got %d of %d", len(infos), len(garbage))
	}
}

func TestRepairWebSearchTruncatedArguments(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantQuery string
	}{
		{"truncated string value", `{"query": "climate cha`, "climate cha"},
		{"unclosed object", `{"query": "tides"`, "tides"},
		{"trailing second object", `{"query": "tides"} {"junk`, "tides"},
		{"missing opening brace", `"query": "tides"}`, "tides"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := parseToolArguments("web_search", tt.raw)
			if err != nil {
				t.Fatalf("parseToolArguments(%q): %v", tt.raw, err)
			}
			if got, _ := params["query"].(string); got != tt.wantQuery {
				t.Errorf("query = %q, want %q", got, tt.wantQuery)
			}
		})
	}
}

func TestRepairOnlyAppliesToWebSearch(t *testing.T) {
	if _, err := parseToolArguments("get_weather", `{"location": "Par`); err == nil {
		t.Error("expected parse failure for non web_search tool")
	}
}

func TestTryCloseJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": 1`, `{"a": 1}`},
		{`{"a": [1, 2`, `{"a": [1, 2]}`},
		{`{"a": "b`, `{"a": "b"}`},
		{`{"a": 1}`, `{"a": 1}`},
		{`{"a": "b\`, `{"a": "b"}`},
	}
	for _, tt := range tests {
		if got := tryCloseJSON(tt.in); got != tt.want {
			t.Errorf("tryCloseJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFindFirstCompleteObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a": {"b": 1}} extra`, `{"a": {"b": 1}}`},
		{`prefix {"a": 1} suffix`, `{"a": 1}`},
		{`{"a": "}"}`, `{"a": "}"}`},
		{`{"a": 1`, ""},
		{`no object`, ""},
	}
	for _, tt := range tests {
		if got := findFirstCompleteObject(tt.in); got != tt.want {
			t.Errorf("findFirstCompleteObject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
