// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"testing"
)

func TestResponsesToolParam_UnmarshalJSON_FlatFileSearch(t *testing.T) {
	input := `{"type":"file_search","vector_store_ids":["vs_1","vs_2"],"max_num_results":5}`

	var tool ResponsesToolParam
	if err := json.Unmarshal([]byte(input), &tool); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if tool.Type != "file_search" {
		t.Errorf("Type = %q, want file_search", tool.Type)
	}
	if len(tool.VectorStoreIDs) != 2 || tool.VectorStoreIDs[0] != "vs_1" {
		t.Errorf("VectorStoreIDs = %v, want [vs_1 vs_2]", tool.VectorStoreIDs)
	}
	if tool.MaxNumResults == nil || *tool.MaxNumResults != 5 {
		t.Errorf("MaxNumResults = %v, want 5", tool.MaxNumResults)
	}
}

func TestResponsesToolParam_UnmarshalJSON_NestedFileSearch(t *testing.T) {
	// This is the format the OpenAI Python SDK sends.
	input := `{"type":"file_search","file_search":{"vector_store_ids":["vs_abc"],"max_num_results":3}}`

	var tool ResponsesToolParam
	if err := json.Unmarshal([]byte(input), &tool); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if tool.Type != "file_search" {
		t.Errorf("Type = %q, want file_search", tool.Type)
	}
	if len(tool.VectorStoreIDs) != 1 || tool.VectorStoreIDs[0] != "vs_abc" {
		t.Errorf("VectorStoreIDs = %v, want [vs_abc]", tool.VectorStoreIDs)
	}
	if tool.MaxNumResults == nil || *tool.MaxNumResults != 3 {
		t.Errorf("MaxNumResults = %v, want 3", tool.MaxNumResults)
	}
}

func TestResponsesToolParam_UnmarshalJSON_NestedFileSearchWithRankingAndFilters(t *testing.T) {
	input := `{
		"type": "file_search",
		"file_search": {
			"vector_store_ids": ["vs_1"],
			"ranking_options": {"ranker": "auto", "score_threshold": 0.5},
			"filters": {"type": "eq", "key": "source", "value": "paper"}
		}
	}`

	var tool ResponsesToolParam
	if err := json.Unmarshal([]byte(input), &tool); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if len(tool.VectorStoreIDs) != 1 {
		t.Errorf("VectorStoreIDs = %v, want [vs_1]", tool.VectorStoreIDs)
	}
	if tool.RankingOptions == nil {
		t.Fatal("RankingOptions is nil, want non-nil")
	}
	if tool.RankingOptions["ranker"] != "auto" {
		t.Errorf("RankingOptions[ranker] = %v, want auto", tool.RankingOptions["ranker"])
	}
	if tool.Filters == nil {
		t.Fatal("Filters is nil, want non-nil")
	}
}

func TestResponsesToolParam_UnmarshalJSON_FlatWebSearch(t *testing.T) {
	input := `{"type":"web_search","search_context_size":"medium","user_location":{"city":"NYC"}}`

	var tool ResponsesToolParam
	if err := json.Unmarshal([]byte(input), &tool); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if tool.Type != "web_search" {
		t.Errorf("Type = %q, want web_search", tool.Type)
	}
	if tool.SearchContextSize == nil || *tool.SearchContextSize != "medium" {
		t.Errorf("SearchContextSize = %v, want medium", tool.SearchContextSize)
	}
	if tool.UserLocation["city"] != "NYC" {
		t.Errorf("UserLocation[city] = %v, want NYC", tool.UserLocation["city"])
	}
}

func TestResponsesToolParam_UnmarshalJSON_NestedWebSearch(t *testing.T) {
	input := `{"type":"web_search","web_search":{"search_context_size":"high","user_location":{"city":"SF"}}}`

	var tool ResponsesToolParam
	if err := json.Unmarshal([]byte(input), &tool); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if tool.SearchContextSize == nil || *tool.SearchContextSize != "high" {
		t.Errorf("SearchContextSize = %v, want high", tool.SearchContextSize)
	}
	if tool.UserLocation["city"] != "SF" {
		t.Errorf("UserLocation[city] = %v, want SF", tool.UserLocation["city"])
	}
}

func TestResponsesToolParam_UnmarshalJSON_FunctionTool(t *testing.T) {
	input := `{"type":"function","name":"get_weather","description":"Get weather","parameters":{"type":"object"}}`

	var tool ResponsesToolParam
	if err := json.Unmarshal([]byte(input), &tool); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if tool.Type != "function" {
		t.Errorf("Type = %q, want function", tool.Type)
	}
	if tool.Name != "get_weather" {
		t.Errorf("Name = %q, want get_weather", tool.Name)
	}
}

func TestNewResponseStartsQueued(t *testing.T) {
	r := NewResponse("resp_1", "model-a")
	if r.Status != StatusQueued {
		t.Errorf("Status = %q, want %q", r.Status, StatusQueued)
	}
	if r.Output == nil || r.Tools == nil {
		t.Error("Output and Tools must be empty arrays, not nil")
	}
}

func TestResponseStatusTransitions(t *testing.T) {
	r := NewResponse("resp_1", "model-a")

	r.MarkInProgress()
	if r.Status != StatusInProgress {
		t.Errorf("Status = %q, want %q", r.Status, StatusInProgress)
	}

	r.MarkIncomplete(IncompleteReasonFunctionCall)
	if r.Status != StatusIncomplete {
		t.Errorf("Status = %q, want %q", r.Status, StatusIncomplete)
	}
	if r.IncompleteDetails == nil || r.IncompleteDetails.Reason != IncompleteReasonFunctionCall {
		t.Errorf("IncompleteDetails = %+v", r.IncompleteDetails)
	}

	// Resuming clears the incomplete marker.
	r.MarkInProgress()
	if r.IncompleteDetails != nil {
		t.Error("IncompleteDetails should be cleared on resume")
	}

	r.MarkCompleted()
	if r.Status != StatusCompleted || r.CompletedAt == nil {
		t.Errorf("Status = %q, CompletedAt = %v", r.Status, r.CompletedAt)
	}
}

func TestResponseMarkCancelled(t *testing.T) {
	r := NewResponse("resp_1", "model-a")
	r.MarkInProgress()
	r.MarkCancelled()
	if r.Status != StatusCancelled {
		t.Errorf("Status = %q, want %q", r.Status, StatusCancelled)
	}
	if r.CompletedAt == nil {
		t.Error("CompletedAt should be set on cancel")
	}
}

func TestValidateMutuallyExclusiveChaining(t *testing.T) {
	model := "m"
	conv := "conv_1"
	prev := "resp_0"
	req := &ResponseRequest{
		Model:              &model,
		Input:              "hi",
		Conversation:       &conv,
		PreviousResponseID: &prev,
	}
	if err := req.Validate(); err == nil {
		t.Error("expected error when conversation and previous_response_id are both set")
	}
}

func TestResponsesToolParam_UnmarshalJSON_FlatTakesPrecedence(t *testing.T) {
	// If both flat and nested are present, flat wins (already populated).
	input := `{"type":"file_search","vector_store_ids":["vs_flat"],"file_search":{"vector_store_ids":["vs_nested"]}}`

	var tool ResponsesToolParam
	if err := json.Unmarshal([]byte(input), &tool); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if len(tool.VectorStoreIDs) != 1 || tool.VectorStoreIDs[0] != "vs_flat" {
		t.Errorf("VectorStoreIDs = %v, want [vs_flat] (flat should take precedence)", tool.VectorStoreIDs)
	}
}
