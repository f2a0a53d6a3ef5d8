// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBraveProvider_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Subscription-Token") != "test-key" {
			t.Errorf("expected API key header, got %q", r.Header.Get("X-Subscription-Token"))
		}
		if r.URL.Query().Get("q") != "golang testing" {
			t.Errorf("expected query 'golang testing', got %q", r.URL.Query().Get("q"))
		}
		if r.URL.Query().Get("count") != "5" {
			t.Errorf("expected count 5, got %q", r.URL.Query().Get("count"))
		}

		var resp braveResponse
		resp.Web.Results = []braveResult{
			{Title: "Go Testing", URL: "https://golang.org/testing", Description: "Testing in Go"},
			{Title: "Go Docs", URL: "https://golang.org/doc", Description: "Go documentation"},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewBraveProvider("test-key")
	provider.endpoint = server.URL

	results, err := provider.Search(context.Background(), "golang testing", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Title != "Go Testing" {
		t.Errorf("expected title 'Go Testing', got %q", results[0].Title)
	}
	if results[0].URL != "https://golang.org/testing" {
		t.Errorf("expected URL 'https://golang.org/testing', got %q", results[0].URL)
	}
}

func TestBraveProvider_SearchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid subscription token", http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := NewBraveProvider("bad-key")
	provider.endpoint = server.URL

	if _, err := provider.Search(context.Background(), "anything", 1); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestTavilyProvider_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		var req tavilyRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.APIKey != "test-key" {
			t.Errorf("expected api_key 'test-key', got %q", req.APIKey)
		}
		if req.Query != "AI news" {
			t.Errorf("expected query 'AI news', got %q", req.Query)
		}
		if req.MaxResults != 3 {
			t.Errorf("expected max_results 3, got %d", req.MaxResults)
		}

		resp := tavilyResponse{
			Results: []tavilyResult{
				{Title: "AI News", URL: "https://example.com/ai", Content: "Latest AI developments"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewTavilyProvider("test-key")
	provider.endpoint = server.URL

	results, err := provider.Search(context.Background(), "AI news", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Snippet != "Latest AI developments" {
		t.Errorf("expected snippet 'Latest AI developments', got %q", results[0].Snippet)
	}
}
