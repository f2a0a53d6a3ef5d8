// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openresponses/inference-gw/pkg/core/api"
	"github.com/openresponses/inference-gw/pkg/core/engine"
	"github.com/openresponses/inference-gw/pkg/core/schema"
	"github.com/openresponses/inference-gw/pkg/observability/logging"
	"github.com/openresponses/inference-gw/pkg/provider"
	"github.com/openresponses/inference-gw/pkg/storage/memory"
)

func newTestHandler(t *testing.T) (*Handler, *engine.Engine) {
	t.Helper()
	logger := logging.New(logging.Config{})
	pool := provider.NewPool([]provider.PoolEntry{
		{Name: "mock", Provider: api.NewMockClient(nil)},
	}, logger)
	eng, err := engine.New(pool, memory.New(), engine.Options{Logger: logger})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return New(eng, pool, logger), eng
}

func doJSON(t *testing.T, h *Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCreateResponse(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/responses", `{"model":"mock-model","input":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp schema.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != schema.StatusCompleted {
		t.Errorf("status = %s", resp.Status)
	}
	if !strings.HasPrefix(resp.ID, "resp_") {
		t.Errorf("id = %s", resp.ID)
	}
	if rec.Header().Get("Inference-Id") == "" {
		t.Error("Inference-Id header missing")
	}

	eng.Wait()

	// A round trip through GET must return the same response.
	rec = doJSON(t, h, http.MethodGet, "/v1/responses/"+resp.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var fetched schema.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fetched.ID != resp.ID || fetched.Status != schema.StatusCompleted {
		t.Errorf("fetched = %s/%s", fetched.ID, fetched.Status)
	}
	if rec.Header().Get("Inference-Id") == "" {
		t.Error("Inference-Id header missing on GET")
	}
}

func TestCreateResponseInvalidBody(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/responses", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_request_error") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCreateResponseMissingModel(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/responses", `{"input":"hello"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestStreamingResponse(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/responses", `{"model":"mock-model","input":"hello","stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: response.created\n") {
		t.Errorf("stream does not open with response.created:\n%s", body[:min(len(body), 200)])
	}
	if !strings.Contains(body, "event: response.output_text.delta\n") {
		t.Error("no text delta events in stream")
	}
	if !strings.Contains(body, "event: response.completed\n") {
		t.Error("no completed event in stream")
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream does not end with [DONE]:\n...%s", body[max(0, len(body)-80):])
	}
}

func TestGetResponseNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/v1/responses/resp_missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeleteResponse(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/responses", `{"model":"mock-model","input":"bye"}`)
	var resp schema.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	eng.Wait()

	rec = doJSON(t, h, http.MethodDelete, "/v1/responses/"+resp.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	var deleted schema.DeleteResponseResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !deleted.Deleted || deleted.ID != resp.ID {
		t.Errorf("deleted = %+v", deleted)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/responses/"+resp.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestCancelCompletedResponseConflicts(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/responses", `{"model":"mock-model","input":"hi"}`)
	var resp schema.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	eng.Wait()

	rec = doJSON(t, h, http.MethodPost, "/v1/responses/"+resp.ID+"/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("cancel status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestListResponseInputItems(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/responses", `{"model":"mock-model","input":"remember this"}`)
	var resp schema.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	eng.Wait()

	rec = doJSON(t, h, http.MethodGet, "/v1/responses/"+resp.ID+"/input_items", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list schema.ListInputItemsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Type != "message" {
		t.Errorf("items = %+v", list.Data)
	}
}

func TestConversationLifecycle(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/conversations", `{"metadata":{"topic":"golang"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var conv schema.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.HasPrefix(conv.ID, "conv_") || conv.Object != "conversation" {
		t.Fatalf("conversation = %+v", conv)
	}
	if conv.Metadata["topic"] != "golang" {
		t.Errorf("metadata = %+v", conv.Metadata)
	}

	// Drive a response inside the conversation; its items land in the
	// conversation record.
	rec = doJSON(t, h, http.MethodPost, "/v1/responses",
		`{"model":"mock-model","input":"hello","conversation":"`+conv.ID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("response status = %d, body = %s", rec.Code, rec.Body.String())
	}
	eng.Wait()

	rec = doJSON(t, h, http.MethodGet, "/v1/conversations/"+conv.ID+"/items", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("items status = %d", rec.Code)
	}
	var items schema.ListConversationItemsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(items.Data) != 2 {
		t.Errorf("items = %d, want user input plus assistant output", len(items.Data))
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/conversations/"+conv.ID+"/items",
		`{"items":[{"type":"message","role":"user","content":[{"type":"input_text","text":"more"}]}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add items status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodDelete, "/v1/conversations/"+conv.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/conversations/"+conv.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestUnknownConversationRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodPost, "/v1/responses",
		`{"model":"mock-model","input":"hello","conversation":"conv_missing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestListModels(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list schema.ListModelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != "mock-model" {
		t.Errorf("models = %+v", list.Data)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/models/mock-model", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get model status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/models/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get unknown model status = %d", rec.Code)
	}
}

func TestChatCompletionsPassthrough(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/chat/completions",
		`{"model":"mock-model","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "chatcmpl-mock-") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if rec.Header().Get("Inference-Id") == "" {
		t.Error("Inference-Id header missing")
	}
}

func TestChatCompletionsStreaming(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/chat/completions",
		`{"model":"mock-model","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "chatcmpl-mock-") {
		t.Errorf("body = %s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream does not end with [DONE]")
	}
}

func TestGetSignature(t *testing.T) {
	h, eng := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/v1/responses", `{"model":"mock-model","input":"sign me"}`)
	var resp schema.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	eng.Wait()

	stored, err := eng.Store().GetResponse(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("GetResponse: %v", err)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/signature/"+stored.ChatID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var sig api.ChatSignature
	if err := json.Unmarshal(rec.Body.Bytes(), &sig); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sig.Signature == "" || sig.Text == "" {
		t.Errorf("signature = %+v", sig)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/signature/chat-unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown chat status = %d", rec.Code)
	}
}
