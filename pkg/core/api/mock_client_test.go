// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"strings"
	"testing"
)

type recordingRegistrar struct {
	chatID       string
	requestHash  string
	responseHash string
}

func (r *recordingRegistrar) RegisterSignatureHashesForChat(chatID, requestHash, responseHash string) {
	r.chatID = chatID
	r.requestHash = requestHash
	r.responseHash = responseHash
}

func drainStream(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		out = append(out, ev)
	}
	return out
}

func TestMockStreamDeterministicForSameRequestHash(t *testing.T) {
	req := &ChatCompletionRequest{
		Model:    "mock-model",
		Messages: []Message{{Role: "user", Content: "hello world"}},
	}
	hash := strings.Repeat("ab", 32)

	reg := &recordingRegistrar{}
	m := NewMockClient(reg)
	first, err := m.CreateChatCompletionStream(context.Background(), req, hash)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	firstEvents := drainStream(t, first)
	firstResponseHash := reg.responseHash

	second, err := m.CreateChatCompletionStream(context.Background(), req, hash)
	if err != nil {
		t.Fatalf("second stream: %v", err)
	}
	secondEvents := drainStream(t, second)

	if len(firstEvents) != len(secondEvents) {
		t.Fatalf("event counts differ: %d vs %d", len(firstEvents), len(secondEvents))
	}
	if reg.responseHash != firstResponseHash {
		t.Errorf("response hash changed between identical requests")
	}
	if reg.requestHash != hash {
		t.Errorf("registered request hash = %q, want %q", reg.requestHash, hash)
	}
	if !strings.HasPrefix(reg.chatID, "chatcmpl-mock-") {
		t.Errorf("chat id = %q", reg.chatID)
	}
}

func TestMockSignatureTextFormat(t *testing.T) {
	req := &ChatCompletionRequest{
		Model:    "mock-model",
		Messages: []Message{{Role: "user", Content: "sign me"}},
	}
	hash := strings.Repeat("cd", 32)

	reg := &recordingRegistrar{}
	m := NewMockClient(reg)
	stream, err := m.CreateChatCompletionStream(context.Background(), req, hash)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	drainStream(t, stream)

	sig, err := m.GetSignature(context.Background(), reg.chatID, "ecdsa")
	if err != nil {
		t.Fatalf("get signature: %v", err)
	}
	want := reg.requestHash + ":" + reg.responseHash
	if sig.Text != want {
		t.Errorf("signature text = %q, want %q", sig.Text, want)
	}
	if sig.SigningAlgo != "ecdsa" {
		t.Errorf("signing algo = %q", sig.SigningAlgo)
	}

	if _, err := m.GetSignature(context.Background(), "chatcmpl-unknown", "ecdsa"); err == nil {
		t.Error("expected error for unknown chat id")
	}
}

func TestMockToolCallScript(t *testing.T) {
	req := &ChatCompletionRequest{
		Model:    "mock-model",
		Messages: []Message{{Role: "user", Content: `tool:get_weather:{"location":"Paris"}`}},
	}
	m := NewMockClient(nil)
	stream, err := m.CreateChatCompletionStream(context.Background(), req, strings.Repeat("ef", 32))
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	events := drainStream(t, stream)

	var name, args string
	var finish string
	for _, ev := range events {
		for _, choice := range ev.Chunk.Choices {
			for _, tc := range choice.Delta.ToolCalls {
				name += tc.Function.Name
				args += tc.Function.Arguments
			}
			if choice.FinishReason != nil {
				finish = *choice.FinishReason
			}
		}
	}
	if name != "get_weather" {
		t.Errorf("tool name = %q", name)
	}
	if args != `{"location":"Paris"}` {
		t.Errorf("tool args = %q", args)
	}
	if finish != FinishReasonToolCalls {
		t.Errorf("finish reason = %q", finish)
	}
}
