// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package attest

import (
	"testing"
)

func TestRequestHashStable(t *testing.T) {
	body := []byte(`{"model":"m","messages":[{"role":"user","content":"hi"}]}`)
	first := RequestHash(body)
	second := RequestHash(body)
	if first != second {
		t.Errorf("hash changed for identical bytes: %s vs %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}

	// A single changed byte must change the hash.
	altered := append([]byte(nil), body...)
	altered[0] = ' '
	if RequestHash(altered) == first {
		t.Error("hash unchanged after mutating body")
	}
}

func TestInferenceIDDeterministic(t *testing.T) {
	a := InferenceID("chatcmpl-123")
	b := InferenceID("chatcmpl-123")
	if a != b {
		t.Errorf("same chat id produced different inference ids: %s vs %s", a, b)
	}
	if InferenceID("chatcmpl-124") == a {
		t.Error("different chat ids produced the same inference id")
	}
	if len(a) != 36 {
		t.Errorf("expected canonical UUID, got %q", a)
	}
}

func TestResponseHasherMatchesWireBytes(t *testing.T) {
	lines := []string{
		"data: {\"id\":\"c1\"}\n\n",
		"data: {\"id\":\"c2\"}\n\n",
		"data: [DONE]\n\n",
	}

	whole := NewResponseHasher()
	var all []byte
	for _, line := range lines {
		all = append(all, line...)
	}
	whole.Write(all)

	incremental := NewResponseHasher()
	for _, line := range lines {
		incremental.Write([]byte(line))
	}

	if whole.Sum() != incremental.Sum() {
		t.Error("incremental writes diverge from single write")
	}
	if whole.Sum() == NewResponseHasher().Sum() {
		t.Error("non-empty stream hashed equal to empty stream")
	}
}
