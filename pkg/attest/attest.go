// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package attest computes the hashes and identifiers that bind a gateway
// response to the exact bytes exchanged with the inference backend.
package attest

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"

	"github.com/google/uuid"
)

// inferenceNamespace is the fixed namespace for deriving inference ids
// from provider chat ids.
var inferenceNamespace = uuid.MustParse("5a1df9b4-0f5f-4a0c-9f3e-8b1c2d4e6f70")

// RequestHash returns the sha256 hex digest of a raw request body. The
// bytes are hashed exactly as received, before any parsing.
func RequestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// InferenceID derives a deterministic UUID from a provider chat id. The
// same chat always maps to the same id, so retried lookups and detached
// persistence agree without coordination.
func InferenceID(chatID string) string {
	return uuid.NewSHA1(inferenceNamespace, []byte(chatID)).String()
}

// ResponseHasher accumulates the exact SSE wire bytes of a streamed
// response, including "data: " prefixes, newlines, and the terminal
// [DONE] marker. For unary responses, write the raw body once.
type ResponseHasher struct {
	h hash.Hash
}

// NewResponseHasher returns an empty hasher.
func NewResponseHasher() *ResponseHasher {
	return &ResponseHasher{h: sha256.New()}
}

// Write adds wire bytes to the hash.
func (r *ResponseHasher) Write(p []byte) {
	r.h.Write(p)
}

// Sum returns the hex digest of everything written so far.
func (r *ResponseHasher) Sum() string {
	return hex.EncodeToString(r.h.Sum(nil))
}
