// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
)

// CompletionErrorKind classifies provider failures for status-code mapping.
type CompletionErrorKind int

const (
	ErrKindInvalidModel CompletionErrorKind = iota
	ErrKindInvalidParams
	ErrKindRateLimit
	ErrKindProvider
	ErrKindInternal
	ErrKindHTTP
)

// CompletionError is the error surface of the provider layer. Kind is
// stable; Detail is best-effort human-readable context.
type CompletionError struct {
	Kind   CompletionErrorKind
	Detail string

	// Set when Kind is ErrKindHTTP: the upstream status code and whether
	// the failure originated at the external provider rather than in the
	// gateway itself.
	StatusCode int
	IsExternal bool
}

func (e *CompletionError) Error() string {
	switch e.Kind {
	case ErrKindInvalidModel:
		return fmt.Sprintf("invalid model: %s", e.Detail)
	case ErrKindInvalidParams:
		return fmt.Sprintf("invalid parameters: %s", e.Detail)
	case ErrKindRateLimit:
		return fmt.Sprintf("rate limit exceeded: %s", e.Detail)
	case ErrKindHTTP:
		return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Detail)
	case ErrKindInternal:
		return fmt.Sprintf("internal error: %s", e.Detail)
	default:
		return fmt.Sprintf("provider error: %s", e.Detail)
	}
}

// NewInvalidModelError reports a model unknown to every configured backend.
func NewInvalidModelError(model string) *CompletionError {
	return &CompletionError{Kind: ErrKindInvalidModel, Detail: model}
}

// NewProviderError wraps an upstream failure.
func NewProviderError(detail string) *CompletionError {
	return &CompletionError{Kind: ErrKindProvider, Detail: detail}
}

// NewInternalError wraps a gateway-side failure.
func NewInternalError(detail string) *CompletionError {
	return &CompletionError{Kind: ErrKindInternal, Detail: detail}
}

// NewHTTPError wraps an upstream HTTP failure, preserving the status code.
func NewHTTPError(statusCode int, body string, isExternal bool) *CompletionError {
	if statusCode == 429 {
		return &CompletionError{Kind: ErrKindRateLimit, Detail: ExtractErrorMessage(body), StatusCode: statusCode, IsExternal: isExternal}
	}
	return &CompletionError{
		Kind:       ErrKindHTTP,
		Detail:     ExtractErrorMessage(body),
		StatusCode: statusCode,
		IsExternal: isExternal,
	}
}

// ExtractErrorMessage pulls a human-readable message out of a JSON error
// body. Understands the OpenAI/Anthropic shape {"error":{"message":...}}
// and the vLLM/FastAPI shape {"detail":...}; falls back to the raw body.
func ExtractErrorMessage(body string) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		if parsed.Detail != "" {
			return parsed.Detail
		}
	}
	return body
}
