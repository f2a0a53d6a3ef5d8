// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"

	"github.com/openresponses/inference-gw/pkg/core/api"
)

// Built-in inference backends. Params understood by all of them:
//
//	base_url  backend endpoint (optional for openai and gemini)
//	api_key   bearer token (optional for local backends)
func init() {
	Backends.Register("openai", func(_ context.Context, params map[string]string) (api.Provider, error) {
		return api.NewOpenAIClient(params["base_url"], params["api_key"]), nil
	})
	Backends.Register("vllm", func(_ context.Context, params map[string]string) (api.Provider, error) {
		return api.NewVLLMClient(params["base_url"], params["api_key"]), nil
	})
	Backends.Register("gemini", func(_ context.Context, params map[string]string) (api.Provider, error) {
		return api.NewGeminiClient(params["base_url"], params["api_key"]), nil
	})
	Backends.Register("mock", func(_ context.Context, _ map[string]string) (api.Provider, error) {
		return api.NewMockClient(nil), nil
	})
}
