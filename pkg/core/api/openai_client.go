// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIClient implements Provider using the official OpenAI Go SDK.
// Works against OpenAI, Ollama, and other OpenAI-compatible backends.
// Because the SDK decodes chunks before we see them, RawBytes on emitted
// events holds the SSE framing of the re-serialized normalized chunk,
// which is exactly what the gateway forwards downstream.
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates an OpenAI-compatible client. baseURL may point
// at any compatible backend; apiKey is optional for local backends.
func NewOpenAIClient(baseURL, apiKey string) *OpenAIClient {
	opts := []option.RequestOption{}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	} else {
		// Local backends reject empty auth headers but accept any value.
		opts = append(opts, option.WithAPIKey("dummy"))
	}
	return &OpenAIClient{client: openai.NewClient(opts...)}
}

// convertMessages converts normalized messages to SDK message params.
func convertMessages(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			result = append(result, openai.SystemMessage(msg.Content))
		case "user":
			if len(msg.ContentParts) > 0 {
				parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.ContentParts))
				for _, cp := range msg.ContentParts {
					switch cp.Type {
					case "text":
						parts = append(parts, openai.TextContentPart(cp.Text))
					case "image_url":
						if cp.ImageURL != nil {
							imgParam := openai.ChatCompletionContentPartImageImageURLParam{
								URL: cp.ImageURL.URL,
							}
							if cp.ImageURL.Detail != "" {
								imgParam.Detail = cp.ImageURL.Detail
							}
							parts = append(parts, openai.ImageContentPart(imgParam))
						}
					}
				}
				result = append(result, openai.UserMessage(parts))
			} else {
				result = append(result, openai.UserMessage(msg.Content))
			}
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
				for _, tc := range msg.ToolCalls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					})
				}
				assistantMsg := &openai.ChatCompletionAssistantMessageParam{
					ToolCalls: toolCalls,
				}
				if msg.Content != "" {
					assistantMsg.Content.OfString = openai.String(msg.Content)
				}
				result = append(result, openai.ChatCompletionMessageParamUnion{
					OfAssistant: assistantMsg,
				})
			} else {
				result = append(result, openai.AssistantMessage(msg.Content))
			}
		case "tool":
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		case "developer":
			result = append(result, openai.DeveloperMessage(msg.Content))
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	return result, nil
}

// buildParams constructs SDK params from a normalized request.
func buildParams(req *ChatCompletionRequest, messages []openai.ChatCompletionMessageParamUnion) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: messages,
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.PresencePenalty)
	}

	// Prefer MaxCompletionTokens, fall back to the deprecated MaxTokens.
	if req.MaxCompletionTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxCompletionTokens))
	} else if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			funcDef := shared.FunctionDefinitionParam{
				Name: t.Function.Name,
			}
			if t.Function.Description != "" {
				funcDef.Description = openai.String(t.Function.Description)
			}
			if t.Function.Parameters != nil {
				funcDef.Parameters = shared.FunctionParameters(t.Function.Parameters)
			}
			if t.Function.Strict != nil {
				funcDef.Strict = openai.Bool(*t.Function.Strict)
			}
			tools = append(tools, openai.ChatCompletionToolParam{
				Function: funcDef,
			})
		}
		params.Tools = tools
	}

	if req.ToolChoice != nil {
		switch tc := req.ToolChoice.(type) {
		case string:
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(tc),
			}
		case map[string]interface{}:
			if fnMap, ok := tc["function"].(map[string]interface{}); ok {
				if name, ok := fnMap["name"].(string); ok {
					params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
						OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
							Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
								Name: name,
							},
						},
					}
				}
			}
		}
	}

	if req.ParallelToolCalls != nil {
		params.ParallelToolCalls = openai.Bool(*req.ParallelToolCalls)
	}

	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "json_object":
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			}
		case "json_schema":
			if req.ResponseFormat.JSONSchema != nil {
				js := req.ResponseFormat.JSONSchema
				schemaParam := shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name: js.Name,
				}
				if js.Description != "" {
					schemaParam.Description = openai.String(js.Description)
				}
				if js.Schema != nil {
					schemaParam.Schema = js.Schema
				}
				if js.Strict != nil {
					schemaParam.Strict = openai.Bool(*js.Strict)
				}
				params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
					OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
						JSONSchema: schemaParam,
					},
				}
			}
		case "text":
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfText: &shared.ResponseFormatTextParam{},
			}
		}
	}

	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}

	if req.StreamOptions != nil && req.StreamOptions.IncludeUsage {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}

	return params
}

// extractToolCalls converts SDK tool calls to normalized ToolCall values.
func extractToolCalls(sdkToolCalls []openai.ChatCompletionMessageToolCall) []ToolCall {
	if len(sdkToolCalls) == 0 {
		return nil
	}
	result := make([]ToolCall, 0, len(sdkToolCalls))
	for _, tc := range sdkToolCalls {
		result = append(result, ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return result
}

// Models implements Provider.Models.
func (c *OpenAIClient) Models(ctx context.Context) ([]ModelInfo, error) {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("list models: %v", err))
	}
	models := make([]ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, ModelInfo{
			ID:      m.ID,
			Object:  string(m.Object),
			Created: m.Created,
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}

// CreateChatCompletion implements Provider.CreateChatCompletion. The SDK
// response is re-serialized to produce the raw bytes used for hashing.
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest, requestHash string) (*ChatCompletionWithRaw, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, &CompletionError{Kind: ErrKindInvalidParams, Detail: err.Error()}
	}

	params := buildParams(req, messages)
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, NewProviderError(fmt.Sprintf("chat completion failed: %v", err))
	}

	choices := make([]Choice, 0, len(completion.Choices))
	for _, choice := range completion.Choices {
		msg := Message{
			Role:      string(choice.Message.Role),
			Content:   choice.Message.Content,
			ToolCalls: extractToolCalls(choice.Message.ToolCalls),
		}
		choices = append(choices, Choice{
			Index:        int(choice.Index),
			Message:      msg,
			FinishReason: string(choice.FinishReason),
		})
	}

	resp := &ChatCompletionResponse{
		ID:      completion.ID,
		Object:  string(completion.Object),
		Created: completion.Created,
		Model:   completion.Model,
		Choices: choices,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, NewInternalError(fmt.Sprintf("marshal response: %v", err))
	}
	return &ChatCompletionWithRaw{Response: resp, RawBytes: raw}, nil
}

// CreateChatCompletionStream implements Provider.CreateChatCompletionStream.
func (c *OpenAIClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, requestHash string) (<-chan StreamEvent, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, &CompletionError{Kind: ErrKindInvalidParams, Detail: err.Error()}
	}

	params := buildParams(req, messages)
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	events := make(chan StreamEvent, 10)
	go func() {
		defer close(events)
		defer stream.Close()

		for stream.Next() {
			sdkChunk := stream.Current()

			deltas := make([]StreamDelta, 0, len(sdkChunk.Choices))
			for _, choice := range sdkChunk.Choices {
				delta := StreamDelta{
					Index: int(choice.Index),
					Delta: MessageDelta{
						Role:    string(choice.Delta.Role),
						Content: choice.Delta.Content,
					},
				}
				if len(choice.Delta.ToolCalls) > 0 {
					toolCallDeltas := make([]ToolCallDelta, 0, len(choice.Delta.ToolCalls))
					for _, tc := range choice.Delta.ToolCalls {
						toolCallDeltas = append(toolCallDeltas, ToolCallDelta{
							Index: int(tc.Index),
							ID:    tc.ID,
							Type:  string(tc.Type),
							Function: ToolCallFunctionDelta{
								Name:      tc.Function.Name,
								Arguments: tc.Function.Arguments,
							},
						})
					}
					delta.Delta.ToolCalls = toolCallDeltas
				}
				if choice.FinishReason != "" {
					finishReason := string(choice.FinishReason)
					delta.FinishReason = &finishReason
				}
				deltas = append(deltas, delta)
			}

			chunk := &StreamChunk{
				ID:      sdkChunk.ID,
				Object:  string(sdkChunk.Object),
				Created: sdkChunk.Created,
				Model:   sdkChunk.Model,
				Choices: deltas,
			}
			if sdkChunk.Usage.TotalTokens > 0 {
				chunk.Usage = &Usage{
					PromptTokens:     int(sdkChunk.Usage.PromptTokens),
					CompletionTokens: int(sdkChunk.Usage.CompletionTokens),
					TotalTokens:      int(sdkChunk.Usage.TotalTokens),
				}
			}

			raw, err := FrameSSE(chunk)
			if err != nil {
				raw = nil
			}
			select {
			case events <- StreamEvent{RawBytes: raw, Chunk: chunk}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			select {
			case events <- StreamEvent{Err: NewProviderError(err.Error()), Terminal: true}:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

// GetSignature implements Provider.GetSignature. The hosted OpenAI API
// does not expose inference signatures.
func (c *OpenAIClient) GetSignature(ctx context.Context, chatID string, signingAlgo string) (*ChatSignature, error) {
	return nil, NewProviderError("signatures not supported by this backend")
}
