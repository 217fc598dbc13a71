// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/message"
	"github.com/patterncore/pattern/pkg/perr"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider adapts the official OpenAI SDK to Provider. It also
// serves Ollama configurations that front an OpenAI-compatible
// endpoint (cfg.BaseURL pointed at the local server), the same way the
// teacher's provider set treats Ollama as an OpenAI-shaped backend.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIProvider builds a provider from a resolved, validated
// config.
func NewOpenAIProvider(cfg *config.ProviderConfig) (*OpenAIProvider, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (p *OpenAIProvider) Name() string { return p.model }
func (p *OpenAIProvider) Type() string { return "openai" }
func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) Generate(ctx context.Context, req *message.Request, cfg *GenerateConfig) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.maxTokens))
	}
	if p.temperature != 0 {
		params.Temperature = openai.Float(p.temperature)
	}

	var callOpts []option.RequestOption
	if cfg != nil {
		if cfg.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(cfg.MaxTokens))
		}
		if cfg.Temperature != nil {
			params.Temperature = openai.Float(*cfg.Temperature)
		}
		if cfg.TopP != nil {
			params.TopP = openai.Float(*cfg.TopP)
		}
		if len(cfg.StopSequences) > 0 {
			params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: cfg.StopSequences}
		}
		if cfg.BearerToken != "" {
			callOpts = append(callOpts, option.WithAPIKey(cfg.BearerToken))
		}
	}

	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		msgs, err := openAIMessageParams(m)
		if err != nil {
			return nil, err
		}
		params.Messages = append(params.Messages, msgs...)
	}

	for _, t := range req.Tools {
		var schema map[string]any
		if t.Parameters != "" {
			if err := json.Unmarshal([]byte(t.Parameters), &schema); err != nil {
				return nil, perr.Validation("llm.openai.generate", "tool parameter schema is not valid JSON", err).
					With("tool", t.Name)
			}
		}
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, callOpts...)
	if err != nil {
		return nil, perr.External("llm.openai.generate", "openai request failed", err)
	}
	if len(resp.Choices) == 0 {
		return nil, perr.External("llm.openai.generate", "openai response contained no choices", nil)
	}

	return openAIToResponse(resp), nil
}

func openAIMessageParams(m *message.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	norm := message.NormalizeForDispatch(m)

	switch norm.Content.Kind {
	case message.ContentText:
		if norm.Role == message.RoleAssistant {
			return []openai.ChatCompletionMessageParamUnion{openai.AssistantMessage(norm.Content.Text)}, nil
		}
		return []openai.ChatCompletionMessageParamUnion{openai.UserMessage(norm.Content.Text)}, nil

	case message.ContentToolCalls:
		calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(norm.Content.ToolCalls))
		for _, tc := range norm.Content.ToolCalls {
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.CallID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.FnName,
					Arguments: tc.FnArguments,
				},
			})
		}
		return []openai.ChatCompletionMessageParamUnion{{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{ToolCalls: calls},
		}}, nil

	case message.ContentToolResponses:
		out := make([]openai.ChatCompletionMessageParamUnion, 0, len(norm.Content.ToolResponses))
		for _, tr := range norm.Content.ToolResponses {
			out = append(out, openai.ToolMessage(tr.Content, tr.CallID))
		}
		return out, nil

	default:
		return []openai.ChatCompletionMessageParamUnion{openai.UserMessage("")}, nil
	}
}

func openAIToResponse(resp *openai.ChatCompletion) *Response {
	choice := resp.Choices[0]

	var msg *message.Message
	if len(choice.Message.ToolCalls) > 0 {
		calls := make([]message.ToolCall, 0, len(choice.Message.ToolCalls))
		for _, tc := range choice.Message.ToolCalls {
			calls = append(calls, message.ToolCall{
				CallID:      tc.ID,
				FnName:      tc.Function.Name,
				FnArguments: tc.Function.Arguments,
			})
		}
		msg = message.AssistantToolCalls(calls)
	} else {
		msg = message.Assistant(choice.Message.Content)
	}
	msg.Metadata = map[string]any{"finish_reason": string(choice.FinishReason)}

	return &Response{
		Message: msg,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: string(choice.FinishReason),
	}
}
