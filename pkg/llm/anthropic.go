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

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/message"
	"github.com/patterncore/pattern/pkg/perr"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider adapts the official Anthropic SDK to Provider.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropicProvider builds a provider from a resolved, validated
// config.
func NewAnthropicProvider(cfg *config.ProviderConfig) (*AnthropicProvider, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (p *AnthropicProvider) Name() string { return p.model }
func (p *AnthropicProvider) Type() string { return "anthropic" }
func (p *AnthropicProvider) Close() error { return nil }

func (p *AnthropicProvider) Generate(ctx context.Context, req *message.Request, cfg *GenerateConfig) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if p.temperature != 0 {
		params.Temperature = anthropic.Float(p.temperature)
	}

	for _, t := range req.Tools {
		var schema any
		if t.Parameters != "" {
			if err := json.Unmarshal([]byte(t.Parameters), &schema); err != nil {
				return nil, perr.Validation("llm.anthropic.generate", "tool parameter schema is not valid JSON", err).
					With("tool", t.Name)
			}
		}
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: schema},
			},
		})
	}

	var callOpts []option.RequestOption
	if cfg != nil {
		if cfg.MaxTokens > 0 {
			params.MaxTokens = int64(cfg.MaxTokens)
		}
		if cfg.Temperature != nil {
			params.Temperature = anthropic.Float(*cfg.Temperature)
		}
		if cfg.TopP != nil {
			params.TopP = anthropic.Float(*cfg.TopP)
		}
		if len(cfg.StopSequences) > 0 {
			params.StopSequences = cfg.StopSequences
		}
		if cfg.BearerToken != "" {
			callOpts = append(callOpts, option.WithAPIKey(cfg.BearerToken))
		}
	}

	for _, m := range req.Messages {
		block, err := anthropicMessageParam(m)
		if err != nil {
			return nil, err
		}
		params.Messages = append(params.Messages, block)
	}

	resp, err := p.client.Messages.New(ctx, params, callOpts...)
	if err != nil {
		return nil, perr.External("llm.anthropic.generate", "anthropic request failed", err)
	}

	return anthropicToResponse(resp), nil
}

func anthropicMessageParam(m *message.Message) (anthropic.MessageParam, error) {
	norm := message.NormalizeForDispatch(m)

	role := anthropic.MessageParamRoleUser
	if norm.Role == message.RoleAssistant {
		role = anthropic.MessageParamRoleAssistant
	}

	blocks, err := anthropicContentBlocks(norm)
	if err != nil {
		return anthropic.MessageParam{}, err
	}

	return anthropic.MessageParam{Role: role, Content: blocks}, nil
}

func anthropicContentBlocks(m *message.Message) ([]anthropic.ContentBlockParamUnion, error) {
	switch m.Content.Kind {
	case message.ContentText:
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content.Text)}, nil

	case message.ContentToolCalls:
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content.ToolCalls))
		for _, tc := range m.Content.ToolCalls {
			var input any
			if tc.FnArguments != "" {
				if err := json.Unmarshal([]byte(tc.FnArguments), &input); err != nil {
					return nil, perr.Validation("llm.anthropic.generate", "tool call arguments are not valid JSON", err).
						With("call_id", tc.CallID)
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.CallID, input, tc.FnName))
		}
		return blocks, nil

	case message.ContentToolResponses:
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content.ToolResponses))
		for _, tr := range m.Content.ToolResponses {
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.CallID, tr.Content, false))
		}
		return blocks, nil

	case message.ContentBlocks:
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content.Blocks))
		for _, b := range m.Content.Blocks {
			switch b.Kind {
			case message.BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case message.BlockThinking:
				blocks = append(blocks, anthropic.NewThinkingBlock(b.ThinkingSignature, b.ThinkingText))
			case message.BlockToolUse:
				var input any
				if b.ToolUseInput != "" {
					_ = json.Unmarshal([]byte(b.ToolUseInput), &input)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolUseID, input, b.ToolUseName))
			case message.BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResultUseID, b.ToolResultContent, false))
			}
		}
		return blocks, nil

	default:
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock("")}, nil
	}
}

func anthropicToResponse(resp *anthropic.Message) *Response {
	var blocks []message.ContentBlock
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			blocks = append(blocks, message.ContentBlock{Kind: message.BlockText, Text: variant.Text})
		case anthropic.ThinkingBlock:
			blocks = append(blocks, message.ContentBlock{
				Kind:              message.BlockThinking,
				ThinkingText:      variant.Thinking,
				ThinkingSignature: variant.Signature,
			})
		case anthropic.RedactedThinkingBlock:
			blocks = append(blocks, message.ContentBlock{Kind: message.BlockRedactedThinking, RedactedData: variant.Data})
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(variant.Input)
			blocks = append(blocks, message.ContentBlock{
				Kind:         message.BlockToolUse,
				ToolUseID:    variant.ID,
				ToolUseName:  variant.Name,
				ToolUseInput: string(input),
			})
		}
	}

	msg := message.Blocks(blocks)
	msg.Metadata = map[string]any{"stop_reason": string(resp.StopReason)}

	return &Response{
		Message: msg,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		FinishReason: string(resp.StopReason),
	}
}
