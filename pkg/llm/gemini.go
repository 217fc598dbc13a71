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

	"google.golang.org/genai"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/message"
	"github.com/patterncore/pattern/pkg/perr"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider adapts the official google.golang.org/genai SDK to
// Provider, following the same client.Models.GenerateContent call
// shape the teacher's own Gemini integration uses.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewGeminiProvider builds a provider from a resolved, validated
// config.
func NewGeminiProvider(cfg *config.ProviderConfig) (*GeminiProvider, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, perr.External("llm.gemini.new", "failed to create gemini client", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiProvider{
		client:      client,
		model:       model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (p *GeminiProvider) Name() string { return p.model }
func (p *GeminiProvider) Type() string { return "gemini" }
func (p *GeminiProvider) Close() error { return nil }

func (p *GeminiProvider) Generate(ctx context.Context, req *message.Request, cfg *GenerateConfig) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		content, err := geminiContent(m)
		if err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}

	genConfig := &genai.GenerateContentConfig{}
	if req.System != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if p.temperature != 0 {
		t := float32(p.temperature)
		genConfig.Temperature = &t
	}
	if p.maxTokens > 0 {
		genConfig.MaxOutputTokens = int32(p.maxTokens)
	}
	if cfg != nil {
		if cfg.MaxTokens > 0 {
			genConfig.MaxOutputTokens = int32(cfg.MaxTokens)
		}
		if cfg.Temperature != nil {
			t := float32(*cfg.Temperature)
			genConfig.Temperature = &t
		}
		if cfg.TopP != nil {
			tp := float32(*cfg.TopP)
			genConfig.TopP = &tp
		}
		if len(cfg.StopSequences) > 0 {
			genConfig.StopSequences = cfg.StopSequences
		}
	}

	for _, t := range req.Tools {
		var schema map[string]any
		if t.Parameters != "" {
			if err := json.Unmarshal([]byte(t.Parameters), &schema); err != nil {
				return nil, perr.Validation("llm.gemini.generate", "tool parameter schema is not valid JSON", err).
					With("tool", t.Name)
			}
		}
		genConfig.Tools = append(genConfig.Tools, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  geminiSchema(schema),
			}},
		})
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, genConfig)
	if err != nil {
		return nil, perr.External("llm.gemini.generate", "gemini request failed", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, perr.External("llm.gemini.generate", "gemini response contained no candidates", nil)
	}

	return geminiToResponse(resp), nil
}

func geminiContent(m *message.Message) (*genai.Content, error) {
	norm := message.NormalizeForDispatch(m)

	role := genai.RoleUser
	if norm.Role == message.RoleAssistant {
		role = genai.RoleModel
	}

	switch norm.Content.Kind {
	case message.ContentText:
		return genai.NewContentFromText(norm.Content.Text, role), nil

	case message.ContentToolCalls:
		parts := make([]*genai.Part, 0, len(norm.Content.ToolCalls))
		for _, tc := range norm.Content.ToolCalls {
			var args map[string]any
			if tc.FnArguments != "" {
				if err := json.Unmarshal([]byte(tc.FnArguments), &args); err != nil {
					return nil, perr.Validation("llm.gemini.generate", "tool call arguments are not valid JSON", err).
						With("call_id", tc.CallID)
				}
			}
			parts = append(parts, genai.NewPartFromFunctionCall(tc.FnName, args))
		}
		return genai.NewContentFromParts(parts, genai.RoleModel), nil

	case message.ContentToolResponses:
		parts := make([]*genai.Part, 0, len(norm.Content.ToolResponses))
		for _, tr := range norm.Content.ToolResponses {
			parts = append(parts, genai.NewPartFromFunctionResponse(tr.CallID, map[string]any{"result": tr.Content}))
		}
		return genai.NewContentFromParts(parts, genai.RoleUser), nil

	default:
		return genai.NewContentFromText("", role), nil
	}
}

func geminiSchema(raw map[string]any) *genai.Schema {
	if raw == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	var schema genai.Schema
	if err := json.Unmarshal(b, &schema); err != nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	return &schema
}

func geminiToResponse(resp *genai.GenerateContentResponse) *Response {
	candidate := resp.Candidates[0]

	var toolCalls []message.ToolCall
	var text string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			args, _ := json.Marshal(part.FunctionCall.Args)
			toolCalls = append(toolCalls, message.ToolCall{
				CallID:      part.FunctionCall.Name,
				FnName:      part.FunctionCall.Name,
				FnArguments: string(args),
			})
		}
	}

	var msg *message.Message
	if len(toolCalls) > 0 {
		msg = message.AssistantToolCalls(toolCalls)
	} else {
		msg = message.Assistant(text)
	}
	msg.Metadata = map[string]any{"finish_reason": string(candidate.FinishReason)}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &Response{Message: msg, Usage: usage, FinishReason: string(candidate.FinishReason)}
}
