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

// Package llm is the model provider boundary the agent runtime calls
// at the end of every turn's context assembly step. A Provider takes a
// message.Request built from the agent's conversation history and
// returns the single message.Message the model produced, cancellable
// through ctx like every other blocking call in the runtime.
package llm

import (
	"context"

	"github.com/patterncore/pattern/pkg/message"
)

// Provider is one named model backing (an Anthropic, OpenAI, or Gemini
// account) an agent can be configured to use.
type Provider interface {
	// Name identifies the concrete model (e.g. "claude-sonnet-4-20250514").
	Name() string

	// Type reports the adapter family: "anthropic", "openai", or "gemini".
	Type() string

	// Generate sends req to the model and returns the assistant message
	// it produced. cfg may be nil, in which case the provider's own
	// configured defaults apply. A context deadline or cancellation
	// aborts the in-flight HTTP call.
	Generate(ctx context.Context, req *message.Request, cfg *GenerateConfig) (*Response, error)

	// Close releases any resources (idle connections, etc.) held by
	// the provider.
	Close() error
}

// GenerateConfig carries per-call generation parameters and the
// per-call auth override the runtime's OAuth resolver injects when a
// data source's credentials, rather than the provider's own API key,
// must authenticate the call.
type GenerateConfig struct {
	Temperature *float64
	MaxTokens   int
	TopP        *float64
	TopK        *int

	StopSequences []string

	// BearerToken, when set, overrides the provider's configured
	// API key for this single call (used when an agent's model access
	// is brokered through a refreshed OAuth token rather than a static
	// key).
	BearerToken string
}

// Usage reports token accounting for a single Generate call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the outcome of a Generate call: the message the model
// produced plus the usage it billed.
type Response struct {
	Message *message.Message
	Usage   Usage

	// FinishReason is the provider-reported stop cause ("stop",
	// "tool_calls", "length", ...), surfaced for callers that need to
	// distinguish a natural stop from a truncation.
	FinishReason string
}
