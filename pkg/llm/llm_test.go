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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/message"
)

func TestRegistry_CreateFromConfig_RejectsUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateFromConfig("main", &config.ProviderConfig{Type: "bogus", Model: "x", APIKey: "k"})
	require.Error(t, err)
}

func TestRegistry_CreateFromConfig_RejectsMissingAPIKey(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateFromConfig("main", &config.ProviderConfig{Type: "anthropic", Model: "claude-sonnet-4-20250514"})
	require.Error(t, err)
}

func TestRegistry_Get_UnknownNameErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	require.Error(t, err)
}

func TestOpenAIMessageParams_TextUserMessage(t *testing.T) {
	m := message.User("hello there")
	params, err := openAIMessageParams(m)
	require.NoError(t, err)
	require.Len(t, params, 1)
}

func TestOpenAIMessageParams_ToolResponsesBecomeToolMessages(t *testing.T) {
	m := message.Tool([]message.ToolResponse{
		{CallID: "call_1", Content: "42"},
		{CallID: "call_2", Content: "43"},
	})
	params, err := openAIMessageParams(m)
	require.NoError(t, err)
	assert.Len(t, params, 2)
}

func TestAnthropicContentBlocks_ToolCallsProduceOneBlockPerCall(t *testing.T) {
	m := message.AssistantToolCalls([]message.ToolCall{
		{CallID: "call_1", FnName: "search", FnArguments: `{"q":"pattern"}`},
	})
	blocks, err := anthropicContentBlocks(m)
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
}

func TestAnthropicContentBlocks_RejectsMalformedToolArguments(t *testing.T) {
	m := message.AssistantToolCalls([]message.ToolCall{
		{CallID: "call_1", FnName: "search", FnArguments: `not json`},
	})
	_, err := anthropicContentBlocks(m)
	require.Error(t, err)
}

func TestGeminiContent_TextMessageUsesModelRoleForAssistant(t *testing.T) {
	m := message.Assistant("hi")
	c, err := geminiContent(m)
	require.NoError(t, err)
	assert.Equal(t, "model", string(c.Role))
}

func TestGeminiContent_UserTextUsesUserRole(t *testing.T) {
	m := message.User("hi")
	c, err := geminiContent(m)
	require.NoError(t, err)
	assert.Equal(t, "user", string(c.Role))
}
