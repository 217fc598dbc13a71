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

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/ids"
)

func TestUser_PopulatesWordCountAndRole(t *testing.T) {
	m := User("three word count")
	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, ContentText, m.Content.Kind)
	assert.Equal(t, 3, m.WordCount)
	assert.False(t, m.HasToolCalls)
	assert.Equal(t, ids.KindMessage, m.ID.Kind())
}

func TestAssistantToolCalls_SetsHasToolCalls(t *testing.T) {
	m := AssistantToolCalls([]ToolCall{{CallID: "c1", FnName: "search", FnArguments: `{"q":"x"}`}})
	assert.True(t, m.HasToolCalls)
	assert.Equal(t, ContentToolCalls, m.Content.Kind)
	assert.Equal(t, wordsPerToolCall, m.WordCount)
}

func TestTool_SetsToolResponsesWordCount(t *testing.T) {
	m := Tool([]ToolResponse{{CallID: "c1", Content: "two words"}})
	assert.Equal(t, RoleTool, m.Role)
	assert.Equal(t, wordsPerToolResponse+2, m.WordCount)
}

func TestWordCount_Parts_MixesTextAndImage(t *testing.T) {
	c := Content{Kind: ContentParts, Parts: []Part{
		{Kind: PartText, Text: "two words"},
		{Kind: PartImage, Image: ImageSource{URL: "https://example.com/x.png"}},
	}}
	assert.Equal(t, 2+wordsPerBlock, wordCount(c))
}

func TestWordCount_Blocks_ThinkingCountsAsBlockWords(t *testing.T) {
	c := Content{Kind: ContentBlocks, Blocks: []ContentBlock{
		{Kind: BlockText, Text: "one two three"},
		{Kind: BlockThinking, ThinkingText: "irrelevant to the word count"},
	}}
	assert.Equal(t, 3+wordsPerBlock, wordCount(c))
}

func TestNormalizeForDispatch_ToolResponsesForceRoleTool(t *testing.T) {
	m := &Message{Role: RoleAssistant, Content: Content{Kind: ContentToolResponses, ToolResponses: []ToolResponse{
		{CallID: "c1", Content: "ok"},
	}}}
	out := NormalizeForDispatch(m)
	require.Equal(t, RoleTool, out.Role)
	assert.Equal(t, RoleAssistant, m.Role, "original message must not be mutated")
}

func TestNormalizeForDispatch_PartsCollapseToText(t *testing.T) {
	m := &Message{Role: RoleAssistant, Content: Content{Kind: ContentParts, Parts: []Part{
		{Kind: PartText, Text: "first"},
		{Kind: PartImage, Image: ImageSource{URL: "https://example.com/x.png"}},
		{Kind: PartText, Text: "second"},
	}}}
	out := NormalizeForDispatch(m)
	require.Equal(t, ContentText, out.Content.Kind)
	assert.Equal(t, "first\n---\nsecond", out.Content.Text)
	assert.Equal(t, ContentParts, m.Content.Kind, "original message must not be mutated")
}

func TestNormalizeForDispatch_UserPartsUntouched(t *testing.T) {
	m := &Message{Role: RoleUser, Content: Content{Kind: ContentParts, Parts: []Part{
		{Kind: PartText, Text: "hello"},
	}}}
	out := NormalizeForDispatch(m)
	assert.Equal(t, ContentParts, out.Content.Kind)
}
