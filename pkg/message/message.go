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

// Package message defines the canonical Message representation shared
// by the entity store, the agent runtime, and every model provider
// adapter, plus the construction helpers and wire-format conversion
// rules a turn needs before it can hand a Request to a provider.
package message

import (
	"strings"
	"time"

	"github.com/patterncore/pattern/pkg/ids"
)

// Role is who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind tags which variant Content holds.
type ContentKind string

const (
	ContentText          ContentKind = "text"
	ContentParts         ContentKind = "parts"
	ContentToolCalls     ContentKind = "tool_calls"
	ContentToolResponses ContentKind = "tool_responses"
	ContentBlocks        ContentKind = "blocks"
)

// Content is the sum-typed message body. Exactly one of the fields
// matching Kind is populated; callers must switch on Kind rather than
// probing fields directly.
type Content struct {
	Kind ContentKind

	Text          string
	Parts         []Part
	ToolCalls     []ToolCall
	ToolResponses []ToolResponse
	Blocks        []ContentBlock
}

// PartKind tags a Part's variant within Parts content.
type PartKind string

const (
	PartText  PartKind = "text"
	PartImage PartKind = "image"
)

// Part is one segment of multi-part content (text interleaved with images).
type Part struct {
	Kind  PartKind
	Text  string
	Image ImageSource
}

// ImageSource locates image bytes, either inline (base64) or by URL.
type ImageSource struct {
	URL       string
	Base64    string
	MediaType string
}

// ToolCall is a model-emitted request to invoke a tool.
type ToolCall struct {
	CallID      string
	FnName      string
	FnArguments string // raw JSON
}

// ToolResponse is the result of executing a ToolCall.
type ToolResponse struct {
	CallID  string
	Content string
}

// ContentBlockKind tags a ContentBlock's variant.
type ContentBlockKind string

const (
	BlockText             ContentBlockKind = "text"
	BlockThinking         ContentBlockKind = "thinking"
	BlockRedactedThinking ContentBlockKind = "redacted_thinking"
	BlockToolUse          ContentBlockKind = "tool_use"
	BlockToolResult       ContentBlockKind = "tool_result"
)

// ContentBlock is one ordered sub-part of a provider response that
// requires exact sequence preservation (thinking blocks, interleaved
// tool use).
type ContentBlock struct {
	Kind ContentBlockKind

	Text string // BlockText

	ThinkingText      string // BlockThinking
	ThinkingSignature string // BlockThinking

	RedactedData string // BlockRedactedThinking

	ToolUseID    string // BlockToolUse
	ToolUseName  string // BlockToolUse
	ToolUseInput string // BlockToolUse, raw JSON

	ToolResultUseID   string // BlockToolResult
	ToolResultContent string // BlockToolResult
}

// CacheControl marks a message for provider-side prompt caching.
type CacheControl struct {
	Enabled bool
	TTL     string
}

// Options carries per-message dispatch hints that aren't part of content.
type Options struct {
	Cache CacheControl
}

// Message is one turn of conversation, immutable after creation except
// for its embedding fields (lazily backfilled).
type Message struct {
	ID      ids.ID
	Role    Role
	OwnerID ids.ID // nil if not owned (e.g. system messages)

	Content Content

	Metadata map[string]any
	Options  Options

	// HasToolCalls and WordCount are precomputed at construction time
	// so the runtime's context-assembly budget check never has to walk
	// content again.
	HasToolCalls bool
	WordCount    int

	CreatedAt time.Time

	Embedding      []float32
	EmbeddingModel string
}

const (
	wordsPerToolCall     = 8
	wordsPerToolResponse = 12
	wordsPerBlock        = 10
)

func wordCount(c Content) int {
	switch c.Kind {
	case ContentText:
		return countWhitespaceWords(c.Text)
	case ContentParts:
		n := 0
		for _, p := range c.Parts {
			if p.Kind == PartText {
				n += countWhitespaceWords(p.Text)
			} else {
				n += wordsPerBlock
			}
		}
		return n
	case ContentToolCalls:
		return len(c.ToolCalls) * wordsPerToolCall
	case ContentToolResponses:
		n := 0
		for _, r := range c.ToolResponses {
			n += wordsPerToolResponse + countWhitespaceWords(r.Content)
		}
		return n
	case ContentBlocks:
		n := 0
		for _, b := range c.Blocks {
			switch b.Kind {
			case BlockText:
				n += countWhitespaceWords(b.Text)
			default:
				n += wordsPerBlock
			}
		}
		return n
	default:
		return 0
	}
}

func countWhitespaceWords(s string) int {
	return len(strings.Fields(s))
}

func hasToolCalls(c Content) bool {
	return c.Kind == ContentToolCalls && len(c.ToolCalls) > 0
}

func newMessage(role Role, content Content) *Message {
	return &Message{
		ID:           ids.New(ids.KindMessage),
		Role:         role,
		Content:      content,
		HasToolCalls: hasToolCalls(content),
		WordCount:    wordCount(content),
		CreatedAt:    time.Now(),
	}
}

// User builds a user message from plain text.
func User(text string) *Message {
	return newMessage(RoleUser, Content{Kind: ContentText, Text: text})
}

// System builds a system message from plain text.
func System(text string) *Message {
	return newMessage(RoleSystem, Content{Kind: ContentText, Text: text})
}

// Assistant builds an assistant message from plain text.
func Assistant(text string) *Message {
	return newMessage(RoleAssistant, Content{Kind: ContentText, Text: text})
}

// AssistantToolCalls builds an assistant message carrying tool calls.
func AssistantToolCalls(calls []ToolCall) *Message {
	return newMessage(RoleAssistant, Content{Kind: ContentToolCalls, ToolCalls: calls})
}

// Tool builds a tool message carrying tool responses.
func Tool(responses []ToolResponse) *Message {
	return newMessage(RoleTool, Content{Kind: ContentToolResponses, ToolResponses: responses})
}

// Blocks builds an assistant message carrying ordered content blocks
// (used for providers that interleave thinking and tool-use blocks).
func Blocks(blocks []ContentBlock) *Message {
	return newMessage(RoleAssistant, Content{Kind: ContentBlocks, Blocks: blocks})
}

// NormalizeForDispatch applies the role/content compatibility and
// Parts-collapsing rules a message must satisfy before it can appear
// in a provider wire request. It returns a new Message; the original
// is never mutated (messages are immutable once persisted).
func NormalizeForDispatch(m *Message) *Message {
	out := *m

	if out.Content.Kind == ContentToolResponses && out.Role != RoleTool {
		out.Role = RoleTool
	}

	if out.Content.Kind == ContentParts && out.Role != RoleUser {
		var segments []string
		for _, p := range out.Content.Parts {
			if p.Kind == PartText {
				segments = append(segments, p.Text)
			}
		}
		out.Content = Content{Kind: ContentText, Text: strings.Join(segments, "\n---\n")}
	}

	return &out
}
