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

package runtime

import (
	"strings"

	"github.com/patterncore/pattern/pkg/entity"
	"github.com/patterncore/pattern/pkg/message"
)

// assembledContext is the result of §4.F step 2: the system prompt
// (base instructions plus rendered memory blocks), the in-window
// message history to send the model, and whether compression ran this
// turn (so the caller can bump ContextRebuilds/CompressionEvents).
type assembledContext struct {
	System      string
	Messages    []*message.Message
	Compressed  bool
	NewSummary  string
}

// assembleContext selects the most recent messages up to
// agent.MaxMessages, compresses the remainder per agent's configured
// strategy once the window exceeds CompressionThreshold, and renders
// the system prompt from base instructions plus active memory blocks.
func assembleContext(agent *entity.Agent, history []message.Pair, memories []entity.MemoryBlock) assembledContext {
	msgs := make([]*message.Message, 0, len(history))
	for _, p := range history {
		msgs = append(msgs, p.Message)
	}

	maxMessages := agent.MaxMessages
	if maxMessages <= 0 || maxMessages > len(msgs) {
		maxMessages = len(msgs)
	}
	window := msgs[len(msgs)-maxMessages:]

	out := assembledContext{System: renderSystemPrompt(agent, memories)}

	threshold := agent.CompressionThreshold
	if threshold <= 0 || len(window) <= threshold {
		out.Messages = window
		return out
	}

	compressed, summary, did := compress(agent.CompressionStrategy, window, agent.MessageSummary)
	out.Messages = compressed
	out.Compressed = did
	out.NewSummary = summary
	return out
}

// renderSystemPrompt concatenates base instructions with each active
// memory block rendered as "label: value", the simplest rendering that
// satisfies the memory-bound invariant's intent (each block is already
// capped at MemoryCharLimit by the caller that writes it; rendering
// never re-truncates here).
func renderSystemPrompt(agent *entity.Agent, memories []entity.MemoryBlock) string {
	var b strings.Builder
	b.WriteString(agent.SystemPrompt)
	for _, m := range memories {
		b.WriteString("\n\n")
		b.WriteString(m.Label)
		b.WriteString(": ")
		b.WriteString(m.Value)
	}
	return b.String()
}
