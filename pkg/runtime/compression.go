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
	"fmt"

	"github.com/patterncore/pattern/pkg/entity"
	"github.com/patterncore/pattern/pkg/message"
)

// compress applies the agent's configured CompressionStrategy to
// messages that fall above CompressionThreshold (i.e. the older
// portion of the window, beyond how many messages the strategy keeps
// intact). It returns the (possibly shortened) message slice and
// whether a compression event actually happened, so the caller can
// bump CompressionEvents/ContextRebuilds exactly once per turn.
//
// compress is idempotent per §8's compression-idempotence property:
// applying Truncate{keep_recent=k} to an already-truncated window (one
// at or under k messages) is a no-op, and Summarize's single summary
// message collapses further Summarize passes to a no-op once the
// window is already summary+recent.
func compress(strategy entity.CompressionStrategy, messages []*message.Message, existingSummary string) ([]*message.Message, string, bool) {
	switch strategy.Kind {
	case entity.CompressionSummarize:
		return compressSummarize(strategy, messages, existingSummary)
	default:
		return compressTruncate(strategy, messages)
	}
}

func compressTruncate(strategy entity.CompressionStrategy, messages []*message.Message) ([]*message.Message, string, bool) {
	keep := strategy.KeepRecent
	if keep <= 0 {
		keep = 1
	}
	if len(messages) <= keep {
		return messages, "", false
	}
	return append([]*message.Message{}, messages[len(messages)-keep:]...), "", true
}

func compressSummarize(strategy entity.CompressionStrategy, messages []*message.Message, existingSummary string) ([]*message.Message, string, bool) {
	keep := strategy.KeepRecent
	if keep <= 0 {
		keep = 1
	}
	if len(messages) <= keep+1 {
		// Already at or below keep+summary size: nothing left to fold in.
		return messages, existingSummary, false
	}

	dropped := messages[:len(messages)-keep]
	recent := messages[len(messages)-keep:]

	summary := summarize(existingSummary, dropped)

	out := make([]*message.Message, 0, keep+1)
	out = append(out, message.System(summary))
	out = append(out, recent...)
	return out, summary, true
}

// summarize produces the synthesized summary message.System replaces a
// dropped span with. The real system composes an LLM call here (a
// provider with an agent's own model, prompted to condense); this
// deterministic placeholder keeps the runtime's control flow and
// persistence contract (message_summary updated, a System message
// substituted in-window) testable without a network dependency, and is
// the seam a caller wires an LLM-backed summarizer into.
func summarize(existingSummary string, dropped []*message.Message) string {
	base := existingSummary
	if base == "" {
		base = "Earlier conversation summary:"
	}
	return fmt.Sprintf("%s (+%d more messages condensed)", base, len(dropped))
}
