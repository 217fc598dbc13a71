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

import "github.com/patterncore/pattern/pkg/message"

// splitResponse turns one provider response message into the separate
// messages §4.F step 6 requires persisted: any assistant text/thinking
// content as its own message, and any tool calls as a second,
// ContentToolCalls-kind message, so later turns' Request.Validate (the
// pairing check pkg/message.Request.Validate enforces) sees the
// assistant/tool role split it expects rather than one mixed
// ContentBlocks message.
//
// A provider that already emits a single-kind message (plain
// ContentText, or pure ContentToolCalls, as OpenAI's adapter does)
// passes through unchanged.
func splitResponse(resp *message.Message) []*message.Message {
	if resp.Content.Kind != message.ContentBlocks {
		return []*message.Message{resp}
	}

	var textBlocks []message.ContentBlock
	var calls []message.ToolCall

	for _, b := range resp.Content.Blocks {
		if b.Kind == message.BlockToolUse {
			calls = append(calls, message.ToolCall{
				CallID:      b.ToolUseID,
				FnName:      b.ToolUseName,
				FnArguments: b.ToolUseInput,
			})
			continue
		}
		textBlocks = append(textBlocks, b)
	}

	var out []*message.Message
	if len(textBlocks) > 0 {
		out = append(out, message.Blocks(textBlocks))
	}
	if len(calls) > 0 {
		out = append(out, message.AssistantToolCalls(calls))
	}
	if len(out) == 0 {
		// A response with neither text nor tool-use blocks (e.g. only a
		// redacted-thinking block) still needs a persisted record.
		out = append(out, resp)
	}
	return out
}
