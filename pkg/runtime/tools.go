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
	"context"
	"fmt"
	"time"

	"github.com/patterncore/pattern/pkg/message"
)

// Handler is one callable tool an agent can invoke. Implementations
// range from local Go functions to RPCs against an MCP server or
// another agent; the runtime only needs the name, schema, and a
// synchronous, cancellable call.
//
// Call's requestHeartbeat return lets a handler ask for another turn
// regardless of the tool's configured ContinueLoop/ExitLoop rules
// (§4.F step 7).
type Handler interface {
	Schema() message.ToolSchema
	Call(ctx context.Context, fnArguments string) (content string, requestHeartbeat bool, err error)
}

// ToolSet is the static set of tools registered for one agent, keyed
// by name. The runtime filters it down to legal tools per turn via the
// rule engine (step 3, §4.F) before exposing it to the model.
type ToolSet map[string]Handler

// Schemas returns every tool's schema, for a request that hasn't yet
// been gated by the rule engine.
func (t ToolSet) Schemas() []message.ToolSchema {
	out := make([]message.ToolSchema, 0, len(t))
	for _, h := range t {
		out = append(out, h.Schema())
	}
	return out
}

// callResult is what executeTool returns for one tool call: the
// message.ToolResponse content, whether the call succeeded, and
// whether the handler asked for a heartbeat turn.
type callResult struct {
	content          string
	success          bool
	requestHeartbeat bool
	err              error
}

// executeTool runs h with a per-tool timeout, matching §4.F step 7's
// "execute the handler with a timeout" contract. A timeout or handler
// error is a non-fatal, recorded failure: the turn still appends a
// ToolResponse carrying the error text.
func executeTool(ctx context.Context, h Handler, call message.ToolCall, timeout time.Duration) callResult {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, heartbeat, err := h.Call(callCtx, call.FnArguments)
	if err != nil {
		return callResult{
			content: fmt.Sprintf("tool %q failed: %v", call.FnName, err),
			success: false,
			err:     err,
		}
	}
	return callResult{content: content, success: true, requestHeartbeat: heartbeat}
}
