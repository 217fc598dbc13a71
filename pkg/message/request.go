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
	"github.com/patterncore/pattern/pkg/perr"
)

// ToolSchema describes one tool's callable signature for a provider request.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  string // raw JSON schema
}

// Request is the payload handed to a model provider.
type Request struct {
	System   string
	Messages []*Message
	Tools    []ToolSchema
}

// Validate verifies that every assistant ToolCall has a later matching
// ToolResponse and that no orphan ToolResponse exists. It is the gate
// a turn must pass before a Request may be sent to a model provider.
func (r *Request) Validate() error {
	pending := make(map[string]int) // call_id -> index of the ToolCall message

	for i, m := range r.Messages {
		switch m.Content.Kind {
		case ContentToolCalls:
			for _, tc := range m.Content.ToolCalls {
				pending[tc.CallID] = i
			}
		case ContentToolResponses:
			for _, tr := range m.Content.ToolResponses {
				if _, ok := pending[tr.CallID]; !ok {
					return perr.Validation("request.validate", "orphaned tool result IDs", nil).
						With("call_id", tr.CallID)
				}
				delete(pending, tr.CallID)
			}
		}
	}

	if len(pending) > 0 {
		ids := make([]string, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		return perr.Validation("request.validate", "orphaned tool call IDs", nil).
			With("call_ids", ids)
	}

	return nil
}
