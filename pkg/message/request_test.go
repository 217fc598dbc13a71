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

	"github.com/patterncore/pattern/pkg/perr"
)

func TestRequest_Validate_MatchedCallAndResponseSucceeds(t *testing.T) {
	r := &Request{
		System: "be helpful",
		Messages: []*Message{
			User("search for x"),
			AssistantToolCalls([]ToolCall{{CallID: "c1", FnName: "search", FnArguments: `{}`}}),
			Tool([]ToolResponse{{CallID: "c1", Content: "result"}}),
		},
	}
	assert.NoError(t, r.Validate())
}

func TestRequest_Validate_OrphanedToolResponseFails(t *testing.T) {
	r := &Request{Messages: []*Message{
		Tool([]ToolResponse{{CallID: "missing", Content: "result"}}),
	}}
	err := r.Validate()
	require.Error(t, err)
	var pe *perr.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, perr.KindValidation, pe.Kind)
}

func TestRequest_Validate_DanglingToolCallFails(t *testing.T) {
	r := &Request{Messages: []*Message{
		AssistantToolCalls([]ToolCall{{CallID: "c1", FnName: "search", FnArguments: `{}`}}),
	}}
	err := r.Validate()
	require.Error(t, err)
	var pe *perr.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, perr.KindValidation, pe.Kind)
}

func TestRequest_Validate_EmptyRequestSucceeds(t *testing.T) {
	r := &Request{}
	assert.NoError(t, r.Validate())
}
