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

package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(e *Engine, tool string, at time.Time, success bool) *Violation {
	if v := e.canExecuteLocked(tool, at); v != nil {
		return v
	}
	e.RecordExecution(Execution{ToolName: tool, CallID: tool + "-call", Timestamp: at, Success: success})
	return nil
}

func TestEngine_S1_ETLWorkflowInOrderSucceeds(t *testing.T) {
	e := New([]Rule{
		{Kind: KindStartConstraint, ToolName: "connect"},
		{Kind: KindRequiresPrecedingTools, ToolName: "extract", Preceding: []string{"connect"}},
		{Kind: KindRequiresPrecedingTools, ToolName: "validate", Preceding: []string{"extract"}},
		{Kind: KindRequiresPrecedingTools, ToolName: "transform", Preceding: []string{"validate"}},
		{Kind: KindRequiresPrecedingTools, ToolName: "load", Preceding: []string{"transform"}},
		{Kind: KindRequiredBeforeExit, ToolName: "disconnect"},
	})

	order := []string{"connect", "extract", "validate", "transform", "load", "disconnect"}
	now := time.Now()
	for _, tool := range order {
		require.Nil(t, execute(e, tool, now, true), "tool %s should be allowed in order", tool)
	}
	assert.Empty(t, e.RequiredBeforeExit())
}

func TestEngine_S1_ETLWorkflowOutOfOrderViolates(t *testing.T) {
	e := New([]Rule{
		{Kind: KindStartConstraint, ToolName: "connect"},
		{Kind: KindRequiresPrecedingTools, ToolName: "extract", Preceding: []string{"connect"}},
	})

	v := e.CanExecute("extract")
	require.NotNil(t, v)
	assert.Equal(t, ViolationStartConstraint, v.Kind)
}

func TestEngine_S2_MaxCallsAndCooldown(t *testing.T) {
	e := New([]Rule{
		{Kind: KindMaxCalls, ToolName: "post", MaxCalls: 5},
		{Kind: KindCooldown, ToolName: "post", Cooldown: 500 * time.Millisecond},
	})

	start := time.Now()
	for i := 0; i < 5; i++ {
		at := start.Add(time.Duration(i) * 600 * time.Millisecond)
		require.Nil(t, execute(e, "post", at, true), "call %d should succeed", i+1)
	}

	sixth := start.Add(5 * 600 * time.Millisecond)
	v := e.canExecuteLocked("post", sixth)
	require.NotNil(t, v)
	assert.Equal(t, ViolationMaxCalls, v.Kind)
}

func TestEngine_S2_CooldownWithinWindow(t *testing.T) {
	e := New([]Rule{
		{Kind: KindCooldown, ToolName: "post", Cooldown: 500 * time.Millisecond},
	})

	start := time.Now()
	require.Nil(t, execute(e, "post", start, true))

	v := e.canExecuteLocked("post", start.Add(200*time.Millisecond))
	require.NotNil(t, v)
	assert.Equal(t, ViolationCooldown, v.Kind)
}

func TestEngine_S3_ExclusiveGroups(t *testing.T) {
	e := New([]Rule{
		{Kind: KindExclusiveGroups, ToolName: "a", Group: []string{"a", "b"}},
		{Kind: KindExclusiveGroups, ToolName: "b", Group: []string{"a", "b"}},
	})

	require.Nil(t, execute(e, "a", time.Now(), true))
	v := e.CanExecute("b")
	require.NotNil(t, v)
	assert.Equal(t, ViolationExclusiveGroup, v.Kind)
}

func TestEngine_S4_RequiredBeforeExit(t *testing.T) {
	e := New([]Rule{
		{Kind: KindRequiredBeforeExit, ToolName: "cleanup"},
		{Kind: KindRequiredBeforeExit, ToolName: "save"},
	})

	assert.ElementsMatch(t, []string{"cleanup", "save"}, e.RequiredBeforeExit())

	now := time.Now()
	require.Nil(t, execute(e, "cleanup", now, true))
	require.Nil(t, execute(e, "save", now, true))

	assert.Empty(t, e.RequiredBeforeExit())
}

func TestEngine_FailedExecutionDoesNotCountTowardMaxCalls(t *testing.T) {
	e := New([]Rule{{Kind: KindMaxCalls, ToolName: "post", MaxCalls: 1}})

	now := time.Now()
	e.RecordExecution(Execution{ToolName: "post", Timestamp: now, Success: false})
	assert.Nil(t, e.CanExecute("post"), "a failed execution must not consume the MaxCalls budget")

	e.RecordExecution(Execution{ToolName: "post", Timestamp: now, Success: true})
	v := e.CanExecute("post")
	require.NotNil(t, v)
	assert.Equal(t, ViolationMaxCalls, v.Kind)
}

func TestEngine_DeterminismReplayingTraceYieldsSameDecisions(t *testing.T) {
	rules := []Rule{
		{Kind: KindMaxCalls, ToolName: "post", MaxCalls: 2},
		{Kind: KindCooldown, ToolName: "post", Cooldown: time.Second},
	}
	now := time.Now()
	trace := []time.Time{now, now.Add(2 * time.Second)}

	var first, second []*Violation
	for _, engine := range []*Engine{New(rules), New(rules)} {
		var results []*Violation
		for _, at := range trace {
			v := engine.canExecuteLocked("post", at)
			results = append(results, v)
			engine.RecordExecution(Execution{ToolName: "post", Timestamp: at, Success: v == nil})
		}
		if first == nil {
			first = results
		} else {
			second = results
		}
	}

	require.Equal(t, len(first), len(second))
	for i := range first {
		if first[i] == nil {
			assert.Nil(t, second[i])
			continue
		}
		assert.Equal(t, first[i].Kind, second[i].Kind)
	}
}

func TestEngine_HeartbeatAndExitSignals(t *testing.T) {
	e := New([]Rule{
		{Kind: KindContinueLoop, ToolName: "ping"},
		{Kind: KindExitLoop, ToolName: "finish"},
	})

	assert.False(t, e.RequiresHeartbeat("ping"))
	assert.True(t, e.RequiresHeartbeat("other"))
	assert.True(t, e.ShouldExitAfterTool("finish"))
	assert.False(t, e.ShouldExitAfterTool("ping"))
}
