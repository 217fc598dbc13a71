// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package checkpoint captures and recovers the execution state of an
// in-flight agent turn.
//
// # Scope
//
// A checkpoint captures the state of the CURRENTLY EXECUTING agent's
// turn only, not the whole constellation. This is sufficient because:
//
//  1. Every message the turn has appended so far is already durable via
//     pkg/entity's agent_messages edges — the checkpoint only needs to
//     remember where the in-memory loop was, not replay history.
//  2. On recovery, the runtime rehydrates the agent's active message
//     window from storage exactly as it would on any cold start
//     (AgentRecord::load_with_relations in spec terms); the checkpoint
//     supplies the missing in-progress pieces: loop iteration, pending
//     tool calls, and whether a tool is waiting on human approval.
//
// # Recovery flow
//
//	Turn loop reaches a checkpoint point (before/after the model call,
//	after tool execution, or when a tool requires approval)
//	    -> ExecutionState captured and persisted via Store
//	    -> on restart (or explicit resume), Manager.RecoverOnStartup /
//	       ResumeTask loads the state and hands it to a resume callback
//	       that re-enters the turn loop at the recorded Phase.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/message"
)

// Phase marks where in the turn procedure a checkpoint was captured.
type Phase string

const (
	PhaseInitialized   Phase = "initialized"
	PhasePreLLM        Phase = "pre_llm"
	PhasePostLLM       Phase = "post_llm"
	PhaseToolExecution Phase = "tool_execution"
	PhasePostTool      Phase = "post_tool"
	PhaseIterationEnd  Phase = "iteration_end"
	PhaseToolApproval  Phase = "tool_approval"
	PhaseError         Phase = "error"
)

// Type records why a checkpoint was created.
type Type string

const (
	TypeEvent    Type = "event"
	TypeInterval Type = "interval"
	TypeManual   Type = "manual"
	TypeError    Type = "error"
)

// ExecutionState is everything needed to resume an agent's turn loop
// from the point it was interrupted.
type ExecutionState struct {
	// AgentID and OwnerID identify whose turn this is.
	AgentID ids.ID `json:"agent_id"`
	OwnerID ids.ID `json:"owner_id"`
	TaskID  string `json:"task_id"`

	// Query is the intake message's text, kept for diagnostics and for
	// the HITL resume path (it's not re-dispatched on resume; the
	// agent's attached messages remain the source of truth).
	Query string `json:"query"`

	Turn *TurnSnapshot `json:"turn,omitempty"`

	PendingToolCall *PendingToolCall `json:"pending_tool_call,omitempty"`

	Phase          Phase     `json:"phase"`
	CheckpointType Type      `json:"checkpoint_type"`
	CheckpointTime time.Time `json:"checkpoint_time"`

	Error string `json:"error,omitempty"`
}

// TurnSnapshot captures the in-progress turn-loop state: loop
// position, messages appended so far this turn (step 6 of the turn
// procedure builds these incrementally), and the rolling counters the
// turn will commit to the agent record at step 9.
type TurnSnapshot struct {
	Iteration int `json:"iteration"`

	CurrentTurnMessages []*message.Message `json:"current_turn_messages,omitempty"`

	TotalMessages     int `json:"total_messages"`
	TotalToolCalls    int `json:"total_tool_calls"`
	ContextRebuilds   int `json:"context_rebuilds"`
	CompressionEvents int `json:"compression_events"`

	PendingToolCalls []ToolCallSnapshot `json:"pending_tool_calls,omitempty"`
}

// PendingToolCall is a tool call the turn loop is waiting to execute
// or that is blocked on human approval (the original's
// RequiresApproval-style tool gate, not present in spec.md's turn
// procedure but compatible with it: a gated tool simply never reaches
// step 7 until approved).
type PendingToolCall struct {
	CallID           string `json:"call_id"`
	FnName           string `json:"fn_name"`
	FnArguments      string `json:"fn_arguments"` // raw JSON
	RequiresApproval bool   `json:"requires_approval"`
}

// ToolCallSnapshot is one tool call's progress within the current
// turn iteration.
type ToolCallSnapshot struct {
	CallID    string `json:"call_id"`
	FnName    string `json:"fn_name"`
	Completed bool   `json:"completed"`
	Error     string `json:"error,omitempty"`
}

// Serialize converts the state to JSON bytes.
func (s *ExecutionState) Serialize() ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("cannot serialize nil checkpoint state")
	}
	return json.Marshal(s)
}

// Deserialize reconstructs an ExecutionState from JSON bytes.
func Deserialize(data []byte) (*ExecutionState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot deserialize empty checkpoint data")
	}
	var state ExecutionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint state: %w", err)
	}
	return &state, nil
}

// NewState creates a checkpoint for agent with the turn's original
// intake query.
func NewState(agent, owner ids.ID, taskID, query string) *ExecutionState {
	return &ExecutionState{
		AgentID:        agent,
		OwnerID:        owner,
		TaskID:         taskID,
		Query:          query,
		Phase:          PhaseInitialized,
		CheckpointType: TypeEvent,
		CheckpointTime: time.Now(),
	}
}

func (s *ExecutionState) WithPhase(phase Phase) *ExecutionState {
	s.Phase = phase
	s.CheckpointTime = time.Now()
	return s
}

func (s *ExecutionState) WithType(t Type) *ExecutionState {
	s.CheckpointType = t
	return s
}

func (s *ExecutionState) WithTurn(t *TurnSnapshot) *ExecutionState {
	s.Turn = t
	return s
}

func (s *ExecutionState) WithPendingToolCall(tc *PendingToolCall) *ExecutionState {
	s.PendingToolCall = tc
	return s
}

func (s *ExecutionState) WithError(err error) *ExecutionState {
	if err != nil {
		s.Error = err.Error()
		s.Phase = PhaseError
		s.CheckpointType = TypeError
	}
	return s
}

// IsExpired reports whether the checkpoint has aged past timeout.
func (s *ExecutionState) IsExpired(timeout time.Duration) bool {
	if s.CheckpointTime.IsZero() || timeout <= 0 {
		return false
	}
	return time.Since(s.CheckpointTime) > timeout
}

// IsRecoverable reports whether the checkpoint carries enough state
// to resume from.
func (s *ExecutionState) IsRecoverable() bool {
	return s.Phase != ""
}

// NeedsUserInput reports whether the checkpoint is blocked on a
// human approval decision.
func (s *ExecutionState) NeedsUserInput() bool {
	return s.Phase == PhaseToolApproval && s.PendingToolCall != nil && s.PendingToolCall.RequiresApproval
}
