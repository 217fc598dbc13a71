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

package checkpoint

import (
	"context"
	"log/slog"

	"github.com/patterncore/pattern/pkg/ids"
)

// Manager orchestrates checkpoint capture and recovery for the agent
// runtime's turn loop.
type Manager struct {
	config   *Config
	store    Store
	recovery *RecoveryManager
}

// NewManager creates a checkpoint Manager backed by store.
func NewManager(cfg *Config, store Store) *Manager {
	if cfg == nil {
		cfg = &Config{}
		cfg.SetDefaults()
	}
	return &Manager{
		config:   cfg,
		store:    store,
		recovery: NewRecoveryManager(cfg, store),
	}
}

// IsEnabled reports whether checkpointing is enabled.
func (m *Manager) IsEnabled() bool { return m.config.IsEnabled() }

// SetResumeCallback sets the callback invoked to resume a turn.
func (m *Manager) SetResumeCallback(cb ResumeCallback) {
	m.recovery.SetResumeCallback(cb)
}

// SaveCheckpoint persists state if checkpointing is enabled.
func (m *Manager) SaveCheckpoint(ctx context.Context, state *ExecutionState) error {
	if !m.IsEnabled() {
		return nil
	}
	return m.store.SaveCheckpoint(ctx, state)
}

// LoadCheckpoint retrieves a checkpoint by agent/task.
func (m *Manager) LoadCheckpoint(ctx context.Context, agent ids.ID, taskID string) (*ExecutionState, error) {
	return m.store.LoadCheckpoint(ctx, agent, taskID)
}

// ClearCheckpoint removes a checkpoint.
func (m *Manager) ClearCheckpoint(ctx context.Context, agent ids.ID, taskID string) error {
	return m.store.ClearCheckpoint(ctx, agent, taskID)
}

// RecoverOnStartup resumes any pending turns found in storage.
func (m *Manager) RecoverOnStartup(ctx context.Context) error {
	return m.recovery.RecoverPendingTasks(ctx)
}

// ResumeTask manually resumes a turn from its checkpoint. userInput is
// passed through to RecoveryManager.ResumeTask, which does not record it
// in the resumed state.
func (m *Manager) ResumeTask(ctx context.Context, agent ids.ID, taskID, userInput string) error {
	return m.recovery.ResumeTask(ctx, agent, taskID, userInput)
}

// GetPendingCheckpoints lists pending checkpoints for owner's agents.
func (m *Manager) GetPendingCheckpoints(ctx context.Context, owner ids.ID) ([]*ExecutionState, error) {
	return m.recovery.GetPendingCheckpoints(ctx, owner)
}

// GetStats reports aggregate statistics about pending checkpoints.
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	return m.recovery.GetStats(ctx)
}

// Config returns the checkpoint configuration.
func (m *Manager) Config() *Config { return m.config }

func (m *Manager) ShouldCheckpointAtIteration(iteration int) bool {
	return m.config.ShouldCheckpointAtIteration(iteration)
}

func (m *Manager) ShouldCheckpointAfterTools() bool { return m.config.ShouldCheckpointAfterTools() }

func (m *Manager) ShouldCheckpointBeforeLLM() bool { return m.config.ShouldCheckpointBeforeLLM() }

// Hooks provides the turn-loop integration points the agent runtime
// calls at each checkpointable boundary of the turn procedure (§4.F).
type Hooks struct {
	manager *Manager
}

// NewHooks creates turn-loop hooks bound to manager. Returns nil if
// manager is nil, so callers can embed `hooks.BeforeLLMCall(...)` calls
// unconditionally behind a nil-safe receiver.
func NewHooks(manager *Manager) *Hooks {
	if manager == nil {
		return nil
	}
	return &Hooks{manager: manager}
}

func (h *Hooks) BeforeLLMCall(ctx context.Context, state *ExecutionState) {
	if h == nil || !h.manager.ShouldCheckpointBeforeLLM() {
		return
	}
	state.WithPhase(PhasePreLLM)
	if err := h.manager.SaveCheckpoint(ctx, state); err != nil {
		slog.Warn("failed to save pre-LLM checkpoint", "agent_id", state.AgentID, "error", err)
	}
}

func (h *Hooks) AfterLLMCall(ctx context.Context, state *ExecutionState) {
	if h == nil || !h.manager.IsEnabled() {
		return
	}
	state.WithPhase(PhasePostLLM)
	if err := h.manager.SaveCheckpoint(ctx, state); err != nil {
		slog.Warn("failed to save post-LLM checkpoint", "agent_id", state.AgentID, "error", err)
	}
}

func (h *Hooks) BeforeToolExecution(ctx context.Context, state *ExecutionState, toolName string) {
	if h == nil || !h.manager.IsEnabled() {
		return
	}
	state.WithPhase(PhaseToolExecution)
	if err := h.manager.SaveCheckpoint(ctx, state); err != nil {
		slog.Warn("failed to save pre-tool checkpoint", "agent_id", state.AgentID, "tool", toolName, "error", err)
	}
}

func (h *Hooks) AfterToolExecution(ctx context.Context, state *ExecutionState, toolName string) {
	if h == nil || !h.manager.ShouldCheckpointAfterTools() {
		return
	}
	state.WithPhase(PhasePostTool)
	if err := h.manager.SaveCheckpoint(ctx, state); err != nil {
		slog.Warn("failed to save post-tool checkpoint", "agent_id", state.AgentID, "tool", toolName, "error", err)
	}
}

func (h *Hooks) OnToolApprovalRequired(ctx context.Context, state *ExecutionState, pending *PendingToolCall) {
	if h == nil || !h.manager.IsEnabled() {
		return
	}
	state.WithPhase(PhaseToolApproval).WithPendingToolCall(pending)
	if err := h.manager.SaveCheckpoint(ctx, state); err != nil {
		slog.Warn("failed to save tool-approval checkpoint", "agent_id", state.AgentID, "tool", pending.FnName, "error", err)
	}
}

func (h *Hooks) OnIterationEnd(ctx context.Context, state *ExecutionState, iteration int) {
	if h == nil || !h.manager.ShouldCheckpointAtIteration(iteration) {
		return
	}
	state.WithPhase(PhaseIterationEnd).WithType(TypeInterval)
	if err := h.manager.SaveCheckpoint(ctx, state); err != nil {
		slog.Warn("failed to save iteration checkpoint", "agent_id", state.AgentID, "iteration", iteration, "error", err)
	}
}

func (h *Hooks) OnError(ctx context.Context, state *ExecutionState, err error) {
	if h == nil || !h.manager.IsEnabled() {
		return
	}
	state.WithError(err)
	if saveErr := h.manager.SaveCheckpoint(ctx, state); saveErr != nil {
		slog.Warn("failed to save error checkpoint", "agent_id", state.AgentID, "original_error", err, "save_error", saveErr)
	}
}

func (h *Hooks) OnComplete(ctx context.Context, agent ids.ID, taskID string) {
	if h == nil || !h.manager.IsEnabled() {
		return
	}
	if err := h.manager.ClearCheckpoint(ctx, agent, taskID); err != nil {
		slog.Warn("failed to clear checkpoint on turn completion", "agent_id", agent, "error", err)
	}
}
