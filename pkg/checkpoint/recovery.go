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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patterncore/pattern/pkg/ids"
)

// RecoveryManager scans for pending checkpoints and resumes or expires
// them.
type RecoveryManager struct {
	config *Config
	store  Store

	resumeCallback ResumeCallback
	mu             sync.RWMutex
}

// ResumeCallback re-enters a turn's loop at the phase recorded in
// state. The agent runtime supplies this; pkg/checkpoint never calls
// into the runtime directly.
type ResumeCallback func(ctx context.Context, state *ExecutionState) error

// NewRecoveryManager creates a RecoveryManager over store.
func NewRecoveryManager(cfg *Config, store Store) *RecoveryManager {
	return &RecoveryManager{config: cfg, store: store}
}

func (m *RecoveryManager) SetResumeCallback(cb ResumeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeCallback = cb
}

// RecoverPendingTasks resumes turns with pending checkpoints at
// startup. Intended to be called once during runtime initialization.
func (m *RecoveryManager) RecoverPendingTasks(ctx context.Context) error {
	if !m.config.ShouldAutoResume() {
		slog.Debug("checkpoint recovery disabled")
		return nil
	}

	states, err := m.store.ListAllPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending checkpoints: %w", err)
	}
	if len(states) == 0 {
		return nil
	}

	slog.Info("found pending checkpoints, starting recovery", "count", len(states))

	recovered, failed := 0, 0
	for _, state := range states {
		if err := m.recoverCheckpoint(ctx, state); err != nil {
			slog.Error("failed to recover checkpoint", "agent_id", state.AgentID, "task_id", state.TaskID, "error", err)
			failed++
			continue
		}
		recovered++
	}

	slog.Info("checkpoint recovery completed", "recovered", recovered, "failed", failed)
	return nil
}

func (m *RecoveryManager) recoverCheckpoint(ctx context.Context, state *ExecutionState) error {
	if !state.IsRecoverable() {
		return fmt.Errorf("checkpoint not recoverable (phase=%s)", state.Phase)
	}

	timeout := m.config.GetRecoveryTimeout()
	if state.IsExpired(timeout) {
		slog.Warn("checkpoint expired", "agent_id", state.AgentID, "checkpoint_time", state.CheckpointTime, "timeout", timeout)
		if err := m.store.ClearCheckpoint(ctx, state.AgentID, state.TaskID); err != nil {
			slog.Warn("failed to clear expired checkpoint", "error", err)
		}
		return fmt.Errorf("checkpoint expired")
	}

	if state.NeedsUserInput() && !m.config.ShouldAutoResumeHITL() {
		slog.Info("checkpoint awaiting user input, auto-resume HITL disabled", "agent_id", state.AgentID, "task_id", state.TaskID)
		return nil
	}

	m.mu.RLock()
	callback := m.resumeCallback
	m.mu.RUnlock()

	if callback == nil {
		slog.Warn("no resume callback configured, checkpoint will be recovered on next access", "agent_id", state.AgentID)
		return nil
	}

	slog.Info("resuming turn from checkpoint", "agent_id", state.AgentID, "task_id", state.TaskID, "phase", state.Phase)

	go func() {
		if err := callback(ctx, state); err != nil {
			slog.Error("failed to resume turn from checkpoint", "agent_id", state.AgentID, "error", err)
		}
	}()

	return nil
}

// ResumeTask manually resumes one turn by handing its checkpointed state
// to the resume callback. userInput is accepted but is not recorded in
// the state the callback receives.
func (m *RecoveryManager) ResumeTask(ctx context.Context, agent ids.ID, taskID, userInput string) error {
	state, err := m.store.LoadCheckpoint(ctx, agent, taskID)
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	if !state.IsRecoverable() {
		return fmt.Errorf("checkpoint not recoverable")
	}

	if state.IsExpired(m.config.GetRecoveryTimeout()) {
		_ = m.store.ClearCheckpoint(ctx, agent, taskID)
		return fmt.Errorf("checkpoint expired")
	}

	m.mu.RLock()
	callback := m.resumeCallback
	m.mu.RUnlock()
	if callback == nil {
		return fmt.Errorf("no resume callback configured")
	}

	if userInput != "" && state.PendingToolCall != nil {
		if state.Turn == nil {
			state.Turn = &TurnSnapshot{}
		}
	}

	return callback(ctx, state)
}

// GetPendingCheckpoints lists pending checkpoints for owner's agents.
func (m *RecoveryManager) GetPendingCheckpoints(ctx context.Context, owner ids.ID) ([]*ExecutionState, error) {
	return m.store.ListPendingForOwner(ctx, owner)
}

// GetCheckpoint returns one checkpoint.
func (m *RecoveryManager) GetCheckpoint(ctx context.Context, agent ids.ID, taskID string) (*ExecutionState, error) {
	return m.store.LoadCheckpoint(ctx, agent, taskID)
}

// CancelCheckpoint removes a checkpoint without resuming it.
func (m *RecoveryManager) CancelCheckpoint(ctx context.Context, agent ids.ID, taskID string) error {
	return m.store.ClearCheckpoint(ctx, agent, taskID)
}

// Stats summarizes the pending checkpoints in the store.
type Stats struct {
	Total         int
	Working       int
	InputRequired int
	Expired       int
	OldestAge     time.Duration
	AverageAge    time.Duration
}

// GetStats computes aggregate statistics over every pending checkpoint.
func (m *RecoveryManager) GetStats(ctx context.Context) (*Stats, error) {
	states, err := m.store.ListAllPending(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(states)}
	if len(states) == 0 {
		return stats, nil
	}

	var totalAge time.Duration
	timeout := m.config.GetRecoveryTimeout()

	for _, state := range states {
		age := time.Since(state.CheckpointTime)
		totalAge += age
		if age > stats.OldestAge {
			stats.OldestAge = age
		}

		switch {
		case state.IsExpired(timeout):
			stats.Expired++
		case state.NeedsUserInput():
			stats.InputRequired++
		default:
			stats.Working++
		}
	}

	stats.AverageAge = totalAge / time.Duration(len(states))
	return stats, nil
}
