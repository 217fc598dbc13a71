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

package entity

import (
	"context"
	"time"

	"github.com/patterncore/pattern/pkg/checkpoint"
	"github.com/patterncore/pattern/pkg/ids"
)

var _ checkpoint.Store = (*Store)(nil)

// storedCheckpoint is the checkpoint table's on-disk shape; the richer
// ExecutionState is kept as an opaque JSON blob under StateJSON since
// its shape (turn snapshot, pending tool call) is owned entirely by
// pkg/checkpoint and the entity store has no reason to know its fields.
type storedCheckpoint struct {
	ID             ids.ID    `json:"id"`
	AgentID        ids.ID    `json:"agent_id"`
	OwnerID        ids.ID    `json:"owner_id"`
	TaskID         string    `json:"task_id"`
	CheckpointTime time.Time `json:"checkpoint_time"`
	StateJSON      string    `json:"state_json"`
}

// SaveCheckpoint implements checkpoint.Store: overwrites any existing
// checkpoint row for (agent, task_id), or creates one on first save.
func (s *Store) SaveCheckpoint(ctx context.Context, state *checkpoint.ExecutionState) error {
	stateJSON, err := state.Serialize()
	if err != nil {
		return err
	}

	id, err := s.findCheckpointID(ctx, state.AgentID, state.TaskID)
	if err != nil {
		return err
	}
	if id.IsNil() {
		id = ids.New(ids.KindCheckpoint)
	}

	row := storedCheckpoint{
		ID:             id,
		AgentID:        state.AgentID,
		OwnerID:        state.OwnerID,
		TaskID:         state.TaskID,
		CheckpointTime: state.CheckpointTime,
		StateJSON:      string(stateJSON),
	}

	return exec(ctx, s, `UPDATE $id CONTENT $data`, map[string]any{
		"id":   id.RecordID(),
		"data": row,
	})
}

// LoadCheckpoint implements checkpoint.Store.
func (s *Store) LoadCheckpoint(ctx context.Context, agent ids.ID, taskID string) (*checkpoint.ExecutionState, error) {
	rows, err := query[storedCheckpoint](ctx, s,
		`SELECT * FROM checkpoint WHERE agent_id = $agent AND task_id = $task_id LIMIT 1`,
		map[string]any{"agent": agent.RecordID(), "task_id": taskID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return checkpoint.Deserialize([]byte(rows[0].StateJSON))
}

// ClearCheckpoint implements checkpoint.Store.
func (s *Store) ClearCheckpoint(ctx context.Context, agent ids.ID, taskID string) error {
	return exec(ctx, s, `DELETE checkpoint WHERE agent_id = $agent AND task_id = $task_id`,
		map[string]any{"agent": agent.RecordID(), "task_id": taskID})
}

// ListPendingForOwner implements checkpoint.Store.
func (s *Store) ListPendingForOwner(ctx context.Context, owner ids.ID) ([]*checkpoint.ExecutionState, error) {
	rows, err := query[storedCheckpoint](ctx, s,
		`SELECT * FROM checkpoint WHERE owner_id = $owner`,
		map[string]any{"owner": owner.RecordID()})
	if err != nil {
		return nil, err
	}
	return deserializeCheckpoints(rows)
}

// ListAllPending implements checkpoint.Store, used for startup recovery.
func (s *Store) ListAllPending(ctx context.Context) ([]*checkpoint.ExecutionState, error) {
	rows, err := query[storedCheckpoint](ctx, s, `SELECT * FROM checkpoint`, nil)
	if err != nil {
		return nil, err
	}
	return deserializeCheckpoints(rows)
}

func deserializeCheckpoints(rows []storedCheckpoint) ([]*checkpoint.ExecutionState, error) {
	states := make([]*checkpoint.ExecutionState, 0, len(rows))
	for _, row := range rows {
		state, err := checkpoint.Deserialize([]byte(row.StateJSON))
		if err != nil {
			continue
		}
		states = append(states, state)
	}
	return states, nil
}

func (s *Store) findCheckpointID(ctx context.Context, agent ids.ID, taskID string) (ids.ID, error) {
	rows, err := query[storedCheckpoint](ctx, s,
		`SELECT * FROM checkpoint WHERE agent_id = $agent AND task_id = $task_id LIMIT 1`,
		map[string]any{"agent": agent.RecordID(), "task_id": taskID})
	if err != nil {
		return ids.ID{}, err
	}
	if len(rows) == 0 {
		return ids.ID{}, nil
	}
	return rows[0].ID, nil
}
