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

	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/perr"
	"github.com/patterncore/pattern/pkg/rules"
)

// AgentState is an agent's position in the Ready -> Processing ->
// (Ready|Suspended) state machine; only one turn may execute per
// agent at a time.
type AgentState string

const (
	AgentReady      AgentState = "ready"
	AgentProcessing AgentState = "processing"
	AgentSuspended  AgentState = "suspended"
)

// CompressionKind selects how an agent's context assembly step
// shrinks in-window history once it crosses CompressionThreshold.
type CompressionKind string

const (
	CompressionTruncate  CompressionKind = "truncate"
	CompressionSummarize CompressionKind = "summarize"
)

// CompressionStrategy is the tagged variant configuring context
// compression: Truncate keeps the KeepRecent most recent messages
// intact and drops the rest; Summarize replaces the dropped span with
// a synthesized summary message.
type CompressionStrategy struct {
	Kind       CompressionKind `json:"kind"`
	KeepRecent int             `json:"keep_recent,omitempty"`
}

// User is the owning principal at the root of every ownership chain;
// per the data model's ownership-scoping invariant, nothing else is
// addressable except by traversing from a User.
type User struct {
	ID        ids.ID    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Agent is one member of a constellation.
type Agent struct {
	ID      ids.ID `json:"id"`
	OwnerID ids.ID `json:"owner_id"`
	Name    string `json:"name"`

	// Kind is the agent's role tag: a handful of well-known values
	// ("chat", "worker", "supervisor") plus any custom string a
	// deployment wants, matching the data model's "enum + custom
	// variant" shape without a closed Go enum getting in the way.
	Kind string `json:"kind"`

	State AgentState `json:"state"`

	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model"`

	MemoryCharLimit      int                 `json:"memory_char_limit"`
	MaxMessages          int                 `json:"max_messages"`
	MaxMessageAgeHours   int                 `json:"max_message_age_hours"`
	CompressionThreshold int                 `json:"compression_threshold"`
	CompressionStrategy  CompressionStrategy `json:"compression_strategy"`
	EnableThinking       bool                `json:"enable_thinking"`
	ToolTimeoutSeconds   int                 `json:"tool_timeout_seconds"`

	ToolRules []rules.Rule `json:"tool_rules,omitempty"`

	TotalMessages     int `json:"total_messages"`
	TotalToolCalls    int `json:"total_tool_calls"`
	ContextRebuilds   int `json:"context_rebuilds"`
	CompressionEvents int `json:"compression_events"`

	MessageSummary string `json:"message_summary,omitempty"`

	LastActive time.Time `json:"last_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MemoryBlock is one labeled, size-bounded block of persistent context
// (e.g. "persona", "human") attached to an agent via agent_memories.
// The data model's memory-bound invariant requires
// len(Value) <= owning Agent.MemoryCharLimit; that bound is enforced by
// the runtime at write time, not by the store.
type MemoryBlock struct {
	ID        ids.ID    `json:"id"`
	Label     string    `json:"label"`
	Value     string    `json:"value"`
	Embedding []float32 `json:"embedding,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DataSourceDescriptor is the persisted configuration record for a
// registered data source, independent of the in-memory DataSource
// implementation pkg/datasource constructs from it.
type DataSourceDescriptor struct {
	ID       ids.ID         `json:"id"`
	Type     string         `json:"type"`
	Settings map[string]any `json:"settings"`
}

// OAuthToken is a persisted, possibly-refreshed OAuth credential for an
// outbound integration, scoped to the user it authenticates on behalf
// of.
type OAuthToken struct {
	ID           ids.ID    `json:"id"`
	OwnerID      ids.ID    `json:"owner_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// GetUser loads a user by ID.
func (s *Store) GetUser(ctx context.Context, id ids.ID) (*User, error) {
	return selectOne[User](ctx, s, id)
}

// CreateUser persists a new user.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	return create(ctx, s, u.ID, u)
}

// GetAgent loads an agent by ID, scoped under its owner per the
// ownership invariant — callers must already know the owning user
// (there is no global agent listing). Every agent must carry an owns
// edge from its owner (invariant 6); a record missing it is corrupt,
// not merely unowned, so load_with_relations raises the typed
// required-relation-missing error rather than returning a half-valid
// agent.
func (s *Store) GetAgent(ctx context.Context, id ids.ID) (*Agent, error) {
	a, _, err := LoadWithRelations[Agent](ctx, s, id, []LoadRelationSpec{
		{Edge: "owns", Direction: Incoming, Required: true},
	})
	return a, err
}

// CreateAgent persists a new agent and relates it to its owner via the
// owns edge, so later traversal from the owning user can find it.
func (s *Store) CreateAgent(ctx context.Context, a Agent) error {
	return StoreWithRelations(ctx, s, a.ID, a, []RelationSpec{
		{Edge: "owns", Target: a.OwnerID, Direction: Incoming},
	})
}

// UpdateAgent upserts the full agent record by ID, for the runtime's
// commit step (counters, State, LastActive, UpdatedAt, MessageSummary)
// and for config-driven edits. It does not touch the owns edge, which
// CreateAgent already established and which never needs to change.
func (s *Store) UpdateAgent(ctx context.Context, a Agent) error {
	return exec(ctx, s, `UPDATE $id CONTENT $data;`, map[string]any{
		"id":   a.ID.RecordID(),
		"data": a,
	})
}

// ListAgentsForOwner returns every agent reachable from owner via owns.
func (s *Store) ListAgentsForOwner(ctx context.Context, owner ids.ID) ([]Agent, error) {
	return query[Agent](ctx, s, `SELECT * FROM (SELECT ->owns->agent AS a FROM ONLY $owner).a.*;`, map[string]any{
		"owner": owner.RecordID(),
	})
}

// AttachMemory relates a memory block to its owning agent.
func (s *Store) AttachMemory(ctx context.Context, agent ids.ID, mem MemoryBlock) error {
	return StoreWithRelations(ctx, s, mem.ID, mem, []RelationSpec{
		{Edge: "agent_memories", Target: agent, Direction: Incoming},
	})
}

// LoadMemories returns every memory block attached to agent.
func (s *Store) LoadMemories(ctx context.Context, agent ids.ID) ([]MemoryBlock, error) {
	return query[MemoryBlock](ctx, s, `SELECT * FROM (SELECT ->agent_memories->mem AS m FROM ONLY $agent).m.*;`, map[string]any{
		"agent": agent.RecordID(),
	})
}

// SearchMemoriesByVector performs cosine-similarity search over an
// agent's memory blocks and returns the topK nearest.
func (s *Store) SearchMemoriesByVector(ctx context.Context, agent ids.ID, vector []float32, topK int) ([]MemoryBlock, error) {
	return query[MemoryBlock](ctx, s, `
		SELECT * FROM (SELECT ->agent_memories->mem AS m FROM ONLY $agent).m.*
		WHERE embedding != NONE
		ORDER BY vector::similarity::cosine(embedding, $vector) DESC
		LIMIT $top_k;`,
		map[string]any{"agent": agent.RecordID(), "vector": vector, "top_k": topK})
}

func selectOne[T any](ctx context.Context, s *Store, id ids.ID) (*T, error) {
	rows, err := query[T](ctx, s, `SELECT * FROM ONLY $id;`, map[string]any{"id": id.RecordID()})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, perr.DatabaseVariant("entity.select_one", perr.DBOther, "not found", nil).With("id", id.String())
	}
	return &rows[0], nil
}

func create[T any](ctx context.Context, s *Store, id ids.ID, data T) error {
	return exec(ctx, s, `CREATE $id CONTENT $data;`, map[string]any{
		"id":   id.RecordID(),
		"data": data,
	})
}
