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
	"context"
	"time"

	"github.com/patterncore/pattern/pkg/ids"
)

// EdgeType is the message_type tag on an agent_messages edge.
type EdgeType string

const (
	EdgeActive   EdgeType = "active"
	EdgeArchived EdgeType = "archived"
	EdgeShared   EdgeType = "shared"
)

// AgentMessageEdge is the agent_messages relation: an agent -> message
// edge carrying its own position and lifecycle fields, per the data
// model's "edge identity" invariant (edges are first-class records).
type AgentMessageEdge struct {
	AgentID   ids.ID
	MessageID ids.ID
	Type      EdgeType
	Position  string // decimal Snowflake position, lexicographically sortable
	AddedAt   time.Time
}

// Store is the minimal entity-store port attach/load need: relate an
// agent to a message with edge data, and traverse that relation back
// in position order. pkg/entity's Store implements this.
type Store interface {
	RelateAgentMessage(ctx context.Context, edge AgentMessageEdge) error
	LoadAgentMessages(ctx context.Context, agent ids.ID, includeArchived bool) ([]AgentMessageEdge, error)
	GetMessage(ctx context.Context, id ids.ID) (*Message, error)
}

// PositionGenerator is the minimal Snowflake port attach needs.
type PositionGenerator interface {
	NextPosition() string
}

// Attach creates the agent_messages edge for msg, which the caller must
// already have stored (Attach does not write the message row), allocating a fresh Snowflake
// position so the edge set stays strictly ordered per the position
// monotonicity invariant.
func Attach(ctx context.Context, store Store, gen PositionGenerator, agent ids.ID, msg *Message, edgeType EdgeType) (AgentMessageEdge, error) {
	edge := AgentMessageEdge{
		AgentID:   agent,
		MessageID: msg.ID,
		Type:      edgeType,
		Position:  gen.NextPosition(),
		AddedAt:   time.Now(),
	}
	if err := store.RelateAgentMessage(ctx, edge); err != nil {
		return AgentMessageEdge{}, err
	}
	return edge, nil
}

// Pair is one (message, edge) result from LoadHistory.
type Pair struct {
	Message *Message
	Edge    AgentMessageEdge
}

// LoadHistory returns an agent's attached messages in position order,
// optionally including archived edges.
func LoadHistory(ctx context.Context, store Store, agent ids.ID, includeArchived bool) ([]Pair, error) {
	edges, err := store.LoadAgentMessages(ctx, agent, includeArchived)
	if err != nil {
		return nil, err
	}
	pairs := make([]Pair, 0, len(edges))
	for _, edge := range edges {
		msg, err := store.GetMessage(ctx, edge.MessageID)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Message: msg, Edge: edge})
	}
	return pairs, nil
}
