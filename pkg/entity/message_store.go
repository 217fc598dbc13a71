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
	"github.com/patterncore/pattern/pkg/message"
	"github.com/patterncore/pattern/pkg/router"
)

// Compile-time assertions that Store satisfies the narrow ports message
// and router each declare, without either package importing entity.
var (
	_ message.Store = (*Store)(nil)
	_ router.Outbox = (*Store)(nil)
)

// storedMessage is the msg table's on-disk shape; Message's richer
// Content sum type is flattened to JSON-friendly fields for storage.
type storedMessage struct {
	ID             ids.ID         `json:"id"`
	Role           message.Role   `json:"role"`
	Content        message.Content `json:"content"`
	OwnerID        ids.ID         `json:"owner_id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	HasToolCalls   bool           `json:"has_tool_calls"`
	WordCount      int            `json:"word_count"`
	CreatedAt      time.Time      `json:"created_at"`
	Embedding      []float32      `json:"embedding,omitempty"`
	EmbeddingModel string         `json:"embedding_model,omitempty"`
}

// GetMessage implements message.Store.
func (s *Store) GetMessage(ctx context.Context, id ids.ID) (*message.Message, error) {
	row, err := selectOne[storedMessage](ctx, s, id)
	if err != nil {
		return nil, err
	}
	return row.toMessage(), nil
}

// RelateAgentMessage implements message.Store: creates the
// agent_messages edge carrying the message's position and lifecycle
// type. The message record itself must already be stored (PutMessage).
func (s *Store) RelateAgentMessage(ctx context.Context, edge message.AgentMessageEdge) error {
	return exec(ctx, s, `
		RELATE $agent -> agent_messages -> $msg
		SET position = $position, message_type = $message_type, added_at = $added_at;`,
		map[string]any{
			"agent":        edge.AgentID.RecordID(),
			"msg":          edge.MessageID.RecordID(),
			"position":     edge.Position,
			"message_type": string(edge.Type),
			"added_at":     edge.AddedAt,
		})
}

// LoadAgentMessages implements message.Store: returns the agent's
// agent_messages edges ordered by position, the only field the data
// model guarantees lexicographic-sortability for.
func (s *Store) LoadAgentMessages(ctx context.Context, agent ids.ID, includeArchived bool) ([]message.AgentMessageEdge, error) {
	sql := `SELECT out AS msg, position, message_type, added_at FROM agent_messages WHERE in = $agent`
	if !includeArchived {
		sql += ` AND message_type != 'archived'`
	}
	sql += ` ORDER BY position ASC;`

	rows, err := query[map[string]any](ctx, s, sql, map[string]any{"agent": agent.RecordID()})
	if err != nil {
		return nil, err
	}

	edges := make([]message.AgentMessageEdge, 0, len(rows))
	for _, row := range rows {
		msgID, _ := row["msg"].(string)
		position, _ := row["position"].(string)
		msgType, _ := row["message_type"].(string)
		addedAt, _ := row["added_at"].(time.Time)
		edges = append(edges, message.AgentMessageEdge{
			AgentID:   agent,
			MessageID: recordIDToID(msgID),
			Type:      message.EdgeType(msgType),
			Position:  position,
			AddedAt:   addedAt,
		})
	}
	return edges, nil
}

// PutMessage persists a message record directly; Attach (pkg/message)
// calls RelateAgentMessage for the edge but expects the message itself
// already stored, so the runtime calls PutMessage first.
func (s *Store) PutMessage(ctx context.Context, m *message.Message) error {
	return create(ctx, s, m.ID, storedMessage{
		ID:             m.ID,
		Role:           m.Role,
		Content:        m.Content,
		OwnerID:        m.OwnerID,
		Metadata:       m.Metadata,
		HasToolCalls:   m.HasToolCalls,
		WordCount:      m.WordCount,
		CreatedAt:      m.CreatedAt,
		Embedding:      m.Embedding,
		EmbeddingModel: m.EmbeddingModel,
	})
}

func (row *storedMessage) toMessage() *message.Message {
	return &message.Message{
		ID:             row.ID,
		Role:           row.Role,
		OwnerID:        row.OwnerID,
		Content:        row.Content,
		Metadata:       row.Metadata,
		HasToolCalls:   row.HasToolCalls,
		WordCount:      row.WordCount,
		CreatedAt:      row.CreatedAt,
		Embedding:      row.Embedding,
		EmbeddingModel: row.EmbeddingModel,
	}
}

// Enqueue implements router.Outbox: persists a queued message as an
// event row for later delivery by whatever polls the outbox.
func (s *Store) Enqueue(ctx context.Context, q router.QueuedMessage) error {
	chain := make([]string, 0, len(q.CallChain))
	for _, id := range q.CallChain {
		chain = append(chain, id.String())
	}
	return exec(ctx, s, `CREATE event CONTENT {
		kind: 'queued_message',
		from_agent: $from_agent,
		to_agent: $to_agent,
		content: $content,
		metadata: $metadata,
		call_chain: $call_chain,
		created_at: time::now()
	};`, map[string]any{
		"from_agent": q.FromAgent.RecordID(),
		"to_agent":   q.ToAgent.RecordID(),
		"content":    q.Content,
		"metadata":   q.Metadata,
		"call_chain": chain,
	})
}
