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
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/ids"
)

type stubStore struct {
	edges    []AgentMessageEdge
	messages map[ids.ID]*Message
}

func newStubStore() *stubStore {
	return &stubStore{messages: make(map[ids.ID]*Message)}
}

func (s *stubStore) RelateAgentMessage(ctx context.Context, edge AgentMessageEdge) error {
	s.edges = append(s.edges, edge)
	return nil
}

func (s *stubStore) LoadAgentMessages(ctx context.Context, agent ids.ID, includeArchived bool) ([]AgentMessageEdge, error) {
	var out []AgentMessageEdge
	for _, e := range s.edges {
		if e.AgentID != agent {
			continue
		}
		if e.Type == EdgeArchived && !includeArchived {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *stubStore) GetMessage(ctx context.Context, id ids.ID) (*Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return m, nil
}

type stubPositions struct{ n int }

func (s *stubPositions) NextPosition() string {
	s.n++
	return strconv.Itoa(s.n)
}

func TestAttach_PersistsEdgeWithFreshPosition(t *testing.T) {
	store := newStubStore()
	gen := &stubPositions{}
	agent := ids.New(ids.KindAgent)
	msg := User("hi")
	store.messages[msg.ID] = msg

	edge, err := Attach(context.Background(), store, gen, agent, msg, EdgeActive)
	require.NoError(t, err)
	assert.Equal(t, agent, edge.AgentID)
	assert.Equal(t, msg.ID, edge.MessageID)
	assert.Equal(t, EdgeActive, edge.Type)
	assert.Equal(t, "1", edge.Position)
}

func TestLoadHistory_ExcludesArchivedByDefault(t *testing.T) {
	store := newStubStore()
	gen := &stubPositions{}
	agent := ids.New(ids.KindAgent)

	active := User("active message")
	archived := User("archived message")
	store.messages[active.ID] = active
	store.messages[archived.ID] = archived

	_, err := Attach(context.Background(), store, gen, agent, active, EdgeActive)
	require.NoError(t, err)
	_, err = Attach(context.Background(), store, gen, agent, archived, EdgeArchived)
	require.NoError(t, err)

	pairs, err := LoadHistory(context.Background(), store, agent, false)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, active.ID, pairs[0].Message.ID)

	all, err := LoadHistory(context.Background(), store, agent, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
