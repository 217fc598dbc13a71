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

package router

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/ids"
)

type memOutbox struct {
	mu    sync.Mutex
	items []QueuedMessage
}

func (m *memOutbox) Enqueue(ctx context.Context, q QueuedMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, q)
	return nil
}

type recordingEndpoint struct {
	mu        sync.Mutex
	delivered []Delivery
	typ       string
}

func (e *recordingEndpoint) Send(ctx context.Context, msg Delivery) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delivered = append(e.delivered, msg)
	return nil
}

func (e *recordingEndpoint) EndpointType() string { return e.typ }

func TestRouter_SendToUser_NoDefaultEndpointQueues(t *testing.T) {
	outbox := &memOutbox{}
	r := New(outbox, nil)

	fromAgent := ids.New(ids.KindAgent)
	err := r.Send(context.Background(), fromAgent, Target{Type: TargetUser}, "hello", nil)
	require.NoError(t, err)

	require.Len(t, outbox.items, 1)
	assert.Equal(t, fromAgent, outbox.items[0].FromAgent)
}

func TestRouter_SendToUser_DefaultEndpointDeliversSynchronously(t *testing.T) {
	outbox := &memOutbox{}
	r := New(outbox, nil)
	ep := &recordingEndpoint{typ: "admin_stream"}
	r.SetDefaultUserEndpoint(ep)

	fromAgent := ids.New(ids.KindAgent)
	err := r.Send(context.Background(), fromAgent, Target{Type: TargetUser}, "hello", nil)
	require.NoError(t, err)

	require.Empty(t, outbox.items)
	require.Len(t, ep.delivered, 1)
	assert.Equal(t, "hello", ep.delivered[0].Content)
}

func TestRouter_SendToAgent_QueuesWithCallChain(t *testing.T) {
	outbox := &memOutbox{}
	r := New(outbox, nil)

	agentA := ids.New(ids.KindAgent)
	agentB := ids.New(ids.KindAgent)

	err := r.Send(context.Background(), agentA, Target{Type: TargetAgent, ID: agentB}, "delegate", nil)
	require.NoError(t, err)

	require.Len(t, outbox.items, 1)
	assert.Equal(t, agentB, outbox.items[0].ToAgent)
	assert.Equal(t, []ids.ID{agentA}, outbox.items[0].CallChain)
}

func TestRouter_SendToAgent_LoopPreventionDropsRepeatVisit(t *testing.T) {
	outbox := &memOutbox{}
	r := New(outbox, nil)

	agentA := ids.New(ids.KindAgent)
	agentB := ids.New(ids.KindAgent)

	// agentB already appears in the chain, so routing back to it must drop.
	err := r.SendToAgentWithChain(context.Background(), agentA, agentB, "loop", nil, []ids.ID{agentB, agentA})
	require.NoError(t, err)
	assert.Empty(t, outbox.items, "message targeting an agent already in its own call chain must be dropped, not queued")
}

func TestRouter_SendToChannel_UnregisteredDropsSilently(t *testing.T) {
	outbox := &memOutbox{}
	r := New(outbox, nil)

	fromAgent := ids.New(ids.KindAgent)
	err := r.Send(context.Background(), fromAgent, Target{Type: TargetChannel, Metadata: map[string]string{"type": "discord"}}, "hi", nil)
	require.NoError(t, err)
	assert.Empty(t, outbox.items)
}

func TestRouter_SendToChannel_RegisteredEndpointReceives(t *testing.T) {
	outbox := &memOutbox{}
	r := New(outbox, nil)
	ep := &recordingEndpoint{typ: "discord"}
	r.RegisterEndpoint("discord", ep)

	fromAgent := ids.New(ids.KindAgent)
	err := r.Send(context.Background(), fromAgent, Target{Type: TargetChannel, Metadata: map[string]string{"type": "discord"}}, "hi", nil)
	require.NoError(t, err)

	require.Len(t, ep.delivered, 1)
	assert.Equal(t, "hi", ep.delivered[0].Content)
}

func TestRouter_SendToGroup_NotImplementedDropsSilently(t *testing.T) {
	outbox := &memOutbox{}
	r := New(outbox, nil)

	fromAgent := ids.New(ids.KindAgent)
	err := r.Send(context.Background(), fromAgent, Target{Type: TargetGroup, ID: ids.New(ids.KindGroup)}, "broadcast", nil)
	require.NoError(t, err)
	assert.Empty(t, outbox.items)
}
