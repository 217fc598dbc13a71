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

package runtime

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/entity"
	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/llm"
	"github.com/patterncore/pattern/pkg/message"
	"github.com/patterncore/pattern/pkg/router"
	"github.com/patterncore/pattern/pkg/rules"
)

// fakeOutbox is an in-memory router.Outbox for tests that need a Router
// but never expect a synchronous endpoint to be hit.
type fakeOutbox struct {
	mu    sync.Mutex
	items []router.QueuedMessage
}

func (o *fakeOutbox) Enqueue(ctx context.Context, q router.QueuedMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, q)
	return nil
}

// fakeAgentStore is an in-memory AgentStore keyed by agent ID.
type fakeAgentStore struct {
	mu       sync.Mutex
	agents   map[ids.ID]*entity.Agent
	memories map[ids.ID][]entity.MemoryBlock
}

func newFakeAgentStore(a *entity.Agent) *fakeAgentStore {
	return &fakeAgentStore{
		agents:   map[ids.ID]*entity.Agent{a.ID: a},
		memories: make(map[ids.ID][]entity.MemoryBlock),
	}
}

func (s *fakeAgentStore) GetAgent(ctx context.Context, id ids.ID) (*entity.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := *s.agents[id]
	return &a, nil
}

func (s *fakeAgentStore) UpdateAgent(ctx context.Context, a entity.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.agents[a.ID] = &cp
	return nil
}

func (s *fakeAgentStore) LoadMemories(ctx context.Context, agent ids.ID) ([]entity.MemoryBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memories[agent], nil
}

// fakeMessageStore is an in-memory MessageStore.
type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[ids.ID]*message.Message
	edges    []message.AgentMessageEdge
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[ids.ID]*message.Message)}
}

func (s *fakeMessageStore) PutMessage(ctx context.Context, m *message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID.IsNil() {
		m.ID = ids.New(ids.KindMessage)
	}
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *fakeMessageStore) RelateAgentMessage(ctx context.Context, edge message.AgentMessageEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, edge)
	return nil
}

func (s *fakeMessageStore) LoadAgentMessages(ctx context.Context, agent ids.ID, includeArchived bool) ([]message.AgentMessageEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.AgentMessageEdge
	for _, e := range s.edges {
		if e.AgentID != agent {
			continue
		}
		if e.Type != message.EdgeActive && !includeArchived {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeMessageStore) GetMessage(ctx context.Context, id ids.ID) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *s.messages[id]
	return &m, nil
}

// fakePositions hands out strictly increasing, lexically-sortable
// position strings.
type fakePositions struct {
	mu sync.Mutex
	n  int
}

func (p *fakePositions) NextPosition() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n++
	return string(rune('a' + p.n))
}

// fakeModels resolves a single configured provider regardless of the
// name requested, simulating a registry with exactly one registered
// model.
type fakeModels struct {
	provider llm.Provider
}

func (f fakeModels) Get(name string) (llm.Provider, bool) {
	if f.provider == nil {
		return nil, false
	}
	return f.provider, true
}

// scriptedProvider returns one canned response per Generate call, in
// order, so a test can script a tool-call turn followed by a final
// answer turn.
type scriptedProvider struct {
	responses []*message.Message
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Type() string { return "test" }
func (p *scriptedProvider) Close() error { return nil }
func (p *scriptedProvider) Generate(ctx context.Context, req *message.Request, cfg *llm.GenerateConfig) (*llm.Response, error) {
	resp := p.responses[p.calls]
	p.calls++
	return &llm.Response{Message: resp}, nil
}

func testAgent() *entity.Agent {
	return &entity.Agent{
		ID:                   ids.New(ids.KindAgent),
		OwnerID:              ids.New(ids.KindUser),
		Name:                 "test-agent",
		State:                entity.AgentReady,
		SystemPrompt:         "you are a test agent",
		Model:                "scripted",
		MaxMessages:          100,
		CompressionThreshold: 100,
		ToolTimeoutSeconds:   5,
	}
}

func TestDispatch_FinalAnswerWithNoToolCalls(t *testing.T) {
	agent := testAgent()
	owner := agent.OwnerID
	agents := newFakeAgentStore(agent)
	messages := newFakeMessageStore()
	provider := &scriptedProvider{responses: []*message.Message{message.Assistant("hello there")}}

	rt := New(Config{
		Agents:    agents,
		Messages:  messages,
		Positions: &fakePositions{},
		Models:    fakeModels{provider: provider},
	})

	out, err := rt.Dispatch(context.Background(), agent.ID, owner, message.User("hi"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "hello there", out[0].Content.Text)

	got, err := agents.GetAgent(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.AgentReady, got.State)
	assert.Equal(t, 1, got.TotalMessages) // one response message committed this turn
}

func TestDispatch_ExecutesToolThenReturnsFinalAnswer(t *testing.T) {
	agent := testAgent()
	owner := agent.OwnerID
	agents := newFakeAgentStore(agent)
	messages := newFakeMessageStore()

	toolCallResp := message.AssistantToolCalls([]message.ToolCall{
		{CallID: "c1", FnName: "lookup", FnArguments: `{"q":"x"}`},
	})
	finalResp := message.Assistant("done")
	provider := &scriptedProvider{responses: []*message.Message{toolCallResp, finalResp}}

	called := false
	tools := ToolSet{
		"lookup": fakeHandler{
			schema: message.ToolSchema{Name: "lookup"},
			call: func(ctx context.Context, args string) (string, bool, error) {
				called = true
				return "result", false, nil
			},
		},
	}

	rt := New(Config{
		Agents:    agents,
		Messages:  messages,
		Positions: &fakePositions{},
		Models:    fakeModels{provider: provider},
		ToolsFor:  func(ids.ID) ToolSet { return tools },
	})

	out, err := rt.Dispatch(context.Background(), agent.ID, owner, message.User("do it"))
	require.NoError(t, err)
	assert.True(t, called)

	// produced: tool-call message, tool-response message, final answer
	require.Len(t, out, 3)
	assert.Equal(t, message.ContentToolCalls, out[0].Content.Kind)
	assert.Equal(t, message.ContentToolResponses, out[1].Content.Kind)
	assert.Equal(t, "done", out[2].Content.Text)

	got, err := agents.GetAgent(context.Background(), agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TotalToolCalls)
}

// TestDispatch_ExitLoopToolStillForcesAnotherTurnWithoutContinueLoop exercises
// the common case: a tool tagged ExitLoop does not unilaterally end the turn,
// because it still requires a heartbeat unless it also carries a ContinueLoop
// rule. Without the engine.RequiresHeartbeat wiring, this tool call would
// break the loop and never reach a second model turn.
func TestDispatch_ExitLoopToolStillForcesAnotherTurnWithoutContinueLoop(t *testing.T) {
	agent := testAgent()
	agent.ToolRules = []rules.Rule{{Kind: rules.KindExitLoop, ToolName: "finish"}}
	owner := agent.OwnerID
	agents := newFakeAgentStore(agent)
	messages := newFakeMessageStore()

	toolCallResp := message.AssistantToolCalls([]message.ToolCall{
		{CallID: "c1", FnName: "finish", FnArguments: `{}`},
	})
	finalResp := message.Assistant("done")
	provider := &scriptedProvider{responses: []*message.Message{toolCallResp, finalResp}}

	tools := ToolSet{
		"finish": fakeHandler{
			schema: message.ToolSchema{Name: "finish"},
			call: func(ctx context.Context, args string) (string, bool, error) {
				return "result", false, nil
			},
		},
	}

	rt := New(Config{
		Agents:    agents,
		Messages:  messages,
		Positions: &fakePositions{},
		Models:    fakeModels{provider: provider},
		ToolsFor:  func(ids.ID) ToolSet { return tools },
	})

	out, err := rt.Dispatch(context.Background(), agent.ID, owner, message.User("do it"))
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, "done", out[2].Content.Text)
}

// TestDispatch_ContinueLoopToolLetsExitLoopTerminateTheTurn exercises the
// other side of the same wiring: a tool tagged ContinueLoop does not require
// a heartbeat, so an ExitLoop rule on the same tool actually ends the turn
// right after the tool call instead of forcing a further model round.
func TestDispatch_ContinueLoopToolLetsExitLoopTerminateTheTurn(t *testing.T) {
	agent := testAgent()
	agent.ToolRules = []rules.Rule{
		{Kind: rules.KindExitLoop, ToolName: "finish"},
		{Kind: rules.KindContinueLoop, ToolName: "finish"},
	}
	owner := agent.OwnerID
	agents := newFakeAgentStore(agent)
	messages := newFakeMessageStore()

	toolCallResp := message.AssistantToolCalls([]message.ToolCall{
		{CallID: "c1", FnName: "finish", FnArguments: `{}`},
	})
	// Only one response scripted: a second model call would panic on an
	// out-of-range index, proving the loop ended after the tool call.
	provider := &scriptedProvider{responses: []*message.Message{toolCallResp}}

	tools := ToolSet{
		"finish": fakeHandler{
			schema: message.ToolSchema{Name: "finish"},
			call: func(ctx context.Context, args string) (string, bool, error) {
				return "result", false, nil
			},
		},
	}

	rt := New(Config{
		Agents:    agents,
		Messages:  messages,
		Positions: &fakePositions{},
		Models:    fakeModels{provider: provider},
		ToolsFor:  func(ids.ID) ToolSet { return tools },
	})

	out, err := rt.Dispatch(context.Background(), agent.ID, owner, message.User("do it"))
	require.NoError(t, err)

	// produced: tool-call message, tool-response message — no final answer.
	require.Len(t, out, 2)
	assert.Equal(t, message.ContentToolResponses, out[1].Content.Kind)
}

// TestDispatch_RoutesSendMessageToolCallToAnotherAgent exercises step 10:
// an assistant tool call to send_message targeting another agent must be
// handed off to the router, queued with a fresh call chain.
func TestDispatch_RoutesSendMessageToolCallToAnotherAgent(t *testing.T) {
	agent := testAgent()
	owner := agent.OwnerID
	agents := newFakeAgentStore(agent)
	messages := newFakeMessageStore()
	outbox := &fakeOutbox{}
	rtr := router.New(outbox, nil)

	peer := ids.New(ids.KindAgent)
	sendArgs := fmt.Sprintf(`{"target_type":"agent","target_id":%q,"content":"hand off to you"}`, peer.String())
	toolCallResp := message.AssistantToolCalls([]message.ToolCall{
		{CallID: "c1", FnName: "send_message", FnArguments: sendArgs},
	})
	finalResp := message.Assistant("done")
	provider := &scriptedProvider{responses: []*message.Message{toolCallResp, finalResp}}

	tools := ToolSet{
		"send_message": fakeHandler{
			schema: message.ToolSchema{Name: "send_message"},
			call: func(ctx context.Context, args string) (string, bool, error) {
				return "queued", false, nil
			},
		},
	}

	rt := New(Config{
		Agents:    agents,
		Messages:  messages,
		Positions: &fakePositions{},
		Models:    fakeModels{provider: provider},
		ToolsFor:  func(ids.ID) ToolSet { return tools },
		Router:    rtr,
	})

	_, err := rt.Dispatch(context.Background(), agent.ID, owner, message.User("tell my peer"))
	require.NoError(t, err)

	require.Len(t, outbox.items, 1)
	assert.Equal(t, agent.ID, outbox.items[0].FromAgent)
	assert.Equal(t, peer, outbox.items[0].ToAgent)
	assert.Equal(t, "hand off to you", outbox.items[0].Content)
	assert.Equal(t, []ids.ID{agent.ID}, outbox.items[0].CallChain)
}

// TestDispatch_SendMessageTargetingSelfIsNotRouted confirms a send_message
// call naming the calling agent itself is dropped rather than routed, per
// the "targeted outside the agent" qualifier in step 10.
func TestDispatch_SendMessageTargetingSelfIsNotRouted(t *testing.T) {
	agent := testAgent()
	owner := agent.OwnerID
	agents := newFakeAgentStore(agent)
	messages := newFakeMessageStore()
	outbox := &fakeOutbox{}
	rtr := router.New(outbox, nil)

	sendArgs := fmt.Sprintf(`{"target_type":"agent","target_id":%q,"content":"talking to myself"}`, agent.ID.String())
	toolCallResp := message.AssistantToolCalls([]message.ToolCall{
		{CallID: "c1", FnName: "send_message", FnArguments: sendArgs},
	})
	finalResp := message.Assistant("done")
	provider := &scriptedProvider{responses: []*message.Message{toolCallResp, finalResp}}

	tools := ToolSet{
		"send_message": fakeHandler{
			schema: message.ToolSchema{Name: "send_message"},
			call: func(ctx context.Context, args string) (string, bool, error) {
				return "queued", false, nil
			},
		},
	}

	rt := New(Config{
		Agents:    agents,
		Messages:  messages,
		Positions: &fakePositions{},
		Models:    fakeModels{provider: provider},
		ToolsFor:  func(ids.ID) ToolSet { return tools },
		Router:    rtr,
	})

	_, err := rt.Dispatch(context.Background(), agent.ID, owner, message.User("talk to yourself"))
	require.NoError(t, err)
	assert.Empty(t, outbox.items)
}

func TestDispatch_RejectsConcurrentTurnForSameAgent(t *testing.T) {
	agent := testAgent()
	agent.State = entity.AgentProcessing
	owner := agent.OwnerID
	agents := newFakeAgentStore(agent)
	messages := newFakeMessageStore()
	provider := &scriptedProvider{responses: []*message.Message{message.Assistant("x")}}

	rt := New(Config{
		Agents:    agents,
		Messages:  messages,
		Positions: &fakePositions{},
		Models:    fakeModels{provider: provider},
	})

	_, err := rt.Dispatch(context.Background(), agent.ID, owner, message.User("hi"))
	assert.Error(t, err)
}

func TestGenerateConfig_NoResolverConfiguredReturnsNilConfig(t *testing.T) {
	agent := testAgent()
	agent.Model = "oauth:myprovider"

	rt := New(Config{
		Agents:    newFakeAgentStore(agent),
		Messages:  newFakeMessageStore(),
		Positions: &fakePositions{},
		Models:    fakeModels{},
	})

	cfg, err := rt.generateConfig(context.Background(), agent, agent.OwnerID)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestOAuthProviderOf(t *testing.T) {
	p, ok := oauthProviderOf("oauth:github")
	require.True(t, ok)
	assert.Equal(t, "github", p)

	_, ok = oauthProviderOf("claude-sonnet-4-20250514")
	assert.False(t, ok)
}

type fakeHandler struct {
	schema message.ToolSchema
	call   func(ctx context.Context, args string) (string, bool, error)
}

func (h fakeHandler) Schema() message.ToolSchema { return h.schema }
func (h fakeHandler) Call(ctx context.Context, args string) (string, bool, error) {
	return h.call(ctx, args)
}

func TestToolSet_SchemasListsEveryRegisteredTool(t *testing.T) {
	tools := ToolSet{
		"a": fakeHandler{schema: message.ToolSchema{Name: "a"}},
		"b": fakeHandler{schema: message.ToolSchema{Name: "b"}},
	}
	schemas := tools.Schemas()
	assert.Len(t, schemas, 2)
}

func TestSplitResponse_SeparatesTextAndToolUseBlocks(t *testing.T) {
	resp := message.Blocks([]message.ContentBlock{
		{Kind: message.BlockText, Text: "thinking out loud"},
		{Kind: message.BlockToolUse, ToolUseID: "t1", ToolUseName: "search", ToolUseInput: `{}`},
	})

	parts := splitResponse(resp)
	require.Len(t, parts, 2)
	assert.Equal(t, message.ContentBlocks, parts[0].Content.Kind)
	assert.Equal(t, message.ContentToolCalls, parts[1].Content.Kind)
	assert.Equal(t, "search", parts[1].Content.ToolCalls[0].FnName)
}

func TestSplitResponse_PassesThroughSingleKindMessages(t *testing.T) {
	resp := message.Assistant("plain text")
	parts := splitResponse(resp)
	require.Len(t, parts, 1)
	assert.Same(t, resp, parts[0])
}

func TestCompress_TruncateDropsOlderMessagesBeyondKeepRecent(t *testing.T) {
	msgs := []*message.Message{
		message.User("1"), message.User("2"), message.User("3"), message.User("4"),
	}
	strategy := entity.CompressionStrategy{Kind: entity.CompressionTruncate, KeepRecent: 2}

	out, _, did := compress(strategy, msgs, "")
	require.True(t, did)
	require.Len(t, out, 2)
	assert.Equal(t, "3", out[0].Content.Text)
	assert.Equal(t, "4", out[1].Content.Text)
}

func TestCompress_TruncateIsIdempotentOnceAtOrBelowKeepRecent(t *testing.T) {
	msgs := []*message.Message{message.User("1"), message.User("2")}
	strategy := entity.CompressionStrategy{Kind: entity.CompressionTruncate, KeepRecent: 2}

	out, _, did := compress(strategy, msgs, "")
	assert.False(t, did)
	assert.Equal(t, msgs, out)
}

func TestCompress_SummarizeFoldsDroppedMessagesIntoASystemSummary(t *testing.T) {
	msgs := []*message.Message{
		message.User("1"), message.User("2"), message.User("3"), message.User("4"),
	}
	strategy := entity.CompressionStrategy{Kind: entity.CompressionSummarize, KeepRecent: 1}

	out, summary, did := compress(strategy, msgs, "")
	require.True(t, did)
	require.Len(t, out, 2)
	assert.Equal(t, message.System(summary).Content.Text, out[0].Content.Text)
	assert.Equal(t, "4", out[1].Content.Text)
	assert.Contains(t, summary, "3 more messages condensed")
}

func TestAssembleContext_WindowsToMaxMessagesAndRendersMemory(t *testing.T) {
	agent := testAgent()
	agent.MaxMessages = 2
	agent.CompressionThreshold = 0 // disable compression for this test

	history := []message.Pair{
		{Message: message.User("a")},
		{Message: message.User("b")},
		{Message: message.User("c")},
	}
	memories := []entity.MemoryBlock{{Label: "preferences", Value: "likes go"}}

	out := assembleContext(agent, history, memories)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "b", out.Messages[0].Content.Text)
	assert.Equal(t, "c", out.Messages[1].Content.Text)
	assert.Contains(t, out.System, "preferences: likes go")
}

func TestAssembleContext_CompressesOnceThresholdExceeded(t *testing.T) {
	agent := testAgent()
	agent.MaxMessages = 10
	agent.CompressionThreshold = 2
	agent.CompressionStrategy = entity.CompressionStrategy{Kind: entity.CompressionTruncate, KeepRecent: 1}

	history := []message.Pair{
		{Message: message.User("a")},
		{Message: message.User("b")},
		{Message: message.User("c")},
	}

	out := assembleContext(agent, history, nil)
	assert.True(t, out.Compressed)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "c", out.Messages[0].Content.Text)
}
