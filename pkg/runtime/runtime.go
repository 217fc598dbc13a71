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
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patterncore/pattern/pkg/checkpoint"
	"github.com/patterncore/pattern/pkg/entity"
	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/llm"
	"github.com/patterncore/pattern/pkg/message"
	"github.com/patterncore/pattern/pkg/oauth"
	"github.com/patterncore/pattern/pkg/perr"
	"github.com/patterncore/pattern/pkg/router"
	"github.com/patterncore/pattern/pkg/rules"
	"github.com/patterncore/pattern/pkg/session"
)

// ModelResolver looks up the llm.Provider an agent's configured Model
// name should use. pkg/llm's Registry (wrapping pkg/registry's
// BaseRegistry[T]) satisfies this directly.
type ModelResolver interface {
	Get(name string) (llm.Provider, bool)
}

// agentLock serializes turns for one agent, the §5 "single turn per
// agent" invariant: Dispatch holds this for the whole turn, so a
// second concurrent Dispatch call for the same agent blocks rather
// than interleaving with the first.
type agentLock struct {
	mu sync.Mutex
}

// Runtime is the agent runtime: it loads an agent's persistent state,
// assembles a request, invokes a model, applies tool rules, persists
// the results, and hands outbound messages to the router. Construct
// with New; the zero value is not usable.
type Runtime struct {
	agents   AgentStore
	messages MessageStore
	gen      PositionGenerator
	models   ModelResolver
	router   *router.Router
	oauthRes *oauth.Resolver
	checkpts *checkpoint.Hooks
	sessions *session.Manager
	toolsFor func(agent ids.ID) ToolSet
	log      *slog.Logger

	locksMu sync.Mutex
	locks   map[ids.ID]*agentLock

	enginesMu  sync.Mutex
	engines    map[ids.ID]*rules.Engine
	engineSize map[ids.ID]int
}

// Config carries Runtime's dependencies. ToolsFor, Checkpoints, and
// Sessions may be left nil: a nil ToolsFor yields an empty tool set and
// a nil Sessions disables session tagging (every message is dispatched
// untagged). Checkpoints is stored on the Runtime, but no turn step
// reads it, so a turn takes no checkpoints whether or not it is set.
type Config struct {
	Agents      AgentStore
	Messages    MessageStore
	Positions   PositionGenerator
	Models      ModelResolver
	Router      *router.Router
	OAuth       *oauth.Resolver
	Checkpoints *checkpoint.Hooks
	Sessions    *session.Manager
	ToolsFor    func(agent ids.ID) ToolSet
	Log         *slog.Logger
}

// New constructs a Runtime from cfg.
func New(cfg Config) *Runtime {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	toolsFor := cfg.ToolsFor
	if toolsFor == nil {
		toolsFor = func(ids.ID) ToolSet { return nil }
	}
	return &Runtime{
		agents:     cfg.Agents,
		messages:   cfg.Messages,
		gen:        cfg.Positions,
		models:     cfg.Models,
		router:     cfg.Router,
		oauthRes:   cfg.OAuth,
		checkpts:   cfg.Checkpoints,
		sessions:   cfg.Sessions,
		toolsFor:   toolsFor,
		log:        log,
		locks:      make(map[ids.ID]*agentLock),
		engines:    make(map[ids.ID]*rules.Engine),
		engineSize: make(map[ids.ID]int),
	}
}

func (rt *Runtime) lockFor(agent ids.ID) *agentLock {
	rt.locksMu.Lock()
	defer rt.locksMu.Unlock()
	l, ok := rt.locks[agent]
	if !ok {
		l = &agentLock{}
		rt.locks[agent] = l
	}
	return l
}

// engineFor returns (creating if absent) the rule engine tracking
// agent's execution history across turns. It rebuilds the engine
// whenever agent.ToolRules's length changes since the cached engine
// was built — a cheap, correct-enough signal that the agent's rule
// configuration was edited; an in-place rule edit of the same length
// won't be picked up until the next process restart.
func (rt *Runtime) engineFor(agent *entity.Agent) *rules.Engine {
	rt.enginesMu.Lock()
	defer rt.enginesMu.Unlock()
	e, ok := rt.engines[agent.ID]
	if !ok || rt.engineSize[agent.ID] != len(agent.ToolRules) {
		e = rules.New(agent.ToolRules)
		rt.engines[agent.ID] = e
		rt.engineSize[agent.ID] = len(agent.ToolRules)
	}
	return e
}

const maxToolLoopIterations = 8

// Dispatch runs one full turn for agent: intake, context assembly,
// tool gating, model invocation, response handling, tool execution,
// loop decision, and commit, per the runtime's turn procedure. Step 10
// (handing send_message tool calls to the router) also runs inside the
// turn when a Router is configured; the returned messages are what an
// HTTP handler or another agent's tool call streams back.
//
// owner identifies whose conversation this is (the session key used
// for idle-timeout rollover and per-owner memory scoping); intake is
// the new message to append before invoking the model.
func (rt *Runtime) Dispatch(ctx context.Context, agentID, owner ids.ID, intake *message.Message) ([]*message.Message, error) {
	lock := rt.lockFor(agentID)
	lock.mu.Lock()
	defer lock.mu.Unlock()

	agent, err := rt.agents.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: load agent: %w", err)
	}
	if agent.State == entity.AgentProcessing {
		return nil, perr.Validation("runtime.dispatch", "agent is already processing a turn", nil).
			With("agent_id", agentID.String())
	}

	agent.State = entity.AgentProcessing
	agent.UpdatedAt = now()
	if err := rt.agents.UpdateAgent(ctx, *agent); err != nil {
		return nil, fmt.Errorf("dispatch: mark processing: %w", err)
	}

	out, runErr := rt.runTurn(ctx, agent, owner, intake)

	if runErr != nil {
		agent.State = entity.AgentSuspended
	} else {
		agent.State = entity.AgentReady
	}
	agent.UpdatedAt = now()
	agent.LastActive = now()
	if err := rt.agents.UpdateAgent(ctx, *agent); err != nil && runErr == nil {
		return out, fmt.Errorf("dispatch: commit agent state: %w", err)
	}

	return out, runErr
}

// runTurn implements the turn procedure's intake through router
// hand-off steps. Step 10 (routing a send_message-style tool call to
// its target) runs here, under the same agentLock as the rest of the
// turn: per §5, the router's own work is persist-then-return, so this
// never awaits another agent's turn or its lock.
func (rt *Runtime) runTurn(ctx context.Context, agent *entity.Agent, owner ids.ID, intake *message.Message) ([]*message.Message, error) {
	// Step 1: intake. Tag to the current session (if a session
	// manager is configured) and attach to the agent's history.
	if rt.sessions != nil {
		sid, _ := rt.sessions.Current(agent.ID, owner)
		intake = session.Tag(intake, sid)
	}
	if err := rt.persist(ctx, agent.ID, intake, message.EdgeActive); err != nil {
		return nil, fmt.Errorf("turn: persist intake: %w", err)
	}

	var produced []*message.Message
	toolSet := rt.toolsFor(agent.ID)
	engine := rt.engineFor(agent)

	for iteration := 0; iteration < maxToolLoopIterations; iteration++ {
		// Step 2: context assembly.
		history, err := message.LoadHistory(ctx, rt.messages, agent.ID, false)
		if err != nil {
			return produced, fmt.Errorf("turn: load history: %w", err)
		}
		memories, err := rt.agents.LoadMemories(ctx, agent.ID)
		if err != nil {
			return produced, fmt.Errorf("turn: load memories: %w", err)
		}
		assembled := assembleContext(agent, history, memories)
		if assembled.Compressed {
			agent.ContextRebuilds++
			agent.CompressionEvents++
			agent.MessageSummary = assembled.NewSummary
		}

		// Step 3: tool gating, by the rule engine's current state.
		req := &message.Request{System: assembled.System, Messages: assembled.Messages}
		for name, h := range toolSet {
			if v := engine.CanExecute(name); v != nil {
				continue
			}
			req.Tools = append(req.Tools, h.Schema())
		}

		// Step 4: validation.
		if err := req.Validate(); err != nil {
			return produced, fmt.Errorf("turn: validate request: %w", err)
		}

		// Step 5: model invocation.
		provider, ok := rt.models.Get(agent.Model)
		if !ok {
			return produced, perr.Configuration("runtime.dispatch", "unknown model provider", nil).
				With("model", agent.Model)
		}
		cfg, err := rt.generateConfig(ctx, agent, owner)
		if err != nil {
			return produced, fmt.Errorf("turn: resolve model auth: %w", err)
		}
		resp, err := provider.Generate(ctx, req, cfg)
		if err != nil {
			return produced, fmt.Errorf("turn: generate: %w", err)
		}

		// Step 6: response handling. Split mixed-content responses so
		// a later turn's Validate sees the role split it expects.
		parts := splitResponse(resp.Message)
		var calls []message.ToolCall
		for _, p := range parts {
			if rt.sessions != nil {
				if sid, ok := rt.sessions.Current(agent.ID, owner); ok {
					p = session.Tag(p, sid)
				}
			}
			if err := rt.persist(ctx, agent.ID, p, message.EdgeActive); err != nil {
				return produced, fmt.Errorf("turn: persist response: %w", err)
			}
			agent.TotalMessages++
			if p.Content.Kind == message.ContentToolCalls {
				calls = append(calls, p.Content.ToolCalls...)
			}
		}
		produced = append(produced, parts...)

		if len(calls) == 0 {
			// No tool calls: the model produced its final answer.
			break
		}

		// Step 7: tool execution.
		var responses []message.ToolResponse
		exitAfter := false
		heartbeat := false
		for _, call := range calls {
			h, ok := toolSet[call.FnName]
			if !ok {
				responses = append(responses, message.ToolResponse{
					CallID:  call.CallID,
					Content: fmt.Sprintf("unknown tool %q", call.FnName),
				})
				continue
			}
			if v := engine.CanExecute(call.FnName); v != nil {
				responses = append(responses, message.ToolResponse{CallID: call.CallID, Content: v.Error()})
				continue
			}

			timeout := time.Duration(agent.ToolTimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 30 * time.Second
			}
			result := executeTool(ctx, h, call, timeout)
			responses = append(responses, message.ToolResponse{CallID: call.CallID, Content: result.content})

			engine.RecordExecution(rules.Execution{ToolName: call.FnName, CallID: call.CallID, Timestamp: now(), Success: result.success})
			agent.TotalToolCalls++
			if result.requestHeartbeat {
				heartbeat = true
			}
			heartbeat = heartbeat || engine.RequiresHeartbeat(call.FnName)
			if engine.ShouldExitAfterTool(call.FnName) {
				exitAfter = true
			}
		}

		toolMsg := message.Tool(responses)
		if rt.sessions != nil {
			if sid, ok := rt.sessions.Current(agent.ID, owner); ok {
				toolMsg = session.Tag(toolMsg, sid)
			}
		}
		if err := rt.persist(ctx, agent.ID, toolMsg, message.EdgeActive); err != nil {
			return produced, fmt.Errorf("turn: persist tool results: %w", err)
		}
		produced = append(produced, toolMsg)
		agent.TotalMessages++

		// Step 8: loop decision. Required-before-exit tools force
		// another iteration regardless of exit/heartbeat signals.
		if len(engine.RequiredBeforeExit()) > 0 {
			continue
		}
		if exitAfter && !heartbeat {
			break
		}
		// Otherwise loop back to step 2 for another model turn.
	}

	// Step 10: for each assistant message produced whose content
	// resolves to a send_message-style tool call targeted outside the
	// agent, hand off to the router (§4.E).
	if rt.router != nil {
		for _, m := range produced {
			if m.Content.Kind != message.ContentToolCalls {
				continue
			}
			for _, call := range m.Content.ToolCalls {
				if call.FnName != "send_message" {
					continue
				}
				if err := rt.routeSendMessage(ctx, agent.ID, call); err != nil {
					rt.log.Warn("turn: send_message hand-off failed",
						"agent_id", agent.ID.String(), "call_id", call.CallID, "error", err)
				}
			}
		}
	}

	return produced, nil
}

// sendMessageArgs is the expected shape of a send_message tool call's
// FnArguments, mirroring the server's router_send request body.
type sendMessageArgs struct {
	TargetType  string         `json:"target_type"`
	TargetID    string         `json:"target_id,omitempty"`
	ChannelType string         `json:"channel_type,omitempty"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// routeSendMessage parses call's arguments and hands the content off to
// the router. A send_message call targeting the calling agent itself is
// not "targeted outside the agent" and is dropped without delivery.
func (rt *Runtime) routeSendMessage(ctx context.Context, from ids.ID, call message.ToolCall) error {
	var args sendMessageArgs
	if err := json.Unmarshal([]byte(call.FnArguments), &args); err != nil {
		return fmt.Errorf("parse send_message arguments: %w", err)
	}

	target := router.Target{Type: router.TargetType(args.TargetType)}
	switch target.Type {
	case router.TargetUser:
		id, err := ids.Parse(ids.KindUser, args.TargetID)
		if err != nil {
			return fmt.Errorf("send_message: invalid target_id for user target: %w", err)
		}
		target.ID = id
	case router.TargetAgent:
		id, err := ids.Parse(ids.KindAgent, args.TargetID)
		if err != nil {
			return fmt.Errorf("send_message: invalid target_id for agent target: %w", err)
		}
		if id == from {
			return nil
		}
		target.ID = id
	case router.TargetGroup:
		id, err := ids.Parse(ids.KindGroup, args.TargetID)
		if err != nil {
			return fmt.Errorf("send_message: invalid target_id for group target: %w", err)
		}
		target.ID = id
	case router.TargetChannel:
		target.Metadata = map[string]string{"type": args.ChannelType}
	default:
		return perr.Validation("runtime.send_message", "unknown target_type", nil).
			With("target_type", args.TargetType)
	}

	return rt.router.Send(ctx, from, target, args.Content, args.Metadata)
}

// persist appends m to agent's message history: the message row
// itself, then the agent_messages edge at the position gen assigns.
func (rt *Runtime) persist(ctx context.Context, agent ids.ID, m *message.Message, edgeType message.EdgeType) error {
	if err := rt.messages.PutMessage(ctx, m); err != nil {
		return err
	}
	_, err := message.Attach(ctx, rt.messages, rt.gen, agent, m, edgeType)
	return err
}

const oauthModelPrefix = "oauth:"

// generateConfig resolves an OAuth bearer token in place of a static
// API key when agent.Model names a brokered provider via an
// "oauth:<provider>" prefix; any other model string returns a nil
// config, leaving the provider's own configured key in effect.
func (rt *Runtime) generateConfig(ctx context.Context, agent *entity.Agent, owner ids.ID) (*llm.GenerateConfig, error) {
	if rt.oauthRes == nil {
		return nil, nil
	}
	provider, ok := oauthProviderOf(agent.Model)
	if !ok {
		return nil, nil
	}
	tok, err := rt.oauthRes.BearerToken(ctx, owner, provider)
	if err != nil {
		return nil, err
	}
	return &llm.GenerateConfig{BearerToken: tok}, nil
}

func oauthProviderOf(model string) (string, bool) {
	if len(model) <= len(oauthModelPrefix) || model[:len(oauthModelPrefix)] != oauthModelPrefix {
		return "", false
	}
	return model[len(oauthModelPrefix):], true
}
