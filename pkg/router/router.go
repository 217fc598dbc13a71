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

// Package router delivers a message produced by an agent to exactly
// one destination — a user, another agent, a group, or a named
// channel — while preventing infinite agent-to-agent call chains.
package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/perr"
)

// TargetType selects which kind of destination a message is routed to.
type TargetType string

const (
	TargetUser    TargetType = "user"
	TargetAgent   TargetType = "agent"
	TargetGroup   TargetType = "group"
	TargetChannel TargetType = "channel"
)

// Target names one destination.
type Target struct {
	Type     TargetType
	ID       ids.ID // meaningful for User/Agent/Group
	Metadata map[string]string // Metadata["type"] selects the channel endpoint name
}

// Endpoint is anything that can receive a routed message: an admin
// HTTP stream, a Discord channel, an MCP transport, or a queued inbox.
// Endpoints are supplied by whatever external collaborator constructs
// the router; the router itself is transport-agnostic.
type Endpoint interface {
	Send(ctx context.Context, msg Delivery) error
	EndpointType() string
}

// Delivery is the payload handed to an Endpoint.
type Delivery struct {
	FromAgent ids.ID
	Content   string
	Metadata  map[string]any
}

// QueuedMessage is a message that could not be delivered synchronously
// (an agent target, or a user target with no default endpoint) and
// must wait in a persistent outbox. CallChain records every agent the
// message has already been routed through, so a repeat visit is the
// loop-prevention signal.
type QueuedMessage struct {
	FromAgent ids.ID
	ToAgent   ids.ID // nil for a user-targeted queued message
	Content   string
	Metadata  map[string]any
	CallChain []ids.ID
}

// InCallChain reports whether agent already appears in the chain.
func (q QueuedMessage) InCallChain(agent ids.ID) bool {
	for _, id := range q.CallChain {
		if id == agent {
			return true
		}
	}
	return false
}

// Outbox persists queued messages that could not be delivered
// synchronously. pkg/entity's Store implements this against the
// entity store; tests may use an in-memory stub.
type Outbox interface {
	Enqueue(ctx context.Context, q QueuedMessage) error
}

// Router holds the endpoint registry and dispatches Send calls to the
// right one. The zero value is not usable; construct with New.
type Router struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint

	defaultUserMu sync.RWMutex
	defaultUser   Endpoint

	outbox Outbox
	log    *slog.Logger
}

// New builds a Router backed by outbox for messages it cannot deliver
// synchronously.
func New(outbox Outbox, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		endpoints: make(map[string]Endpoint),
		outbox:    outbox,
		log:       log,
	}
}

// RegisterEndpoint adds or replaces a named endpoint.
func (r *Router) RegisterEndpoint(name string, ep Endpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = ep
}

// SetDefaultUserEndpoint sets the endpoint used for User-targeted
// deliveries when no more specific routing applies.
func (r *Router) SetDefaultUserEndpoint(ep Endpoint) {
	r.defaultUserMu.Lock()
	defer r.defaultUserMu.Unlock()
	r.defaultUser = ep
}

// Send delivers content from fromAgent to target:
//   - User: to the default user endpoint, or queued in the outbox (with
//     a nil ToAgent) when none is set.
//   - Agent: queued in the outbox with a call chain of [fromAgent].
//   - Group: logged and dropped; no group members are resolved.
//   - Channel: to the endpoint registered under target.Metadata["type"];
//     logged and dropped when that name is empty or unregistered.
//
// Any other target type is a validation error.
func (r *Router) Send(ctx context.Context, fromAgent ids.ID, target Target, content string, metadata map[string]any) error {
	switch target.Type {
	case TargetUser:
		return r.sendToUser(ctx, fromAgent, content, metadata)
	case TargetAgent:
		return r.sendToAgent(ctx, fromAgent, target.ID, content, metadata, nil)
	case TargetGroup:
		return r.sendToGroup(ctx, fromAgent, target, content, metadata)
	case TargetChannel:
		return r.sendToChannel(ctx, fromAgent, target, content, metadata)
	default:
		return perr.Validation("router.send", "unknown target type", nil).With("target_type", string(target.Type))
	}
}

func (r *Router) sendToUser(ctx context.Context, fromAgent ids.ID, content string, metadata map[string]any) error {
	r.defaultUserMu.RLock()
	ep := r.defaultUser
	r.defaultUserMu.RUnlock()

	if ep != nil {
		return ep.Send(ctx, Delivery{FromAgent: fromAgent, Content: content, Metadata: metadata})
	}

	r.log.Warn("router: no default user endpoint configured, queueing message", "from_agent", fromAgent.String())
	return r.outbox.Enqueue(ctx, QueuedMessage{
		FromAgent: fromAgent,
		ToAgent:   ids.Nil(ids.KindAgent),
		Content:   content,
		Metadata:  metadata,
	})
}

// sendToAgent is also called by the runtime when continuing a call
// chain it already started; callChain is nil for a fresh delivery.
func (r *Router) sendToAgent(ctx context.Context, fromAgent, toAgent ids.ID, content string, metadata map[string]any, callChain []ids.ID) error {
	q := QueuedMessage{
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Content:   content,
		Metadata:  metadata,
		CallChain: callChain,
	}

	if q.InCallChain(toAgent) {
		r.log.Warn("router: dropping message, target already in call chain",
			"from_agent", fromAgent.String(), "to_agent", toAgent.String())
		return nil
	}

	q.CallChain = append(append([]ids.ID{}, callChain...), fromAgent)
	return r.outbox.Enqueue(ctx, q)
}

// SendToAgentWithChain is the entry point the runtime uses when an
// agent's outbound message targets another agent and a call chain is
// already in flight (step 10 of a turn, §4.F).
func (r *Router) SendToAgentWithChain(ctx context.Context, fromAgent, toAgent ids.ID, content string, metadata map[string]any, callChain []ids.ID) error {
	return r.sendToAgent(ctx, fromAgent, toAgent, content, metadata, callChain)
}

func (r *Router) sendToGroup(ctx context.Context, fromAgent ids.ID, target Target, content string, metadata map[string]any) error {
	// Group delivery fan-out (broadcast vs. round-robin vs. supervisor)
	// is out of scope; groups resolve to no members until a fan-out
	// policy is specified.
	r.log.Warn("router: group delivery is not implemented, dropping", "from_agent", fromAgent.String())
	return nil
}

func (r *Router) sendToChannel(ctx context.Context, fromAgent ids.ID, target Target, content string, metadata map[string]any) error {
	name := target.Metadata["type"]
	if name == "" {
		r.log.Warn("router: channel target missing metadata.type, dropping", "from_agent", fromAgent.String())
		return nil
	}

	r.mu.RLock()
	ep, ok := r.endpoints[name]
	r.mu.RUnlock()

	if !ok {
		r.log.Warn("router: no endpoint registered for channel, dropping", "channel", name, "from_agent", fromAgent.String())
		return nil
	}

	anyMetadata := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		anyMetadata[k] = v
	}
	return ep.Send(ctx, Delivery{FromAgent: fromAgent, Content: content, Metadata: anyMetadata})
}
