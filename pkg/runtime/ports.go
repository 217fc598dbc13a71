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

// Package runtime is the agent runtime: the component that loads an
// agent's persistent state, assembles a request, invokes a model,
// applies tool rules, persists the results, and hands outbound
// messages to the router. It composes every other domain package
// (pkg/message, pkg/rules, pkg/entity, pkg/router, pkg/llm,
// pkg/datasource, pkg/oauth, pkg/checkpoint, pkg/session) behind the
// one entry point a caller needs: Dispatch.
package runtime

import (
	"context"
	"time"

	"github.com/patterncore/pattern/pkg/entity"
	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/message"
)

// AgentStore is the subset of pkg/entity's Store the runtime needs to
// load and persist an agent's record and its memory blocks.
type AgentStore interface {
	GetAgent(ctx context.Context, id ids.ID) (*entity.Agent, error)
	UpdateAgent(ctx context.Context, a entity.Agent) error
	LoadMemories(ctx context.Context, agent ids.ID) ([]entity.MemoryBlock, error)
}

// MessageStore is message.Store plus the message-row write path
// message.Attach assumes already happened: message.Store only knows
// how to relate an already-persisted message to an agent, not store
// the message row itself (see pkg/message/edge.go).
type MessageStore interface {
	message.Store
	PutMessage(ctx context.Context, m *message.Message) error
}

// PositionGenerator is message.PositionGenerator, named locally so
// callers constructing a Runtime don't need to import pkg/message just
// to reference the type.
type PositionGenerator = message.PositionGenerator

// now supplies the timestamps the runtime records (agent UpdatedAt and
// LastActive, tool execution times). It is a package variable so a test
// can swap in a fixed clock.
var now = time.Now

var (
	_ AgentStore   = (*entity.Store)(nil)
	_ MessageStore = (*entity.Store)(nil)
)
