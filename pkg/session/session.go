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

// Package session distinguishes a conversational thread from the agent
// that carries it. An agent accumulates history across every message
// it is ever sent; a session is a contiguous run of that history shared
// by one caller, so the same agent can be addressed by two unrelated
// callers, or by the same caller twice after a long gap, without either
// run's context bleeding into the other's.
//
// There is no session table. A session is a tag: every message attached
// to an agent carries a MetadataKey entry naming the session it belongs
// to, and a session's transcript is simply that agent's agent_messages
// history filtered down to one tag value. Manager's only job is
// deciding, for a given (agent, owner) pair, whether the next message
// continues the caller's current session or starts a new one.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/message"
)

// MetadataKey is the message.Message.Metadata key carrying a message's
// session id.
const MetadataKey = "session_id"

// DefaultIdleTimeout is how long a caller can go without sending an
// agent a message before its next message starts a new session rather
// than continuing the old one.
const DefaultIdleTimeout = 30 * time.Minute

// New generates a fresh session id.
func New() string {
	return uuid.NewString()
}

// Tag returns a copy of m with its session id set. It never mutates m,
// matching message.Message's immutable-after-construction contract.
func Tag(m *message.Message, sessionID string) *message.Message {
	out := *m
	meta := make(map[string]any, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	meta[MetadataKey] = sessionID
	out.Metadata = meta
	return &out
}

// IDOf reads the session id off a message, if any.
func IDOf(m *message.Message) (string, bool) {
	if m == nil || m.Metadata == nil {
		return "", false
	}
	v, ok := m.Metadata[MetadataKey]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// thread is the bookkeeping Manager keeps for one (agent, owner) pair:
// which session is current, and when it was last touched.
type thread struct {
	sessionID string
	lastSeen  time.Time
}

// Manager decides, per (agent, owner) pair, which session a caller's
// next message belongs to. It holds no message data itself — only the
// routing decision — so it can be rebuilt from nothing at startup by
// replaying LastActivity from storage; until the runtime wires that
// replay in, a fresh Manager simply starts every (agent, owner) pair's
// first message in a new session, which is always a safe default.
type Manager struct {
	mu          sync.Mutex
	idleTimeout time.Duration
	threads     map[string]*thread
}

// NewManager builds a Manager with the given idle timeout. A zero
// timeout uses DefaultIdleTimeout.
func NewManager(idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Manager{
		idleTimeout: idleTimeout,
		threads:     make(map[string]*thread),
	}
}

func threadKey(agent, owner ids.ID) string {
	return agent.String() + ":" + owner.String()
}

// Current returns the session id the caller's next message to agent
// should be tagged with, starting a new session if this is the pair's
// first message or its last one was more than the idle timeout ago.
// The bool reports whether a new session was started.
func (m *Manager) Current(agent, owner ids.ID) (string, bool) {
	return m.currentAt(agent, owner, time.Now())
}

func (m *Manager) currentAt(agent, owner ids.ID, now time.Time) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := threadKey(agent, owner)
	t, ok := m.threads[key]
	if !ok || now.Sub(t.lastSeen) > m.idleTimeout {
		t = &thread{sessionID: New(), lastSeen: now}
		m.threads[key] = t
		return t.sessionID, true
	}
	t.lastSeen = now
	return t.sessionID, false
}

// Resume forces the caller's next message to agent to continue an
// explicit, caller-supplied session id (e.g. a client resuming a
// session it persisted across a restart) regardless of idle time.
func (m *Manager) Resume(agent, owner ids.ID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[threadKey(agent, owner)] = &thread{sessionID: sessionID, lastSeen: time.Now()}
}

// End drops a pair's current-session tracking, so the pair's next
// message always starts a brand new session.
func (m *Manager) End(agent, owner ids.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadKey(agent, owner))
}
