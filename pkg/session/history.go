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

package session

import (
	"context"
	"sort"
	"time"

	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/message"
)

// Thread loads an agent's full attached history and filters it down to
// the messages tagged with sessionID, in position order. Messages with
// no session tag at all (pre-dating this package, or attached by a
// caller that never set one) are never returned by Thread — callers
// wanting the untagged default conversation should use
// message.LoadHistory directly.
func Thread(ctx context.Context, store message.Store, agent ids.ID, sessionID string) ([]message.Pair, error) {
	pairs, err := message.LoadHistory(ctx, store, agent, false)
	if err != nil {
		return nil, err
	}
	out := make([]message.Pair, 0, len(pairs))
	for _, p := range pairs {
		if id, ok := IDOf(p.Message); ok && id == sessionID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Summary describes one session discovered in an agent's history.
type Summary struct {
	SessionID    string
	MessageCount int
	FirstSeen    time.Time
	LastSeen     time.Time
}

// List groups an agent's attached history by session tag, most
// recently active first. Messages with no session tag are omitted.
func List(ctx context.Context, store message.Store, agent ids.ID) ([]Summary, error) {
	pairs, err := message.LoadHistory(ctx, store, agent, true)
	if err != nil {
		return nil, err
	}

	bySession := make(map[string]*Summary)
	order := make([]string, 0)
	for _, p := range pairs {
		id, ok := IDOf(p.Message)
		if !ok {
			continue
		}
		s, exists := bySession[id]
		if !exists {
			s = &Summary{SessionID: id, FirstSeen: p.Message.CreatedAt, LastSeen: p.Message.CreatedAt}
			bySession[id] = s
			order = append(order, id)
		}
		s.MessageCount++
		if p.Message.CreatedAt.Before(s.FirstSeen) {
			s.FirstSeen = p.Message.CreatedAt
		}
		if p.Message.CreatedAt.After(s.LastSeen) {
			s.LastSeen = p.Message.CreatedAt
		}
	}

	out := make([]Summary, 0, len(order))
	for _, id := range order {
		out = append(out, *bySession[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out, nil
}
