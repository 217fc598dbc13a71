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

// Package ids provides typed, entity-kind-prefixed UUIDs.
//
// Every entity in the store is addressed by an ID that carries its own
// kind tag (e.g. "agent_<uuid>", "user_<uuid>"), so a value can
// never be silently used at the wrong entity type, and record IDs
// round-trip cleanly through the graph database's typed record IDs
// (table:id).
package ids

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind is the entity-kind tag embedded in every ID's prefix.
type Kind string

const (
	KindUser       Kind = "user"
	KindAgent      Kind = "agent"
	KindMemory     Kind = "mem"
	KindMessage    Kind = "msg"
	KindTask       Kind = "task"
	KindEvent      Kind = "event"
	KindOAuthToken Kind = "oauth_token"
	KindDataSource Kind = "source"
	KindGroup      Kind = "group"
	KindChannel    Kind = "channel"
	KindCheckpoint Kind = "checkpoint"
)

// ID is a typed, prefixed identifier: "<kind>_<uuid>".
type ID struct {
	kind Kind
	uuid uuid.UUID
}

// New generates a fresh random ID of the given kind.
func New(kind Kind) ID {
	return ID{kind: kind, uuid: uuid.New()}
}

// Nil returns the nil ID of a kind, used as an explicit "no target"
// placeholder (e.g. an outbox entry with no resolved recipient yet).
func Nil(kind Kind) ID {
	return ID{kind: kind}
}

// Parse parses a "<kind>_<uuid>" string, verifying the kind matches.
func Parse(kind Kind, s string) (ID, error) {
	prefix := string(kind) + "_"
	if !strings.HasPrefix(s, prefix) {
		return ID{}, fmt.Errorf("ids: %q does not have expected prefix %q", s, prefix)
	}
	u, err := uuid.Parse(strings.TrimPrefix(s, prefix))
	if err != nil {
		return ID{}, fmt.Errorf("ids: parsing %q: %w", s, err)
	}
	return ID{kind: kind, uuid: u}, nil
}

// Kind returns the entity kind this ID is tagged with.
func (id ID) Kind() Kind { return id.kind }

// IsNil reports whether the ID is the nil placeholder.
func (id ID) IsNil() bool { return id.uuid == uuid.Nil }

// String renders the canonical "<kind>_<uuid>" form.
func (id ID) String() string {
	return fmt.Sprintf("%s_%s", id.kind, id.uuid)
}

// RecordID renders the database typed-record-id form "<kind>:<uuid>"
// used in RELATE/SELECT queries against the graph store.
func (id ID) RecordID() string {
	return fmt.Sprintf("%s:%s", id.kind, id.uuid)
}

// MarshalText implements encoding.TextMarshaler so IDs serialise as
// plain strings in JSON/YAML.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. The kind is not
// known at unmarshal time, so it is recovered from the prefix itself.
func (id *ID) UnmarshalText(text []byte) error {
	s := string(text)
	idx := strings.LastIndex(s, "_")
	if idx < 0 {
		return fmt.Errorf("ids: %q is not a valid prefixed id", s)
	}
	kind := Kind(s[:idx])
	u, err := uuid.Parse(s[idx+1:])
	if err != nil {
		return fmt.Errorf("ids: parsing %q: %w", s, err)
	}
	id.kind = kind
	id.uuid = u
	return nil
}
