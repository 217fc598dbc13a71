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

	"github.com/patterncore/pattern/pkg/perr"
)

// schemaVersionRow mirrors the system_metadata row that tracks the
// highest applied migration number.
type schemaVersionRow struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

// migration is one forward-only schema step. Migrations never run out
// of order and never roll back; a failed migration aborts startup.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "core tables and field definitions",
		stmts: []string{
			`DEFINE TABLE system_metadata SCHEMALESS;`,
			`DEFINE TABLE user SCHEMALESS;`,
			`DEFINE TABLE agent SCHEMALESS;`,
			`DEFINE TABLE mem SCHEMALESS;`,
			`DEFINE TABLE msg SCHEMALESS;`,
			`DEFINE TABLE task SCHEMALESS;`,
			`DEFINE TABLE event SCHEMALESS;`,
			`DEFINE TABLE oauth_token SCHEMALESS;`,
			`DEFINE TABLE source SCHEMALESS;`,
			`DEFINE FIELD position ON TABLE msg TYPE string;`,
			`DEFINE INDEX msg_position ON TABLE msg COLUMNS position UNIQUE;`,
		},
	},
	{
		version: 2,
		name:    "relation edges",
		stmts: []string{
			`DEFINE TABLE owns TYPE RELATION FROM user TO agent SCHEMALESS;`,
			`DEFINE TABLE agent_memories TYPE RELATION FROM agent TO mem SCHEMALESS;`,
			`DEFINE TABLE agent_messages TYPE RELATION FROM agent TO msg SCHEMALESS;`,
			`DEFINE FIELD position ON TABLE agent_messages TYPE string;`,
			`DEFINE FIELD message_type ON TABLE agent_messages TYPE string;`,
			`DEFINE INDEX agent_messages_position ON TABLE agent_messages COLUMNS in, position;`,
		},
	},
	{
		version: 3,
		name:    "vector index on mem embeddings",
		stmts: []string{
			`DEFINE FIELD embedding ON TABLE mem TYPE option<array<float>>;`,
			`DEFINE INDEX mem_embedding ON TABLE mem FIELDS embedding MTREE DIMENSION 1536 DIST COSINE;`,
			`DEFINE FIELD embedding ON TABLE msg TYPE option<array<float>>;`,
			`DEFINE INDEX msg_embedding ON TABLE msg FIELDS embedding MTREE DIMENSION 1536 DIST COSINE;`,
		},
	},
	{
		version: 4,
		name:    "checkpoint table for in-flight turn recovery",
		stmts: []string{
			`DEFINE TABLE checkpoint SCHEMALESS;`,
			`DEFINE FIELD agent_id ON TABLE checkpoint TYPE string;`,
			`DEFINE FIELD task_id ON TABLE checkpoint TYPE string;`,
			`DEFINE INDEX checkpoint_agent_task ON TABLE checkpoint COLUMNS agent_id, task_id UNIQUE;`,
		},
	},
}

const schemaVersionRecordID = "system_metadata:schema_version"

// migrate applies every migration with version greater than the stored
// schema_version, in ascending order, then updates the stored version.
// It holds Store.mu for its entire run so concurrent migrate calls on
// the same Store don't interleave; separate processes opening the same
// database are not coordinated.
func (s *Store) migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentSchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.stmts {
			if err := exec(ctx, s, stmt, nil); err != nil {
				return perr.DatabaseVariant("entity.migrate", perr.DBQueryFailed,
					"migration step failed", err).
					With("migration_version", m.version).With("migration_name", m.name)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
		current = m.version
	}
	return nil
}

func (s *Store) currentSchemaVersion(ctx context.Context) (int, error) {
	rows, err := query[schemaVersionRow](ctx, s, `SELECT * FROM ONLY system_metadata:schema_version;`, nil)
	if err != nil {
		// The system_metadata table doesn't exist yet on a brand-new
		// database; treat that as version 0 rather than failing.
		return 0, nil
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	return exec(ctx, s, `UPDATE system_metadata:schema_version SET version = $version;`, map[string]any{
		"version": version,
	})
}
