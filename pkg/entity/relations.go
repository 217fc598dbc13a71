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

	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/perr"
)

// RelationDirection selects which side of an edge the entity being
// stored or loaded sits on. The data model's edges all point from a
// parent to the child it owns (`user -owns-> agent`,
// `agent -agent_memories-> memory_block`), so an entity is just as
// often the edge's "to" as its "from".
type RelationDirection int

const (
	// Outgoing means the entity being stored/loaded is the edge's "from".
	Outgoing RelationDirection = iota
	// Incoming means the entity being stored/loaded is the edge's "to",
	// and Target names the "from" side (e.g. an agent's owner).
	Incoming
)

// RelationSpec describes one typed edge to create alongside an entity
// write, with edge-carried fields.
type RelationSpec struct {
	Edge      string
	Target    ids.ID
	Direction RelationDirection
	Fields    map[string]any
}

// StoreWithRelations persists data at id and creates every edge in
// relations in the same call. SurrealDB does not expose cross-statement
// transactions through this driver, so the writes are sequential rather
// than atomic; a failure partway through leaves the entity persisted
// with a subset of its relations, which callers should treat as
// retryable (re-running RELATE on an edge that already exists is a
// no-op keyed by the edge's own identity, not an error).
func StoreWithRelations[T any](ctx context.Context, s *Store, id ids.ID, data T, relations []RelationSpec) error {
	if err := create(ctx, s, id, data); err != nil {
		return err
	}
	for _, rel := range relations {
		fields := make(map[string]any, len(rel.Fields)+2)
		for k, v := range rel.Fields {
			fields[k] = v
		}
		from, to := relationSides(id, rel.Target, rel.Direction)
		fields["from"] = from.RecordID()
		fields["to"] = to.RecordID()
		if err := exec(ctx, s, `RELATE $from -> `+rel.Edge+` -> $to SET `+setClause(rel.Fields)+`;`, fields); err != nil {
			return err
		}
	}
	return nil
}

// relationSides resolves which of id/target is the edge's "from" and
// "to" for a RELATE statement, given the direction relative to the
// entity being stored.
func relationSides(id, target ids.ID, direction RelationDirection) (from, to ids.ID) {
	if direction == Incoming {
		return target, id
	}
	return id, target
}

func setClause(fields map[string]any) string {
	if len(fields) == 0 {
		return "meta = {}"
	}
	out := ""
	for k := range fields {
		if out != "" {
			out += ", "
		}
		out += k + " = $" + k
	}
	return out
}

// Related is one typed edge traversal result: the edge's own fields,
// plus the ID of the entity on the far side.
type Related struct {
	Target ids.ID
	Fields map[string]any
}

// LoadRelationSpec names one edge table to traverse when loading an
// entity. Direction mirrors RelationSpec's: Outgoing traverses edges
// where the loaded entity is "in" (e.g. an agent's agent_memories),
// Incoming traverses edges where it's "out" (e.g. the user that owns
// it). Required, if true, turns a zero-row traversal into a typed
// *perr.Error (perr.RelationMissing) instead of an empty result.
type LoadRelationSpec struct {
	Edge      string
	Direction RelationDirection
	Required  bool
}

// LoadWithRelations loads the entity at id plus every edge named in
// specs, keyed by edge name.
func LoadWithRelations[T any](ctx context.Context, s *Store, id ids.ID, specs []LoadRelationSpec) (*T, map[string][]Related, error) {
	entity, err := selectOne[T](ctx, s, id)
	if err != nil {
		return nil, nil, err
	}

	out := make(map[string][]Related, len(specs))
	for _, spec := range specs {
		column, farSide := edgeTraversalColumns(spec.Direction)
		rows, err := query[map[string]any](ctx, s,
			`SELECT *, `+farSide+` AS target FROM `+spec.Edge+` WHERE `+column+` = $id;`,
			map[string]any{"id": id.RecordID()})
		if err != nil {
			return nil, nil, err
		}
		if spec.Required && len(rows) == 0 {
			return nil, nil, perr.RelationMissing("entity.load_with_relations", "required relation missing").
				With("id", id.String()).With("edge", spec.Edge)
		}
		rels := make([]Related, 0, len(rows))
		for _, row := range rows {
			target, _ := row["target"].(string)
			delete(row, "target")
			delete(row, "in")
			delete(row, "out")
			rels = append(rels, Related{Target: recordIDToID(target), Fields: row})
		}
		out[spec.Edge] = rels
	}
	return entity, out, nil
}

// edgeTraversalColumns resolves which edge column identifies the
// entity being loaded (column) versus the far side (farSide), given
// the traversal direction relative to that entity.
func edgeTraversalColumns(direction RelationDirection) (column, farSide string) {
	if direction == Incoming {
		return "out", "in"
	}
	return "in", "out"
}

// recordIDToID best-effort parses a SurrealDB "table:id" record id back
// into an ids.ID, assuming the table name matches a known ids.Kind.
func recordIDToID(recordID string) ids.ID {
	for i := 0; i < len(recordID); i++ {
		if recordID[i] == ':' {
			kind := ids.Kind(recordID[:i])
			parsed, err := ids.Parse(kind, string(kind)+"_"+recordID[i+1:])
			if err != nil {
				return ids.ID{}
			}
			return parsed
		}
	}
	return ids.ID{}
}
