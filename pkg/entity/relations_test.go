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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/perr"
)

func TestSetClause_EmptyFieldsProducesPlaceholder(t *testing.T) {
	assert.Equal(t, "meta = {}", setClause(nil))
}

func TestSetClause_RendersEveryFieldAsBindVar(t *testing.T) {
	clause := setClause(map[string]any{"position": "1", "message_type": "active"})
	assert.Contains(t, clause, "position = $position")
	assert.Contains(t, clause, "message_type = $message_type")
}

func TestRecordIDToID_RoundTripsAgentRecordID(t *testing.T) {
	agent := ids.New(ids.KindAgent)
	recovered := recordIDToID(agent.RecordID())
	assert.Equal(t, agent, recovered)
}

func TestRecordIDToID_MalformedInputReturnsZeroValue(t *testing.T) {
	assert.Equal(t, ids.ID{}, recordIDToID("not-a-record-id"))
}

func TestRelationSides_OutgoingPutsEntityFirst(t *testing.T) {
	entity := ids.New(ids.KindAgent)
	target := ids.New(ids.KindMemory)

	from, to := relationSides(entity, target, Outgoing)
	assert.Equal(t, entity, from)
	assert.Equal(t, target, to)
}

func TestRelationSides_IncomingPutsEntitySecond(t *testing.T) {
	agent := ids.New(ids.KindAgent)
	owner := ids.New(ids.KindUser)

	// CreateAgent stores the agent incoming from its owner: owner ->
	// owns -> agent.
	from, to := relationSides(agent, owner, Incoming)
	assert.Equal(t, owner, from)
	assert.Equal(t, agent, to)
}

func TestEdgeTraversalColumns_OutgoingReadsInColumn(t *testing.T) {
	column, farSide := edgeTraversalColumns(Outgoing)
	assert.Equal(t, "in", column)
	assert.Equal(t, "out", farSide)
}

func TestEdgeTraversalColumns_IncomingReadsOutColumn(t *testing.T) {
	column, farSide := edgeTraversalColumns(Incoming)
	assert.Equal(t, "out", column)
	assert.Equal(t, "in", farSide)
}

func TestPerrRelationMissing_IsDatabaseKindWithRelationMissingVariant(t *testing.T) {
	err := perr.RelationMissing("entity.load_with_relations", "required relation missing").
		With("edge", "owns")
	assert.True(t, perr.Is(err, perr.KindDatabase))
	assert.Equal(t, "owns", err.Context["edge"])
}
