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

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/perr"
)

func TestWriteJSON_EncodesBodyAndStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, 201, map[string]string{"id": "agent_1"})

	assert.Equal(t, 201, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "agent_1", body["id"])
}

func TestWriteJSON_NilBodyWritesNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, 204, nil)

	assert.Equal(t, 204, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestWriteError_MapsPerrKindsToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", perr.Validation("op", "bad input", nil), 400},
		{"rule_violation", perr.RuleViolation("op", "conflict", nil), 409},
		{"cancelled", perr.Cancelled("op"), 408},
		{"configuration", perr.Configuration("op", "misconfigured", nil), 500},
		{"database", perr.Database("op", "down", nil), 502},
		{"external", perr.External("op", "upstream failed", nil), 502},
		{"not_found", perr.DatabaseVariant("op", perr.DBOther, "not found", nil), 404},
		{"plain_error", errors.New("boom"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAsPerr_UnwrapsWrappedError(t *testing.T) {
	base := perr.Validation("op", "bad", nil)
	wrapped := fmt.Errorf("turn: validate request: %w", base)

	var pe *perr.Error
	require.True(t, asPerr(wrapped, &pe))
	assert.Equal(t, perr.KindValidation, pe.Kind)
}

func TestAsPerr_FalseForUnrelatedError(t *testing.T) {
	var pe *perr.Error
	assert.False(t, asPerr(errors.New("plain"), &pe))
}
