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

package datasource

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileTemplate_InvalidSyntaxErrors(t *testing.T) {
	_, err := CompileTemplate("bad", "{{ .unterminated")
	require.Error(t, err)
}

func TestNotificationTemplate_RendersSourceIDAndFields(t *testing.T) {
	tmpl, err := CompileTemplate("t1", DefaultNotificationTemplate)
	require.NoError(t, err)

	item := itemOf2(t, map[string]any{"summary": "3 new messages"})
	out, err := tmpl.Render("inbox", item, nil)
	require.NoError(t, err)
	assert.Equal(t, "New item from inbox: 3 new messages", out)
}

func TestNotificationTemplate_MissingFieldRendersZeroValue(t *testing.T) {
	tmpl, err := CompileTemplate("t2", "summary={{ .summary }}")
	require.NoError(t, err)

	out, err := tmpl.Render("src", itemOf2(t, map[string]any{}), nil)
	require.NoError(t, err)
	assert.Equal(t, "summary=<no value>", out)
}

func itemOf2(t *testing.T, fields map[string]any) Item {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	return b
}
