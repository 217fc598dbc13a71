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

package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/config"
)

func TestRegistry_CreateFromConfig_RejectsUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateFromConfig("main", &config.EmbeddingConfig{Type: "bogus", APIKey: "k"})
	require.Error(t, err)
}

func TestRegistry_Get_UnknownNameErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	require.Error(t, err)
}

func TestNewOpenAIProvider_DefaultsDimensionFromModelTable(t *testing.T) {
	p, err := NewOpenAIProvider(&config.EmbeddingConfig{
		Type:   "openai",
		Model:  "text-embedding-3-large",
		APIKey: "k",
	})
	require.NoError(t, err)
	assert.Equal(t, 3072, p.Dimension())
}

func TestNewOpenAIProvider_UnknownModelDefaultsTo1536(t *testing.T) {
	p, err := NewOpenAIProvider(&config.EmbeddingConfig{
		Type:   "openai",
		Model:  "some-future-model",
		APIKey: "k",
	})
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())
}
