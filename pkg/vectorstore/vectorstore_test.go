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

package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patterncore/pattern/pkg/config"
)

func TestRegistry_CreateFromConfig_RejectsUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateFromConfig("default", &config.VectorStoreConfig{Type: "weaviate"})
	require.Error(t, err)
}

func TestRegistry_CreateFromConfig_RejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	_, err := r.CreateFromConfig("", &config.VectorStoreConfig{Type: "chromem"})
	require.Error(t, err)
}

func TestRegistry_Get_UnknownNameErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("missing")
	require.Error(t, err)
}

func TestRegistry_CreateFromConfig_RegistersChromemByDefault(t *testing.T) {
	r := NewRegistry()
	store, err := r.CreateFromConfig("default", &config.VectorStoreConfig{})
	require.NoError(t, err)
	assert.NotNil(t, store)

	got, err := r.Get("default")
	require.NoError(t, err)
	assert.Same(t, store, got)
}

func TestChromemStore_UpsertSearchDelete_RoundTrips(t *testing.T) {
	store, err := NewChromemStore(&config.VectorStoreConfig{})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Upsert(ctx, "notes", "doc-1", []float32{1, 0, 0}, map[string]any{"content": "hello world"}))
	require.NoError(t, store.Upsert(ctx, "notes", "doc-2", []float32{0, 1, 0}, map[string]any{"content": "goodbye"}))

	results, err := store.Search(ctx, "notes", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].ID)
	assert.Equal(t, "hello world", results[0].Content)

	require.NoError(t, store.Delete(ctx, "notes", "doc-1"))
	results, err = store.Search(ctx, "notes", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "doc-1", r.ID)
	}
}

func TestChromemStore_EnsureCollectionIsIdempotent(t *testing.T) {
	store, err := NewChromemStore(&config.VectorStoreConfig{})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.EnsureCollection(ctx, "archival", 1536))
	require.NoError(t, store.EnsureCollection(ctx, "archival", 1536))
}

func TestVectorStoreConfig_Validate(t *testing.T) {
	cfg := &config.VectorStoreConfig{Type: "qdrant"}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate(), "qdrant requires a host")

	cfg = &config.VectorStoreConfig{Type: "pinecone"}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate(), "pinecone requires an api key")

	cfg = &config.VectorStoreConfig{Type: "chromem"}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())
}
