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

// Package vectorstore is the pluggable vector-search backend archival
// memory search and data-source similarity ranking can target instead
// of the entity store's own MTREE index. The entity store remains the
// default; a Store here is only consulted when an agent's config names
// an external backend.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/registry"
)

// Result is one ranked hit from a similarity search.
type Result struct {
	ID       string
	Score    float32
	Content  string
	Vector   []float32
	Metadata map[string]any
}

// Store is a collection-scoped vector database backend.
type Store interface {
	// Upsert writes (or overwrites) one vector under id, in collection.
	Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error

	// Search returns the topK nearest vectors to query in collection.
	Search(ctx context.Context, collection string, query []float32, topK int) ([]Result, error)

	// Delete removes id from collection.
	Delete(ctx context.Context, collection, id string) error

	// EnsureCollection creates collection (sized for dimension vectors)
	// if it doesn't already exist.
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	Close() error
}

// Registry names vector store backends the way pkg/llm.Registry names
// model providers.
type Registry struct {
	*registry.BaseRegistry[Store]
}

// NewRegistry creates an empty vector store registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Store]()}
}

// CreateFromConfig builds a backend from cfg and registers it under name.
func (r *Registry) CreateFromConfig(name string, cfg *config.VectorStoreConfig) (Store, error) {
	if name == "" {
		return nil, fmt.Errorf("vector store name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("vector store config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vector store config %q: %w", name, err)
	}

	var (
		store Store
		err   error
	)
	switch cfg.Type {
	case "chromem":
		store, err = NewChromemStore(cfg)
	case "qdrant":
		store, err = NewQdrantStore(cfg)
	case "pinecone":
		store, err = NewPineconeStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported vector store type %q (supported: chromem, qdrant, pinecone)", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store %q: %w", name, err)
	}

	if err := r.Register(name, store); err != nil {
		return nil, fmt.Errorf("failed to register vector store %q: %w", name, err)
	}
	return store, nil
}

// Get returns the named store, or an error if it isn't registered.
func (r *Registry) Get(name string) (Store, error) {
	store, ok := r.BaseRegistry.Get(name)
	if !ok {
		return nil, fmt.Errorf("vector store %q not found", name)
	}
	return store, nil
}
