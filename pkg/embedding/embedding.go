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

// Package embedding is the embedding provider boundary archival memory
// search and data-source similarity ranking call through before a
// vector ever reaches the entity store's MTREE index or a pluggable
// vectorstore backend.
package embedding

import (
	"context"
	"fmt"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/registry"
)

// Provider turns text into a fixed-dimension vector.
type Provider interface {
	// Embed returns the embedding for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every vector this provider returns.
	Dimension() int

	// ModelName identifies the concrete embedding model.
	ModelName() string

	Close() error
}

// Registry names embedding providers the way pkg/llm.Registry names
// model providers.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty embedding provider registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// CreateFromConfig builds a provider from cfg and registers it under name.
func (r *Registry) CreateFromConfig(name string, cfg *config.EmbeddingConfig) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("embedding provider name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("embedding config cannot be nil")
	}
	cfg.SetDefaults()

	var (
		provider Provider
		err      error
	)
	switch cfg.Type {
	case "openai":
		provider, err = NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider type %q (supported: openai)", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider %q: %w", name, err)
	}

	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register embedding provider %q: %w", name, err)
	}
	return provider, nil
}

// Get returns the named provider, or an error if it isn't registered.
func (r *Registry) Get(name string) (Provider, error) {
	provider, ok := r.BaseRegistry.Get(name)
	if !ok {
		return nil, fmt.Errorf("embedding provider %q not found", name)
	}
	return provider, nil
}
