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

package llm

import (
	"fmt"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/registry"
)

// Registry holds the named model providers an agent's config can refer
// to by name (an agent names a provider, not a bare model string, so
// credentials and retry policy are configured once and shared).
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// CreateFromConfig builds a provider from cfg, applying its defaults
// and validating it, then registers it under name.
func (r *Registry) CreateFromConfig(name string, cfg *config.ProviderConfig) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("provider name cannot be empty")
	}
	if cfg == nil {
		return nil, fmt.Errorf("provider config cannot be nil")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config %q: %w", name, err)
	}

	var (
		provider Provider
		err      error
	)
	switch cfg.Type {
	case "anthropic":
		provider, err = NewAnthropicProvider(cfg)
	case "openai":
		provider, err = NewOpenAIProvider(cfg)
	case "gemini":
		provider, err = NewGeminiProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider type %q (supported: anthropic, openai, gemini)", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", name, err)
	}

	if err := r.Register(name, provider); err != nil {
		return nil, fmt.Errorf("failed to register provider %q: %w", name, err)
	}
	return provider, nil
}

// Get returns the named provider, or an error if it isn't registered.
func (r *Registry) Get(name string) (Provider, error) {
	provider, ok := r.BaseRegistry.Get(name)
	if !ok {
		return nil, fmt.Errorf("model provider %q not found", name)
	}
	return provider, nil
}
