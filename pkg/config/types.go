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

// Package config provides configuration loading and validation for a
// Pattern runtime process: the entity store connection, model
// providers, agent defaults, tool rule sets, data sources, and the
// admin HTTP surface.
//
// Config is layered: a YAML document (local file, Consul, etcd, or
// Zookeeper) is the base, environment variables referenced with
// ${VAR} or ${VAR:-default} are expanded over it, and SetDefaults/
// Validate fill in and check the result.
package config

import "fmt"

// Config is the root configuration for a patternd process.
type Config struct {
	Name string `yaml:"name,omitempty"`

	EntityStore EntityStoreConfig `yaml:"entity_store"`

	Logger LoggerConfig `yaml:"logger,omitempty"`

	Server ServerConfig `yaml:"server,omitempty"`

	Snowflake SnowflakeConfig `yaml:"snowflake,omitempty"`

	Providers map[string]ProviderConfig `yaml:"providers,omitempty"`

	Embedding EmbeddingConfig `yaml:"embedding,omitempty"`

	// VectorStores names external vector database backends an agent's
	// archival memory or data-source search can target instead of the
	// entity store's own MTREE index.
	VectorStores map[string]VectorStoreConfig `yaml:"vector_stores,omitempty"`

	// Checkpoint configures execution-state snapshotting so a crashed
	// or restarted process can resume an in-flight agent turn.
	Checkpoint CheckpointConfig `yaml:"checkpoint,omitempty"`

	AgentDefaults AgentDefaultsConfig `yaml:"agent_defaults,omitempty"`

	DataSources map[string]DataSourceConfig `yaml:"data_sources,omitempty"`

	ToolPlugins map[string]ToolPluginConfig `yaml:"tool_plugins,omitempty"`

	OAuth map[string]OAuthProviderConfig `yaml:"oauth,omitempty"`

	// Database optionally backs the OAuth token store with a relational
	// database instead of the entity store, for deployments that already
	// operate a Postgres/MySQL/SQLite instance for credentials.
	Database *DatabaseConfig `yaml:"database,omitempty"`

	Auth AuthConfig `yaml:"auth,omitempty"`

	Observability ObservabilityConfig `yaml:"observability,omitempty"`
}

// SetDefaults fills in every section's defaults except Embedding, which
// stays as written so an empty type means "no embedding provider";
// embedding.Registry.CreateFromConfig applies its defaults. Called once
// after unmarshalling and env expansion, before Validate.
func (c *Config) SetDefaults() {
	c.EntityStore.SetDefaults()
	c.Logger.SetDefaults()
	c.Server.SetDefaults()
	c.Snowflake.SetDefaults()
	c.AgentDefaults.SetDefaults()
	c.Auth.SetDefaults()
	c.Observability.SetDefaults()
	c.Checkpoint.SetDefaults()

	for name, p := range c.Providers {
		p.SetDefaults()
		c.Providers[name] = p
	}
	for name, v := range c.VectorStores {
		v.SetDefaults()
		c.VectorStores[name] = v
	}
	for name, d := range c.DataSources {
		d.SetDefaults()
		c.DataSources[name] = d
	}
	for name, t := range c.ToolPlugins {
		t.SetDefaults()
		c.ToolPlugins[name] = t
	}
	for name, o := range c.OAuth {
		o.SetDefaults()
		c.OAuth[name] = o
	}
	if c.Database != nil {
		c.Database.SetDefaults()
	}
}

// Validate checks every section that has validation rules (Embedding has
// none) and returns the first error found.
func (c *Config) Validate() error {
	if err := c.EntityStore.Validate(); err != nil {
		return fmt.Errorf("entity_store: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Snowflake.Validate(); err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	if err := c.AgentDefaults.Validate(); err != nil {
		return fmt.Errorf("agent_defaults: %w", err)
	}
	for name, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
	}
	for name, v := range c.VectorStores {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("vector_stores.%s: %w", name, err)
		}
	}
	if err := c.Checkpoint.Validate(); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	for name, d := range c.DataSources {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("data_sources.%s: %w", name, err)
		}
	}
	for name, t := range c.ToolPlugins {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tool_plugins.%s: %w", name, err)
		}
	}
	for name, o := range c.OAuth {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("oauth.%s: %w", name, err)
		}
	}
	if c.Database != nil {
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}
