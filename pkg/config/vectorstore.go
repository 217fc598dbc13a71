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

package config

import "fmt"

// VectorStoreConfig configures a pluggable vector database backend for
// archival memory search and data-source similarity ranking. The
// entity store's own MTREE vector index is always available and needs
// no config; VectorStoreConfig only matters when an agent is
// configured to use an external backend instead.
type VectorStoreConfig struct {
	// Type selects the backend: "chromem" (embedded, in-process),
	// "qdrant", or "pinecone".
	Type string `yaml:"type"`

	Host   string `yaml:"host,omitempty"`
	Port   int    `yaml:"port,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`

	EnableTLS *bool `yaml:"enable_tls,omitempty"`

	// PersistPath is the on-disk path chromem persists its embedded
	// database to.
	PersistPath string `yaml:"persist_path,omitempty"`

	Collection string `yaml:"collection,omitempty"`

	// IndexName is the Pinecone index (or Qdrant collection) this
	// store targets.
	IndexName string `yaml:"index_name,omitempty"`

	Dimension int `yaml:"dimension,omitempty"`
}

// SetDefaults applies default values.
func (c *VectorStoreConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "chromem"
	}
	if c.Port == 0 && c.Type == "qdrant" {
		c.Port = 6333
	}
	if c.Collection == "" {
		c.Collection = "pattern"
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
}

// Validate checks the vector store configuration.
func (c *VectorStoreConfig) Validate() error {
	switch c.Type {
	case "chromem", "qdrant", "pinecone":
	default:
		return fmt.Errorf("invalid vector store type %q (valid: chromem, qdrant, pinecone)", c.Type)
	}
	if c.Type == "qdrant" && c.Host == "" {
		return fmt.Errorf("host is required for qdrant")
	}
	if c.Type == "pinecone" && c.APIKey == "" {
		return fmt.Errorf("api_key is required for pinecone")
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive")
	}
	return nil
}
