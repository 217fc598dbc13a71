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

// EntityStoreConfig configures the connection to the graph/document
// entity store. Endpoint is either an embedded engine URI
// ("surrealkv://./data/pattern.db", "memory://") or a remote
// "ws://host:port/rpc" / "http://host:port" address.
type EntityStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Namespace string `yaml:"namespace,omitempty"`
	Database  string `yaml:"database,omitempty"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
}

// SetDefaults applies default values.
func (c *EntityStoreConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "surrealkv://./data/pattern.db"
	}
	if c.Namespace == "" {
		c.Namespace = "pattern"
	}
	if c.Database == "" {
		c.Database = "pattern"
	}
}

// Validate checks the entity store configuration.
func (c *EntityStoreConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	return nil
}
