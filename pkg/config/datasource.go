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

import (
	"fmt"
	"time"
)

// DataSourceConfig configures one data source registered with the
// ingestion coordinator. Type selects the builtin adapter: "file_tail"
// (watches a file for appended lines) or "http_poll" (polls an HTTP
// endpoint on an interval).
type DataSourceConfig struct {
	Type string `yaml:"type"`

	// Path is the watched file path (file_tail) or polled URL (http_poll).
	Path string `yaml:"path"`

	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	BufferCapacity int `yaml:"buffer_capacity,omitempty"`
	MaxAge         time.Duration `yaml:"max_age,omitempty"`

	NotifyTemplate string `yaml:"notify_template,omitempty"`

	TargetAgents []string `yaml:"target_agents,omitempty"`
}

// SetDefaults applies default values.
func (c *DataSourceConfig) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = 5000
	}
	if c.MaxAge == 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.NotifyTemplate == "" {
		c.NotifyTemplate = "New item from {{.source_id}}: {{.summary}}"
	}
}

// Validate checks the data source configuration.
func (c *DataSourceConfig) Validate() error {
	switch c.Type {
	case "file_tail", "http_poll":
	default:
		return fmt.Errorf("invalid type %q (valid: file_tail, http_poll)", c.Type)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if c.BufferCapacity < 1 {
		return fmt.Errorf("buffer_capacity must be at least 1")
	}
	return nil
}
