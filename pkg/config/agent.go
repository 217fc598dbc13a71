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

// AgentDefaultsConfig carries the process-wide defaults copied onto a
// new AgentRecord's context-management fields when it isn't given
// explicit overrides.
type AgentDefaultsConfig struct {
	MaxMessages           int    `yaml:"max_messages,omitempty"`
	MaxMessageAgeHours    int    `yaml:"max_message_age_hours,omitempty"`
	CompressionThreshold  int    `yaml:"compression_threshold,omitempty"`
	MemoryCharLimit       int    `yaml:"memory_char_limit,omitempty"`
	CompressionStrategy   string `yaml:"compression_strategy,omitempty"`
	ToolTimeoutSeconds    int    `yaml:"tool_timeout_seconds,omitempty"`
	MaxToolCallsPerTurn   int    `yaml:"max_tool_calls_per_turn,omitempty"`
}

// SetDefaults applies default values.
func (c *AgentDefaultsConfig) SetDefaults() {
	if c.MaxMessages == 0 {
		c.MaxMessages = 200
	}
	if c.MaxMessageAgeHours == 0 {
		c.MaxMessageAgeHours = 24 * 7
	}
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = 150
	}
	if c.MemoryCharLimit == 0 {
		c.MemoryCharLimit = 8000
	}
	if c.CompressionStrategy == "" {
		c.CompressionStrategy = "truncate_oldest"
	}
	if c.ToolTimeoutSeconds == 0 {
		c.ToolTimeoutSeconds = 30
	}
	if c.MaxToolCallsPerTurn == 0 {
		c.MaxToolCallsPerTurn = 16
	}
}

// Validate checks the agent defaults configuration.
func (c *AgentDefaultsConfig) Validate() error {
	if c.MaxMessages < 1 {
		return fmt.Errorf("max_messages must be at least 1")
	}
	if c.CompressionThreshold > c.MaxMessages {
		return fmt.Errorf("compression_threshold (%d) must not exceed max_messages (%d)", c.CompressionThreshold, c.MaxMessages)
	}
	switch c.CompressionStrategy {
	case "truncate_oldest", "summarize":
	default:
		return fmt.Errorf("invalid compression_strategy %q (valid: truncate_oldest, summarize)", c.CompressionStrategy)
	}
	if c.ToolTimeoutSeconds < 1 {
		return fmt.Errorf("tool_timeout_seconds must be at least 1")
	}
	return nil
}
