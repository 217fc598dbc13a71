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

// ToolPluginConfig configures one out-of-process tool, launched and
// supervised via go-plugin. The plugin binary implements the tool RPC
// interface and is started once per process lifetime.
type ToolPluginConfig struct {
	// Command is the plugin binary path or name on $PATH.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`

	Env map[string]string `yaml:"env,omitempty"`

	// LogLevel controls the plugin's hclog verbosity: trace, debug,
	// info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
}

// SetDefaults applies default values.
func (c *ToolPluginConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

// Validate checks the tool plugin configuration.
func (c *ToolPluginConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}
