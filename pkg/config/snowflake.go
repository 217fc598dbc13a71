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

// SnowflakeConfig configures how a process obtains the machine ID used
// by its position Generator. Coordinator is "static" (single process,
// MachineID used verbatim), "etcd", "consul", or "zookeeper" (leased
// from a cluster coordinator so cooperating processes never collide).
type SnowflakeConfig struct {
	Coordinator string   `yaml:"coordinator,omitempty"`
	MachineID   int64    `yaml:"machine_id,omitempty"`
	Endpoints   []string `yaml:"endpoints,omitempty"`
}

// SetDefaults applies default values.
func (c *SnowflakeConfig) SetDefaults() {
	if c.Coordinator == "" {
		c.Coordinator = "static"
	}
	if c.Coordinator != "static" && len(c.Endpoints) == 0 {
		switch c.Coordinator {
		case "etcd":
			c.Endpoints = []string{"localhost:2379"}
		case "consul":
			c.Endpoints = []string{"localhost:8500"}
		case "zookeeper":
			c.Endpoints = []string{"localhost:2181"}
		}
	}
}

// Validate checks the snowflake configuration.
func (c *SnowflakeConfig) Validate() error {
	switch c.Coordinator {
	case "static", "etcd", "consul", "zookeeper":
	default:
		return fmt.Errorf("invalid coordinator %q (valid: static, etcd, consul, zookeeper)", c.Coordinator)
	}
	if c.Coordinator == "static" && (c.MachineID < 0 || c.MachineID > 1023) {
		return fmt.Errorf("machine_id %d out of range [0,1023]", c.MachineID)
	}
	if c.Coordinator != "static" && len(c.Endpoints) == 0 {
		return fmt.Errorf("endpoints required for coordinator %q", c.Coordinator)
	}
	return nil
}
