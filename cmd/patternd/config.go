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

package main

import (
	"fmt"

	"github.com/patterncore/pattern/pkg/config"
)

// loadConfig loads and validates the config document at path. A
// .env/.env.local sitting next to the working directory is applied to
// the process environment first, so ${VAR} references in the config
// file can pick up secrets that were never exported by the shell.
func loadConfig(path string) (*config.Config, *config.Loader, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, nil, fmt.Errorf("loading .env files: %w", err)
	}

	loader, err := config.NewLoader(config.LoaderOptions{Path: path})
	if err != nil {
		return nil, nil, fmt.Errorf("building config loader: %w", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, loader, nil
}
