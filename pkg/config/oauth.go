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

// OAuthProviderConfig configures one named OAuth2 provider used by the
// outbound token resolver (pkg/oauth) to refresh access tokens for
// tools and data sources that call third-party APIs on a user's behalf.
type OAuthProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	TokenURL     string `yaml:"token_url"`

	// RefreshSkew is how far before expiry a refresh is attempted
	// opportunistically, instead of waiting for the token to fail.
	RefreshSkew time.Duration `yaml:"refresh_skew,omitempty"`

	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

// SetDefaults applies default values.
func (c *OAuthProviderConfig) SetDefaults() {
	if c.RefreshSkew == 0 {
		c.RefreshSkew = 2 * time.Minute
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

// Validate checks the OAuth provider configuration.
func (c *OAuthProviderConfig) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	return nil
}
