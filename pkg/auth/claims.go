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

// Package auth validates the JWT bearer tokens presented to the admin
// HTTP surface (pkg/server). It is unrelated to pkg/oauth, which
// refreshes outbound credentials the runtime presents to model and
// tool providers on a user's behalf — this package only answers "who
// is calling the admin API".
//
// # Usage
//
// Configure authentication in pattern.yaml:
//
//	auth:
//	  enabled: true
//	  jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	  issuer: "https://auth.example.com"
//	  audience: "pattern-api"
//
// The middleware validates the bearer token against the configured
// JWKS and makes the resulting Claims available to handlers via the
// request context.
package auth

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// claimsContextKey is the context key under which validated Claims are
// stored, shared by both the HTTP middleware and direct callers of
// ContextWithClaims.
const claimsContextKey contextKey = "pattern_auth_claims"

// Claims is the validated identity of an admin API caller, extracted
// from a JWT's standard and custom claims. It is designed to fit common
// identity providers (Auth0, Okta, Keycloak) while staying extensible
// via Custom.
type Claims struct {
	// Subject is the unique identifier for the caller (sub claim).
	Subject string `json:"sub"`

	// Email is the caller's email address, if the token carries one.
	Email string `json:"email,omitempty"`

	// Role drives RequireRole authorization decisions.
	Role string `json:"role,omitempty"`

	// TenantID supports multi-tenant deployments; see RequireTenant.
	TenantID string `json:"tenant_id,omitempty"`

	// Custom holds every claim not mapped onto the fields above.
	Custom map[string]any `json:"-"`
}

// GetClaim retrieves a custom claim by key.
func (c *Claims) GetClaim(key string) (any, bool) {
	if c.Custom == nil {
		return nil, false
	}
	val, ok := c.Custom[key]
	return val, ok
}

// GetStringClaim retrieves a custom claim as a string, returning "" if
// it is absent or not a string.
func (c *Claims) GetStringClaim(key string) string {
	if val, ok := c.GetClaim(key); ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

// HasRole reports whether the caller has the given role.
func (c *Claims) HasRole(role string) bool {
	return c.Role == role
}

// HasAnyRole reports whether the caller has any of the given roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.Role == role {
			return true
		}
	}
	return false
}

// ClaimsFromContext extracts the validated Claims from ctx, or nil if
// the request reached the handler unauthenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// ContextWithClaims returns a copy of ctx carrying claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
