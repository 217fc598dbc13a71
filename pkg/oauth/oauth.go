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

// Package oauth resolves the bearer token a model provider call should
// use when an agent's access to a provider is brokered through a
// refreshed OAuth2 credential rather than a static API key. It
// refreshes opportunistically — ahead of expiry, by a configurable
// skew — rather than waiting for a call to fail on an expired token.
package oauth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/perr"
)

// Token is a persisted OAuth2 credential for one (owner, provider) pair.
type Token struct {
	ID           ids.ID
	OwnerID      ids.ID
	Provider     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// NeedsRefresh reports whether t should be refreshed now given skew:
// either it has already expired, or it will expire within skew.
func (t *Token) NeedsRefresh(skew time.Duration) bool {
	return time.Now().Add(skew).After(t.ExpiresAt)
}

// Expired reports whether t's access token has already passed its
// expiry instant.
func (t *Token) Expired() bool {
	return time.Now().After(t.ExpiresAt)
}

// TokenStore is the persistence port Resolver reads and writes
// through. pkg/entity implements it against the entity store's
// oauth_token table; tests substitute an in-memory fake.
type TokenStore interface {
	GetToken(ctx context.Context, owner ids.ID, provider string) (*Token, error)
	SaveToken(ctx context.Context, token *Token) error
}

// Resolver resolves and opportunistically refreshes OAuth2 tokens for
// a fixed set of named providers (e.g. "anthropic", "google").
type Resolver struct {
	store     TokenStore
	providers map[string]*config.OAuthProviderConfig

	mu         sync.Mutex
	refreshing map[string]bool
}

// NewResolver builds a Resolver over store for the given provider set.
func NewResolver(store TokenStore, providers map[string]*config.OAuthProviderConfig) *Resolver {
	return &Resolver{
		store:      store,
		providers:  providers,
		refreshing: make(map[string]bool),
	}
}

// BearerToken returns the access token that should authenticate owner's
// calls to provider, refreshing it first if it is within its
// provider's refresh skew of expiring.
//
// If the token has already expired and carries no refresh token, this
// is a hard failure: there is no credential left to fall back to, and
// the caller must not silently downgrade to the provider's static API
// key (that would authenticate the call as the service rather than the
// user the token belongs to).
func (r *Resolver) BearerToken(ctx context.Context, owner ids.ID, provider string) (string, error) {
	cfg, ok := r.providers[provider]
	if !ok {
		return "", perr.Configuration("oauth.bearer_token", "unknown oauth provider", nil).
			With("provider", provider)
	}

	tok, err := r.store.GetToken(ctx, owner, provider)
	if err != nil {
		return "", err
	}

	if !tok.NeedsRefresh(cfg.RefreshSkew) {
		return tok.AccessToken, nil
	}

	if tok.RefreshToken == "" {
		if tok.Expired() {
			return "", perr.External("oauth.bearer_token", "access token expired and no refresh token is available", nil).
				With("provider", provider).With("owner", owner.String())
		}
		// Not yet expired, just inside the refresh window with nothing
		// to refresh with: use it and hope the next call lands before
		// expiry instead of failing a still-valid request.
		return tok.AccessToken, nil
	}

	refreshed, err := r.refresh(ctx, cfg, tok)
	if err != nil {
		if tok.Expired() {
			return "", err
		}
		// Refresh failed but the current token is still technically
		// valid; let the caller proceed rather than fail a request
		// that didn't need the refresh yet.
		return tok.AccessToken, nil
	}
	return refreshed.AccessToken, nil
}

func (r *Resolver) refresh(ctx context.Context, cfg *config.OAuthProviderConfig, tok *Token) (*Token, error) {
	r.mu.Lock()
	if r.refreshing[tok.Provider+":"+tok.OwnerID.String()] {
		r.mu.Unlock()
		return tok, nil
	}
	r.refreshing[tok.Provider+":"+tok.OwnerID.String()] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.refreshing, tok.Provider+":"+tok.OwnerID.String())
		r.mu.Unlock()
	}()

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
	}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	source := oauthCfg.TokenSource(reqCtx, &oauth2.Token{RefreshToken: tok.RefreshToken})
	fresh, err := source.Token()
	if err != nil {
		return nil, perr.External("oauth.refresh", "oauth token refresh failed", err).
			With("provider", tok.Provider)
	}

	refreshToken := fresh.RefreshToken
	if refreshToken == "" {
		// Not every provider rotates the refresh token on use; keep
		// the existing one when the response omits it.
		refreshToken = tok.RefreshToken
	}

	updated := &Token{
		ID:           tok.ID,
		OwnerID:      tok.OwnerID,
		Provider:     tok.Provider,
		AccessToken:  fresh.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    fresh.Expiry,
	}

	if err := r.store.SaveToken(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}
