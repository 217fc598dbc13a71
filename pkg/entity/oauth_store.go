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

package entity

import (
	"context"
	"time"

	"github.com/patterncore/pattern/pkg/ids"
	"github.com/patterncore/pattern/pkg/oauth"
	"github.com/patterncore/pattern/pkg/perr"
)

var _ oauth.TokenStore = (*Store)(nil)

type storedOAuthToken struct {
	ID           ids.ID    `json:"id"`
	OwnerID      ids.ID    `json:"owner_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// GetToken implements oauth.TokenStore, returning the token for
// (owner, provider) with the latest expiry.
func (s *Store) GetToken(ctx context.Context, owner ids.ID, provider string) (*oauth.Token, error) {
	rows, err := query[storedOAuthToken](ctx, s,
		`SELECT * FROM oauth_token WHERE owner_id = $owner AND provider = $provider ORDER BY expires_at DESC LIMIT 1`,
		map[string]any{"owner": owner.RecordID(), "provider": provider})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, perr.DatabaseVariant("entity.get_token", perr.DBOther, "no oauth token found", nil).
			With("owner", owner.String()).With("provider", provider)
	}

	row := rows[0]
	return &oauth.Token{
		ID:           row.ID,
		OwnerID:      row.OwnerID,
		Provider:     row.Provider,
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}

// SaveToken implements oauth.TokenStore, creating the token's entity
// store record the first time it's seen and overwriting it on every
// subsequent refresh.
func (s *Store) SaveToken(ctx context.Context, token *oauth.Token) error {
	id := token.ID
	if id.IsNil() {
		id = ids.New(ids.KindOAuthToken)
	}

	row := storedOAuthToken{
		ID:           id,
		OwnerID:      token.OwnerID,
		Provider:     token.Provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.ExpiresAt,
	}

	return exec(ctx, s, `UPDATE $id CONTENT $data`, map[string]any{
		"id":   id.RecordID(),
		"data": row,
	})
}
