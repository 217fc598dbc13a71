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

// Package entity is the entity/relation store: a thin, typed layer over
// the embedded graph-document database (SurrealDB, reached either via
// its in-process surrealkv:// engine or over ws/http to a standalone
// server) that every other package persists through. It owns schema
// migrations, typed record IDs, and the store_with_relations /
// load_with_relations pattern the rest of the runtime builds on.
package entity

import (
	"context"
	"sync"

	"github.com/surrealdb/surrealdb.go"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/perr"
)

// Store wraps a connected SurrealDB handle. The zero value is not
// usable; construct with Connect.
type Store struct {
	db *surrealdb.DB

	mu sync.Mutex // serializes schema migrations, not ordinary queries
}

// Connect opens (or creates, for the embedded surrealkv:// engine) the
// namespace/database named in cfg and runs any pending schema
// migrations.
func Connect(ctx context.Context, cfg config.EntityStoreConfig) (*Store, error) {
	db, err := surrealdb.New(cfg.Endpoint)
	if err != nil {
		return nil, perr.DatabaseVariant("entity.connect", perr.DBConnectionFailed, "failed to open entity store", err).
			With("endpoint", cfg.Endpoint)
	}

	if cfg.Username != "" {
		if _, err := db.SignIn(&surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		}); err != nil {
			return nil, perr.DatabaseVariant("entity.connect", perr.DBConnectionFailed, "failed to sign in to entity store", err)
		}
	}

	if err := db.Use(cfg.Namespace, cfg.Database); err != nil {
		return nil, perr.DatabaseVariant("entity.connect", perr.DBConnectionFailed, "failed to select namespace/database", err).
			With("namespace", cfg.Namespace).With("database", cfg.Database)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the connection is still usable, for the admin surface's
// readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	_, err := surrealdb.Query[any](s.db, `SELECT * FROM system_metadata:schema_version;`, nil)
	if err != nil {
		return perr.DatabaseVariant("entity.ping", perr.DBConnectionFailed, "store unreachable", err)
	}
	return nil
}

// query runs a parameterized SurrealQL statement and decodes the first
// query result's first statement output into a slice of T.
func query[T any](ctx context.Context, s *Store, sql string, vars map[string]any) ([]T, error) {
	res, err := surrealdb.Query[[]T](s.db, sql, vars)
	if err != nil {
		return nil, perr.DatabaseVariant("entity.query", perr.DBQueryFailed, "query failed", err).With("sql", sql)
	}
	if len(*res) == 0 {
		return nil, nil
	}
	out := (*res)[0].Result
	return out, nil
}

// exec runs a statement purely for effect, discarding results.
func exec(ctx context.Context, s *Store, sql string, vars map[string]any) error {
	if _, err := surrealdb.Query[any](s.db, sql, vars); err != nil {
		return perr.DatabaseVariant("entity.exec", perr.DBQueryFailed, "statement failed", err).With("sql", sql)
	}
	return nil
}

