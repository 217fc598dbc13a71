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

package vectorstore

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/patterncore/pattern/pkg/config"
)

// ChromemStore is the embedded, zero-dependency backend: vectors live
// in process memory with optional gzip-compressed file persistence.
// It is the default backend and requires no external service.
type ChromemStore struct {
	db          *chromem.DB
	persistPath string

	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	// identityEmbed satisfies chromem's EmbeddingFunc requirement; all
	// vectors handed to Store are already computed upstream by pkg/embedding.
	identityEmbed chromem.EmbeddingFunc
}

// NewChromemStore opens (or creates) the embedded database described
// by cfg. When cfg.PersistPath is empty the database is memory-only.
func NewChromemStore(cfg *config.VectorStoreConfig) (*ChromemStore, error) {
	var db *chromem.DB

	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create chromem persist directory %q: %w", cfg.PersistPath, err)
		}

		dbPath := cfg.PersistPath + "/vectors.gob.gz"
		if _, err := os.Stat(dbPath); err == nil {
			loaded, loadErr := chromem.NewPersistentDB(dbPath, true)
			if loadErr != nil {
				return nil, fmt.Errorf("failed to load chromem database %q: %w", dbPath, loadErr)
			}
			db = loaded
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	identityEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chromem embedding function invoked; vectors must be pre-computed")
	}

	return &ChromemStore{
		db:            db,
		persistPath:   cfg.PersistPath,
		collections:   make(map[string]*chromem.Collection),
		identityEmbed: identityEmbed,
	}, nil
}

func (s *ChromemStore) collectionFor(name string) (*chromem.Collection, error) {
	s.mu.RLock()
	if col, ok := s.collections[name]; ok {
		s.mu.RUnlock()
		return col, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(name, nil, s.identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create chromem collection %q: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

// EnsureCollection is a no-op beyond getting-or-creating the
// collection: chromem has no notion of a fixed vector dimension.
func (s *ChromemStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	_, err := s.collectionFor(collection)
	return err
}

func (s *ChromemStore) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error {
	col, err := s.collectionFor(collection)
	if err != nil {
		return err
	}

	strMetadata := make(map[string]string, len(metadata))
	for k, v := range metadata {
		strMetadata[k] = fmt.Sprint(v)
	}

	content := ""
	if c, ok := metadata["content"].(string); ok {
		content = c
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Metadata:  strMetadata,
		Embedding: vector,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert chromem document %q: %w", id, err)
	}

	return s.persist()
}

func (s *ChromemStore) Search(ctx context.Context, collection string, query []float32, topK int) ([]Result, error) {
	col, err := s.collectionFor(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects a result count larger than the collection.
	if n := col.Count(); topK > n {
		topK = n
	}
	results, err := col.QueryEmbedding(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem search failed: %w", err)
	}

	out := make([]Result, 0, len(results))
	for _, r := range results {
		metadata := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			metadata[k] = v
		}
		out = append(out, Result{
			ID:       r.ID,
			Score:    r.Similarity,
			Content:  r.Content,
			Metadata: metadata,
		})
	}
	return out, nil
}

func (s *ChromemStore) Delete(ctx context.Context, collection, id string) error {
	col, err := s.collectionFor(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete chromem document %q: %w", id, err)
	}
	return s.persist()
}

func (s *ChromemStore) Close() error {
	return s.persist()
}

func (s *ChromemStore) persist() error {
	if s.persistPath == "" {
		return nil
	}
	dbPath := s.persistPath + "/vectors.gob.gz"
	//nolint:staticcheck // Export is the only persistence entry point chromem-go exposes.
	if err := s.db.Export(dbPath, true, ""); err != nil {
		return fmt.Errorf("failed to persist chromem database: %w", err)
	}
	return nil
}
