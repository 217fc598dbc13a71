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

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/patterncore/pattern/pkg/config"
)

// PineconeStore adapts the official Pinecone client to Store. Pinecone
// indexes, not collections, are the unit of isolation, so the
// collection argument to each method names the index.
type PineconeStore struct {
	client       *pinecone.Client
	defaultIndex string
}

// NewPineconeStore connects to Pinecone using cfg.APIKey.
func NewPineconeStore(cfg *config.VectorStoreConfig) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required for pinecone")
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
		Host:   cfg.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = cfg.Collection
	}
	if indexName == "" {
		indexName = "pattern-index"
	}

	return &PineconeStore{client: client, defaultIndex: indexName}, nil
}

func (s *PineconeStore) Close() error { return nil }

func (s *PineconeStore) indexFor(collection string) string {
	if collection != "" {
		return collection
	}
	return s.defaultIndex
}

func (s *PineconeStore) connection(ctx context.Context, collection string) (*pinecone.IndexConnection, error) {
	indexName := s.indexFor(collection)

	index, err := s.client.DescribeIndex(ctx, indexName)
	if err != nil {
		return nil, fmt.Errorf("failed to describe pinecone index %q: %w", indexName, err)
	}

	conn, err := s.client.Index(pinecone.NewIndexConnParams{Host: index.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pinecone index %q: %w", indexName, err)
	}
	return conn, nil
}

// EnsureCollection checks that a Pinecone index with this name exists.
// Pinecone indexes are provisioned out of band (console or admin API),
// so this never creates one.
func (s *PineconeStore) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	indexName := s.indexFor(collection)
	indexes, err := s.client.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pinecone indexes: %w", err)
	}
	for _, idx := range indexes {
		if idx.Name == indexName {
			return nil
		}
	}
	return fmt.Errorf("pinecone index %q does not exist; create it via the Pinecone console or admin API", indexName)
}

func (s *PineconeStore) Upsert(ctx context.Context, collection, id string, vector []float32, metadata map[string]any) error {
	conn, err := s.connection(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	var meta *pinecone.Metadata
	if len(metadata) > 0 {
		meta, err = structpb.NewStruct(metadata)
		if err != nil {
			return fmt.Errorf("failed to convert metadata: %w", err)
		}
	}

	_, err = conn.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       id,
		Values:   vector,
		Metadata: meta,
	}})
	if err != nil {
		return fmt.Errorf("failed to upsert pinecone vector %q: %w", id, err)
	}
	return nil
}

func (s *PineconeStore) Search(ctx context.Context, collection string, query []float32, topK int) ([]Result, error) {
	conn, err := s.connection(ctx, collection)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          query,
		TopK:            uint32(topK),
		IncludeMetadata: true,
		IncludeValues:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query pinecone: %w", err)
	}

	return pineconeResults(resp.Matches), nil
}

func (s *PineconeStore) Delete(ctx context.Context, collection, id string) error {
	conn, err := s.connection(ctx, collection)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, []string{id}); err != nil {
		return fmt.Errorf("failed to delete pinecone vector %q: %w", id, err)
	}
	return nil
}

func pineconeResults(matches []*pinecone.ScoredVector) []Result {
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m.Vector == nil {
			continue
		}

		metadata := make(map[string]any)
		if m.Vector.Metadata != nil {
			metadata = m.Vector.Metadata.AsMap()
		}

		content := ""
		if c, ok := metadata["content"].(string); ok {
			content = c
		}

		results = append(results, Result{
			ID:       m.Vector.Id,
			Score:    m.Score,
			Content:  content,
			Vector:   m.Vector.Values,
			Metadata: metadata,
		})
	}
	return results
}
