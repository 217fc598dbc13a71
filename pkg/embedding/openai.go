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

package embedding

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/patterncore/pattern/pkg/config"
	"github.com/patterncore/pattern/pkg/perr"
)

// OpenAIProvider adapts the official OpenAI SDK's embeddings endpoint.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
}

// dimensionsByModel mirrors the defaulting table the teacher's
// hand-rolled HTTP embedder keeps for the common OpenAI models, since
// the API response itself doesn't report a model's native dimension.
var dimensionsByModel = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// NewOpenAIProvider builds a provider from a resolved config.
func NewOpenAIProvider(cfg *config.EmbeddingConfig) (*OpenAIProvider, error) {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}

	dimension := cfg.Dimensions
	if dimension == 0 {
		if d, ok := dimensionsByModel[cfg.Model]; ok {
			dimension = d
		} else {
			dimension = 1536
		}
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: dimension,
	}, nil
}

func (p *OpenAIProvider) Dimension() int    { return p.dimension }
func (p *OpenAIProvider) ModelName() string { return p.model }
func (p *OpenAIProvider) Close() error      { return nil }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, perr.External("embedding.openai.embed", "openai embeddings request failed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, perr.External("embedding.openai.embed", "openai returned a mismatched embedding count", nil).
			With("requested", len(texts)).With("returned", len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}
