// Package mock provides a deterministic embedder for testing and offline use.
package mock

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder generates deterministic embeddings from a hash of the input text.
//
// The same text always produces the same unit vector, which makes similarity
// assertions reproducible without a network round trip.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder producing vectors of the given dimension.
// A dimension of 0 defaults to 384.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &Embedder{dimensions: dimensions}
}

// Embed creates a deterministic embedding from text.
func (m *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float64, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		// Linear congruential generator seeded by the text hash.
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float64(int64(seed)) / float64(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// EmbedBatch embeds each text independently.
func (m *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	embeddings := make([][]float64, len(texts))
	for i, text := range texts {
		embedding, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimensions returns the embedding size.
func (m *Embedder) Dimensions() int {
	return m.dimensions
}

// Model returns the mock model identifier.
func (m *Embedder) Model() string {
	return "mock-hash-v1"
}

// Close is a no-op.
func (m *Embedder) Close() error {
	return nil
}

// normalize converts the embedding to a unit vector.
func normalize(vec []float64) []float64 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
