package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/embedder"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex"
)

// embeddingModelKey is the metadata key holding the identifier of the model
// that produced a stored embedding.
const embeddingModelKey = "embedding_model"

// VectorAdapter wraps an embedding provider and a vector index behind a
// text-oriented API.
//
// Callers hand it raw text; the adapter embeds it, stamps the embedding
// model identifier into the record metadata, and persists the result. All
// operations are visible immediately after return.
type VectorAdapter struct {
	provider embedder.Provider
	index    vectorindex.VectorIndex
}

// NewVectorAdapter creates a vector store adapter.
//
// Parameters:
//   - provider: Embedding provider used for all text-to-vector conversion
//   - index: Vector index used for persistence and similarity search
//
// Returns the adapter, or an error if either collaborator is nil.
func NewVectorAdapter(provider embedder.Provider, index vectorindex.VectorIndex) (*VectorAdapter, error) {
	if provider == nil {
		return nil, NewMemoryError("NewVectorAdapter", fmt.Errorf("%w: embedding provider required", ErrValidation))
	}
	if index == nil {
		return nil, NewMemoryError("NewVectorAdapter", fmt.Errorf("%w: vector index required", ErrValidation))
	}
	return &VectorAdapter{
		provider: provider,
		index:    index,
	}, nil
}

// StoreText embeds text and persists it to the vector index.
//
// The embedding model identifier is attached to the record metadata.
// Fails with ErrEmbedding if embedding generation fails; on success returns
// the stored record echo.
func (a *VectorAdapter) StoreText(ctx context.Context, id, text string, metadata map[string]interface{}) (*vectorindex.Record, error) {
	vector, err := a.provider.Embed(ctx, text)
	if err != nil {
		return nil, NewMemoryError("StoreText", fmt.Errorf("%w: %v", ErrEmbedding, err))
	}

	record := &vectorindex.Record{
		ID:        id,
		Vector:    vector,
		Text:      text,
		Metadata:  a.stampModel(metadata),
		CreatedAt: time.Now(),
	}

	if err := a.index.Upsert(ctx, record); err != nil {
		return nil, NewMemoryError("StoreText", fmt.Errorf("%w: %v", ErrStore, err))
	}

	return record, nil
}

// BatchStoreText embeds and persists N texts in one round trip.
//
// Inputs must have equal length or the call fails with ErrValidation.
// Embeddings are generated as a single batched provider call.
func (a *VectorAdapter) BatchStoreText(ctx context.Context, ids, texts []string, metadatas []map[string]interface{}) ([]*vectorindex.Record, error) {
	if len(ids) != len(texts) || (metadatas != nil && len(metadatas) != len(texts)) {
		return nil, NewMemoryError("BatchStoreText", fmt.Errorf("%w: mismatched batch lengths", ErrValidation))
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := a.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, NewMemoryError("BatchStoreText", fmt.Errorf("%w: %v", ErrEmbedding, err))
	}

	now := time.Now()
	records := make([]*vectorindex.Record, len(texts))
	for i := range texts {
		var metadata map[string]interface{}
		if metadatas != nil {
			metadata = metadatas[i]
		}
		records[i] = &vectorindex.Record{
			ID:        ids[i],
			Vector:    vectors[i],
			Text:      texts[i],
			Metadata:  a.stampModel(metadata),
			CreatedAt: now,
		}
	}

	if err := a.index.UpsertBatch(ctx, records); err != nil {
		return nil, NewMemoryError("BatchStoreText", fmt.Errorf("%w: %v", ErrStore, err))
	}

	return records, nil
}

// UpdateVector updates a stored record's text and/or metadata.
//
// At least one of text/metadata must be supplied (ErrValidation otherwise).
// Supplying text regenerates the embedding. Returns ErrNotFound when no
// record with the given id exists.
func (a *VectorAdapter) UpdateVector(ctx context.Context, id, text string, metadata map[string]interface{}) error {
	if text == "" && metadata == nil {
		return NewMemoryError("UpdateVector", fmt.Errorf("%w: text or metadata required", ErrValidation))
	}

	existing, err := a.index.Get(ctx, id)
	if err != nil {
		return NewMemoryError("UpdateVector", fmt.Errorf("%w: %v", ErrStore, err))
	}
	if existing == nil {
		return NewMemoryError("UpdateVector", ErrNotFound)
	}

	record := &vectorindex.Record{
		ID:        id,
		Vector:    existing.Vector,
		Text:      existing.Text,
		Metadata:  existing.Metadata,
		CreatedAt: existing.CreatedAt,
	}

	if text != "" {
		vector, err := a.provider.Embed(ctx, text)
		if err != nil {
			return NewMemoryError("UpdateVector", fmt.Errorf("%w: %v", ErrEmbedding, err))
		}
		record.Text = text
		record.Vector = vector
	}

	if metadata != nil {
		record.Metadata = a.stampModel(metadata)
	}

	if err := a.index.Upsert(ctx, record); err != nil {
		return NewMemoryError("UpdateVector", fmt.Errorf("%w: %v", ErrStore, err))
	}

	return nil
}

// DeleteVector removes a record by id. Idempotent; reports whether a record
// existed.
func (a *VectorAdapter) DeleteVector(ctx context.Context, id string) (bool, error) {
	existed, err := a.index.Delete(ctx, id)
	if err != nil {
		return false, NewMemoryError("DeleteVector", fmt.Errorf("%w: %v", ErrStore, err))
	}
	return existed, nil
}

// SearchByText embeds the query text and performs similarity search.
func (a *VectorAdapter) SearchByText(ctx context.Context, query string, opts *SearchOptions) ([]*vectorindex.Hit, error) {
	vector, err := a.provider.Embed(ctx, query)
	if err != nil {
		return nil, NewMemoryError("SearchByText", fmt.Errorf("%w: %v", ErrEmbedding, err))
	}
	return a.SearchByVector(ctx, vector, opts)
}

// SearchByVector performs similarity search with a caller-supplied vector.
func (a *VectorAdapter) SearchByVector(ctx context.Context, vector []float64, opts *SearchOptions) ([]*vectorindex.Hit, error) {
	if opts == nil {
		opts = applySearchOptions(nil)
	}

	hits, err := a.index.Search(ctx, vector, &vectorindex.SearchOptions{
		Limit:    opts.Limit,
		MinScore: opts.MinScore,
		Filters:  opts.Filters,
	})
	if err != nil {
		return nil, NewMemoryError("SearchByVector", fmt.Errorf("%w: %v", ErrStore, err))
	}

	return hits, nil
}

// GetVector retrieves a record by id. Returns (nil, nil) if absent.
func (a *VectorAdapter) GetVector(ctx context.Context, id string) (*vectorindex.Record, error) {
	record, err := a.index.Get(ctx, id)
	if err != nil {
		return nil, NewMemoryError("GetVector", fmt.Errorf("%w: %v", ErrStore, err))
	}
	return record, nil
}

// CountVectors returns the number of records matching the filters.
func (a *VectorAdapter) CountVectors(ctx context.Context, filters map[string]interface{}) (int, error) {
	count, err := a.index.Count(ctx, filters)
	if err != nil {
		return 0, NewMemoryError("CountVectors", fmt.Errorf("%w: %v", ErrStore, err))
	}
	return count, nil
}

// Model returns the embedding model identifier of the wrapped provider.
func (a *VectorAdapter) Model() string {
	return a.provider.Model()
}

// Embed converts text to a vector using the wrapped provider.
//
// Exposed for ranking paths that need a query embedding without a store
// round trip.
func (a *VectorAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	vector, err := a.provider.Embed(ctx, text)
	if err != nil {
		return nil, NewMemoryError("Embed", fmt.Errorf("%w: %v", ErrEmbedding, err))
	}
	return vector, nil
}

// Backup forwards to the underlying index.
func (a *VectorAdapter) Backup(ctx context.Context, path string) error {
	return NewMemoryError("Backup", a.index.Backup(ctx, path))
}

// Restore forwards to the underlying index.
func (a *VectorAdapter) Restore(ctx context.Context, path string) error {
	return NewMemoryError("Restore", a.index.Restore(ctx, path))
}

// Optimize forwards to the underlying index.
func (a *VectorAdapter) Optimize(ctx context.Context) error {
	return NewMemoryError("Optimize", a.index.Optimize(ctx))
}

// Close closes the embedding provider and the vector index.
func (a *VectorAdapter) Close() error {
	perr := a.provider.Close()
	ierr := a.index.Close()
	if perr != nil {
		return perr
	}
	return ierr
}

// stampModel copies metadata and attaches the embedding model identifier.
func (a *VectorAdapter) stampModel(metadata map[string]interface{}) map[string]interface{} {
	stamped := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		stamped[k] = v
	}
	stamped[embeddingModelKey] = a.provider.Model()
	return stamped
}
