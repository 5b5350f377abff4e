// Package vectorindex provides interfaces and types for vector index backends.
//
// It defines the VectorIndex interface that all index implementations must satisfy,
// along with record types and search options.
package vectorindex

import (
	"context"
	"time"
)

// Record is a single entry in a vector index.
type Record struct {
	// ID is the unique identifier of the record.
	ID string

	// Vector is the embedding for similarity search.
	Vector []float64

	// Text is the raw text the vector was generated from.
	Text string

	// Metadata contains additional structured information used for filtering.
	Metadata map[string]interface{}

	// CreatedAt is when the record was first stored.
	CreatedAt time.Time
}

// Hit is a single search result with its similarity score.
type Hit struct {
	// ID is the identifier of the matching record.
	ID string

	// Score is the cosine similarity to the query vector (0.0-1.0 after clamping).
	Score float64

	// Text is the stored text of the matching record.
	Text string

	// Metadata is the stored metadata of the matching record.
	Metadata map[string]interface{}
}

// SearchOptions contains options for similarity search.
type SearchOptions struct {
	// Limit sets the maximum number of results to return.
	Limit int

	// MinScore drops results whose similarity is below this value.
	MinScore float64

	// Filters restricts results to records whose metadata matches every
	// key/value pair (equality on the string rendering of the value).
	Filters map[string]interface{}
}

// VectorIndex defines the interface for vector index backends.
//
// All index implementations (SQLite, chromem) must implement this interface.
// Read operations that miss return (nil, nil) rather than an error, matching
// the convention that "not found" is a logical outcome, not a failure.
type VectorIndex interface {
	// Upsert inserts a record, replacing any existing record with the same ID.
	Upsert(ctx context.Context, record *Record) error

	// UpsertBatch inserts multiple records in one operation.
	UpsertBatch(ctx context.Context, records []*Record) error

	// Get retrieves a record by ID. Returns (nil, nil) if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Delete removes a record by ID. Idempotent; reports whether a record existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Search performs similarity search against the query vector.
	//
	// Returns matching hits sorted by similarity (highest first).
	Search(ctx context.Context, vector []float64, opts *SearchOptions) ([]*Hit, error)

	// Count returns the number of records matching the filters.
	Count(ctx context.Context, filters map[string]interface{}) (int, error)

	// Backup writes a backup of the index to the given path.
	Backup(ctx context.Context, path string) error

	// Restore replaces the index contents from a backup at the given path.
	Restore(ctx context.Context, path string) error

	// Optimize performs backend-specific maintenance (compaction, reindexing).
	Optimize(ctx context.Context) error

	// Close closes the index and releases resources.
	Close() error
}
