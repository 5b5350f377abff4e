// Package metastore provides interfaces and types for structured memory
// metadata storage backends.
//
// It defines the MetadataStore interface that all metadata implementations
// must satisfy, along with the record type and listing options.
package metastore

import (
	"context"
	"time"
)

// Record is the structured side of a memory item.
//
// The text payload and its embedding live in the vector index; the metadata
// store holds everything used for filtered listing, counting, and ranking
// inputs (category, provenance, importance, timestamps).
type Record struct {
	// ID is the unique identifier of the memory, shared with the vector index.
	ID string

	// Category is the memory category (conversation, document, web, ...).
	Category string

	// SourceType is the optional provenance type (e.g. "document").
	SourceType string

	// SourceID is the optional provenance identifier.
	SourceID string

	// Importance is the caller-assigned ranking input (1-5).
	Importance int

	// Metadata contains additional structured information.
	Metadata map[string]interface{}

	// CreatedAt is when the record was created. Set once, never mutated.
	CreatedAt time.Time

	// UpdatedAt is when the record was last updated.
	UpdatedAt time.Time
}

// ListOptions contains filters and pagination for listing operations.
type ListOptions struct {
	// Category restricts results to a single category.
	Category string

	// SourceType restricts results to a provenance type.
	SourceType string

	// SourceID restricts results to a provenance identifier.
	SourceID string

	// Limit sets the maximum number of results to return.
	Limit int

	// Offset sets the number of results to skip (for pagination).
	Offset int
}

// MetadataStore defines the interface for metadata storage backends.
//
// All implementations (SQLite, PostgreSQL, MySQL) must implement this
// interface. Read operations that miss return (nil, nil) rather than an
// error, matching the convention that "not found" is a logical outcome.
type MetadataStore interface {
	// Insert inserts a record.
	Insert(ctx context.Context, record *Record) error

	// InsertBatch inserts multiple records in one operation.
	InsertBatch(ctx context.Context, records []*Record) error

	// Get retrieves a record by ID. Returns (nil, nil) if absent.
	Get(ctx context.Context, id string) (*Record, error)

	// Update applies field updates to a record and returns the updated record.
	//
	// Recognized keys: "category", "source_type", "source_id", "importance".
	// Any other key is merged into the record's metadata map. Returns
	// (nil, nil) if no record with the given ID exists.
	Update(ctx context.Context, id string, fields map[string]interface{}) (*Record, error)

	// Delete removes a record by ID. Idempotent; reports whether a record existed.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns records matching the options, newest first.
	List(ctx context.Context, opts *ListOptions) ([]*Record, error)

	// Count returns the number of records matching the options.
	Count(ctx context.Context, opts *ListOptions) (int, error)

	// CountByCategory returns per-category record counts.
	CountByCategory(ctx context.Context) (map[string]int, error)

	// Backup writes a backup of the store to the given path.
	Backup(ctx context.Context, path string) error

	// Restore replaces the store contents from a backup at the given path.
	Restore(ctx context.Context, path string) error

	// Optimize performs backend-specific maintenance.
	Optimize(ctx context.Context) error

	// Close closes the store and releases resources.
	Close() error
}
