package memory

// StoreOption is a function type for configuring store operations.
//
// Options are applied using the functional options pattern, allowing
// flexible configuration without requiring all parameters.
type StoreOption func(*StoreOptions)

// StoreOptions contains configuration options for store operations.
type StoreOptions struct {
	// ID is the memory identifier. Generated when empty.
	ID string

	// SourceType is the optional provenance type (e.g. "document").
	SourceType string

	// SourceID is the optional provenance identifier.
	SourceID string

	// Importance is the ranking input (1-5). Default: 1.
	Importance int

	// Metadata contains additional metadata about the memory.
	Metadata map[string]interface{}
}

// WithID supplies an explicit memory identifier.
//
// Example:
//
//	item, _ := storage.StoreMemory(ctx, "content", memory.CategoryDocument,
//	    memory.WithID("doc-42-chunk-3"))
func WithID(id string) StoreOption {
	return func(opts *StoreOptions) {
		opts.ID = id
	}
}

// WithSource attaches a provenance pointer to the memory.
//
// Example:
//
//	item, _ := storage.StoreMemory(ctx, "content", memory.CategoryDocument,
//	    memory.WithSource("document", "doc-42"))
func WithSource(sourceType, sourceID string) StoreOption {
	return func(opts *StoreOptions) {
		opts.SourceType = sourceType
		opts.SourceID = sourceID
	}
}

// WithImportance sets the ranking importance (1-5).
//
// Example:
//
//	item, _ := storage.StoreMemory(ctx, "content", memory.CategoryImportant,
//	    memory.WithImportance(5))
func WithImportance(importance int) StoreOption {
	return func(opts *StoreOptions) {
		opts.Importance = importance
	}
}

// WithMetadata sets open metadata for store operations.
//
// Example:
//
//	item, _ := storage.StoreMemory(ctx, "content", memory.CategoryWeb,
//	    memory.WithMetadata(map[string]interface{}{"url": "https://example.com"}))
func WithMetadata(metadata map[string]interface{}) StoreOption {
	return func(opts *StoreOptions) {
		opts.Metadata = metadata
	}
}

// SearchOption is a function type for configuring search and retrieval
// operations.
type SearchOption func(*SearchOptions)

// SearchOptions contains configuration options for search and retrieval
// operations.
type SearchOptions struct {
	// Limit sets the maximum number of results to return.
	// Default: 10
	Limit int

	// MinScore drops results whose similarity is below this value.
	// Default: 0.0 (no minimum)
	MinScore float64

	// Filters provides metadata filters applied on the vector side.
	Filters map[string]interface{}
}

// WithLimit sets the maximum number of results for search operations.
//
// Example:
//
//	items, _ := storage.SearchByContent(ctx, "query", memory.WithLimit(20))
func WithLimit(limit int) SearchOption {
	return func(opts *SearchOptions) {
		opts.Limit = limit
	}
}

// WithMinScore sets the minimum similarity score for search results.
//
// Only results with similarity scores >= minScore are returned.
//
// Example:
//
//	items, _ := storage.SearchByContent(ctx, "query", memory.WithMinScore(0.7))
func WithMinScore(score float64) SearchOption {
	return func(opts *SearchOptions) {
		opts.MinScore = score
	}
}

// WithFilters sets metadata filters for search operations.
//
// Example:
//
//	items, _ := storage.SearchByContent(ctx, "query",
//	    memory.WithFilters(map[string]interface{}{"category": "document"}))
func WithFilters(filters map[string]interface{}) SearchOption {
	return func(opts *SearchOptions) {
		opts.Filters = filters
	}
}

// ListOption is a function type for configuring listing operations.
type ListOption func(*ListOptions)

// ListOptions contains pagination options for listing operations.
type ListOptions struct {
	// Limit sets the maximum number of results to return.
	// Default: 100
	Limit int

	// Offset sets the number of results to skip (for pagination).
	// Default: 0
	Offset int
}

// WithListLimit sets the maximum number of results for listing operations.
//
// Example:
//
//	items, _ := storage.GetByCategory(ctx, memory.CategoryDocument,
//	    memory.WithListLimit(50))
func WithListLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset sets the offset for listing operations (for pagination).
//
// Example:
//
//	items, _ := storage.GetByCategory(ctx, memory.CategoryDocument,
//	    memory.WithListLimit(50), memory.WithOffset(50))
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// applyStoreOptions applies store options to create StoreOptions.
func applyStoreOptions(opts []StoreOption) *StoreOptions {
	options := &StoreOptions{
		Importance: 1,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applySearchOptions applies search options to create SearchOptions.
func applySearchOptions(opts []SearchOption) *SearchOptions {
	options := &SearchOptions{
		Limit:    10,
		MinScore: 0.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// applyListOptions applies listing options to create ListOptions.
func applyListOptions(opts []ListOption) *ListOptions {
	options := &ListOptions{
		Limit:  100,
		Offset: 0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
