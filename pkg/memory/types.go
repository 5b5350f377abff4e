package memory

import "time"

// Category classifies a memory item by the kind of content it holds.
type Category string

// Default memory categories. The active set is deployment-configurable via
// Config.Categories; the same set validates writes on both the vector and
// metadata side of every operation.
const (
	// CategoryConversation marks content extracted from conversations.
	CategoryConversation Category = "conversation"

	// CategoryDocument marks content extracted from uploaded documents.
	CategoryDocument Category = "document"

	// CategoryWeb marks content extracted from web pages.
	CategoryWeb Category = "web"

	// CategoryImportant marks content the user explicitly flagged.
	CategoryImportant Category = "important"

	// CategoryUserDefined marks content stored directly by the user.
	CategoryUserDefined Category = "user_defined"

	// CategorySearch marks content captured from search results.
	CategorySearch Category = "search"
)

// DefaultCategories returns the default category set.
func DefaultCategories() []Category {
	return []Category{
		CategoryConversation,
		CategoryDocument,
		CategoryWeb,
		CategoryImportant,
		CategoryUserDefined,
		CategorySearch,
	}
}

// MemoryItem is the atomic unit of recall.
//
// A memory item exists in two backing stores at once: its content and
// embedding live in the vector index, its category, provenance, and
// importance in the metadata store. Storage composes the two on read.
//
// The scoring fields (Relevance, RecencyScore, CombinedScore) are transient,
// query-dependent annotations set by search and retrieval operations; they
// are never persisted.
type MemoryItem struct {
	// ID is the opaque unique identifier, generated at creation, immutable.
	ID string `json:"id"`

	// Content is the text payload shown to the LLM on recall.
	Content string `json:"content"`

	// Category classifies the item; validated against the configured set
	// on every write.
	Category Category `json:"category"`

	// SourceType is the optional provenance type (e.g. "document").
	SourceType string `json:"source_type,omitempty"`

	// SourceID is the optional provenance identifier.
	SourceID string `json:"source_id,omitempty"`

	// Importance is the caller-assigned ranking input, 1-5, default 1.
	Importance int `json:"importance"`

	// Metadata is an open key/value map.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is set once at creation and feeds recency scoring.
	CreatedAt time.Time `json:"created_at"`

	// Embedding is the vector representation of Content. Owned by the
	// vector side; populated on reads that touch the vector index.
	Embedding []float64 `json:"-"`

	// Relevance is the raw similarity to the current query (0-1). Transient.
	Relevance float64 `json:"relevance,omitempty"`

	// RecencyScore is the time-decay score derived from CreatedAt. Transient.
	RecencyScore float64 `json:"recency_score,omitempty"`

	// CombinedScore is the weighted fusion used for ordering. Transient.
	CombinedScore float64 `json:"combined_score,omitempty"`
}

// ConversationContext is the per-conversation sliding window of memory items.
//
// It is process-local and transient: rebuilt from storage on first access
// per conversation, never persisted across restarts. No two items in the
// window share an id.
type ConversationContext struct {
	// ConversationID identifies the conversation this window belongs to.
	ConversationID string

	// Items is the ordered window, bounded by the configured window size.
	Items []*MemoryItem

	// UpdatedAt is when the window last changed.
	UpdatedAt time.Time
}

// validateCategory checks that category belongs to the allowed set.
func validateCategory(category Category, allowed []Category) error {
	for _, c := range allowed {
		if category == c {
			return nil
		}
	}
	return ErrInvalidCategory
}
