package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/logging"
)

// retrieveOverFetch is the candidate multiplier for retrieval paths: more
// candidates are scored than returned so score fusion can reorder them.
const retrieveOverFetch = 3

// Retriever is the ranking engine of the memory subsystem.
//
// It fuses similarity, recency, and importance into one ordered result
// list, exposes category/source/vector query modes, and formats results
// into a token-bounded context string.
//
// Failure semantics: every retrieval operation is best-effort. Internal
// errors are logged and degrade to empty results rather than propagating;
// retrieval never aborts an in-progress LLM turn.
type Retriever struct {
	storage *Storage
	config  RetrievalConfig
	counter TokenCounter
	logger  *slog.Logger
}

// NewRetriever creates a retriever over the given storage.
//
// Parameters:
//   - storage: Memory storage facade
//   - config: Scoring weights and sizing; nil means defaults
//   - counter: Token counter for context formatting; nil means the
//     4-characters-per-token heuristic
//   - logger: Diagnostics sink; nil means discard
//
// Returns the retriever, or an error if storage is nil.
func NewRetriever(storage *Storage, config *RetrievalConfig, counter TokenCounter, logger *slog.Logger) (*Retriever, error) {
	if storage == nil {
		return nil, NewMemoryError("NewRetriever", fmt.Errorf("%w: storage required", ErrValidation))
	}
	if config == nil {
		config = &DefaultConfig().Retrieval
	}
	if counter == nil {
		counter = HeuristicTokenCounter{}
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Retriever{
		storage: storage,
		config:  *config,
		counter: counter,
		logger:  logger,
	}, nil
}

// RecencyScore computes the time-decay score of an item created at
// createdAt, evaluated at now.
//
// The score is 1/(1 + hours(age)/24) clamped to [0, 1]: it decays
// monotonically with age, never reaches exactly 0, and an item created at
// "now" scores 1.0.
func RecencyScore(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	return clamp01(1 / (1 + age.Hours()/24))
}

// CombinedScore fuses similarity, recency, and importance into the ordering
// score, clamped to [0, 1].
//
// The weights are taken from the retriever's configuration; their sum is
// deliberately not constrained to 1.
func (r *Retriever) CombinedScore(similarity, recency float64, importance int) float64 {
	return clamp01(r.config.SimilarityWeight*similarity +
		r.config.RecencyWeight*recency +
		r.config.ImportanceWeight*(float64(importance)/5))
}

// RetrieveContext returns the memories most relevant to a query, ordered by
// combined score descending.
//
// Candidates are over-fetched (limit x3) via content search, scored, and
// truncated to the requested limit. Ties keep the underlying similarity
// order (stable sort).
func (r *Retriever) RetrieveContext(ctx context.Context, query string, opts ...SearchOption) []*MemoryItem {
	options := applySearchOptions(opts)

	items, err := r.storage.SearchByContent(ctx, query, searchOptionsFrom(overFetch(options, retrieveOverFetch))...)
	if err != nil {
		r.logger.Warn("retrieve context failed, returning empty", "error", err)
		return []*MemoryItem{}
	}

	return r.scoreSortTruncate(items, options.Limit)
}

// RetrieveByVector is RetrieveContext seeded by a raw vector instead of text.
func (r *Retriever) RetrieveByVector(ctx context.Context, vector []float64, opts ...SearchOption) []*MemoryItem {
	options := applySearchOptions(opts)

	items, err := r.storage.SearchByVector(ctx, vector, searchOptionsFrom(overFetch(options, retrieveOverFetch))...)
	if err != nil {
		r.logger.Warn("retrieve by vector failed, returning empty", "error", err)
		return []*MemoryItem{}
	}

	return r.scoreSortTruncate(items, options.Limit)
}

// RetrieveByCategory returns memories of one category.
//
// With a non-empty query the category's memories are re-ranked by
// RankResults; otherwise the listing is returned unranked, newest first.
func (r *Retriever) RetrieveByCategory(ctx context.Context, category Category, query string, opts ...ListOption) []*MemoryItem {
	items, err := r.storage.GetByCategory(ctx, category, opts...)
	if err != nil {
		r.logger.Warn("retrieve by category failed, returning empty",
			"category", category, "error", err)
		return []*MemoryItem{}
	}

	if query == "" {
		return items
	}
	return r.RankResults(ctx, items, query)
}

// RetrieveBySource returns memories by provenance.
//
// With a non-empty query the results are re-ranked by RankResults;
// otherwise the listing is returned unranked, newest first.
func (r *Retriever) RetrieveBySource(ctx context.Context, sourceType, sourceID, query string, opts ...ListOption) []*MemoryItem {
	items, err := r.storage.GetBySource(ctx, sourceType, sourceID, opts...)
	if err != nil {
		r.logger.Warn("retrieve by source failed, returning empty",
			"source_type", sourceType, "source_id", sourceID, "error", err)
		return []*MemoryItem{}
	}

	if query == "" {
		return items
	}
	return r.RankResults(ctx, items, query)
}

// RankResults re-ranks arbitrary memory items by combined score.
//
// When query is non-empty it is embedded once and cosine similarity is
// computed against each item's stored embedding; items lacking an embedding
// score 0 similarity. Recency and importance are always recomputed. The
// input slice is not mutated beyond its items' transient score fields.
func (r *Retriever) RankResults(ctx context.Context, items []*MemoryItem, query string) []*MemoryItem {
	if len(items) == 0 {
		return items
	}

	if query != "" {
		queryVector, err := r.storage.adapter.Embed(ctx, query)
		if err != nil {
			r.logger.Warn("query embedding failed during ranking, returning empty", "error", err)
			return []*MemoryItem{}
		}
		for _, item := range items {
			if len(item.Embedding) == 0 {
				item.Relevance = 0
				continue
			}
			item.Relevance = cosineSimilarity(queryVector, item.Embedding)
		}
	}

	ranked := make([]*MemoryItem, len(items))
	copy(ranked, items)
	return r.scoreSortTruncate(ranked, 0)
}

// FormatContextForLLM renders memory items into a single prompt-ready string.
//
// Each item renders as
// "{content} (Category: {category}) - Source: {source_type} {source_id} - {timestamp}"
// with the source and timestamp clauses omitted when absent. Items are
// joined with newlines and the result is truncated to tokenLimit tokens
// (0 means the configured maximum). Truncation may cut mid-item.
func (r *Retriever) FormatContextForLLM(items []*MemoryItem, tokenLimit int) string {
	if len(items) == 0 {
		return ""
	}
	if tokenLimit <= 0 {
		tokenLimit = r.config.MaxContextTokens
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		var b strings.Builder
		b.WriteString(item.Content)
		b.WriteString(fmt.Sprintf(" (Category: %s)", item.Category))
		if item.SourceType != "" || item.SourceID != "" {
			b.WriteString(fmt.Sprintf(" - Source: %s %s", item.SourceType, item.SourceID))
		}
		if !item.CreatedAt.IsZero() {
			b.WriteString(" - " + item.CreatedAt.Format(time.RFC3339))
		}
		lines = append(lines, b.String())
	}

	return truncateToTokens(strings.Join(lines, "\n"), tokenLimit, r.counter)
}

// scoreSortTruncate computes recency and combined scores for every item,
// sorts by combined score descending (stable), and bounds the result.
func (r *Retriever) scoreSortTruncate(items []*MemoryItem, limit int) []*MemoryItem {
	now := time.Now()
	for _, item := range items {
		item.RecencyScore = RecencyScore(item.CreatedAt, now)
		item.CombinedScore = r.CombinedScore(item.Relevance, item.RecencyScore, item.Importance)
	}
	sortByCombinedScore(items)
	return truncateItems(items, limit)
}

// searchOptionsFrom converts resolved options back into functional options
// for the storage search API.
func searchOptionsFrom(opts *SearchOptions) []SearchOption {
	return []SearchOption{
		WithLimit(opts.Limit),
		WithMinScore(opts.MinScore),
		WithFilters(opts.Filters),
	}
}

// cosineSimilarity computes cosine similarity between two vectors, clamped
// to [0, 1]. Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return clamp01(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
