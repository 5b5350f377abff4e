package memory

import (
	"sort"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex"
)

// composeItem joins the two store-side representations into a memory item.
//
// The metadata record is authoritative for category, provenance, importance,
// and timestamps; the vector record supplies content and embedding.
func composeItem(metaRecord *metastore.Record, record *vectorindex.Record) *MemoryItem {
	return &MemoryItem{
		ID:         metaRecord.ID,
		Content:    record.Text,
		Category:   Category(metaRecord.Category),
		SourceType: metaRecord.SourceType,
		SourceID:   metaRecord.SourceID,
		Importance: metaRecord.Importance,
		Metadata:   metaRecord.Metadata,
		CreatedAt:  metaRecord.CreatedAt,
		Embedding:  record.Vector,
	}
}

// vectorMetadata builds the vector-side metadata for a write, mirroring the
// structured fields so vector searches can filter on them.
func vectorMetadata(category Category, sourceType, sourceID string, metadata map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(metadata)+3)
	for k, v := range metadata {
		merged[k] = v
	}
	merged["category"] = string(category)
	if sourceType != "" {
		merged["source_type"] = sourceType
	}
	if sourceID != "" {
		merged["source_id"] = sourceID
	}
	return merged
}

// metadataFilterFromMap extracts the structured filter fields from an open
// filter map.
func metadataFilterFromMap(filters map[string]interface{}) *MetadataFilter {
	filter := &MetadataFilter{}
	if filters == nil {
		return filter
	}
	if category, ok := filters["category"].(string); ok {
		filter.Category = Category(category)
	}
	if sourceType, ok := filters["source_type"].(string); ok {
		filter.SourceType = sourceType
	}
	if sourceID, ok := filters["source_id"].(string); ok {
		filter.SourceID = sourceID
	}
	return filter
}

// overFetch returns a copy of the search options with the limit multiplied,
// absorbing post-filter attrition in over-fetching search paths.
func overFetch(opts *SearchOptions, factor int) *SearchOptions {
	widened := *opts
	widened.Limit = opts.Limit * factor
	return &widened
}

// truncateItems bounds a result list to limit entries.
func truncateItems(items []*MemoryItem, limit int) []*MemoryItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

// sortByRelevance orders items by Relevance descending, preserving input
// order among equals.
func sortByRelevance(items []*MemoryItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Relevance > items[j].Relevance
	})
}

// sortByCombinedScore orders items by CombinedScore descending, preserving
// input order among equals.
func sortByCombinedScore(items []*MemoryItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CombinedScore > items[j].CombinedScore
	})
}
