package memory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/sync/errgroup"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/logging"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex"
)

// hydrateConcurrency bounds the fan-out of per-hit hydration reads.
const hydrateConcurrency = 8

// StoreRequest describes one memory to be written by BatchStoreMemory.
type StoreRequest struct {
	// ID is the memory identifier. Generated when empty.
	ID string

	// Content is the text payload.
	Content string

	// Category classifies the memory.
	Category Category

	// SourceType is the optional provenance type.
	SourceType string

	// SourceID is the optional provenance identifier.
	SourceID string

	// Importance is the ranking input (1-5). Zero means default (1).
	Importance int

	// Metadata contains additional metadata about the memory.
	Metadata map[string]interface{}
}

// MetadataFilter restricts metadata-side queries.
type MetadataFilter struct {
	// Category restricts results to a single category.
	Category Category

	// SourceType restricts results to a provenance type.
	SourceType string

	// SourceID restricts results to a provenance identifier.
	SourceID string
}

// Storage unifies the vector store adapter and the metadata store into one
// memory-item abstraction.
//
// It is the sole sanctioned writer of both backing stores: a memory item
// exists only if both stores accepted it, and no other component may write
// to the underlying stores directly. Reads compose the vector text with the
// structured metadata; partial existence is treated as "not found".
type Storage struct {
	adapter    *VectorAdapter
	meta       metastore.MetadataStore
	categories []Category
	node       *snowflake.Node
	logger     *slog.Logger
}

// NewStorage creates a memory storage facade over the two backing stores.
//
// Parameters:
//   - adapter: Vector store adapter (sole embedding + vector index path)
//   - meta: Metadata store
//   - categories: Allowed category set; nil means the default set
//   - logger: Diagnostics sink; nil means discard
//
// Returns the storage, or an error if a collaborator is missing.
func NewStorage(adapter *VectorAdapter, meta metastore.MetadataStore, categories []Category, logger *slog.Logger) (*Storage, error) {
	if adapter == nil {
		return nil, NewMemoryError("NewStorage", fmt.Errorf("%w: vector adapter required", ErrValidation))
	}
	if meta == nil {
		return nil, NewMemoryError("NewStorage", fmt.Errorf("%w: metadata store required", ErrValidation))
	}
	if categories == nil {
		categories = DefaultCategories()
	}
	if logger == nil {
		logger = logging.Discard()
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, NewMemoryError("NewStorage", err)
	}

	return &Storage{
		adapter:    adapter,
		meta:       meta,
		categories: categories,
		node:       node,
		logger:     logger,
	}, nil
}

// StoreMemory persists a new memory item to both backing stores.
//
// The category is validated against the configured set. The vector side is
// written first, then the metadata side. If the metadata write fails after
// the vector write succeeded, the error is surfaced and a reconciliation
// entry is logged; no automatic vector rollback is attempted.
//
// Example:
//
//	item, err := storage.StoreMemory(ctx, "The user prefers dark roast",
//	    memory.CategoryConversation,
//	    memory.WithSource("conversation", "conv-17"),
//	    memory.WithImportance(3),
//	)
func (s *Storage) StoreMemory(ctx context.Context, content string, category Category, opts ...StoreOption) (*MemoryItem, error) {
	options := applyStoreOptions(opts)

	if err := validateCategory(category, s.categories); err != nil {
		return nil, NewMemoryError("StoreMemory", fmt.Errorf("%w: %q", err, category))
	}
	if options.Importance < 1 || options.Importance > 5 {
		return nil, NewMemoryError("StoreMemory", fmt.Errorf("%w: importance must be 1-5", ErrValidation))
	}

	id := options.ID
	if id == "" {
		id = s.node.Generate().String()
	}

	vectorMeta := vectorMetadata(category, options.SourceType, options.SourceID, options.Metadata)
	record, err := s.adapter.StoreText(ctx, id, content, vectorMeta)
	if err != nil {
		return nil, NewMemoryError("StoreMemory", err)
	}

	metaRecord := &metastore.Record{
		ID:         id,
		Category:   string(category),
		SourceType: options.SourceType,
		SourceID:   options.SourceID,
		Importance: options.Importance,
		Metadata:   options.Metadata,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.CreatedAt,
	}

	if err := s.meta.Insert(ctx, metaRecord); err != nil {
		// The vector side is written but the metadata side is not. Log a
		// reconciliation entry so an operator or retry policy can repair the
		// gap with DeleteMemory or a retried insert.
		s.logger.Error("metadata write failed after vector write, reconciliation required",
			"id", id, "category", category, "error", err)
		return nil, NewMemoryError("StoreMemory", fmt.Errorf("%w: metadata insert: %v", ErrStore, err))
	}

	return composeItem(metaRecord, record), nil
}

// BatchStoreMemory persists multiple memory items in one batched pass.
//
// Every request's category is validated before any write; an invalid
// category anywhere in the batch fails the whole call with zero writes.
// Embeddings are generated in a single provider round trip, then one
// batched vector write and one batched metadata write follow.
func (s *Storage) BatchStoreMemory(ctx context.Context, requests []*StoreRequest) ([]*MemoryItem, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	for i, req := range requests {
		if err := validateCategory(req.Category, s.categories); err != nil {
			return nil, NewMemoryError("BatchStoreMemory",
				fmt.Errorf("%w: %q at index %d", err, req.Category, i))
		}
		if req.Importance < 0 || req.Importance > 5 {
			return nil, NewMemoryError("BatchStoreMemory",
				fmt.Errorf("%w: importance must be 1-5 at index %d", ErrValidation, i))
		}
	}

	ids := make([]string, len(requests))
	texts := make([]string, len(requests))
	metadatas := make([]map[string]interface{}, len(requests))
	for i, req := range requests {
		id := req.ID
		if id == "" {
			id = s.node.Generate().String()
		}
		ids[i] = id
		texts[i] = req.Content
		metadatas[i] = vectorMetadata(req.Category, req.SourceType, req.SourceID, req.Metadata)
	}

	records, err := s.adapter.BatchStoreText(ctx, ids, texts, metadatas)
	if err != nil {
		return nil, NewMemoryError("BatchStoreMemory", err)
	}

	metaRecords := make([]*metastore.Record, len(requests))
	for i, req := range requests {
		importance := req.Importance
		if importance == 0 {
			importance = 1
		}
		metaRecords[i] = &metastore.Record{
			ID:         ids[i],
			Category:   string(req.Category),
			SourceType: req.SourceType,
			SourceID:   req.SourceID,
			Importance: importance,
			Metadata:   req.Metadata,
			CreatedAt:  records[i].CreatedAt,
			UpdatedAt:  records[i].CreatedAt,
		}
	}

	if err := s.meta.InsertBatch(ctx, metaRecords); err != nil {
		s.logger.Error("batch metadata write failed after vector write, reconciliation required",
			"count", len(ids), "error", err)
		return nil, NewMemoryError("BatchStoreMemory", fmt.Errorf("%w: metadata insert: %v", ErrStore, err))
	}

	items := make([]*MemoryItem, len(requests))
	for i := range requests {
		items[i] = composeItem(metaRecords[i], records[i])
	}
	return items, nil
}

// GetMemory retrieves a memory item by id, composing both stores.
//
// Returns (nil, nil) if either store is missing the id; partial existence
// is treated as "not found".
func (s *Storage) GetMemory(ctx context.Context, id string) (*MemoryItem, error) {
	var record *vectorindex.Record
	var metaRecord *metastore.Record

	// The two reads are independent; fan out and join before composing.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		record, err = s.adapter.GetVector(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		metaRecord, err = s.meta.Get(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, NewMemoryError("GetMemory", err)
	}

	if record == nil || metaRecord == nil {
		return nil, nil
	}

	return composeItem(metaRecord, record), nil
}

// UpdateMemory applies updates to a memory item.
//
// If updates contains "content", the embedding is regenerated; all other
// keys are forwarded to the metadata store (recognized structured fields or
// open metadata). Returns (nil, nil) when the metadata store reports the id
// as absent.
func (s *Storage) UpdateMemory(ctx context.Context, id string, updates map[string]interface{}) (*MemoryItem, error) {
	if len(updates) == 0 {
		return nil, NewMemoryError("UpdateMemory", fmt.Errorf("%w: no updates supplied", ErrValidation))
	}

	metaUpdates := make(map[string]interface{}, len(updates))
	content := ""
	for key, value := range updates {
		if key == "content" {
			text, ok := value.(string)
			if !ok {
				return nil, NewMemoryError("UpdateMemory", fmt.Errorf("%w: content must be a string", ErrValidation))
			}
			content = text
			continue
		}
		if key == "category" {
			category, ok := value.(string)
			if !ok {
				return nil, NewMemoryError("UpdateMemory", fmt.Errorf("%w: category must be a string", ErrValidation))
			}
			if err := validateCategory(Category(category), s.categories); err != nil {
				return nil, NewMemoryError("UpdateMemory", fmt.Errorf("%w: %q", err, category))
			}
		}
		metaUpdates[key] = value
	}

	if content != "" {
		if err := s.adapter.UpdateVector(ctx, id, content, nil); err != nil {
			return nil, NewMemoryError("UpdateMemory", err)
		}
	}

	metaRecord, err := s.meta.Update(ctx, id, metaUpdates)
	if err != nil {
		if content != "" {
			s.logger.Error("metadata update failed after vector update, reconciliation required",
				"id", id, "error", err)
		}
		return nil, NewMemoryError("UpdateMemory", fmt.Errorf("%w: metadata update: %v", ErrStore, err))
	}
	if metaRecord == nil {
		return nil, nil
	}

	record, err := s.adapter.GetVector(ctx, id)
	if err != nil {
		return nil, NewMemoryError("UpdateMemory", err)
	}
	if record == nil {
		return nil, nil
	}

	return composeItem(metaRecord, record), nil
}

// DeleteMemory removes a memory item from both stores.
//
// Returns true only when both deletions succeeded and at least one side
// held the record. A failure on either side is surfaced so the caller can
// retry the other side.
func (s *Storage) DeleteMemory(ctx context.Context, id string) (bool, error) {
	vectorExisted, err := s.adapter.DeleteVector(ctx, id)
	if err != nil {
		return false, NewMemoryError("DeleteMemory", err)
	}

	metaExisted, err := s.meta.Delete(ctx, id)
	if err != nil {
		if vectorExisted {
			s.logger.Error("metadata delete failed after vector delete, reconciliation required",
				"id", id, "error", err)
		}
		return false, NewMemoryError("DeleteMemory", fmt.Errorf("%w: metadata delete: %v", ErrStore, err))
	}

	return vectorExisted && metaExisted, nil
}

// SearchByContent performs semantic search over memory content.
//
// The vector store is over-fetched (limit x2) to absorb post-filter
// attrition, each hit is hydrated into a full memory item, the raw
// similarity is attached as Relevance, and the result is truncated to the
// requested limit.
func (s *Storage) SearchByContent(ctx context.Context, query string, opts ...SearchOption) ([]*MemoryItem, error) {
	options := applySearchOptions(opts)

	hits, err := s.adapter.SearchByText(ctx, query, overFetch(options, 2))
	if err != nil {
		return nil, NewMemoryError("SearchByContent", err)
	}

	items, err := s.hydrateHits(ctx, hits)
	if err != nil {
		return nil, NewMemoryError("SearchByContent", err)
	}

	return truncateItems(items, options.Limit), nil
}

// SearchByVector performs semantic search with a caller-supplied vector.
//
// Identical to SearchByContent but seeded by a raw vector.
func (s *Storage) SearchByVector(ctx context.Context, vector []float64, opts ...SearchOption) ([]*MemoryItem, error) {
	options := applySearchOptions(opts)

	hits, err := s.adapter.SearchByVector(ctx, vector, overFetch(options, 2))
	if err != nil {
		return nil, NewMemoryError("SearchByVector", err)
	}

	items, err := s.hydrateHits(ctx, hits)
	if err != nil {
		return nil, NewMemoryError("SearchByVector", err)
	}

	return truncateItems(items, options.Limit), nil
}

// SearchByMetadata lists memory items by structured filters, unranked.
func (s *Storage) SearchByMetadata(ctx context.Context, filter *MetadataFilter, opts ...ListOption) ([]*MemoryItem, error) {
	options := applyListOptions(opts)
	if filter == nil {
		filter = &MetadataFilter{}
	}

	metaRecords, err := s.meta.List(ctx, &metastore.ListOptions{
		Category:   string(filter.Category),
		SourceType: filter.SourceType,
		SourceID:   filter.SourceID,
		Limit:      options.Limit,
		Offset:     options.Offset,
	})
	if err != nil {
		return nil, NewMemoryError("SearchByMetadata", fmt.Errorf("%w: %v", ErrStore, err))
	}

	return s.hydrateRecords(ctx, metaRecords)
}

// HybridSearch unions semantic and structured search results.
//
// Vector-store hits take precedence on id collision (first-seen-wins
// dedup); the merged list is sorted by Relevance descending. The structured
// side is filtered by any "category", "source_type", and "source_id" keys
// present in the search filters.
func (s *Storage) HybridSearch(ctx context.Context, query string, opts ...SearchOption) ([]*MemoryItem, error) {
	options := applySearchOptions(opts)

	var contentItems, metaItems []*MemoryItem

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contentItems, err = s.SearchByContent(gctx, query, opts...)
		return err
	})
	g.Go(func() error {
		var err error
		metaItems, err = s.SearchByMetadata(gctx, metadataFilterFromMap(options.Filters),
			WithListLimit(options.Limit))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, NewMemoryError("HybridSearch", err)
	}

	seen := make(map[string]bool, len(contentItems)+len(metaItems))
	merged := make([]*MemoryItem, 0, len(contentItems)+len(metaItems))
	for _, item := range contentItems {
		if !seen[item.ID] {
			seen[item.ID] = true
			merged = append(merged, item)
		}
	}
	for _, item := range metaItems {
		if !seen[item.ID] {
			seen[item.ID] = true
			merged = append(merged, item)
		}
	}

	sortByRelevance(merged)
	return truncateItems(merged, options.Limit), nil
}

// GetByCategory lists memory items of a single category, newest first.
func (s *Storage) GetByCategory(ctx context.Context, category Category, opts ...ListOption) ([]*MemoryItem, error) {
	return s.SearchByMetadata(ctx, &MetadataFilter{Category: category}, opts...)
}

// GetBySource lists memory items by provenance, newest first.
func (s *Storage) GetBySource(ctx context.Context, sourceType, sourceID string, opts ...ListOption) ([]*MemoryItem, error) {
	return s.SearchByMetadata(ctx, &MetadataFilter{SourceType: sourceType, SourceID: sourceID}, opts...)
}

// GetRecentMemories lists memory items ordered by creation time descending.
func (s *Storage) GetRecentMemories(ctx context.Context, opts ...ListOption) ([]*MemoryItem, error) {
	return s.SearchByMetadata(ctx, nil, opts...)
}

// CountMemories returns the total number of stored memory items.
func (s *Storage) CountMemories(ctx context.Context) (int, error) {
	count, err := s.meta.Count(ctx, nil)
	if err != nil {
		return 0, NewMemoryError("CountMemories", fmt.Errorf("%w: %v", ErrStore, err))
	}
	return count, nil
}

// CountByCategory returns per-category memory counts.
func (s *Storage) CountByCategory(ctx context.Context) (map[string]int, error) {
	counts, err := s.meta.CountByCategory(ctx)
	if err != nil {
		return nil, NewMemoryError("CountByCategory", fmt.Errorf("%w: %v", ErrStore, err))
	}
	return counts, nil
}

// CreateBackup backs up both stores under the given path prefix.
//
// The vector index is written to path+".vector" and the metadata store to
// path+".meta". Succeeds only if both backups succeed.
func (s *Storage) CreateBackup(ctx context.Context, path string) error {
	if err := s.adapter.Backup(ctx, path+".vector"); err != nil {
		return NewMemoryError("CreateBackup", err)
	}
	if err := s.meta.Backup(ctx, path+".meta"); err != nil {
		return NewMemoryError("CreateBackup", fmt.Errorf("%w: %v", ErrStore, err))
	}
	return nil
}

// RestoreFromBackup restores both stores from the given path prefix.
//
// Succeeds only if both restores succeed.
func (s *Storage) RestoreFromBackup(ctx context.Context, path string) error {
	if err := s.adapter.Restore(ctx, path+".vector"); err != nil {
		return NewMemoryError("RestoreFromBackup", err)
	}
	if err := s.meta.Restore(ctx, path+".meta"); err != nil {
		return NewMemoryError("RestoreFromBackup", fmt.Errorf("%w: %v", ErrStore, err))
	}
	return nil
}

// Optimize runs maintenance on both stores. Succeeds only if both succeed.
func (s *Storage) Optimize(ctx context.Context) error {
	if err := s.adapter.Optimize(ctx); err != nil {
		return NewMemoryError("Optimize", err)
	}
	if err := s.meta.Optimize(ctx); err != nil {
		return NewMemoryError("Optimize", fmt.Errorf("%w: %v", ErrStore, err))
	}
	return nil
}

// Close closes both backing stores.
func (s *Storage) Close() error {
	aerr := s.adapter.Close()
	merr := s.meta.Close()
	if aerr != nil {
		return aerr
	}
	return merr
}

// hydrateHits composes vector hits into full memory items.
//
// Hits whose metadata record is missing are dropped (partial existence is
// "not found"). Hydration reads fan out with bounded concurrency; input
// order is preserved.
func (s *Storage) hydrateHits(ctx context.Context, hits []*vectorindex.Hit) ([]*MemoryItem, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	slots := make([]*MemoryItem, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for i, hit := range hits {
		i, hit := i, hit
		g.Go(func() error {
			item, err := s.GetMemory(gctx, hit.ID)
			if err != nil {
				return err
			}
			if item != nil {
				item.Relevance = hit.Score
				slots[i] = item
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]*MemoryItem, 0, len(hits))
	for _, item := range slots {
		if item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

// hydrateRecords composes metadata records into full memory items.
func (s *Storage) hydrateRecords(ctx context.Context, metaRecords []*metastore.Record) ([]*MemoryItem, error) {
	if len(metaRecords) == 0 {
		return nil, nil
	}

	slots := make([]*MemoryItem, len(metaRecords))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for i, metaRecord := range metaRecords {
		i, metaRecord := i, metaRecord
		g.Go(func() error {
			record, err := s.adapter.GetVector(gctx, metaRecord.ID)
			if err != nil {
				return err
			}
			if record != nil {
				slots[i] = composeItem(metaRecord, record)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]*MemoryItem, 0, len(metaRecords))
	for _, item := range slots {
		if item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}
