package memory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/embedder/mock"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/memory"
	metasqlite "github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore/sqlite"
	vecsqlite "github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex/sqlite"
)

// newTestStorage builds a storage over the mock embedder and temp-dir
// SQLite stores.
func newTestStorage(t *testing.T) *memory.Storage {
	t.Helper()
	dir := t.TempDir()

	index, err := vecsqlite.NewClient(&vecsqlite.Config{
		DBPath: filepath.Join(dir, "vectors.db"),
	})
	require.NoError(t, err)

	meta, err := metasqlite.NewClient(&metasqlite.Config{
		DBPath: filepath.Join(dir, "meta.db"),
	})
	require.NoError(t, err)

	adapter, err := memory.NewVectorAdapter(mock.New(32), index)
	require.NoError(t, err)

	storage, err := memory.NewStorage(adapter, meta, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func newTestRetriever(t *testing.T, storage *memory.Storage) *memory.Retriever {
	t.Helper()
	retriever, err := memory.NewRetriever(storage, nil, nil, nil)
	require.NoError(t, err)
	return retriever
}

func TestStoreMemoryRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	item, err := storage.StoreMemory(ctx, "the user likes green tea",
		memory.CategoryConversation)
	require.NoError(t, err)
	require.NotEmpty(t, item.ID)

	got, err := storage.GetMemory(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "the user likes green tea", got.Content)
	assert.Equal(t, memory.CategoryConversation, got.Category)
	assert.Equal(t, 1, got.Importance, "importance defaults to 1")
	assert.NotEmpty(t, got.Embedding)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestStoreMemoryWithOptions(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	item, err := storage.StoreMemory(ctx, "passport expires in 2027",
		memory.CategoryImportant,
		memory.WithID("custom-id"),
		memory.WithSource("document", "doc-9"),
		memory.WithImportance(5),
		memory.WithMetadata(map[string]interface{}{"origin": "scan"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "custom-id", item.ID)

	got, err := storage.GetMemory(ctx, "custom-id")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "document", got.SourceType)
	assert.Equal(t, "doc-9", got.SourceID)
	assert.Equal(t, 5, got.Importance)
	assert.Equal(t, "scan", got.Metadata["origin"])
}

func TestStoreMemoryRejectsInvalidCategory(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.StoreMemory(context.Background(), "content", "nonsense")
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrInvalidCategory)
}

func TestGetMemoryMissingReturnsNil(t *testing.T) {
	storage := newTestStorage(t)

	got, err := storage.GetMemory(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDeleteMemoryIsIdempotent(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	item, err := storage.StoreMemory(ctx, "temporary", memory.CategoryUserDefined)
	require.NoError(t, err)

	deleted, err := storage.DeleteMemory(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = storage.DeleteMemory(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := storage.GetMemory(ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBatchStoreMemoryValidatesBeforeAnyWrite(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	_, err := storage.BatchStoreMemory(ctx, []*memory.StoreRequest{
		{Content: "fine", Category: memory.CategoryDocument},
		{Content: "broken", Category: "nonsense"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrInvalidCategory)

	count, err := storage.CountMemories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count, "invalid batch must perform zero writes")
}

func TestBatchStoreMemory(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	items, err := storage.BatchStoreMemory(ctx, []*memory.StoreRequest{
		{Content: "first", Category: memory.CategoryDocument},
		{Content: "second", Category: memory.CategoryWeb, Importance: 4},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].Importance, "importance defaults to 1")
	assert.Equal(t, 4, items[1].Importance)

	count, err := storage.CountMemories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpdateMemoryContentReembeds(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	item, err := storage.StoreMemory(ctx, "original content", memory.CategoryDocument)
	require.NoError(t, err)
	originalEmbedding := append([]float64(nil), item.Embedding...)

	updated, err := storage.UpdateMemory(ctx, item.ID, map[string]interface{}{
		"content":    "completely different content",
		"importance": 4,
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "completely different content", updated.Content)
	assert.Equal(t, 4, updated.Importance)
	assert.NotEqual(t, originalEmbedding, updated.Embedding, "content change regenerates the embedding")
}

func TestUpdateMemoryMissingReturnsNil(t *testing.T) {
	storage := newTestStorage(t)

	updated, err := storage.UpdateMemory(context.Background(), "absent",
		map[string]interface{}{"importance": 2})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestSearchByContentFindsStoredItem(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	stored, err := storage.StoreMemory(ctx, "the user prefers dark roast coffee",
		memory.CategoryConversation)
	require.NoError(t, err)
	_, err = storage.StoreMemory(ctx, "quarterly revenue grew by twelve percent",
		memory.CategoryDocument)
	require.NoError(t, err)

	// The mock embedder is deterministic, so the identical text scores 1.0.
	results, err := storage.SearchByContent(ctx, "the user prefers dark roast coffee",
		memory.WithLimit(2))
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, stored.ID, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Relevance, 1e-9)
}

func TestHybridSearchDeduplicatesVectorFirst(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	stored, err := storage.StoreMemory(ctx, "hybrid dedup target",
		memory.CategoryDocument)
	require.NoError(t, err)

	// The item matches both the semantic side (identical text) and the
	// structured side (category filter); it must come back exactly once,
	// carrying the vector side's relevance.
	results, err := storage.HybridSearch(ctx, "hybrid dedup target",
		memory.WithLimit(10),
		memory.WithFilters(map[string]interface{}{"category": "document"}),
	)
	require.NoError(t, err)

	occurrences := 0
	for _, item := range results {
		if item.ID == stored.ID {
			occurrences++
			assert.InDelta(t, 1.0, item.Relevance, 1e-9)
		}
	}
	assert.Equal(t, 1, occurrences)
}

func TestCategoryScenario(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	categories := []memory.Category{
		memory.CategoryDocument,
		memory.CategoryDocument,
		memory.CategoryWeb,
		memory.CategoryImportant,
		memory.CategoryDocument,
	}
	importances := []int{1, 3, 5, 2, 1}
	contents := []string{"alpha", "beta", "gamma", "delta", "epsilon"}

	for i := range categories {
		_, err := storage.StoreMemory(ctx, contents[i], categories[i],
			memory.WithImportance(importances[i]))
		require.NoError(t, err)
	}

	docs, err := storage.GetByCategory(ctx, memory.CategoryDocument,
		memory.WithListLimit(10))
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	for _, item := range docs {
		assert.Equal(t, memory.CategoryDocument, item.Category)
	}

	counts, err := storage.CountByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"document": 3, "web": 1, "important": 1}, counts)
}

func TestGetBySource(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	_, err := storage.StoreMemory(ctx, "chunk one", memory.CategoryDocument,
		memory.WithSource("document", "doc-1"))
	require.NoError(t, err)
	_, err = storage.StoreMemory(ctx, "chunk two", memory.CategoryDocument,
		memory.WithSource("document", "doc-1"))
	require.NoError(t, err)
	_, err = storage.StoreMemory(ctx, "other doc", memory.CategoryDocument,
		memory.WithSource("document", "doc-2"))
	require.NoError(t, err)

	items, err := storage.GetBySource(ctx, "document", "doc-1")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestGetRecentMemoriesNewestFirst(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	_, err := storage.StoreMemory(ctx, "older", memory.CategoryUserDefined)
	require.NoError(t, err)
	_, err = storage.StoreMemory(ctx, "newer", memory.CategoryUserDefined)
	require.NoError(t, err)

	items, err := storage.GetRecentMemories(ctx, memory.WithListLimit(1))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "newer", items[0].Content)
}

func TestBackupAndRestoreBothStores(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	item, err := storage.StoreMemory(ctx, "survives the backup", memory.CategoryDocument)
	require.NoError(t, err)

	backupPath := filepath.Join(t.TempDir(), "snapshot")
	require.NoError(t, storage.CreateBackup(ctx, backupPath))

	_, err = storage.DeleteMemory(ctx, item.ID)
	require.NoError(t, err)

	require.NoError(t, storage.RestoreFromBackup(ctx, backupPath))

	got, err := storage.GetMemory(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "survives the backup", got.Content)
}
