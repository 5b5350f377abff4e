package memory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/embedder/mock"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/memory"
	vecsqlite "github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex/sqlite"
)

func newTestAdapter(t *testing.T) *memory.VectorAdapter {
	t.Helper()
	index, err := vecsqlite.NewClient(&vecsqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "vectors.db"),
	})
	require.NoError(t, err)

	adapter, err := memory.NewVectorAdapter(mock.New(16), index)
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func TestNewVectorAdapterRequiresCollaborators(t *testing.T) {
	_, err := memory.NewVectorAdapter(nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestStoreTextStampsEmbeddingModel(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	record, err := adapter.StoreText(ctx, "m1", "some text",
		map[string]interface{}{"category": "document"})
	require.NoError(t, err)
	assert.Equal(t, "mock-hash-v1", record.Metadata["embedding_model"])
	assert.Equal(t, "document", record.Metadata["category"])
	assert.Len(t, record.Vector, 16)

	got, err := adapter.GetVector(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "mock-hash-v1", got.Metadata["embedding_model"])
}

func TestBatchStoreTextRejectsMismatchedLengths(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.BatchStoreText(context.Background(),
		[]string{"id1", "id2"}, []string{"only one text"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestBatchStoreText(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	records, err := adapter.BatchStoreText(ctx,
		[]string{"id1", "id2"},
		[]string{"first", "second"},
		nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	count, err := adapter.CountVectors(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUpdateVectorRequiresTextOrMetadata(t *testing.T) {
	adapter := newTestAdapter(t)

	err := adapter.UpdateVector(context.Background(), "m1", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrValidation)
}

func TestUpdateVectorMissingRecord(t *testing.T) {
	adapter := newTestAdapter(t)

	err := adapter.UpdateVector(context.Background(), "absent", "new text", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestUpdateVectorTextRegeneratesEmbedding(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	original, err := adapter.StoreText(ctx, "m1", "original", nil)
	require.NoError(t, err)

	require.NoError(t, adapter.UpdateVector(ctx, "m1", "replacement", nil))

	updated, err := adapter.GetVector(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "replacement", updated.Text)
	assert.NotEqual(t, original.Vector, updated.Vector)
}

func TestDeleteVectorReportsExistence(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, err := adapter.StoreText(ctx, "m1", "text", nil)
	require.NoError(t, err)

	existed, err := adapter.DeleteVector(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = adapter.DeleteVector(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestSearchByTextReturnsScoredHits(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	_, err := adapter.StoreText(ctx, "m1", "a sentence about cats", nil)
	require.NoError(t, err)
	_, err = adapter.StoreText(ctx, "m2", "a sentence about economics", nil)
	require.NoError(t, err)

	hits, err := adapter.SearchByText(ctx, "a sentence about cats", nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "m1", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}
