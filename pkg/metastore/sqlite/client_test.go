package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "meta.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func record(id, category string) *metastore.Record {
	return &metastore.Record{
		ID:         id,
		Category:   category,
		Importance: 1,
		Metadata:   map[string]interface{}{"origin": "test"},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestInsertAndGet(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	rec := record("m1", "document")
	rec.SourceType = "document"
	rec.SourceID = "doc-1"
	rec.Importance = 3
	require.NoError(t, client.Insert(ctx, rec))

	got, err := client.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "document", got.Category)
	assert.Equal(t, "doc-1", got.SourceID)
	assert.Equal(t, 3, got.Importance)
	assert.Equal(t, "test", got.Metadata["origin"])
}

func TestGetMissingReturnsNil(t *testing.T) {
	client := newTestClient(t)

	got, err := client.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateStructuredAndOpenFields(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Insert(ctx, record("m1", "document")))

	updated, err := client.Update(ctx, "m1", map[string]interface{}{
		"importance": 5,
		"category":   "important",
		"note":       "promoted",
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 5, updated.Importance)
	assert.Equal(t, "important", updated.Category)
	assert.Equal(t, "promoted", updated.Metadata["note"])
	assert.Equal(t, "test", updated.Metadata["origin"], "existing metadata kept")
}

func TestUpdateMissingReturnsNil(t *testing.T) {
	client := newTestClient(t)

	updated, err := client.Update(context.Background(), "absent",
		map[string]interface{}{"importance": 2})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestDeleteIsIdempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Insert(ctx, record("m1", "web")))

	existed, err := client.Delete(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = client.Delete(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestListFiltersAndPaginates(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.InsertBatch(ctx, []*metastore.Record{
		record("m1", "document"),
		record("m2", "document"),
		record("m3", "web"),
	}))

	docs, err := client.List(ctx, &metastore.ListOptions{Category: "document"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	page, err := client.List(ctx, &metastore.ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestCountByCategory(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.InsertBatch(ctx, []*metastore.Record{
		record("m1", "document"),
		record("m2", "document"),
		record("m3", "web"),
		record("m4", "important"),
	}))

	counts, err := client.CountByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"document": 2, "web": 1, "important": 1}, counts)

	total, err := client.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestBackupAndRestore(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Insert(ctx, record("m1", "document")))

	backupPath := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, client.Backup(ctx, backupPath))

	_, err := client.Delete(ctx, "m1")
	require.NoError(t, err)

	require.NoError(t, client.Restore(ctx, backupPath))

	got, err := client.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
}
