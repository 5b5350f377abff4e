package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex"
	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex/sqlite"
)

func newTestClient(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "vectors.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func record(id string, vector []float64) *vectorindex.Record {
	return &vectorindex.Record{
		ID:        id,
		Vector:    vector,
		Text:      "text for " + id,
		Metadata:  map[string]interface{}{"category": "document"},
		CreatedAt: time.Now(),
	}
}

func TestUpsertAndGet(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, record("m1", []float64{1, 0, 0})))

	got, err := client.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, "text for m1", got.Text)
	assert.Equal(t, []float64{1, 0, 0}, got.Vector)
	assert.Equal(t, "document", got.Metadata["category"])
}

func TestGetMissingReturnsNil(t *testing.T) {
	client := newTestClient(t)

	got, err := client.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpsertReplacesExisting(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, record("m1", []float64{1, 0, 0})))

	updated := record("m1", []float64{0, 1, 0})
	updated.Text = "replaced"
	require.NoError(t, client.Upsert(ctx, updated))

	got, err := client.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "replaced", got.Text)
	assert.Equal(t, []float64{0, 1, 0}, got.Vector)

	count, err := client.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteIsIdempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, record("m1", []float64{1, 0, 0})))

	existed, err := client.Delete(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = client.Delete(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.UpsertBatch(ctx, []*vectorindex.Record{
		record("exact", []float64{1, 0, 0}),
		record("close", []float64{0.9, 0.1, 0}),
		record("far", []float64{0, 0, 1}),
	}))

	hits, err := client.Search(ctx, []float64{1, 0, 0}, &vectorindex.SearchOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "exact", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "close", hits[1].ID)
}

func TestSearchAppliesMinScoreAndFilters(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	web := record("w1", []float64{1, 0, 0})
	web.Metadata = map[string]interface{}{"category": "web"}
	require.NoError(t, client.Upsert(ctx, web))
	require.NoError(t, client.Upsert(ctx, record("d1", []float64{1, 0, 0})))
	require.NoError(t, client.Upsert(ctx, record("d2", []float64{0, 0, 1})))

	hits, err := client.Search(ctx, []float64{1, 0, 0}, &vectorindex.SearchOptions{
		Limit:    10,
		MinScore: 0.5,
		Filters:  map[string]interface{}{"category": "document"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1", hits[0].ID)
}

func TestBackupAndRestore(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Upsert(ctx, record("m1", []float64{1, 0, 0})))

	backupPath := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, client.Backup(ctx, backupPath))

	_, err := client.Delete(ctx, "m1")
	require.NoError(t, err)

	require.NoError(t, client.Restore(ctx, backupPath))

	got, err := client.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "text for m1", got.Text)
}
