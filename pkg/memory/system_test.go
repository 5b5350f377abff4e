package memory_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/memory"
)

func newTestSystem(t *testing.T) *memory.System {
	t.Helper()
	config := memory.DefaultConfig()
	config.Database.SQLitePath = filepath.Join(t.TempDir(), "memories.db")
	config.LogLevel = "error"

	system, err := memory.NewSystem(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = system.Close() })
	return system
}

func TestNewSystemRejectsUnknownProviders(t *testing.T) {
	config := memory.DefaultConfig()
	config.Database.Provider = "cassandra"

	_, err := memory.NewSystem(config)
	require.Error(t, err)
	assert.ErrorIs(t, err, memory.ErrInvalidConfig)

	config = memory.DefaultConfig()
	config.Embedder.Provider = "wordvec"
	_, err = memory.NewSystem(config)
	assert.ErrorIs(t, err, memory.ErrInvalidConfig)
}

func TestSystemEndToEnd(t *testing.T) {
	system := newTestSystem(t)
	ctx := context.Background()

	stored, err := system.Storage.StoreMemory(ctx, "the meeting moved to thursday",
		memory.CategoryConversation,
		memory.WithSource("conversation", "conv-9"),
		memory.WithImportance(2))
	require.NoError(t, err)

	results := system.Retriever.RetrieveContext(ctx, "the meeting moved to thursday",
		memory.WithLimit(3))
	require.NotEmpty(t, results)
	assert.Equal(t, stored.ID, results[0].ID)

	contextText := system.Context.GetContext(ctx, "conv-9", "when is the meeting?")
	assert.Contains(t, contextText, "the meeting moved to thursday")

	system.Cache.Set("meeting schedule", "web", nil, "cached payload")
	assert.Equal(t, "cached payload", system.Cache.Get("meeting schedule", "web", nil))
}
