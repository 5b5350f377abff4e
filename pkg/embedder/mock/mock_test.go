package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/embedder/mock"
)

func TestEmbedIsDeterministic(t *testing.T) {
	m := mock.New(32)
	ctx := context.Background()

	first, err := m.Embed(ctx, "the same text")
	require.NoError(t, err)
	second, err := m.Embed(ctx, "the same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEmbedDiffersByText(t *testing.T) {
	m := mock.New(32)
	ctx := context.Background()

	a, err := m.Embed(ctx, "first text")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "second text")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEmbedProducesUnitVector(t *testing.T) {
	m := mock.New(64)

	vec, err := m.Embed(context.Background(), "normalize me")
	require.NoError(t, err)
	require.Len(t, vec, 64)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedBatchMatchesEmbed(t *testing.T) {
	m := mock.New(16)
	ctx := context.Background()

	batch, err := m.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	alpha, err := m.Embed(ctx, "alpha")
	require.NoError(t, err)

	assert.Equal(t, alpha, batch[0])
}

func TestDimensionsDefault(t *testing.T) {
	assert.Equal(t, 384, mock.New(0).Dimensions())
	assert.Equal(t, 16, mock.New(16).Dimensions())
}
