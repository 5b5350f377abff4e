package openai_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/embedder/openai"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := openai.NewClient(&openai.Config{})
	assert.Error(t, err)
}

func TestNewClientDefaults(t *testing.T) {
	client, err := openai.NewClient(&openai.Config{APIKey: "sk-test"})
	require.NoError(t, err)

	assert.Equal(t, "text-embedding-ada-002", client.Model())
	assert.Equal(t, 1536, client.Dimensions())
}

func TestNewClientPreservesConfiguredModelName(t *testing.T) {
	// Model identifiers are free-form strings and must round-trip through
	// the client unchanged, including models without an SDK constant.
	client, err := openai.NewClient(&openai.Config{
		APIKey:     "sk-test",
		Model:      "text-embedding-3-small",
		Dimensions: 512,
	})
	require.NoError(t, err)

	assert.Equal(t, "text-embedding-3-small", client.Model())
	assert.Equal(t, 512, client.Dimensions())
}
