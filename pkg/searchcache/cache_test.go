package searchcache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/searchcache"
)

func TestSetAndGet(t *testing.T) {
	cache := searchcache.New(time.Minute, nil)
	params := map[string]interface{}{"lang": "en", "max_results": 5}

	ok := cache.Set("golang generics", "web", params, []string{"r1", "r2"})
	require.True(t, ok)

	got := cache.Get("golang generics", "web", params)
	assert.Equal(t, []string{"r1", "r2"}, got)

	// Key derivation normalizes the query and sorts parameters.
	assert.Equal(t, []string{"r1", "r2"},
		cache.Get("  GOLANG Generics ", "web", map[string]interface{}{"max_results": 5, "lang": "en"}))
}

func TestGetMissReturnsNil(t *testing.T) {
	cache := searchcache.New(time.Minute, nil)

	assert.Nil(t, cache.Get("never stored", "web", nil))
}

func TestExpiredEntryIsMissAndPurged(t *testing.T) {
	cache := searchcache.New(10*time.Millisecond, nil)

	cache.Set("query", "web", nil, "result")
	require.Equal(t, "result", cache.Get("query", "web", nil))

	time.Sleep(30 * time.Millisecond)

	assert.Nil(t, cache.Get("query", "web", nil))
	assert.Equal(t, 0, cache.Len(), "expired entry should be purged on read")
}

func TestSetOverwrites(t *testing.T) {
	cache := searchcache.New(time.Minute, nil)

	cache.Set("query", "web", nil, "old")
	cache.Set("query", "web", nil, "new")

	assert.Equal(t, "new", cache.Get("query", "web", nil))
	assert.Equal(t, 1, cache.Len())
}

func TestClearByQuery(t *testing.T) {
	cache := searchcache.New(time.Minute, nil)
	cache.Set("shared query", "web", map[string]interface{}{"page": 1}, "a")
	cache.Set("shared query", "news", nil, "b")
	cache.Set("other query", "web", nil, "c")

	cache.Clear("shared query", "")

	assert.Nil(t, cache.Get("shared query", "web", map[string]interface{}{"page": 1}))
	assert.Nil(t, cache.Get("shared query", "news", nil))
	assert.Equal(t, "c", cache.Get("other query", "web", nil))
}

func TestClearByProvider(t *testing.T) {
	cache := searchcache.New(time.Minute, nil)
	cache.Set("q1", "web", nil, "a")
	cache.Set("q2", "web", nil, "b")
	cache.Set("q3", "news", nil, "c")

	cache.Clear("", "web")

	assert.Nil(t, cache.Get("q1", "web", nil))
	assert.Nil(t, cache.Get("q2", "web", nil))
	assert.Equal(t, "c", cache.Get("q3", "news", nil))
}

func TestClearByQueryAndProvider(t *testing.T) {
	cache := searchcache.New(time.Minute, nil)
	cache.Set("q", "web", nil, "a")
	cache.Set("q", "news", nil, "b")

	cache.Clear("q", "news")

	assert.Equal(t, "a", cache.Get("q", "web", nil))
	assert.Nil(t, cache.Get("q", "news", nil))
}

func TestClearAll(t *testing.T) {
	cache := searchcache.New(time.Minute, nil)
	cache.Set("q1", "web", nil, "a")
	cache.Set("q2", "news", nil, "b")

	cache.Clear("", "")

	assert.Equal(t, 0, cache.Len())
}

func TestCleanupRemovesOnlyExpired(t *testing.T) {
	cache := searchcache.New(20*time.Millisecond, nil)
	cache.Set("old1", "web", nil, "a")
	cache.Set("old2", "web", nil, "b")

	time.Sleep(40 * time.Millisecond)
	cache.Set("fresh", "web", nil, "c")

	removed := cache.Cleanup()

	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, "c", cache.Get("fresh", "web", nil))
}

func TestConcurrentAccess(t *testing.T) {
	cache := searchcache.New(time.Minute, nil)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				cache.Set("query", "web", map[string]interface{}{"n": n}, j)
				cache.Get("query", "web", map[string]interface{}{"n": n})
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.Equal(t, 8, cache.Len())
}
