// Package searchcache provides a content-addressed, TTL-based cache for
// external search provider results.
//
// Entries are keyed by a deterministic hash of the normalized query, the
// provider name, and the canonical parameter set, so identical searches hit
// the cache regardless of parameter ordering or query casing.
package searchcache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/logging"
)

// DefaultTTL is the entry lifetime used when none is configured.
const DefaultTTL = time.Hour

// Cache is a concurrent-safe search result cache with TTL expiry.
//
// Expired entries are treated as absent and purged eagerly on read; racing
// readers may both attempt the purge, which is benign (idempotent delete).
type Cache struct {
	mu sync.RWMutex

	// entries maps cache key to the stored payload and write timestamp.
	entries map[string]*entry

	// providers maps cache key to the provider that produced it.
	// The provider is hashed into the key, so selective clearing by
	// provider needs this side index to be precise.
	providers map[string]string

	ttl    time.Duration
	logger *slog.Logger
}

type entry struct {
	result   interface{}
	storedAt time.Time
}

// New creates a cache with the given TTL. A non-positive TTL falls back to
// DefaultTTL. The logger may be nil.
func New(ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Cache{
		entries:   make(map[string]*entry),
		providers: make(map[string]string),
		ttl:       ttl,
		logger:    logger,
	}
}

// Get returns the cached result for the search, or nil when absent or expired.
//
// An expired entry is deleted as a side effect of the read.
func (c *Cache) Get(query, provider string, params map[string]interface{}) interface{} {
	key := cacheKey(query, provider, params)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil
	}

	if time.Since(e.storedAt) > c.ttl {
		c.mu.Lock()
		// Another reader may have purged and a writer may have refreshed the
		// entry in the meantime; only delete the copy we judged stale.
		if current, ok := c.entries[key]; ok && current == e {
			delete(c.entries, key)
			delete(c.providers, key)
		}
		c.mu.Unlock()
		c.logger.Debug("search cache entry expired", "provider", provider)
		return nil
	}

	return e.result
}

// Set stores a result for the search, overwriting any existing entry.
func (c *Cache) Set(query, provider string, params map[string]interface{}, result interface{}) bool {
	key := cacheKey(query, provider, params)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{
		result:   result,
		storedAt: time.Now(),
	}
	c.providers[key] = provider

	return true
}

// Clear removes cached entries with four levels of selectivity:
//
//   - query and provider given: entries derived from that query AND provider
//   - query only: every entry derived from that query (key prefix match)
//   - provider only: every entry recorded for that provider
//   - neither: everything
//
// Always reports true once the clear has been applied.
func (c *Cache) Clear(query, provider string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if query == "" && provider == "" {
		c.entries = make(map[string]*entry)
		c.providers = make(map[string]string)
		return true
	}

	prefix := ""
	if query != "" {
		prefix = queryHash(query) + "-"
	}

	for key := range c.entries {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		if provider != "" && c.providers[key] != provider {
			continue
		}
		delete(c.entries, key)
		delete(c.providers, key)
	}

	return true
}

// Cleanup sweeps all entries and deletes every expired one.
//
// Intended to run from a periodic scheduler, not on the request path.
// Returns the number of entries removed.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := time.Now()
	for key, e := range c.entries {
		if now.Sub(e.storedAt) > c.ttl {
			delete(c.entries, key)
			delete(c.providers, key)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Debug("search cache cleanup", "removed", removed)
	}

	return removed
}

// Len returns the number of live entries, including not-yet-purged expired ones.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns a snapshot of all cache keys.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	return keys
}

// cacheKey builds the deterministic key for a search.
//
// The key is the hash of the normalized query, followed by the hash of
// provider and canonical parameters. Keeping the query hash as a standalone
// prefix lets Clear match all entries for a query without knowing the
// provider or parameters.
func cacheKey(query, provider string, params map[string]interface{}) string {
	// json.Marshal renders map keys in sorted order, giving a canonical
	// encoding for the parameter set.
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		paramsJSON = []byte("{}")
	}

	rest := md5.Sum([]byte(provider + "-" + string(paramsJSON)))
	return queryHash(query) + "-" + hex.EncodeToString(rest[:])
}

// queryHash hashes the normalized (lowercased, trimmed) query text.
func queryHash(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
