// Package chromem provides an embedded in-process vector index backed by chromem-go.
//
// chromem-go is a pure Go vector database. It keeps everything in memory,
// which makes this backend suitable for tests, examples, and single-process
// assistants that do not need durable vector storage.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex"
)

// Client implements vectorindex.VectorIndex on top of a chromem-go collection.
//
// chromem-go does not expose get-by-id or record iteration, so the client
// keeps its own record map alongside the collection. The map is authoritative
// for Get, Count, Backup, and Restore; the collection serves similarity queries.
type Client struct {
	db         *chromem.DB
	collection *chromem.Collection

	mu      sync.RWMutex
	records map[string]*vectorindex.Record
}

// Config contains configuration for creating a chromem vector index.
type Config struct {
	// CollectionName is the name of the chromem collection. Defaults to "memories".
	CollectionName string
}

// NewClient creates a new chromem vector index client.
func NewClient(cfg *Config) (*Client, error) {
	name := cfg.CollectionName
	if name == "" {
		name = "memories"
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("NewChromemClient: %w", err)
	}

	return &Client{
		db:         db,
		collection: collection,
		records:    make(map[string]*vectorindex.Record),
	}, nil
}

// Upsert inserts a record, replacing any existing record with the same ID.
func (c *Client) Upsert(ctx context.Context, record *vectorindex.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upsertLocked(ctx, record)
}

// UpsertBatch inserts multiple records.
func (c *Client) UpsertBatch(ctx context.Context, records []*vectorindex.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, record := range records {
		if err := c.upsertLocked(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) upsertLocked(ctx context.Context, record *vectorindex.Record) error {
	// Replacing a document requires removing the previous one first.
	if _, exists := c.records[record.ID]; exists {
		if err := c.collection.Delete(ctx, nil, nil, record.ID); err != nil {
			return fmt.Errorf("Upsert: %w", err)
		}
	}

	doc := chromem.Document{
		ID:        record.ID,
		Content:   record.Text,
		Embedding: toFloat32(record.Vector),
		Metadata:  flattenMetadata(record.Metadata),
	}

	if err := c.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	c.records[record.ID] = record
	return nil
}

// Get retrieves a record by ID. Returns (nil, nil) if absent.
func (c *Client) Get(ctx context.Context, id string) (*vectorindex.Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	record, ok := c.records[id]
	if !ok {
		return nil, nil
	}
	return record, nil
}

// Delete removes a record by ID. Idempotent.
func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.records[id]; !exists {
		return false, nil
	}

	if err := c.collection.Delete(ctx, nil, nil, id); err != nil {
		return false, fmt.Errorf("Delete: %w", err)
	}

	delete(c.records, id)
	return true, nil
}

// Search performs similarity search against the collection.
//
// chromem-go rejects queries asking for more results than the collection
// holds, so the requested limit is clamped to the current document count.
func (c *Client) Search(ctx context.Context, vector []float64, opts *vectorindex.SearchOptions) ([]*vectorindex.Hit, error) {
	if opts == nil {
		opts = &vectorindex.SearchOptions{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	count := c.collection.Count()
	if count == 0 {
		return nil, nil
	}

	limit := opts.Limit
	if limit <= 0 || limit > count {
		limit = count
	}

	results, err := c.collection.QueryEmbedding(ctx, toFloat32(vector), limit, flattenMetadata(opts.Filters), nil)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	var hits []*vectorindex.Hit
	for _, result := range results {
		score := float64(result.Similarity)
		if score < 0 {
			score = 0
		}
		if score < opts.MinScore {
			continue
		}

		metadata := map[string]interface{}{}
		if record, ok := c.records[result.ID]; ok {
			metadata = record.Metadata
		}

		hits = append(hits, &vectorindex.Hit{
			ID:       result.ID,
			Score:    score,
			Text:     result.Content,
			Metadata: metadata,
		})
	}

	return hits, nil
}

// Count returns the number of records matching the filters.
func (c *Client) Count(ctx context.Context, filters map[string]interface{}) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(filters) == 0 {
		return len(c.records), nil
	}

	count := 0
	for _, record := range c.records {
		if matchesFilters(record.Metadata, filters) {
			count++
		}
	}
	return count, nil
}

// Backup writes all records to a JSON file at the given path.
func (c *Client) Backup(ctx context.Context, path string) error {
	c.mu.RLock()
	records := make([]*vectorindex.Record, 0, len(c.records))
	for _, record := range c.records {
		records = append(records, record)
	}
	c.mu.RUnlock()

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("Backup: %w", err)
		}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("Backup: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("Backup: %w", err)
	}

	return nil
}

// Restore replaces the index contents from a JSON backup at the given path.
func (c *Client) Restore(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	var records []*vectorindex.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Rebuild the collection from scratch.
	name := c.collection.Name
	db := chromem.NewDB()
	collection, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	c.db = db
	c.collection = collection
	c.records = make(map[string]*vectorindex.Record, len(records))

	for _, record := range records {
		if err := c.upsertLocked(ctx, record); err != nil {
			return fmt.Errorf("Restore: %w", err)
		}
	}

	return nil
}

// Optimize is a no-op; chromem-go keeps everything in memory.
func (c *Client) Optimize(ctx context.Context) error {
	return nil
}

// Close releases resources. chromem-go has nothing to close.
func (c *Client) Close() error {
	return nil
}

// toFloat32 converts a float64 vector to chromem's float32 representation.
func toFloat32(vector []float64) []float32 {
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(v)
	}
	return out
}

// flattenMetadata converts an open metadata map to chromem's string map.
// Non-string values are JSON-encoded.
func flattenMetadata(metadata map[string]interface{}) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	flat := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if s, ok := v.(string); ok {
			flat[k] = s
			continue
		}
		if data, err := json.Marshal(v); err == nil {
			flat[k] = string(data)
		}
	}
	return flat
}

// matchesFilters reports whether the metadata satisfies every filter entry.
func matchesFilters(metadata map[string]interface{}, filters map[string]interface{}) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}
