// Package sqlite provides a SQLite implementation of the vector index.
//
// SQLite is a lightweight, file-based database suitable for local assistants
// and small-scale deployments. Vectors are stored as JSON strings in TEXT
// fields, and similarity search uses in-memory cosine similarity calculation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/vectorindex"
)

// Client implements vectorindex.VectorIndex using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// tableName is the name of the table storing vector records.
	tableName string

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a SQLite vector index.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the table to use. Defaults to "vectors".
	TableName string

	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int
}

// NewClient creates a new SQLite vector index client.
//
// Parameters:
//   - cfg: Configuration containing database path, table name, and embedding dimensions
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	tableName := cfg.TableName
	if tableName == "" {
		tableName = "vectors"
	}

	client := &Client{
		db:         db,
		tableName:  tableName,
		dimensions: cfg.EmbeddingModelDims,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
//
// SQLite stores vectors as JSON strings in TEXT fields.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Upsert inserts a record, replacing any existing record with the same ID.
func (c *Client) Upsert(ctx context.Context, record *vectorindex.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata
	`, c.tableName)

	embeddingJSON, err := json.Marshal(record.Vector)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = c.db.ExecContext(ctx, query,
		record.ID,
		record.Text,
		string(embeddingJSON),
		string(metadataJSON),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	return nil
}

// UpsertBatch inserts multiple records within a single transaction.
func (c *Client) UpsertBatch(ctx context.Context, records []*vectorindex.Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("UpsertBatch: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata
	`, c.tableName)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("UpsertBatch: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, record := range records {
		embeddingJSON, err := json.Marshal(record.Vector)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("UpsertBatch: %w", err)
		}
		metadataJSON, err := json.Marshal(record.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("UpsertBatch: %w", err)
		}

		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		if _, err := stmt.ExecContext(ctx, record.ID, record.Text, string(embeddingJSON), string(metadataJSON), createdAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("UpsertBatch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("UpsertBatch: %w", err)
	}

	return nil
}

// Get retrieves a record by ID. Returns (nil, nil) if absent.
func (c *Client) Get(ctx context.Context, id string) (*vectorindex.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, content, embedding, metadata, created_at
		FROM %s
		WHERE id = ?
	`, c.tableName)

	record, err := scanRecord(c.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return record, nil
}

// Delete removes a record by ID. Idempotent.
func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.tableName)

	result, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Delete: %w", err)
	}

	return rowsAffected > 0, nil
}

// Search performs vector similarity search using cosine similarity.
//
// SQLite does not have native vector operations, so similarity is calculated
// in memory after loading candidate records. Metadata filters are applied
// in Go against the decoded metadata map.
func (c *Client) Search(ctx context.Context, vector []float64, opts *vectorindex.SearchOptions) ([]*vectorindex.Hit, error) {
	if opts == nil {
		opts = &vectorindex.SearchOptions{}
	}

	query := fmt.Sprintf(`
		SELECT id, content, embedding, metadata, created_at
		FROM %s
		ORDER BY id
	`, c.tableName)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []*vectorindex.Hit
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		if !matchesFilters(record.Metadata, opts.Filters) {
			continue
		}

		score := cosineSimilarity(vector, record.Vector)
		if score < opts.MinScore {
			continue
		}

		hits = append(hits, &vectorindex.Hit{
			ID:       record.ID,
			Score:    score,
			Text:     record.Text,
			Metadata: record.Metadata,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sortByScore(hits, opts.Limit), nil
}

// Count returns the number of records matching the filters.
func (c *Client) Count(ctx context.Context, filters map[string]interface{}) (int, error) {
	if len(filters) == 0 {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", c.tableName)
		var count int
		if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
			return 0, fmt.Errorf("Count: %w", err)
		}
		return count, nil
	}

	// Filters apply to the decoded metadata, so counting requires a scan.
	query := fmt.Sprintf("SELECT id, content, embedding, metadata, created_at FROM %s", c.tableName)
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	defer func() { _ = rows.Close() }()

	count := 0
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return 0, err
		}
		if matchesFilters(record.Metadata, filters) {
			count++
		}
	}

	return count, rows.Err()
}

// Backup writes a consistent snapshot of the database to the given path.
func (c *Client) Backup(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("Backup: %w", err)
		}
	}

	if _, err := c.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("Backup: %w", err)
	}

	return nil
}

// Restore replaces the table contents from a backup database at the given path.
func (c *Client) Restore(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	// ATTACH is per-connection and not allowed inside a transaction, so pin
	// a single connection, attach, copy atomically, then detach.
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("Restore: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS backup", path); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}
	defer func() { _, _ = conn.ExecContext(ctx, "DETACH DATABASE backup") }()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c.tableName)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("Restore: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s SELECT * FROM backup.%s", c.tableName, c.tableName)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("Restore: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	return nil
}

// Optimize reclaims free pages and refreshes query planner statistics.
func (c *Client) Optimize(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("Optimize: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("Optimize: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// scanRecord scans a vector record from a database row or rows.
func scanRecord(scanner interface{ Scan(...interface{}) error }) (*vectorindex.Record, error) {
	var record vectorindex.Record
	var embeddingStr string
	var metadataStr sql.NullString

	err := scanner.Scan(
		&record.ID,
		&record.Text,
		&embeddingStr,
		&metadataStr,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(embeddingStr), &record.Vector); err != nil {
		return nil, fmt.Errorf("parse embedding: %w", err)
	}

	if metadataStr.Valid && metadataStr.String != "" {
		if err := json.Unmarshal([]byte(metadataStr.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	return &record, nil
}
