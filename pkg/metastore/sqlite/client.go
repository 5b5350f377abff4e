// Package sqlite provides a SQLite implementation of the metadata store.
//
// SQLite is the default backend for local assistants: a single file holds all
// structured memory records, and no server process is required.
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

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore"
)

// Client implements metastore.MetadataStore using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// tableName is the name of the table storing memory records.
	tableName string
}

// Config contains configuration for creating a SQLite metadata store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the table to use. Defaults to "memory_records".
	TableName string
}

// NewClient creates a new SQLite metadata store client.
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
		tableName = "memory_records"
	}

	client := &Client{
		db:        db,
		tableName: tableName,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			category TEXT NOT NULL,
			source_type TEXT,
			source_id TEXT,
			importance INTEGER NOT NULL DEFAULT 1,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_category ON %s(category)
	`, c.tableName, c.tableName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	sourceIndexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_source ON %s(source_type, source_id)
	`, c.tableName, c.tableName)
	if _, err := c.db.ExecContext(ctx, sourceIndexQuery); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert inserts a record.
func (c *Client) Insert(ctx context.Context, record *metastore.Record) error {
	return c.insert(ctx, c.db, record)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (c *Client) insert(ctx context.Context, db execer, record *metastore.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, category, source_type, source_id, importance, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.tableName)

	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = db.ExecContext(ctx, query,
		record.ID,
		record.Category,
		record.SourceType,
		record.SourceID,
		record.Importance,
		string(metadataJSON),
		createdAt,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// InsertBatch inserts multiple records within a single transaction.
func (c *Client) InsertBatch(ctx context.Context, records []*metastore.Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("InsertBatch: %w", err)
	}

	for _, record := range records {
		if err := c.insert(ctx, tx, record); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("InsertBatch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("InsertBatch: %w", err)
	}

	return nil
}

// Get retrieves a record by ID. Returns (nil, nil) if absent.
func (c *Client) Get(ctx context.Context, id string) (*metastore.Record, error) {
	query := fmt.Sprintf(`
		SELECT id, category, source_type, source_id, importance, metadata, created_at, updated_at
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

// Update applies field updates to a record.
//
// Recognized keys update their columns; unrecognized keys are merged into
// the stored metadata map. Returns (nil, nil) if the record does not exist.
func (c *Client) Update(ctx context.Context, id string, fields map[string]interface{}) (*metastore.Record, error) {
	existing, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	updated := applyFields(existing, fields)

	metadataJSON, err := json.Marshal(updated.Metadata)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET category = ?, source_type = ?, source_id = ?, importance = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, c.tableName)

	updated.UpdatedAt = time.Now()
	_, err = c.db.ExecContext(ctx, query,
		updated.Category,
		updated.SourceType,
		updated.SourceID,
		updated.Importance,
		string(metadataJSON),
		updated.UpdatedAt,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("Update: %w", err)
	}

	return updated, nil
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

// List returns records matching the options, newest first.
func (c *Client) List(ctx context.Context, opts *metastore.ListOptions) ([]*metastore.Record, error) {
	if opts == nil {
		opts = &metastore.ListOptions{}
	}

	whereClause, args := buildWhereClause(opts)

	query := fmt.Sprintf(`
		SELECT id, category, source_type, source_id, importance, metadata, created_at, updated_at
		FROM %s
		%s
		ORDER BY created_at DESC
	`, c.tableName, whereClause)

	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*metastore.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Count returns the number of records matching the options.
func (c *Client) Count(ctx context.Context, opts *metastore.ListOptions) (int, error) {
	if opts == nil {
		opts = &metastore.ListOptions{}
	}

	whereClause, args := buildWhereClause(opts)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", c.tableName, whereClause)

	var count int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}

	return count, nil
}

// CountByCategory returns per-category record counts.
func (c *Client) CountByCategory(ctx context.Context) (map[string]int, error) {
	query := fmt.Sprintf("SELECT category, COUNT(*) FROM %s GROUP BY category", c.tableName)

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("CountByCategory: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("CountByCategory: %w", err)
		}
		counts[category] = count
	}

	return counts, rows.Err()
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
