// Package postgres provides a PostgreSQL implementation of the metadata store.
//
// PostgreSQL is the recommended backend for shared deployments where several
// assistant processes read the same memory corpus.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore"
)

// Client implements metastore.MetadataStore using PostgreSQL as the backend.
type Client struct {
	db        *sql.DB
	tableName string
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string
	SSLMode   string
}

// NewClient creates a new PostgreSQL metadata store client.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
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

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id VARCHAR(64) PRIMARY KEY,
			category VARCHAR(64) NOT NULL,
			source_type VARCHAR(64),
			source_id VARCHAR(255),
			importance INTEGER NOT NULL DEFAULT 1,
			metadata JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`, c.tableName)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: create table: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_category ON %s(category)
	`, c.tableName, c.tableName)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("initTables: create index: %w", err)
	}

	sourceIndexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_source ON %s(source_type, source_id)
	`, c.tableName, c.tableName)
	if _, err := c.db.ExecContext(ctx, sourceIndexQuery); err != nil {
		return fmt.Errorf("initTables: create index: %w", err)
	}

	return nil
}

// Insert inserts a record.
func (c *Client) Insert(ctx context.Context, record *metastore.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, category, source_type, source_id, importance, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.tableName)

	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = c.db.ExecContext(ctx, query,
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

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, category, source_type, source_id, importance, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.tableName)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("InsertBatch: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, record := range records {
		metadataJSON, err := json.Marshal(record.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("InsertBatch: %w", err)
		}

		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		if _, err := stmt.ExecContext(ctx,
			record.ID, record.Category, record.SourceType, record.SourceID,
			record.Importance, string(metadataJSON), createdAt, createdAt,
		); err != nil {
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
		WHERE id = $1
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

// Update applies field updates to a record. Returns (nil, nil) if absent.
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
		SET category = $1, source_type = $2, source_id = $3, importance = $4, metadata = $5, updated_at = $6
		WHERE id = $7
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
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", c.tableName)

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
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
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

// Backup dumps all records to a JSON file at the given path.
//
// The server's native dump tooling is not assumed to be available to the
// assistant process, so backups are portable JSON snapshots.
func (c *Client) Backup(ctx context.Context, path string) error {
	records, err := c.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("Backup: %w", err)
	}

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

// Restore replaces the table contents from a JSON snapshot at the given path.
func (c *Client) Restore(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	var records []*metastore.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c.tableName)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("Restore: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, category, source_type, source_id, importance, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.tableName)

	for _, record := range records {
		metadataJSON, err := json.Marshal(record.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("Restore: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			record.ID, record.Category, record.SourceType, record.SourceID,
			record.Importance, string(metadataJSON), record.CreatedAt, record.UpdatedAt,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("Restore: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Restore: %w", err)
	}

	return nil
}

// Optimize refreshes table statistics and reclaims dead tuples.
func (c *Client) Optimize(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf("VACUUM ANALYZE %s", c.tableName)); err != nil {
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
