package mysql

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mariadvl/personal-agent-mx81j0-sub001/pkg/metastore"
)

// buildWhereClause builds a WHERE clause from the listing options.
func buildWhereClause(opts *metastore.ListOptions) (string, []interface{}) {
	conditions := []string{}
	args := []interface{}{}

	if opts.Category != "" {
		conditions = append(conditions, "category = ?")
		args = append(args, opts.Category)
	}

	if opts.SourceType != "" {
		conditions = append(conditions, "source_type = ?")
		args = append(args, opts.SourceType)
	}

	if opts.SourceID != "" {
		conditions = append(conditions, "source_id = ?")
		args = append(args, opts.SourceID)
	}

	if len(conditions) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

// scanRecord scans a metadata record from a database row or rows.
func scanRecord(scanner interface{ Scan(...interface{}) error }) (*metastore.Record, error) {
	var record metastore.Record
	var sourceType, sourceID, metadataStr sql.NullString

	err := scanner.Scan(
		&record.ID,
		&record.Category,
		&sourceType,
		&sourceID,
		&record.Importance,
		&metadataStr,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.SourceType = sourceType.String
	record.SourceID = sourceID.String

	if metadataStr.Valid && metadataStr.String != "" {
		if err := json.Unmarshal([]byte(metadataStr.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("parse metadata: %w", err)
		}
	}

	return &record, nil
}

// applyFields merges update fields into a copy of the record.
func applyFields(existing *metastore.Record, fields map[string]interface{}) *metastore.Record {
	updated := *existing
	if updated.Metadata == nil {
		updated.Metadata = make(map[string]interface{})
	} else {
		merged := make(map[string]interface{}, len(updated.Metadata))
		for k, v := range updated.Metadata {
			merged[k] = v
		}
		updated.Metadata = merged
	}

	for key, value := range fields {
		switch key {
		case "category":
			if s, ok := value.(string); ok {
				updated.Category = s
			}
		case "source_type":
			if s, ok := value.(string); ok {
				updated.SourceType = s
			}
		case "source_id":
			if s, ok := value.(string); ok {
				updated.SourceID = s
			}
		case "importance":
			switch v := value.(type) {
			case int:
				updated.Importance = v
			case float64:
				updated.Importance = int(v)
			}
		default:
			updated.Metadata[key] = value
		}
	}

	return &updated
}
