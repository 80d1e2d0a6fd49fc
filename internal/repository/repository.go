// Package repository provides the PostgreSQL system of record for curated
// knowledge and generation tracking.
//
// Each store wraps a pgxpool.Pool with plain SQL. Golden SQL pairs,
// instructions and prompts carry application-assigned 24-hex object ids;
// timestamps come from the database. The vector index is a projection of
// these tables, never the other way around.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// marshalMetadata encodes entity metadata for a JSONB column. Nil maps
// become empty objects so the NOT NULL DEFAULT '{}' columns stay uniform.
func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return data, nil
}

// unmarshalMetadata decodes a JSONB column into entity metadata. Empty
// objects stay nil on the entity.
func unmarshalMetadata(data []byte, dst *map[string]any) error {
	if len(data) == 0 || string(data) == "{}" || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return nil
}

// pageClause appends LIMIT/OFFSET to sql when limit is positive. Pages are
// 1-based; limit <= 0 returns the full listing.
func pageClause(sql string, args []any, page, limit int) (string, []any) {
	if limit <= 0 {
		return sql, args
	}
	if page < 1 {
		page = 1
	}
	n := len(args)
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2)
	args = append(args, limit, (page-1)*limit)
	return sql, args
}
