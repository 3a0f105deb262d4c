// Package storage defines the optional relational mirror: the same flattened
// records written to the spreadsheet document can be bulk-upserted into a
// database for SQL access. The mirror is best effort and never blocks a sync.
package storage

import (
	"context"

	"dssync/internal/flatten"
	"dssync/internal/schema"
)

// Repository mirrors flattened records into a relational store.
type Repository interface {
	// EnsureTable creates the table when absent and adds missing columns.
	// Existing columns are never dropped or retyped.
	EnsureTable(ctx context.Context, table string, cols []schema.Column, keyCols []string) error

	// BulkUpsert writes records, replacing rows whose key columns match.
	// Returns the number of rows written.
	BulkUpsert(ctx context.Context, table string, cols []schema.Column, keyCols []string, recs []flatten.Record) (int64, error)
}

// Nop is the mirror used when no DSN is configured.
type Nop struct{}

func (Nop) EnsureTable(context.Context, string, []schema.Column, []string) error {
	return nil
}

func (Nop) BulkUpsert(context.Context, string, []schema.Column, []string, []flatten.Record) (int64, error) {
	return 0, nil
}
