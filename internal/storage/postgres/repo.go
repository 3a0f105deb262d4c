// Package postgres implements the relational mirror on Postgres using pgx
// v5: COPY into a temporary staging table, delete matching rows by key, then
// insert from staging.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dssync/internal/flatten"
	"dssync/internal/schema"
)

// Config holds mirror connection settings.
type Config struct {
	DSN    string // pgxpool connection string
	Schema string // target schema, defaults to "public"
}

// Repository is a Postgres-backed storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository connects a pool and returns the repository plus a close
// function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("postgres: DSN must not be empty")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &Repository{pool: pool, cfg: cfg}, func() { pool.Close() }, nil
}

// EnsureTable creates the table when absent and grows it column by column.
// ADD COLUMN IF NOT EXISTS makes the growth idempotent across runs.
func (r *Repository) EnsureTable(ctx context.Context, table string, cols []schema.Column, keyCols []string) error {
	create, err := buildCreateTableSQL(r.fqn(table), cols, keyCols)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	for _, c := range cols {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			r.fqn(table), pgIdent(c.ID), sqlType(c.Type))
		if _, err := r.pool.Exec(ctx, alter); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, c.ID, err)
		}
	}
	return nil
}

// BulkUpsert stages records with COPY, deletes target rows matching the key
// columns, then inserts from staging. One transaction-free pass per table;
// the mirror tolerates a partially-applied batch since the next run rewrites
// the same keys.
func (r *Repository) BulkUpsert(ctx context.Context, table string, cols []schema.Column, keyCols []string, recs []flatten.Record) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	if len(cols) == 0 {
		return 0, fmt.Errorf("postgres: no columns for table %s", table)
	}

	colNames := make([]string, len(cols))
	for i, c := range cols {
		colNames[i] = c.ID
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	tmp := "tmp_" + strings.ReplaceAll(table, ".", "_")
	create := fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s WHERE false",
		pgIdent(tmp), strings.Join(mapIdent(colNames), ","), r.fqn(table))
	if _, err := conn.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	defer func() { _, _ = conn.Exec(ctx, "DROP TABLE IF EXISTS "+pgIdent(tmp)) }()

	rows := make([][]any, len(recs))
	for i, rec := range recs {
		row := make([]any, len(colNames))
		for j, c := range colNames {
			row[j] = rec[c]
		}
		rows[i] = row
	}

	written, err := conn.CopyFrom(ctx, pgx.Identifier{tmp}, colNames, pgx.CopyFromRows(rows))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("copy into temp: %s (%s)", pgErr.Detail, pgErr.SQLState())
		}
		return 0, fmt.Errorf("copy into temp: %w", err)
	}

	if len(keyCols) > 0 {
		del := fmt.Sprintf("DELETE FROM %s AS T USING %s AS S WHERE %s",
			r.fqn(table), pgIdent(tmp), buildKeyCondition(keyCols))
		if _, err := conn.Exec(ctx, del); err != nil {
			return 0, fmt.Errorf("delete matching rows: %w", err)
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		r.fqn(table),
		strings.Join(mapIdent(colNames), ","),
		strings.Join(mapIdent(colNames), ","),
		pgIdent(tmp))
	if _, err := conn.Exec(ctx, insert); err != nil {
		return 0, fmt.Errorf("insert phase: %w", err)
	}

	log.Printf("postgres: table %s: mirrored %d rows", table, written)
	return written, nil
}

func (r *Repository) fqn(table string) string {
	return pgIdent(r.cfg.Schema) + "." + pgIdent(table)
}

// buildKeyCondition joins key columns into the staging-to-target match. Null
// keys never match, which is what we want: keyless rows are always inserted.
func buildKeyCondition(keyCols []string) string {
	conds := make([]string, len(keyCols))
	for i, col := range keyCols {
		conds[i] = fmt.Sprintf("T.%s = S.%s", pgIdent(col), pgIdent(col))
	}
	return strings.Join(conds, " AND ")
}
