// Package schemacache persists fetched form schemas in a local SQLite file
// so repeated runs against the same démarche skip the schema query while the
// entry is fresh, and can still proceed on a stale entry when the API is
// unreachable.
package schemacache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dssync/internal/demarches"
)

// DefaultTTL is how long a cached schema is considered fresh.
const DefaultTTL = 24 * time.Hour

const createTableSQL = `
CREATE TABLE IF NOT EXISTS schema_cache (
	demarche_number INTEGER PRIMARY KEY,
	fetched_at      INTEGER NOT NULL,
	payload         TEXT NOT NULL
);`

// Cache is a SQLite-backed schema cache. The zero value is not usable; call
// Open.
type Cache struct {
	db  *sql.DB
	ttl time.Duration

	now func() time.Time // test seam
}

// Open opens (creating if needed) the cache database at path and returns the
// cache plus a close function. A ttl of zero selects DefaultTTL.
func Open(ctx context.Context, path string, ttl time.Duration) (*Cache, func(), error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, fmt.Errorf("schemacache: path must not be empty")
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("schemacache: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("schemacache: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("schemacache: create table: %w", err)
	}

	c := &Cache{db: db, ttl: ttl, now: time.Now}
	return c, func() { db.Close() }, nil
}

// Load returns the schema of a démarche, consulting the cache first. A fresh
// cached entry short-circuits the fetch unless force is set. When the fetch
// fails and a stale entry exists, the stale entry is returned with a warning
// rather than failing the run.
func (c *Cache) Load(ctx context.Context, number int, force bool, fetch func(context.Context) (*demarches.Schema, error)) (*demarches.Schema, error) {
	cached, fetchedAt, err := c.get(ctx, number)
	if err != nil {
		log.Printf("schemacache: read for demarche %d failed: %v", number, err)
	}

	if cached != nil && !force && c.now().Sub(fetchedAt) < c.ttl {
		return cached, nil
	}

	s, fetchErr := fetch(ctx)
	if fetchErr != nil {
		if cached != nil && !errors.Is(fetchErr, context.Canceled) {
			log.Printf("schemacache: fetch for demarche %d failed, using cached schema from %s: %v",
				number, fetchedAt.UTC().Format(time.RFC3339), fetchErr)
			return cached, nil
		}
		return nil, fetchErr
	}

	if err := c.put(ctx, number, s); err != nil {
		log.Printf("schemacache: write for demarche %d failed: %v", number, err)
	}
	return s, nil
}

func (c *Cache) get(ctx context.Context, number int) (*demarches.Schema, time.Time, error) {
	var fetchedAt int64
	var payload string
	err := c.db.QueryRowContext(ctx,
		"SELECT fetched_at, payload FROM schema_cache WHERE demarche_number = ?", number,
	).Scan(&fetchedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	var s demarches.Schema
	if err := json.Unmarshal([]byte(payload), &s); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode cached schema: %w", err)
	}
	return &s, time.Unix(fetchedAt, 0), nil
}

func (c *Cache) put(ctx context.Context, number int, s *demarches.Schema) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
INSERT INTO schema_cache (demarche_number, fetched_at, payload)
VALUES (?, ?, ?)
ON CONFLICT(demarche_number) DO UPDATE SET
	fetched_at = excluded.fetched_at,
	payload = excluded.payload`,
		number, c.now().Unix(), string(payload))
	return err
}
