package postgres

import (
	"fmt"
	"strings"

	"dssync/internal/schema"
)

// sqlType maps a logical column type to its Postgres SQL type.
func sqlType(t schema.ColumnType) string {
	switch t {
	case schema.Int:
		return "BIGINT"
	case schema.Numeric:
		return "DOUBLE PRECISION"
	case schema.Bool:
		return "BOOLEAN"
	case schema.DateTime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// buildCreateTableSQL builds a deterministic CREATE TABLE IF NOT EXISTS
// statement. Key columns are rendered NOT NULL and become the primary key.
func buildCreateTableSQL(fqn string, cols []schema.Column, keyCols []string) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("postgres ddl: at least one column is required")
	}
	keys := make(map[string]bool, len(keyCols))
	for _, k := range keyCols {
		keys[k] = true
	}

	defs := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		if strings.TrimSpace(c.ID) == "" {
			return "", fmt.Errorf("postgres ddl: column with empty name in %s", fqn)
		}
		def := pgIdent(c.ID) + " " + sqlType(c.Type)
		if keys[c.ID] {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}

	if len(keyCols) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(mapIdent(keyCols), ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", fqn, strings.Join(defs, ",\n  ")), nil
}

// pgIdent quotes a single identifier segment; embedded quotes are doubled.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
