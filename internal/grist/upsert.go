package grist

import (
	"context"
	"log"
	"sort"

	"dssync/internal/flatten"
	"dssync/internal/schema"
)

// KeyFunc computes the business key of a record.
type KeyFunc func(flatten.Record) string

// LegacyKeyFunc lists older key spellings a record may be stored under.
// Consulted at match time only; never used for writes.
type LegacyKeyFunc func(flatten.Record) []string

// UpsertStats counts the outcome of one upsert pass.
type UpsertStats struct {
	Created int
	Updated int
	Failed  int
}

// Reconciler drives the write side: it grows table columns to match the
// wanted shape (adding only, never dropping or retyping) and routes each
// record to a create or an update by business key.
type Reconciler struct {
	client    *Client
	cache     *schema.ColumnCache
	batchSize int
}

// NewReconciler returns a reconciler over one document client. batchSize
// bounds how many records go into one API call.
func NewReconciler(client *Client, cache *schema.ColumnCache, batchSize int) *Reconciler {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Reconciler{client: client, cache: cache, batchSize: batchSize}
}

// EnsureTable creates the table when absent and grows its columns to cover
// want. Existing columns are never dropped or retyped.
func (r *Reconciler) EnsureTable(ctx context.Context, tableID string, want []schema.Column) error {
	tables, err := r.client.ListTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t.ID == tableID {
			return r.EnsureColumns(ctx, tableID, want)
		}
	}
	if err := r.client.CreateTable(ctx, tableID, want); err != nil {
		return err
	}
	r.cache.Invalidate(tableID)
	return nil
}

// EnsureColumns adds the columns of want that the table lacks. Goes through
// the column cache so repeated calls within a run cost nothing.
func (r *Reconciler) EnsureColumns(ctx context.Context, tableID string, want []schema.Column) error {
	existing, err := r.columns(ctx, tableID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.ID] = true
	}

	var missing []schema.Column
	for _, c := range want {
		if !have[c.ID] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	log.Printf("grist: table %s: adding %d columns", tableID, len(missing))
	if err := r.client.AddColumns(ctx, tableID, missing); err != nil {
		return err
	}
	r.cache.Invalidate(tableID)
	return nil
}

func (r *Reconciler) columns(ctx context.Context, tableID string) ([]schema.Column, error) {
	if cached := r.cache.Get(tableID); cached != nil {
		return cached, nil
	}
	defs, err := r.client.ListColumns(ctx, tableID)
	if err != nil {
		return nil, err
	}
	cols := make([]schema.Column, len(defs))
	for i, d := range defs {
		cols[i] = schema.Column{ID: d.ID, Type: schema.ColumnType(d.Fields.Type)}
	}
	r.cache.Put(tableID, cols)
	return cols, nil
}

// Upsert writes records into a table: existing rows (matched by business
// key, legacy spellings included) are updated, the rest created. Columns the
// records reference but the table lacks are added first; when that add fails
// the affected values are dropped instead of failing the table. Batch
// failures degrade to per-record writes so one bad record cannot sink its
// whole batch; the create and update paths recover identically.
func (r *Reconciler) Upsert(ctx context.Context, tableID string, recs []flatten.Record, key KeyFunc, legacy LegacyKeyFunc) (UpsertStats, error) {
	var stats UpsertStats
	if len(recs) == 0 {
		return stats, nil
	}

	valid, err := r.ensureRecordColumns(ctx, tableID, recs)
	if err != nil {
		return stats, err
	}

	rows, err := r.client.ListRows(ctx, tableID)
	if err != nil {
		return stats, err
	}
	index := indexRows(rows, key, legacy)

	var creates []flatten.Record
	var updates []Row
	seen := map[string]bool{}
	for _, rec := range recs {
		k := key(rec)
		if seen[k] {
			continue
		}
		seen[k] = true
		rec = filterRecord(rec, valid)

		if id, ok := lookup(index, rec, k, legacy); ok {
			updates = append(updates, Row{ID: id, Fields: rec})
			continue
		}
		creates = append(creates, rec)
	}

	for _, batch := range batchRecords(creates, r.batchSize) {
		fields := padRecords(batch)
		if err := r.client.CreateRows(ctx, tableID, fields); err != nil {
			log.Printf("grist: table %s: batch create of %d failed, retrying per record: %v", tableID, len(batch), err)
			ok, failed := r.createSingly(ctx, tableID, fields)
			stats.Created += ok
			stats.Failed += failed
			continue
		}
		stats.Created += len(batch)
	}

	for _, batch := range batchRows(updates, r.batchSize) {
		padRows(batch)
		if err := r.client.UpdateRows(ctx, tableID, batch); err != nil {
			log.Printf("grist: table %s: batch update of %d failed, retrying per record: %v", tableID, len(batch), err)
			ok, failed := r.updateSingly(ctx, tableID, batch)
			stats.Updated += ok
			stats.Failed += failed
			continue
		}
		stats.Updated += len(batch)
	}

	return stats, nil
}

// ensureRecordColumns grows the table to cover every field the records
// reference, inferring types from the first non-nil value seen. It returns
// the set of writable column ids: when an add fails the affected columns are
// left out, so their values are dropped from this pass rather than failing
// the whole table.
func (r *Reconciler) ensureRecordColumns(ctx context.Context, tableID string, recs []flatten.Record) (map[string]bool, error) {
	existing, err := r.columns(ctx, tableID)
	if err != nil {
		return nil, err
	}
	valid := make(map[string]bool, len(existing))
	for _, c := range existing {
		valid[c.ID] = true
	}

	inferred := map[string]schema.ColumnType{}
	for _, rec := range recs {
		for k, v := range rec {
			if valid[k] {
				continue
			}
			if t, ok := inferred[k]; !ok || (t == schema.Text && v != nil) {
				inferred[k] = schema.TypeForValue(v)
			}
		}
	}
	if len(inferred) == 0 {
		return valid, nil
	}

	missing := make([]schema.Column, 0, len(inferred))
	for k, t := range inferred {
		missing = append(missing, schema.Column{ID: k, Type: t})
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].ID < missing[j].ID })

	if err := r.client.AddColumns(ctx, tableID, missing); err != nil {
		log.Printf("grist: table %s: adding %d columns failed, dropping their values: %v", tableID, len(missing), err)
		return valid, nil
	}
	r.cache.Invalidate(tableID)
	for _, c := range missing {
		valid[c.ID] = true
	}
	return valid, nil
}

// filterRecord drops fields with no backing column.
func filterRecord(rec flatten.Record, valid map[string]bool) flatten.Record {
	clean := true
	for k := range rec {
		if !valid[k] {
			clean = false
			break
		}
	}
	if clean {
		return rec
	}
	out := make(flatten.Record, len(rec))
	for k, v := range rec {
		if valid[k] {
			out[k] = v
		}
	}
	return out
}

func (r *Reconciler) createSingly(ctx context.Context, tableID string, fields []map[string]any) (ok, failed int) {
	for _, f := range fields {
		if err := r.client.CreateRows(ctx, tableID, []map[string]any{f}); err != nil {
			log.Printf("grist: table %s: create failed: %v", tableID, err)
			failed++
			continue
		}
		ok++
	}
	return ok, failed
}

func (r *Reconciler) updateSingly(ctx context.Context, tableID string, rows []Row) (ok, failed int) {
	for _, row := range rows {
		if err := r.client.UpdateRows(ctx, tableID, []Row{row}); err != nil {
			log.Printf("grist: table %s: update of row %d failed: %v", tableID, row.ID, err)
			failed++
			continue
		}
		ok++
	}
	return ok, failed
}

// indexRows maps every key spelling of every existing row to its internal
// row id. The canonical spelling wins on collision.
func indexRows(rows []Row, key KeyFunc, legacy LegacyKeyFunc) map[string]int64 {
	index := make(map[string]int64, len(rows))
	if legacy != nil {
		for _, row := range rows {
			for _, k := range legacy(flatten.Record(row.Fields)) {
				if k != "" {
					index[k] = row.ID
				}
			}
		}
	}
	for _, row := range rows {
		if k := key(flatten.Record(row.Fields)); k != "" {
			index[k] = row.ID
		}
	}
	return index
}

// lookup resolves a record against the index: canonical key first, then the
// legacy spellings in declared order.
func lookup(index map[string]int64, rec flatten.Record, canonical string, legacy LegacyKeyFunc) (int64, bool) {
	if id, ok := index[canonical]; ok {
		return id, true
	}
	if legacy != nil {
		for _, k := range legacy(rec) {
			if id, ok := index[k]; ok {
				return id, true
			}
		}
	}
	return 0, false
}

// padRecords aligns a batch on the union of its field sets, filling absent
// cells with explicit nulls so every record in the API call has the same
// shape.
func padRecords(recs []flatten.Record) []map[string]any {
	union := fieldUnion(recs)
	out := make([]map[string]any, len(recs))
	for i, rec := range recs {
		fields := make(map[string]any, len(union))
		for _, k := range union {
			fields[k] = rec[k] // absent keys become explicit nulls
		}
		out[i] = fields
	}
	return out
}

func padRows(rows []Row) {
	recs := make([]flatten.Record, len(rows))
	for i, row := range rows {
		recs[i] = flatten.Record(row.Fields)
	}
	union := fieldUnion(recs)
	for i, rec := range recs {
		fields := make(map[string]any, len(union))
		for _, k := range union {
			fields[k] = rec[k]
		}
		rows[i].Fields = fields
	}
}

func fieldUnion(recs []flatten.Record) []string {
	set := map[string]bool{}
	for _, rec := range recs {
		for k := range rec {
			set[k] = true
		}
	}
	union := make([]string, 0, len(set))
	for k := range set {
		union = append(union, k)
	}
	sort.Strings(union)
	return union
}

func batchRecords(recs []flatten.Record, size int) [][]flatten.Record {
	var out [][]flatten.Record
	for len(recs) > size {
		out = append(out, recs[:size])
		recs = recs[size:]
	}
	if len(recs) > 0 {
		out = append(out, recs)
	}
	return out
}

func batchRows(rows []Row, size int) [][]Row {
	var out [][]Row
	for len(rows) > size {
		out = append(out, rows[:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}
