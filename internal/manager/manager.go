// Package manager orchestrates sync runs: for every enabled démarche it
// resolves credentials, discovers the column shape, fetches dossiers,
// flattens them and reconciles the four target tables, optionally mirroring
// the same records to a relational store.
package manager

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dssync/internal/config"
	"dssync/internal/demarches"
	"dssync/internal/flatten"
	"dssync/internal/grist"
	"dssync/internal/httpjson"
	"dssync/internal/metrics"
	"dssync/internal/schema"
	"dssync/internal/schemacache"
	"dssync/internal/storage"
)

// Source is the read side of a run: one démarche's API scope under one
// token.
type Source interface {
	FetchSchema(ctx context.Context, demarcheNumber int) (*demarches.Schema, error)
	FetchDossiers(ctx context.Context, demarcheNumber int, depositedSince string) ([]demarches.DossierSummary, error)
	FetchDossier(ctx context.Context, number int) (*demarches.Dossier, error)
	FetchDossierLabels(ctx context.Context, number int) ([]demarches.Label, error)
}

// Sink is the write side: the spreadsheet document reconciler.
type Sink interface {
	EnsureTable(ctx context.Context, tableID string, cols []schema.Column) error
	Upsert(ctx context.Context, tableID string, recs []flatten.Record, key grist.KeyFunc, legacy grist.LegacyKeyFunc) (grist.UpsertStats, error)
}

// Options carries the optional collaborators of a Manager.
type Options struct {
	// Mirror receives the same records as the document. Nil disables it.
	Mirror storage.Repository

	// SchemaCache persists fetched schemas across runs. Nil fetches every
	// time.
	SchemaCache *schemacache.Cache

	// ForceSchema bypasses the schema cache.
	ForceSchema bool

	// NewSource builds the per-démarche API client. The default wires the
	// real client; tests substitute a fake. Tokens are resolved per
	// démarche and never stored on the Manager.
	NewSource func(endpoint, token string) Source
}

// Manager runs syncs for a set of démarches against one document.
type Manager struct {
	cfg  config.Config
	sink Sink
	opts Options
}

// New returns a Manager. sink must not be nil.
func New(cfg config.Config, sink Sink, opts Options) *Manager {
	if opts.NewSource == nil {
		opts.NewSource = func(endpoint, token string) Source {
			return demarches.NewClient(endpoint, token, httpjson.Config{})
		}
	}
	return &Manager{cfg: cfg, sink: sink, opts: opts}
}

// RunResult summarizes one démarche's sync.
type RunResult struct {
	Demarche int
	Name     string

	Fetched   int // dossiers listed by the API
	Filtered  int // dropped by client-side filters
	Processed int // dossiers flattened and written
	Failed    int // dossiers that could not be fetched

	Tables map[string]grist.UpsertStats

	Elapsed time.Duration
	Err     error
}

// Success reports whether the run produced at least one case-table write.
func (r RunResult) Success() bool {
	if r.Err != nil {
		return false
	}
	stats := r.Tables[tableKind(r.Name, r.Demarche, "dossiers")]
	return stats.Created+stats.Updated > 0
}

// Run syncs every enabled démarche sequentially and returns one result per
// démarche. A failing démarche never stops the others.
func (m *Manager) Run(ctx context.Context) []RunResult {
	var results []RunResult
	for _, d := range m.cfg.Demarches {
		if !d.IsEnabled() {
			log.Printf("manager: demarche %d (%s) disabled, skipping", d.Number, d.Name)
			continue
		}
		start := time.Now()
		res := m.syncDemarche(ctx, d)
		res.Elapsed = time.Since(start)
		metrics.RecordStep(fmt.Sprint(d.Number), "sync", res.Err, res.Elapsed)
		if res.Err != nil {
			log.Printf("manager: demarche %d (%s) failed: %v", d.Number, d.Name, res.Err)
		} else {
			log.Printf("manager: demarche %d (%s): %d fetched, %d filtered, %d processed, %d failed",
				d.Number, d.Name, res.Fetched, res.Filtered, res.Processed, res.Failed)
		}
		results = append(results, res)
	}
	if err := metrics.Flush(); err != nil {
		log.Printf("manager: metrics flush failed: %v", err)
	}
	return results
}

func (m *Manager) syncDemarche(ctx context.Context, d config.Demarche) RunResult {
	res := RunResult{Demarche: d.Number, Name: d.Name, Tables: map[string]grist.UpsertStats{}}
	label := fmt.Sprint(d.Number)

	token := m.cfg.Token(d)
	if token == "" {
		res.Err = fmt.Errorf("no API token in environment variable %s", m.cfg.TokenEnvName(d))
		return res
	}
	source := m.opts.NewSource(m.cfg.API.Endpoint, token)

	cols, suppressed, err := m.discoverColumns(ctx, source, d)
	metrics.RecordStep(label, "schema", err, 0)
	if err != nil {
		res.Err = fmt.Errorf("schema discovery: %w", err)
		return res
	}

	summaries, err := source.FetchDossiers(ctx, d.Number, d.Filters.DateDepotDebut)
	metrics.RecordStep(label, "fetch", err, 0)
	if err != nil {
		res.Err = fmt.Errorf("list dossiers: %w", err)
		return res
	}
	res.Fetched = len(summaries)
	metrics.RecordDossiers(label, "fetched", int64(res.Fetched))

	kept := applyFilters(summaries, d.Filters)
	res.Filtered = res.Fetched - len(kept)
	metrics.RecordDossiers(label, "filtered", int64(res.Filtered))

	tables := []tableDef{
		{tableKind(d.Name, d.Number, "dossiers"), cols.Dossiers, flatten.DossierKey, nil, []string{"number"}},
		{tableKind(d.Name, d.Number, "champs"), cols.Champs, flatten.CaseFieldKey, nil, []string{"dossier_number"}},
		{tableKind(d.Name, d.Number, "annotations"), cols.Annotations, flatten.CaseFieldKey, nil, []string{"dossier_number"}},
	}
	if cols.HasRepetables {
		tables = append(tables, tableDef{
			tableKind(d.Name, d.Number, "repetable_rows"), cols.RepetableRows,
			flatten.RepeatableKey, flatten.LegacyRepeatableKeys,
			[]string{"dossier_number", "block_row_id"},
		})
	}
	for _, t := range tables {
		if err := m.sink.EnsureTable(ctx, t.table, t.cols); err != nil {
			res.Err = fmt.Errorf("ensure table %s: %w", t.table, err)
			return res
		}
	}

	sync := m.cfg.SyncFor(d)
	f := flatten.New(cols, suppressed)

	// The case list is driven in fixed-size batches: fetch details, flatten
	// and write the four tables before moving to the next batch, so the
	// reconciler's row index is rebuilt between batches.
	for start := 0; start < len(kept); start += sync.BatchSize {
		end := min(start+sync.BatchSize, len(kept))
		dossiers, failed := m.fetchDetails(ctx, source, kept[start:end], sync)
		res.Failed += failed
		metrics.RecordDossiers(label, "failed", int64(failed))

		recs := map[string][]flatten.Record{}
		for _, dossier := range dossiers {
			recs[tables[0].table] = append(recs[tables[0].table], f.DossierRecord(dossier))
			recs[tables[1].table] = append(recs[tables[1].table], f.ChampRecord(dossier))
			recs[tables[2].table] = append(recs[tables[2].table], f.AnnotationRecord(dossier))
			if cols.HasRepetables {
				recs[tables[3].table] = append(recs[tables[3].table], f.RepeatableRows(dossier)...)
			}
		}
		res.Processed += len(dossiers)
		metrics.RecordDossiers(label, "processed", int64(len(dossiers)))

		for _, t := range tables {
			if len(recs[t.table]) == 0 {
				continue
			}
			wstart := time.Now()
			stats, err := m.sink.Upsert(ctx, t.table, recs[t.table], t.key, t.legacy)
			metrics.RecordStep(label, "write", err, time.Since(wstart))
			if err != nil {
				res.Err = fmt.Errorf("table %s: %w", t.table, err)
				return res
			}
			prev := res.Tables[t.table]
			prev.Created += stats.Created
			prev.Updated += stats.Updated
			prev.Failed += stats.Failed
			res.Tables[t.table] = prev
			metrics.RecordWrites(label, t.table, "created", int64(stats.Created))
			metrics.RecordWrites(label, t.table, "updated", int64(stats.Updated))
			metrics.RecordWrites(label, t.table, "failed", int64(stats.Failed))

			m.mirrorTable(ctx, label, t, recs[t.table])
		}
	}

	return res
}

type tableDef struct {
	table   string
	cols    []schema.Column
	key     grist.KeyFunc
	legacy  grist.LegacyKeyFunc
	keyCols []string
}

// mirrorTable writes the same records to the relational mirror. Best effort:
// a mirror failure is logged and never fails the démarche.
func (m *Manager) mirrorTable(ctx context.Context, label string, t tableDef, recs []flatten.Record) {
	if m.opts.Mirror == nil {
		return
	}
	start := time.Now()
	err := m.opts.Mirror.EnsureTable(ctx, t.table, t.cols, t.keyCols)
	if err == nil {
		_, err = m.opts.Mirror.BulkUpsert(ctx, t.table, t.cols, t.keyCols, recs)
	}
	metrics.RecordStep(label, "mirror", err, time.Since(start))
	if err != nil {
		log.Printf("manager: mirror of table %s failed: %v", t.table, err)
	}
}

// discoverColumns resolves the column sets from the form schema, going
// through the persistent cache when configured. When the démarche has no
// readable schema it degrades to inference from a handful of real dossiers.
func (m *Manager) discoverColumns(ctx context.Context, source Source, d config.Demarche) (*schema.ColumnSets, map[string]bool, error) {
	fetch := func(ctx context.Context) (*demarches.Schema, error) {
		return source.FetchSchema(ctx, d.Number)
	}

	var s *demarches.Schema
	var err error
	if m.opts.SchemaCache != nil {
		s, err = m.opts.SchemaCache.Load(ctx, d.Number, m.opts.ForceSchema, fetch)
	} else {
		s, err = fetch(ctx)
	}
	if err == nil {
		suppressed := s.SuppressedIDs()
		return schema.BuildFromSchema(s, suppressed), suppressed, nil
	}

	log.Printf("manager: demarche %d: schema unavailable (%v), sampling dossiers", d.Number, err)
	samples, sampleErr := m.sampleDossiers(ctx, source, d)
	if sampleErr != nil {
		return nil, nil, fmt.Errorf("schema fetch failed (%v) and sampling failed: %w", err, sampleErr)
	}
	return schema.BuildFromSamples(samples), map[string]bool{}, nil
}

// sampleDossiers fetches up to three dossiers to infer the column shape.
func (m *Manager) sampleDossiers(ctx context.Context, source Source, d config.Demarche) ([]*demarches.Dossier, error) {
	summaries, err := source.FetchDossiers(ctx, d.Number, d.Filters.DateDepotDebut)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("no dossiers to sample")
	}
	if len(summaries) > 3 {
		summaries = summaries[:3]
	}

	var samples []*demarches.Dossier
	for _, s := range summaries {
		dossier, err := source.FetchDossier(ctx, s.Number)
		if err != nil || dossier == nil {
			continue
		}
		samples = append(samples, dossier)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("none of the sampled dossiers were readable")
	}
	return samples, nil
}

// fetchDetails loads the full dossiers behind the kept summaries, in
// parallel when configured. Permission-scoped dossiers are skipped silently;
// fetch errors are counted as failed without stopping the run.
func (m *Manager) fetchDetails(ctx context.Context, source Source, summaries []demarches.DossierSummary, sync config.Sync) ([]*demarches.Dossier, int) {
	out := make([]*demarches.Dossier, len(summaries))
	var failed int

	if sync.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(sync.MaxWorkers)
		fails := make([]bool, len(summaries))
		for i, s := range summaries {
			i, s := i, s
			g.Go(func() error {
				dossier, err := source.FetchDossier(gctx, s.Number)
				if err != nil {
					log.Printf("manager: dossier %d: %v", s.Number, err)
					fails[i] = true
					return nil
				}
				out[i] = dossier
				return nil
			})
		}
		_ = g.Wait()
		for _, f := range fails {
			if f {
				failed++
			}
		}
	} else {
		for i, s := range summaries {
			dossier, err := source.FetchDossier(ctx, s.Number)
			if err != nil {
				log.Printf("manager: dossier %d: %v", s.Number, err)
				failed++
				continue
			}
			out[i] = dossier
		}
	}

	var dossiers []*demarches.Dossier
	for _, d := range out {
		if d == nil {
			continue
		}
		if len(d.Labels) == 0 {
			if labels, err := source.FetchDossierLabels(ctx, d.Number); err == nil {
				d.Labels = labels
			}
		}
		dossiers = append(dossiers, d)
	}
	return dossiers, failed
}

// tableKind builds the per-démarche table id, e.g. "aides_dossiers" or
// "demarche_12345_champs" when the démarche has no name.
func tableKind(name string, number int, kind string) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = fmt.Sprintf("demarche_%d", number)
	}
	return schema.NormalizeColumnID(base + " " + kind)
}
