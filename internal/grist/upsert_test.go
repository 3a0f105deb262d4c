package grist

import (
	"context"
	"fmt"
	"testing"

	"dssync/internal/flatten"
	"dssync/internal/schema"
)

func dossierKey(rec flatten.Record) string {
	return fmt.Sprint(rec["number"])
}

func TestEnsureTableCreatesWhenAbsent(t *testing.T) {
	doc := newFakeDoc()
	r := NewReconciler(testClient(t, doc), schema.NewColumnCache(), 50)

	cols := []schema.Column{{ID: "dossier_id", Type: schema.Text}, {ID: "number", Type: schema.Int}}
	if err := r.EnsureTable(context.Background(), "Dossiers", cols); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if len(doc.columns["Dossiers"]) != 2 {
		t.Errorf("created columns = %v", doc.columns["Dossiers"])
	}
}

func TestEnsureColumnsIsAdditiveOnly(t *testing.T) {
	doc := newFakeDoc()
	doc.columns["Dossiers"] = []ColumnDef{
		{ID: "number", Fields: ColumnFields{Type: "Int"}},
		{ID: "ancienne_colonne", Fields: ColumnFields{Type: "Text"}},
	}
	cache := schema.NewColumnCache()
	r := NewReconciler(testClient(t, doc), cache, 50)

	want := []schema.Column{
		{ID: "number", Type: schema.Int},
		{ID: "state", Type: schema.Text},
	}
	if err := r.EnsureTable(context.Background(), "Dossiers", want); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}

	got := doc.columns["Dossiers"]
	if len(got) != 3 {
		t.Fatalf("columns = %v, want the old column preserved and state added", got)
	}
	if got[2].ID != "state" {
		t.Errorf("added column = %v", got[2])
	}

	// Cache was invalidated by the add, so a fresh EnsureColumns sees the
	// grown set and adds nothing.
	if err := r.EnsureColumns(context.Background(), "Dossiers", want); err != nil {
		t.Fatalf("EnsureColumns: %v", err)
	}
	if len(doc.columns["Dossiers"]) != 3 {
		t.Errorf("second pass changed columns: %v", doc.columns["Dossiers"])
	}
}

func TestUpsertSplitsCreatesAndUpdates(t *testing.T) {
	doc := newFakeDoc()
	doc.columns["Dossiers"] = []ColumnDef{}
	doc.rows["Dossiers"] = []Row{
		{ID: 10, Fields: map[string]any{"number": 101, "state": "en_instruction"}},
		{ID: 11, Fields: map[string]any{"number": 102, "state": "en_instruction"}},
	}
	doc.nextID = 12
	r := NewReconciler(testClient(t, doc), schema.NewColumnCache(), 50)

	recs := []flatten.Record{
		{"number": 101, "state": "accepte"},
		{"number": 103, "state": "en_construction"},
	}
	stats, err := r.Upsert(context.Background(), "Dossiers", recs, dossierKey, nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Created != 1 || stats.Updated != 1 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}

	byNumber := map[any]Row{}
	for _, row := range doc.rows["Dossiers"] {
		byNumber[fmt.Sprint(row.Fields["number"])] = row
	}
	if byNumber["101"].Fields["state"] != "accepte" {
		t.Errorf("row 101 = %v", byNumber["101"].Fields)
	}
	if byNumber["102"].Fields["state"] != "en_instruction" {
		t.Errorf("untouched row 102 = %v", byNumber["102"].Fields)
	}
	if _, ok := byNumber["103"]; !ok {
		t.Errorf("row 103 not created: %v", doc.rows["Dossiers"])
	}
}

func TestUpsertPadsFieldUnion(t *testing.T) {
	doc := newFakeDoc()
	doc.columns["Champs"] = []ColumnDef{}
	r := NewReconciler(testClient(t, doc), schema.NewColumnCache(), 50)

	recs := []flatten.Record{
		{"dossier_number": 1, "a": "x"},
		{"dossier_number": 2, "b": "y"},
	}
	keyFn := func(rec flatten.Record) string { return fmt.Sprint(rec["dossier_number"]) }
	if _, err := r.Upsert(context.Background(), "Champs", recs, keyFn, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	for _, row := range doc.rows["Champs"] {
		if _, ok := row.Fields["a"]; !ok {
			t.Errorf("row %v missing padded field a", row.Fields)
		}
		if _, ok := row.Fields["b"]; !ok {
			t.Errorf("row %v missing padded field b", row.Fields)
		}
	}
}

func TestUpsertGrowsColumnsFromRecords(t *testing.T) {
	doc := newFakeDoc()
	doc.columns["Dossiers"] = []ColumnDef{
		{ID: "number", Fields: ColumnFields{Type: "Int"}},
	}
	r := NewReconciler(testClient(t, doc), schema.NewColumnCache(), 50)

	recs := []flatten.Record{
		{"number": 101, "montant": 12.5, "date_depot": "2024-03-01T09:30:00Z"},
	}
	if _, err := r.Upsert(context.Background(), "Dossiers", recs, dossierKey, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	types := map[string]string{}
	for _, c := range doc.columns["Dossiers"] {
		types[c.ID] = c.Fields.Type
	}
	if types["montant"] != "Numeric" || types["date_depot"] != "DateTime" {
		t.Errorf("grown columns = %v", types)
	}
	if len(doc.columns["Dossiers"]) != 3 {
		t.Errorf("columns = %v, want number kept plus two added", doc.columns["Dossiers"])
	}
}

func TestUpsertDropsValuesWhenColumnAddFails(t *testing.T) {
	doc := newFakeDoc()
	doc.columns["Dossiers"] = []ColumnDef{
		{ID: "number", Fields: ColumnFields{Type: "Int"}},
	}
	doc.failColumnAdds = 1
	r := NewReconciler(testClient(t, doc), schema.NewColumnCache(), 50)

	recs := []flatten.Record{{"number": 101, "extra": "x"}}
	stats, err := r.Upsert(context.Background(), "Dossiers", recs, dossierKey, nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Created != 1 {
		t.Fatalf("stats = %+v, want the row still written", stats)
	}
	row := doc.rows["Dossiers"][0]
	if _, ok := row.Fields["extra"]; ok {
		t.Errorf("row = %v, want extra dropped with its failed column", row.Fields)
	}
	if row.Fields["number"] == nil {
		t.Errorf("row = %v, want number kept", row.Fields)
	}
}

func TestUpsertLegacyKeyMatch(t *testing.T) {
	doc := newFakeDoc()
	doc.columns["Repetables"] = []ColumnDef{}
	// A row written by an older version that never stored the block label:
	// its canonical key differs, and only the bare-row-id legacy spelling
	// can match it.
	doc.rows["Repetables"] = []Row{
		{ID: 20, Fields: map[string]any{
			"dossier_number":  float64(101),
			"block_label":     "",
			"block_row_index": float64(1),
			"block_row_id":    "7",
			"reference":       "old",
		}},
	}
	doc.nextID = 21
	r := NewReconciler(testClient(t, doc), schema.NewColumnCache(), 50)

	recs := []flatten.Record{
		{
			"dossier_number":  101,
			"block_label":     "Parcelles",
			"block_row_index": 1,
			"block_row_id":    "7",
			"reference":       "new",
		},
	}
	stats, err := r.Upsert(context.Background(), "Repetables", recs, flatten.RepeatableKey, flatten.LegacyRepeatableKeys)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Updated != 1 || stats.Created != 0 {
		t.Fatalf("stats = %+v, want legacy-keyed row updated in place", stats)
	}
	if doc.rows["Repetables"][0].Fields["reference"] != "new" {
		t.Errorf("row = %v", doc.rows["Repetables"][0].Fields)
	}
}

func TestUpsertBatchFailureFallsBackPerRecord(t *testing.T) {
	doc := newFakeDoc()
	doc.columns["Dossiers"] = []ColumnDef{}
	doc.failCreates = 1 // fail the batch call, then let singles through
	r := NewReconciler(testClient(t, doc), schema.NewColumnCache(), 50)

	recs := []flatten.Record{
		{"number": 201}, {"number": 202}, {"number": 203},
	}
	stats, err := r.Upsert(context.Background(), "Dossiers", recs, dossierKey, nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Created != 3 || stats.Failed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(doc.rows["Dossiers"]) != 3 {
		t.Errorf("rows = %v", doc.rows["Dossiers"])
	}
}

func TestUpsertUpdateFailureCountsFailed(t *testing.T) {
	doc := newFakeDoc()
	doc.columns["Dossiers"] = []ColumnDef{}
	doc.rows["Dossiers"] = []Row{
		{ID: 10, Fields: map[string]any{"number": 101}},
	}
	doc.nextID = 11
	doc.failUpdates = 2 // batch fails, then the single retry fails too
	r := NewReconciler(testClient(t, doc), schema.NewColumnCache(), 50)

	stats, err := r.Upsert(context.Background(), "Dossiers", []flatten.Record{{"number": 101, "state": "accepte"}}, dossierKey, nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Failed != 1 || stats.Updated != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestUpsertDeduplicatesByKey(t *testing.T) {
	doc := newFakeDoc()
	doc.columns["Dossiers"] = []ColumnDef{}
	r := NewReconciler(testClient(t, doc), schema.NewColumnCache(), 50)

	recs := []flatten.Record{
		{"number": 101, "state": "a"},
		{"number": 101, "state": "b"},
	}
	stats, err := r.Upsert(context.Background(), "Dossiers", recs, dossierKey, nil)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Created != 1 {
		t.Fatalf("stats = %+v, want duplicate keys collapsed", stats)
	}
}
