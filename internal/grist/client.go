// Package grist is the spreadsheet-backend client and the write-side
// reconciler: table and column management, full-table reads and batched
// record upserts against a Grist document's REST API.
package grist

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"dssync/internal/httpjson"
	"dssync/internal/schema"
)

// Client talks to one Grist document. Construct per run with NewClient; the
// API key is baked into the underlying HTTP client's headers.
type Client struct {
	http    *httpjson.Client
	baseURL string
	docID   string
}

// NewClient returns a client bound to one document. baseURL is the server
// root, for example "https://grist.example.org".
func NewClient(baseURL, docID, apiKey string, cfg httpjson.Config) *Client {
	if cfg.BaseHeaders == nil {
		cfg.BaseHeaders = http.Header{}
	}
	cfg.BaseHeaders.Set("Authorization", "Bearer "+apiKey)
	return &Client{
		http:    httpjson.NewClient(cfg),
		baseURL: baseURL,
		docID:   docID,
	}
}

func (c *Client) tableURL(tableID, suffix string) string {
	return fmt.Sprintf("%s/api/docs/%s/tables/%s/%s",
		c.baseURL, url.PathEscape(c.docID), url.PathEscape(tableID), suffix)
}

// Table is one table of the document.
type Table struct {
	ID string `json:"id"`
}

// ColumnFields is the mutable part of a column definition.
type ColumnFields struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
}

// ColumnDef is one column of a table.
type ColumnDef struct {
	ID     string       `json:"id"`
	Fields ColumnFields `json:"fields"`
}

// Row is one stored record: the backend's internal row id plus the cell
// values keyed by column id.
type Row struct {
	ID     int64          `json:"id"`
	Fields map[string]any `json:"fields"`
}

// ListTables returns the document's tables.
func (c *Client) ListTables(ctx context.Context) ([]Table, error) {
	var resp struct {
		Tables []Table `json:"tables"`
	}
	u := fmt.Sprintf("%s/api/docs/%s/tables", c.baseURL, url.PathEscape(c.docID))
	if err := c.http.GetJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return resp.Tables, nil
}

// CreateTable creates a table with the given columns.
func (c *Client) CreateTable(ctx context.Context, tableID string, cols []schema.Column) error {
	defs := make([]ColumnDef, len(cols))
	for i, col := range cols {
		defs[i] = ColumnDef{ID: col.ID, Fields: ColumnFields{Type: string(col.Type), Label: col.ID}}
	}
	payload := map[string]any{
		"tables": []map[string]any{
			{"id": tableID, "columns": defs},
		},
	}
	u := fmt.Sprintf("%s/api/docs/%s/tables", c.baseURL, url.PathEscape(c.docID))
	if err := c.http.PostJSON(ctx, u, payload, nil); err != nil {
		return fmt.Errorf("create table %s: %w", tableID, err)
	}
	return nil
}

// ListColumns returns the current columns of a table.
func (c *Client) ListColumns(ctx context.Context, tableID string) ([]ColumnDef, error) {
	var resp struct {
		Columns []ColumnDef `json:"columns"`
	}
	if err := c.http.GetJSON(ctx, c.tableURL(tableID, "columns"), &resp); err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", tableID, err)
	}
	return resp.Columns, nil
}

// AddColumns adds columns to a table. The backend rejects duplicates, so
// callers filter against ListColumns first.
func (c *Client) AddColumns(ctx context.Context, tableID string, cols []schema.Column) error {
	if len(cols) == 0 {
		return nil
	}
	defs := make([]ColumnDef, len(cols))
	for i, col := range cols {
		defs[i] = ColumnDef{ID: col.ID, Fields: ColumnFields{Type: string(col.Type), Label: col.ID}}
	}
	payload := map[string]any{"columns": defs}
	if err := c.http.PostJSON(ctx, c.tableURL(tableID, "columns"), payload, nil); err != nil {
		return fmt.Errorf("add columns to %s: %w", tableID, err)
	}
	return nil
}

// ListRows reads every record of a table. The read is unfiltered on purpose:
// the reconciler indexes the full table by business key once per batch
// cycle, which is cheaper than per-record filtered queries at typical sizes.
func (c *Client) ListRows(ctx context.Context, tableID string) ([]Row, error) {
	var resp struct {
		Records []Row `json:"records"`
	}
	if err := c.http.GetJSON(ctx, c.tableURL(tableID, "records"), &resp); err != nil {
		return nil, fmt.Errorf("list rows of %s: %w", tableID, err)
	}
	return resp.Records, nil
}

// CreateRows inserts new records.
func (c *Client) CreateRows(ctx context.Context, tableID string, fields []map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	records := make([]map[string]any, len(fields))
	for i, f := range fields {
		records[i] = map[string]any{"fields": f}
	}
	payload := map[string]any{"records": records}
	if err := c.http.PostJSON(ctx, c.tableURL(tableID, "records"), payload, nil); err != nil {
		return fmt.Errorf("create rows in %s: %w", tableID, err)
	}
	return nil
}

// UpdateRows patches existing records by internal row id.
func (c *Client) UpdateRows(ctx context.Context, tableID string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	records := make([]map[string]any, len(rows))
	for i, r := range rows {
		records[i] = map[string]any{"id": r.ID, "fields": r.Fields}
	}
	payload := map[string]any{"records": records}
	if err := c.http.PatchJSON(ctx, c.tableURL(tableID, "records"), payload, nil); err != nil {
		return fmt.Errorf("update rows in %s: %w", tableID, err)
	}
	return nil
}
