package schema

import "sync"

// ColumnCache memoizes the column shape of target tables for one
// orchestrator run, avoiding redundant column-listing calls. It is owned by
// the run that created it: a second concurrent run against the same document
// is out of scope, so no cross-process invalidation exists. Invalidate is
// called exactly where columns are added.
type ColumnCache struct {
	mu     sync.RWMutex
	tables map[string][]Column
}

// NewColumnCache returns an empty cache.
func NewColumnCache() *ColumnCache {
	return &ColumnCache{tables: map[string][]Column{}}
}

// Get returns the cached column set of a table, or nil when not cached.
func (c *ColumnCache) Get(tableID string) []Column {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[tableID]
}

// Put stores the column set of a table.
func (c *ColumnCache) Put(tableID string, cols []Column) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[tableID] = cols
}

// Invalidate drops the cached shape of a table. Called after add-columns so
// the next read reflects the grown set.
func (c *ColumnCache) Invalidate(tableID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, tableID)
}
