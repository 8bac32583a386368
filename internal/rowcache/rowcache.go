// Package rowcache is the per-table result cache for projection reads.
//
// Entries are keyed by (table, sorted requested-column tuple), so the same
// table pulled with different column subsets occupies distinct entries. Any
// write to a table must evict every entry for that table regardless of
// projection; Invalidate matches the table component exactly.
package rowcache

import (
	"sort"
	"strings"
	"sync"
)

// Key identifies one cached projection.
type Key struct {
	Table string
	// Projection is "*" for full-table reads, otherwise the sorted column
	// names joined with an unprintable separator (column names containing
	// the separator are rejected upstream by the name guard).
	Projection string
}

// NewKey builds a cache key for a table and an optional column subset.
// Columns are sorted into a copy so the key is order-insensitive.
func NewKey(table string, columns []string) Key {
	if len(columns) == 0 {
		return Key{Table: table, Projection: "*"}
	}
	sorted := append([]string(nil), columns...)
	sort.Strings(sorted)
	return Key{Table: table, Projection: strings.Join(sorted, "\x00")}
}

// Cache stores row-sets per key. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key][]map[string]any
}

func New() *Cache {
	return &Cache{entries: map[Key][]map[string]any{}}
}

// Lookup returns the cached rows for k, if any.
func (c *Cache) Lookup(k Key) ([]map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.entries[k]
	return rows, ok
}

// GetOrLoad returns the cached rows for k, invoking loader only on a miss.
// The second return reports whether the result came from the cache.
//
// A loader error is returned as-is and never populates the cache, so a
// failed (or refused) load is retried on the next call.
func (c *Cache) GetOrLoad(k Key, loader func() ([]map[string]any, error)) ([]map[string]any, bool, error) {
	if rows, ok := c.Lookup(k); ok {
		return rows, true, nil
	}
	rows, err := loader()
	if err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	c.entries[k] = rows
	c.mu.Unlock()
	return rows, false, nil
}

// Invalidate evicts every entry whose key's table component equals table,
// regardless of projection, and returns the number of entries removed.
func (c *Cache) Invalidate(table string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if k.Table == table {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[Key][]map[string]any{}
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
