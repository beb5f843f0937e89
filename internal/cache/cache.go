// Package cache holds the per-connection table cache: columns and the last
// fetched page of rows for every table the user has opened.
package cache

import (
	"sync"

	"github.com/koustreak/dbbrowse/internal/database"
)

// Entry is the cached view of one table. Offset is the offset of the last
// fetched page, not a cursor.
type Entry struct {
	Columns []database.ColumnInfo `json:"columns"`
	Rows    []database.DataRow    `json:"rows"`
	HasMore bool                  `json:"hasMore"`
	Offset  int                   `json:"offset"`
}

// clone returns a copy whose slices can be handed out safely.
func (e *Entry) clone() Entry {
	out := Entry{HasMore: e.HasMore, Offset: e.Offset}
	if e.Columns != nil {
		out.Columns = append([]database.ColumnInfo(nil), e.Columns...)
	}
	if e.Rows != nil {
		out.Rows = append([]database.DataRow(nil), e.Rows...)
	}
	return out
}

// TableCache maps cache keys (see database.CacheKey) to entries for one
// connection. It is safe for concurrent use.
type TableCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	gens    map[string]uint64
}

// New returns an empty cache.
func New() *TableCache {
	return &TableCache{
		entries: make(map[string]*Entry),
		gens:    make(map[string]uint64),
	}
}

// Get returns a copy of the entry for key.
func (c *TableCache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// entry returns the entry for key, creating an empty one first. Caller holds mu.
func (c *TableCache) entry(key string) *Entry {
	e, ok := c.entries[key]
	if !ok {
		e = &Entry{}
		c.entries[key] = e
	}
	return e
}

// SetColumns stores columns for key, leaving rows untouched.
func (c *TableCache) SetColumns(key string, cols []database.ColumnInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry(key).Columns = cols
}

// SetRows stores a page for key, leaving columns untouched.
func (c *TableCache) SetRows(key string, rows []database.DataRow, hasMore bool, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	e.Rows = rows
	e.HasMore = hasMore
	e.Offset = offset
}

// BeginFetch starts a new fetch generation for key. Results from any
// earlier generation are dropped by the *IfCurrent setters.
func (c *TableCache) BeginFetch(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	return c.gens[key]
}

// SetColumnsIfCurrent is SetColumns guarded by the fetch generation.
// It reports whether the columns were stored.
func (c *TableCache) SetColumnsIfCurrent(key string, gen uint64, cols []database.ColumnInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return false
	}
	c.entry(key).Columns = cols
	return true
}

// SetRowsIfCurrent is SetRows guarded by the fetch generation.
// It reports whether the page was stored.
func (c *TableCache) SetRowsIfCurrent(key string, gen uint64, rows []database.DataRow, hasMore bool, offset int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		return false
	}
	e := c.entry(key)
	e.Rows = rows
	e.HasMore = hasMore
	e.Offset = offset
	return true
}

// Delete removes the entry for key. A fetch already in flight for key is
// superseded and its result dropped.
func (c *TableCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.gens[key]++
}

// Clear removes every entry and supersedes every fetch in flight.
func (c *TableCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	for key := range c.gens {
		c.gens[key]++
	}
}

// Len returns the number of cached tables.
func (c *TableCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot copies every entry, for persistence.
func (c *TableCache) Snapshot() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Entry, len(c.entries))
	for k, e := range c.entries {
		out[k] = e.clone()
	}
	return out
}

// Load replaces the cache contents with entries.
func (c *TableCache) Load(entries map[string]Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry, len(entries))
	for k, e := range entries {
		e := e
		c.entries[k] = &e
	}
}
