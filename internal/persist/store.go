// Package persist is the durable state of the browser: saved connections,
// query history and the table cache, each kept as one pretty-printed JSON
// document in a filestore.Store and saved through a DebouncedWriter.
//
// Usage:
//
//	store := persist.New(filestore.NewLocal(dataDir), persist.Options{Logger: log})
//	report, err := store.Load(ctx)
//	if err != nil { ... }
//	defer store.Close(ctx)
package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/koustreak/dbbrowse/internal/cache"
	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/filestore"
	"github.com/koustreak/dbbrowse/internal/logger"
)

// Document names.
const (
	ConnectionsFile = "connections.json"
	HistoryFile     = "query-history.json"
	TableCacheFile  = "table-cache.json"
)

// DefaultHistoryLimit caps the number of history items kept.
const DefaultHistoryLimit = 100

// Options configures a Store. Zero values use the defaults.
type Options struct {
	DebounceDelay time.Duration
	HistoryLimit  int
	Logger        *logger.Logger

	// Now is the clock used for timestamps.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DebounceDelay <= 0 {
		o.DebounceDelay = DefaultDebounceDelay
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// tableCacheDoc is connection id -> cache key -> entry.
type tableCacheDoc map[string]map[string]cache.Entry

// Store holds the persisted state in memory and schedules saves on change.
// It is safe for concurrent use.
type Store struct {
	files filestore.Store
	opts  Options
	log   *logger.Logger

	mu          sync.RWMutex
	connections []ConnectionInfo
	history     []QueryHistoryItem
	tableCache  tableCacheDoc

	connWriter  *DebouncedWriter[[]ConnectionInfo]
	histWriter  *DebouncedWriter[[]QueryHistoryItem]
	cacheWriter *DebouncedWriter[tableCacheDoc]
}

// New returns an empty Store over files. Call Load to read existing state.
func New(files filestore.Store, opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		files:      files,
		opts:       opts,
		log:        logger.OrNop(opts.Logger).Component("persist"),
		tableCache: make(tableCacheDoc),
	}
	s.connWriter = NewDebouncedWriter(ConnectionsFile, opts.DebounceDelay, saveJSON[[]ConnectionInfo](files, ConnectionsFile), s.log)
	s.histWriter = NewDebouncedWriter(HistoryFile, opts.DebounceDelay, saveJSON[[]QueryHistoryItem](files, HistoryFile), s.log)
	s.cacheWriter = NewDebouncedWriter(TableCacheFile, opts.DebounceDelay, saveJSON[tableCacheDoc](files, TableCacheFile), s.log)
	return s
}

func saveJSON[T any](files filestore.Store, name string) SaveFunc[T] {
	return func(ctx context.Context, v T) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "encode "+name, err)
		}
		return files.Write(ctx, name, append(data, '\n'))
	}
}

// read returns the document, or nil when it does not exist yet.
func (s *Store) read(ctx context.Context, name string) ([]byte, error) {
	data, err := s.files.Read(ctx, name)
	if errs.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	return data, nil
}

// --- loading ---

// Load replaces the in-memory state with the stored documents. Missing
// documents load as empty. Malformed connections or history documents fail
// the load; a malformed table cache is logged and reset.
func (s *Store) Load(ctx context.Context) (LoadReport, error) {
	var report LoadReport

	conns, rewrite, err := s.loadConnections(ctx, &report)
	if err != nil {
		return report, err
	}
	history, err := s.loadHistory(ctx)
	if err != nil {
		return report, err
	}
	tc := s.loadTableCache(ctx, &report)

	report.History = len(history)

	s.mu.Lock()
	s.connections = conns
	s.history = history
	s.tableCache = tc
	if rewrite {
		s.connWriter.Write(slices.Clone(conns))
	}
	if report.CacheDropped > 0 || report.CacheReset {
		s.scheduleTableCache()
	}
	s.mu.Unlock()

	s.log.InfoWith("state loaded", map[string]interface{}{
		"connections":  report.Connections,
		"normalized":   report.Normalized,
		"skipped":      report.Skipped,
		"history":      report.History,
		"cache_tables": report.CacheEntries,
	})
	return report, nil
}

func (s *Store) loadConnections(ctx context.Context, report *LoadReport) ([]ConnectionInfo, bool, error) {
	data, err := s.read(ctx, ConnectionsFile)
	if err != nil || data == nil {
		return nil, false, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, errs.Wrap(errs.ErrKindInvalidInput, "malformed "+ConnectionsFile, err)
	}

	now := s.opts.Now()
	conns := make([]ConnectionInfo, 0, len(raw))
	for i, r := range raw {
		if c, ok := parseCurrent(r); ok {
			conns = append(conns, c)
			continue
		}
		c, reason := migrateLegacy(r, now)
		if reason != SkipNone {
			report.Skipped++
			s.log.With().Int("index", i).Str("reason", string(reason)).Logger().Warn("skipping saved connection")
			continue
		}
		report.Normalized++
		conns = append(conns, c)
	}

	conns, report.Deduplicated = dedupe(conns)
	report.Connections = len(conns)
	rewrite := report.Normalized > 0 || report.Skipped > 0 || report.Deduplicated > 0
	return conns, rewrite, nil
}

func (s *Store) loadHistory(ctx context.Context) ([]QueryHistoryItem, error) {
	data, err := s.read(ctx, HistoryFile)
	if err != nil || data == nil {
		return nil, err
	}
	var items []QueryHistoryItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed "+HistoryFile, err)
	}
	if len(items) > s.opts.HistoryLimit {
		items = items[:s.opts.HistoryLimit]
	}
	return items, nil
}

func (s *Store) loadTableCache(ctx context.Context, report *LoadReport) tableCacheDoc {
	tc := make(tableCacheDoc)

	data, err := s.read(ctx, TableCacheFile)
	if err != nil {
		s.log.WarnWith("table cache unreadable, starting empty", err, nil)
		report.CacheReset = true
		return tc
	}
	if data == nil {
		return tc
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.WarnWith("table cache malformed, starting empty", err, nil)
		report.CacheReset = true
		return tc
	}

	for connID, bucket := range raw {
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(bucket, &entries); err != nil {
			report.CacheDropped++
			s.log.With().Str("connection_id", connID).Logger().WarnWith("dropping invalid table cache bucket", err, nil)
			continue
		}
		valid := make(map[string]cache.Entry, len(entries))
		for key, r := range entries {
			e, ok := decodeCacheEntry(r)
			if !ok {
				report.CacheDropped++
				s.log.With().Str("connection_id", connID).Str("key", key).Logger().Warn("dropping invalid table cache entry")
				continue
			}
			valid[key] = e
		}
		if len(valid) > 0 {
			tc[connID] = valid
			report.CacheEntries += len(valid)
		}
	}
	return tc
}

// decodeCacheEntry validates one entry: columns and rows must be arrays (or
// null), offset a non-negative integer.
func decodeCacheEntry(raw json.RawMessage) (cache.Entry, bool) {
	var shape struct {
		Columns json.RawMessage `json:"columns"`
		Rows    json.RawMessage `json:"rows"`
		HasMore *bool           `json:"hasMore"`
		Offset  *int            `json:"offset"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil || shape.Offset == nil || *shape.Offset < 0 {
		return cache.Entry{}, false
	}
	if !isArrayOrNull(shape.Columns) || !isArrayOrNull(shape.Rows) {
		return cache.Entry{}, false
	}

	var e cache.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return cache.Entry{}, false
	}
	for _, c := range e.Columns {
		if c.Name == "" {
			return cache.Entry{}, false
		}
	}
	return e, true
}

func isArrayOrNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || strings.HasPrefix(s, "[")
}

// --- connections ---

// Connections returns the saved connections in stored order.
func (s *Store) Connections() []ConnectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.connections)
}

// Connection returns the saved connection with id.
func (s *Store) Connection(id string) (ConnectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.connections[i], nil
	}
	return ConnectionInfo{}, errs.New(errs.ErrKindNotFound, fmt.Sprintf("connection %q not found", id))
}

// indexOf finds a connection by id. Caller holds mu.
func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.connections, func(c ConnectionInfo) bool { return c.ID == id })
}

// UpsertConnection saves c. An entry with the same ID is edited in place;
// otherwise an entry with the same dialect and connection string is renamed.
// Either way ID and CreatedAt are preserved. A new entry gets a fresh ID.
func (s *Store) UpsertConnection(c ConnectionInfo) (ConnectionInfo, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return ConnectionInfo{}, errs.New(errs.ErrKindInvalidInput, "connection name is required")
	}
	if c.ConnectionString == "" {
		return ConnectionInfo{}, errs.New(errs.ErrKindInvalidInput, "connection string is required")
	}
	if !c.Dialect.Valid() {
		return ConnectionInfo{}, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unsupported dialect %q", c.Dialect))
	}

	s.mu.Lock()
	now := s.opts.Now()

	byKey := slices.IndexFunc(s.connections, func(o ConnectionInfo) bool { return o.naturalKey() == c.naturalKey() })
	i := -1
	if c.ID != "" {
		i = s.indexOf(c.ID)
	}
	if i < 0 {
		i = byKey
	} else if byKey >= 0 && byKey != i {
		s.mu.Unlock()
		return ConnectionInfo{}, errs.New(errs.ErrKindConflict,
			fmt.Sprintf("connection %q already uses this connection string", s.connections[byKey].Name))
	}

	if i >= 0 {
		old := s.connections[i]
		c.ID = old.ID
		c.CreatedAt = old.CreatedAt
	} else {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	conns := slices.Clone(s.connections)
	if i >= 0 {
		conns[i] = c
	} else {
		conns = append(conns, c)
	}
	s.connections = conns
	s.connWriter.Write(conns)
	s.mu.Unlock()
	return c, nil
}

// RenameConnection changes the display name of a saved connection.
func (s *Store) RenameConnection(id, name string) (ConnectionInfo, error) {
	c, err := s.Connection(id)
	if err != nil {
		return ConnectionInfo{}, err
	}
	c.Name = name
	return s.UpsertConnection(c)
}

// DeleteConnection removes a saved connection and its table cache. Deleting
// the active connection is refused.
func (s *Store) DeleteConnection(id, activeID string) error {
	if id == activeID {
		return errs.New(errs.ErrKindConflict, "cannot delete the active connection")
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return errs.New(errs.ErrKindNotFound, fmt.Sprintf("connection %q not found", id))
	}
	conns := slices.Delete(slices.Clone(s.connections), i, i+1)
	s.connections = conns
	s.connWriter.Write(conns)
	if _, ok := s.tableCache[id]; ok {
		delete(s.tableCache, id)
		s.scheduleTableCache()
	}
	s.mu.Unlock()
	return nil
}

// --- history ---

// AddHistory prepends item, trimming the history to the limit. A missing ID
// or ExecutedAt is filled in.
func (s *Store) AddHistory(item QueryHistoryItem) QueryHistoryItem {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.ExecutedAt.IsZero() {
		item.ExecutedAt = s.opts.Now()
	}

	s.mu.Lock()
	history := make([]QueryHistoryItem, 0, min(len(s.history)+1, s.opts.HistoryLimit))
	history = append(history, item)
	history = append(history, s.history[:min(len(s.history), s.opts.HistoryLimit-1)]...)
	s.history = history
	s.histWriter.Write(history)
	s.mu.Unlock()
	return item
}

// History returns the newest items first. An empty connID returns items for
// every connection; limit <= 0 returns all of them.
func (s *Store) History(connID string, limit int) []QueryHistoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]QueryHistoryItem, 0, len(s.history))
	for _, h := range s.history {
		if connID != "" && h.ConnectionID != connID {
			continue
		}
		out = append(out, h)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// --- table cache ---

// TableCache returns a copy of the stored entries for a connection.
func (s *Store) TableCache(connID string) map[string]cache.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]cache.Entry, len(s.tableCache[connID]))
	for k, e := range s.tableCache[connID] {
		out[k] = e
	}
	return out
}

// PutTableCacheEntry stores the entry for one table of a connection.
func (s *Store) PutTableCacheEntry(connID, key string, e cache.Entry) {
	s.mu.Lock()
	entries := s.tableCache[connID]
	if entries == nil {
		entries = make(map[string]cache.Entry)
		s.tableCache[connID] = entries
	}
	entries[key] = e
	s.scheduleTableCache()
	s.mu.Unlock()
}

// DeleteTableCacheEntry forgets one table of a connection.
func (s *Store) DeleteTableCacheEntry(connID, key string) {
	s.mu.Lock()
	entries, ok := s.tableCache[connID]
	if ok {
		delete(entries, key)
		if len(entries) == 0 {
			delete(s.tableCache, connID)
		}
		s.scheduleTableCache()
	}
	s.mu.Unlock()
}

// ClearTableCache forgets every table of a connection.
func (s *Store) ClearTableCache(connID string) {
	s.mu.Lock()
	if _, ok := s.tableCache[connID]; ok {
		delete(s.tableCache, connID)
		s.scheduleTableCache()
	}
	s.mu.Unlock()
}

// scheduleTableCache hands the writer a snapshot; the live maps keep changing.
// Caller holds mu, so snapshots reach the writer in mutation order.
func (s *Store) scheduleTableCache() {
	doc := make(tableCacheDoc, len(s.tableCache))
	for connID, entries := range s.tableCache {
		m := make(map[string]cache.Entry, len(entries))
		for k, e := range entries {
			m[k] = e
		}
		doc[connID] = m
	}
	s.cacheWriter.Write(doc)
}

// --- lifecycle ---

// Flush saves every pending document now.
func (s *Store) Flush(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.connWriter.Flush(ctx) })
	g.Go(func() error { return s.histWriter.Flush(ctx) })
	g.Go(func() error { return s.cacheWriter.Flush(ctx) })
	return g.Wait()
}

// Close flushes every writer and closes the underlying file store.
func (s *Store) Close(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.connWriter.Close(ctx) })
	g.Go(func() error { return s.histWriter.Close(ctx) })
	g.Go(func() error { return s.cacheWriter.Close(ctx) })
	err := g.Wait()
	if cerr := s.files.Close(); err == nil {
		err = cerr
	}
	return err
}
