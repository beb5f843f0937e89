// Package effects sequences the browser's side effects: open a connection,
// introspect, fetch, cache and persist. Every operation opens its own
// adapter and closes it before returning, and turns a failure into exactly
// one error notice.
package effects

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/dbbrowse/internal/cache"
	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/logger"
	"github.com/koustreak/dbbrowse/internal/persist"
	"github.com/koustreak/dbbrowse/internal/rows"
	"github.com/koustreak/dbbrowse/internal/schema"
)

// DefaultPageSize is the number of rows fetched per page.
const DefaultPageSize = 100

// AdapterFactory creates unconnected adapters. *factory.Factory implements it.
type AdapterFactory interface {
	Create(cfg database.ConnectionConfig) (database.Adapter, error)
}

// Options tunes an Orchestrator. Zero values use the defaults.
type Options struct {
	PageSize        int
	RefreshThrottle time.Duration
	Pool            *database.PoolOptions
	Logger          *logger.Logger
	Now             func() time.Time
}

// Orchestrator is the single entry point used by the CLI and HTTP server.
// It is safe for concurrent use.
type Orchestrator struct {
	factory  AdapterFactory
	store    *persist.Store
	notifier Notifier
	log      *logger.Logger

	pageSize int
	pool     *database.PoolOptions
	now      func() time.Time
	throttle *cache.Throttle

	mu     sync.Mutex
	caches map[string]*cache.TableCache
}

// New wires an Orchestrator. A nil notifier discards notices.
func New(f AdapterFactory, store *persist.Store, n Notifier, opts Options) *Orchestrator {
	if n == nil {
		n = NotifierFunc(func(Level, string) {})
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		factory:  f,
		store:    store,
		notifier: n,
		log:      logger.OrNop(opts.Logger).Component("effects"),
		pageSize: opts.PageSize,
		pool:     opts.Pool,
		now:      opts.Now,
		throttle: cache.NewThrottle(opts.RefreshThrottle),
		caches:   make(map[string]*cache.TableCache),
	}
}

// PageSize returns the configured page size.
func (o *Orchestrator) PageSize() int { return o.pageSize }

// --- plumbing ---

// withAdapter opens an adapter for cfg, runs fn and always closes it.
func (o *Orchestrator) withAdapter(ctx context.Context, cfg database.ConnectionConfig, fn func(database.Adapter) error) error {
	if cfg.Pool == nil {
		cfg.Pool = o.pool
	}
	a, err := o.factory.Create(cfg)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))

	if err := a.Connect(ctx); err != nil {
		return err
	}
	return fn(a)
}

// withConnection is withAdapter for a saved connection.
func (o *Orchestrator) withConnection(ctx context.Context, connID string, fn func(database.Adapter) error) error {
	info, err := o.store.Connection(connID)
	if err != nil {
		return err
	}
	o.log.Connection(info.ID, string(info.Dialect)).Debug("opening session")
	return o.withAdapter(ctx, info.Config(), fn)
}

// fail logs err, sends one error notice and returns err unchanged.
func (o *Orchestrator) fail(op string, err error) error {
	o.log.WarnWith(op+" failed", err, map[string]interface{}{"kind": errs.KindOf(err).String()})
	o.notifier.Notify(LevelError, fmt.Sprintf("%s: %s", op, describe(err)))
	return err
}

// describe renders err for a user: the message, the driver code if any and
// the underlying cause.
func describe(err error) string {
	var e *errs.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	return msg
}

// cacheFor returns the table cache of a connection, seeding it from the
// store on first use.
func (o *Orchestrator) cacheFor(connID string) *cache.TableCache {
	o.mu.Lock()
	defer o.mu.Unlock()
	tc, ok := o.caches[connID]
	if !ok {
		tc = cache.New()
		tc.Load(o.store.TableCache(connID))
		o.caches[connID] = tc
	}
	return tc
}

// persistEntry saves the entry unless the cache was cleared while the fetch
// was in flight.
func (o *Orchestrator) persistEntry(connID, key string, tc *cache.TableCache) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.caches[connID] != tc {
		return
	}
	if e, ok := tc.Get(key); ok {
		o.store.PutTableCacheEntry(connID, key, e)
	}
}

func throttlePrefix(connID string) string {
	return connID + "\x00"
}

func throttleKey(connID, key string) string {
	return throttlePrefix(connID) + key
}

// --- state ---

// LoadState loads persisted state and reports skipped and migrated saved
// connections with one notice each.
func (o *Orchestrator) LoadState(ctx context.Context) (persist.LoadReport, error) {
	report, err := o.store.Load(ctx)
	if err != nil {
		return report, o.fail("Loading saved state", err)
	}
	if report.Skipped > 0 {
		o.notifier.Notify(LevelWarning, fmt.Sprintf("Skipped %d invalid saved connection(s)", report.Skipped))
	}
	if report.Normalized > 0 {
		o.notifier.Notify(LevelInfo, fmt.Sprintf("Migrated %d saved connection(s) from the old format", report.Normalized))
	}
	if report.CacheReset {
		o.notifier.Notify(LevelWarning, "Table cache was unreadable and has been reset")
	}
	return report, nil
}

// Shutdown flushes every pending write.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if err := o.store.Close(ctx); err != nil {
		o.log.ErrorWith("flush on shutdown failed", err, nil)
		return err
	}
	return nil
}

// --- connections ---

// Connections returns the saved connections.
func (o *Orchestrator) Connections() []persist.ConnectionInfo {
	return o.store.Connections()
}

// Connect verifies cfg by connecting and listing tables, then saves it under
// name. An empty name is derived from the connection string.
func (o *Orchestrator) Connect(ctx context.Context, name string, cfg database.ConnectionConfig) (persist.ConnectionInfo, []database.TableInfo, error) {
	var tables []database.TableInfo
	err := o.withAdapter(ctx, cfg, func(a database.Adapter) error {
		in, err := schema.New(a)
		if err != nil {
			return err
		}
		tables, err = in.ListTables(ctx)
		return err
	})
	if err != nil {
		return persist.ConnectionInfo{}, nil, o.fail("Connection failed", err)
	}

	if strings.TrimSpace(name) == "" {
		name = defaultName(cfg)
	}
	info, err := o.store.UpsertConnection(persist.ConnectionInfo{
		Name:             name,
		Dialect:          cfg.Dialect,
		ConnectionString: cfg.ConnectionString,
	})
	if err != nil {
		return persist.ConnectionInfo{}, nil, o.fail("Saving connection", err)
	}

	o.notifier.Notify(LevelInfo, fmt.Sprintf("Connected to %s (%d tables)", info.Name, len(tables)))
	return info, tables, nil
}

// defaultName is the part of the connection string after the last '/' or
// '@', without query string, or the dialect when nothing is left.
func defaultName(cfg database.ConnectionConfig) string {
	s := cfg.ConnectionString
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexAny(s, "/@"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return string(cfg.Dialect)
	}
	return s
}

// RenameConnection changes a saved connection's display name.
func (o *Orchestrator) RenameConnection(id, name string) (persist.ConnectionInfo, error) {
	info, err := o.store.RenameConnection(id, name)
	if err != nil {
		return persist.ConnectionInfo{}, o.fail("Rename failed", err)
	}
	return info, nil
}

// DeleteConnection removes a saved connection unless it is the active one,
// discarding its cached tables.
func (o *Orchestrator) DeleteConnection(id, activeID string) error {
	if err := o.store.DeleteConnection(id, activeID); err != nil {
		return o.fail("Delete failed", err)
	}
	o.mu.Lock()
	delete(o.caches, id)
	o.mu.Unlock()
	o.throttle.ForgetPrefix(throttlePrefix(id))
	o.notifier.Notify(LevelInfo, "Connection deleted")
	return nil
}

// --- browsing ---

// ListTables lists the tables of a saved connection.
func (o *Orchestrator) ListTables(ctx context.Context, connID string) ([]database.TableInfo, error) {
	var tables []database.TableInfo
	err := o.withConnection(ctx, connID, func(a database.Adapter) error {
		in, err := schema.New(a)
		if err != nil {
			return err
		}
		tables, err = in.ListTables(ctx)
		return err
	})
	if err != nil {
		return nil, o.fail("Listing tables", err)
	}
	return tables, nil
}

// ResolveTable finds a table by "name" or "schema.name".
func (o *Orchestrator) ResolveTable(ctx context.Context, connID, ref string) (database.TableInfo, error) {
	var table database.TableInfo
	err := o.withConnection(ctx, connID, func(a database.Adapter) error {
		in, err := schema.New(a)
		if err != nil {
			return err
		}
		table, err = in.FindTable(ctx, ref)
		return err
	})
	if err != nil {
		return database.TableInfo{}, o.fail("Opening table", err)
	}
	return table, nil
}

// OpenTable (re)loads the columns and first page of table. A second refresh
// of the same table within the throttle interval is refused with a
// "please wait" notice and an errs.ErrKindThrottled error, whether or not
// the previous refresh succeeded.
func (o *Orchestrator) OpenTable(ctx context.Context, connID string, table database.TableInfo) (cache.Entry, error) {
	key := database.CacheKey(table)
	tk := throttleKey(connID, key)
	if !o.throttle.Acquire(tk) {
		o.notifier.Notify(LevelWarning, fmt.Sprintf("Please wait before refreshing %s again", table.Name))
		return cache.Entry{}, errs.New(errs.ErrKindThrottled, "refresh throttled")
	}
	defer o.throttle.Record(tk)

	tc := o.cacheFor(connID)
	gen := tc.BeginFetch(key)

	err := o.withConnection(ctx, connID, func(a database.Adapter) error {
		in, err := schema.New(a)
		if err != nil {
			return err
		}
		cols, err := in.ListColumns(ctx, table)
		if err != nil {
			return err
		}
		if !tc.SetColumnsIfCurrent(key, gen, cols) {
			return nil
		}

		page, hasMore, err := o.fetchPage(ctx, a, table, 0)
		if err != nil {
			return err
		}
		tc.SetRowsIfCurrent(key, gen, page, hasMore, 0)
		return nil
	})
	if err != nil {
		return cache.Entry{}, o.fail("Loading "+table.Name, err)
	}

	o.persistEntry(connID, key, tc)
	e, _ := tc.Get(key)
	return e, nil
}

// FetchPage loads the page of table starting at offset into the cache.
func (o *Orchestrator) FetchPage(ctx context.Context, connID string, table database.TableInfo, offset int) (cache.Entry, error) {
	if offset < 0 {
		offset = 0
	}
	key := database.CacheKey(table)
	tc := o.cacheFor(connID)
	gen := tc.BeginFetch(key)

	err := o.withConnection(ctx, connID, func(a database.Adapter) error {
		page, hasMore, err := o.fetchPage(ctx, a, table, offset)
		if err != nil {
			return err
		}
		tc.SetRowsIfCurrent(key, gen, page, hasMore, offset)
		return nil
	})
	if err != nil {
		return cache.Entry{}, o.fail("Loading "+table.Name, err)
	}

	o.persistEntry(connID, key, tc)
	e, _ := tc.Get(key)
	return e, nil
}

// fetchPage runs one page query. hasMore is a full page, so a table whose
// size is a multiple of the page size reports one extra empty page.
func (o *Orchestrator) fetchPage(ctx context.Context, a database.Adapter, table database.TableInfo, offset int) ([]database.DataRow, bool, error) {
	res, err := a.Query(ctx, database.PageQuery(a.Dialect(), table, o.pageSize, offset))
	if err != nil {
		return nil, false, err
	}
	return res.Rows, len(res.Rows) == o.pageSize, nil
}

// SearchResult is one page of search matches plus the total match count.
type SearchResult struct {
	Term    string             `json:"term"`
	Rows    []database.DataRow `json:"rows"`
	Total   int                `json:"total"`
	Offset  int                `json:"offset"`
	HasMore bool               `json:"hasMore"`
}

// Search finds rows of table containing term in any column. A blank term
// clears the search and returns an empty result without touching the
// database.
func (o *Orchestrator) Search(ctx context.Context, connID string, table database.TableInfo, term string, offset int) (*SearchResult, error) {
	if strings.TrimSpace(term) == "" {
		return &SearchResult{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	tc := o.cacheFor(connID)
	key := database.CacheKey(table)

	var result *SearchResult
	err := o.withConnection(ctx, connID, func(a database.Adapter) error {
		e, ok := tc.Get(key)
		cols := e.Columns
		if !ok || cols == nil {
			in, err := schema.New(a)
			if err != nil {
				return err
			}
			if cols, err = in.ListColumns(ctx, table); err != nil {
				return err
			}
			tc.SetColumns(key, cols)
		}

		q, err := database.SearchQuery(a.Dialect(), table, cols, term, o.pageSize, offset)
		if err != nil {
			return err
		}
		count, err := a.Query(ctx, q.CountSQL, q.Params...)
		if err != nil {
			return err
		}
		data, err := a.Query(ctx, q.DataSQL, q.Params...)
		if err != nil {
			return err
		}

		total := 0
		if len(count.Rows) > 0 {
			total = toInt(count.Rows[0]["total"])
		}
		result = &SearchResult{
			Term:    term,
			Rows:    data.Rows,
			Total:   total,
			Offset:  offset,
			HasMore: offset+len(data.Rows) < total,
		}
		return nil
	})
	if err != nil {
		return nil, o.fail("Search failed", err)
	}
	return result, nil
}

func toInt(v any) int {
	switch n := rows.ParseValue(v).(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

// CachedTable returns the cached view of table without touching the database.
func (o *Orchestrator) CachedTable(connID string, table database.TableInfo) (cache.Entry, bool) {
	return o.cacheFor(connID).Get(database.CacheKey(table))
}

// ClearTableCache forgets the cached view of one table.
func (o *Orchestrator) ClearTableCache(connID string, table database.TableInfo) {
	key := database.CacheKey(table)
	tc := o.cacheFor(connID)
	o.mu.Lock()
	tc.Delete(key)
	o.store.DeleteTableCacheEntry(connID, key)
	o.mu.Unlock()
	o.throttle.Forget(throttleKey(connID, key))
}

// ClearConnectionCache forgets every cached table of a connection.
func (o *Orchestrator) ClearConnectionCache(connID string) {
	o.mu.Lock()
	if tc, ok := o.caches[connID]; ok {
		tc.Clear()
		delete(o.caches, connID)
	}
	o.store.ClearTableCache(connID)
	o.mu.Unlock()
	o.throttle.ForgetPrefix(throttlePrefix(connID))
	o.notifier.Notify(LevelInfo, "Table cache cleared")
}

// --- queries ---

// ExecuteQuery runs a user statement and records it in the history whether
// it succeeds or fails. Statements that return rows go through Query, the
// rest through Execute with the affected row count as RowCount.
func (o *Orchestrator) ExecuteQuery(ctx context.Context, connID, sql string) (*database.QueryResult, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, o.fail("Query failed", errs.New(errs.ErrKindInvalidInput, "empty statement"))
	}

	start := o.now()
	var result *database.QueryResult
	err := o.withConnection(ctx, connID, func(a database.Adapter) error {
		if returnsRows(sql) {
			res, err := a.Query(ctx, sql)
			result = res
			return err
		}
		n, err := a.Execute(ctx, sql)
		if err == nil {
			result = &database.QueryResult{RowCount: int(n)}
		}
		return err
	})

	item := persist.QueryHistoryItem{
		ConnectionID: connID,
		Query:        sql,
		ExecutedAt:   start,
		DurationMs:   o.now().Sub(start).Milliseconds(),
	}
	if err != nil {
		item.Error = describe(err)
	} else {
		item.RowCount = result.RowCount
	}
	o.store.AddHistory(item)
	o.log.With().Str("conn", connID).Dur("elapsed", time.Duration(item.DurationMs)*time.Millisecond).
		Bool("ok", err == nil).Logger().Debug("statement executed")

	if err != nil {
		return nil, o.fail("Query failed", err)
	}
	return result, nil
}

var rowKeywords = []string{"SELECT", "WITH", "SHOW", "PRAGMA", "EXPLAIN", "DESCRIBE", "DESC", "VALUES", "TABLE"}

// returnsRows guesses from the leading keyword whether sql yields a result
// set. RETURNING clauses also count.
func returnsRows(sql string) bool {
	upper := strings.ToUpper(sql)
	fields := strings.Fields(strings.TrimLeft(upper, "( \t\r\n"))
	if len(fields) == 0 {
		return false
	}
	if slices.Contains(rowKeywords, fields[0]) {
		return true
	}
	return slices.Contains(fields, "RETURNING")
}

// History returns recent statements, newest first.
func (o *Orchestrator) History(connID string, limit int) []persist.QueryHistoryItem {
	return o.store.History(connID, limit)
}

// --- view ---

// ViewState is the UI state the row pipeline reads.
type ViewState struct {
	Columns []string
	Filter  string
	Sort    rows.SortConfig
}

// NewViewState builds a view from user input. dir is "asc" or "desc"
// (default asc); an empty column means unsorted.
func NewViewState(filter, column, dir string) ViewState {
	d := rows.Asc
	if strings.EqualFold(dir, string(rows.Desc)) {
		d = rows.Desc
	}
	if column == "" {
		d = rows.Off
	}
	return ViewState{Filter: filter, Sort: rows.SortConfig{Column: column, Direction: d}}
}

// View filters then sorts rows for display.
func (o *Orchestrator) View(data []database.DataRow, state ViewState) []database.DataRow {
	return rows.ProcessRows(data, state.Columns, state.Filter, state.Sort)
}
