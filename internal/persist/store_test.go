package persist

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/dbbrowse/internal/cache"
	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFiles is an in-memory filestore.Store that counts writes.
type memFiles struct {
	mu     sync.Mutex
	docs   map[string][]byte
	writes map[string]int
}

func newMemFiles() *memFiles {
	return &memFiles{docs: map[string][]byte{}, writes: map[string]int{}}
}

func (m *memFiles) Ping(context.Context) error { return nil }

func (m *memFiles) Read(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[name]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, name)
	}
	return data, nil
}

func (m *memFiles) Write(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = data
	m.writes[name]++
	return nil
}

func (m *memFiles) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, name)
	return nil
}

func (m *memFiles) Close() error { return nil }

func (m *memFiles) put(name, doc string) {
	m.docs[name] = []byte(doc)
}

func (m *memFiles) writeCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[name]
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func newTestStore(files *memFiles) *Store {
	return New(files, Options{DebounceDelay: time.Hour, Now: fixedClock()})
}

func TestLoad_MissingFilesAreEmpty(t *testing.T) {
	s := newTestStore(newMemFiles())

	report, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LoadReport{}, report)
	assert.Empty(t, s.Connections())
	assert.Empty(t, s.History("", 0))
	assert.Empty(t, s.TableCache("any"))
}

func TestLoad_DeduplicatesKeepingLatest(t *testing.T) {
	files := newMemFiles()
	files.put(ConnectionsFile, `[
	  {"id":"a","name":"old","dialect":"postgres","connectionString":"postgres://db/app",
	   "createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"},
	  {"id":"b","name":"other","dialect":"sqlite","connectionString":"/tmp/app.db",
	   "createdAt":"2024-01-01T00:00:00Z","updatedAt":"2024-01-01T00:00:00Z"},
	  {"id":"c","name":"new","dialect":"postgres","connectionString":"postgres://db/app",
	   "createdAt":"2024-01-02T00:00:00Z","updatedAt":"2024-02-01T00:00:00Z"}
	]`)
	s := newTestStore(files)

	report, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Connections)
	assert.Equal(t, 1, report.Deduplicated)

	conns := s.Connections()
	require.Len(t, conns, 2)
	assert.Equal(t, "c", conns[0].ID)
	assert.Equal(t, "new", conns[0].Name)
	assert.Equal(t, "b", conns[1].ID)
}

func TestLoad_MigratesLegacyEntries(t *testing.T) {
	files := newMemFiles()
	files.put(ConnectionsFile, `[
	  {"name":"Prod","driver":"PostgreSQL","connection_str":"postgres://prod/app"},
	  {"name":"Local","driver":"sqlite3","connection_str":"/tmp/local.db"},
	  {"name":"Weird","driver":"oracle","connection_str":"oracle://x"},
	  {"hello":"world"},
	  42
	]`)
	s := newTestStore(files)

	report, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Normalized)
	assert.Equal(t, 3, report.Skipped)

	conns := s.Connections()
	require.Len(t, conns, 2)
	assert.Equal(t, database.DialectPostgres, conns[0].Dialect)
	assert.Equal(t, legacyID("Prod", "postgres://prod/app"), conns[0].ID)
	assert.Len(t, conns[0].ID, 64)
	assert.Equal(t, database.DialectSQLite, conns[1].Dialect)

	// the migrated shape is written back
	require.NoError(t, s.Flush(context.Background()))
	var saved []map[string]any
	require.NoError(t, json.Unmarshal(files.docs[ConnectionsFile], &saved))
	require.Len(t, saved, 2)
	assert.Equal(t, "postgres://prod/app", saved[0]["connectionString"])
	assert.NotContains(t, saved[0], "connection_str")

	// IDs are stable across loads
	again := newTestStore(newMemFiles())
	again.files.(*memFiles).put(ConnectionsFile, `[{"name":"Prod","driver":"pg","connection_str":"postgres://prod/app"}]`)
	_, err = again.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, conns[0].ID, again.Connections()[0].ID)
}

func TestMigrateLegacy_SkipReasons(t *testing.T) {
	tests := []struct {
		raw  string
		want SkipReason
	}{
		{`{"name":"a","driver":"mysql","connection_str":"mysql://x"}`, SkipNone},
		{`{"name":"","driver":"mysql","connection_str":"mysql://x"}`, SkipMissingName},
		{`{"name":"a","driver":"mysql","connection_str":""}`, SkipMissingConnStr},
		{`{"name":"a","driver":"mssql","connection_str":"x"}`, SkipUnknownDialect},
		{`{"name":"a"}`, SkipUnrecognizedForm},
		{`"nope"`, SkipMalformed},
	}
	for _, tt := range tests {
		_, reason := migrateLegacy(json.RawMessage(tt.raw), t0)
		assert.Equal(t, tt.want, reason, tt.raw)
	}
}

func TestLoad_MalformedDocuments(t *testing.T) {
	t.Run("connections fail", func(t *testing.T) {
		files := newMemFiles()
		files.put(ConnectionsFile, `{not json`)
		_, err := newTestStore(files).Load(context.Background())
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
	})

	t.Run("history fails", func(t *testing.T) {
		files := newMemFiles()
		files.put(HistoryFile, `{"oops":true}`)
		_, err := newTestStore(files).Load(context.Background())
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
	})

	t.Run("table cache resets", func(t *testing.T) {
		files := newMemFiles()
		files.put(TableCacheFile, `[1,2,3]`)
		s := newTestStore(files)
		report, err := s.Load(context.Background())
		require.NoError(t, err)
		assert.True(t, report.CacheReset)
		assert.Empty(t, s.TableCache("c1"))
	})
}

func TestLoad_DropsInvalidCacheEntriesAlone(t *testing.T) {
	files := newMemFiles()
	files.put(TableCacheFile, `{
	  "c1": {
	    "public|users": {"columns":[{"name":"id","dataType":"integer","nullable":false}],"rows":[{"id":1}],"hasMore":false,"offset":0},
	    "public|bad":   {"columns":"nope","rows":[],"hasMore":false,"offset":0},
	    "public|neg":   {"columns":[],"rows":[],"hasMore":false,"offset":-1},
	    "public|junk":  7
	  }
	}`)
	s := newTestStore(files)

	report, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.CacheDropped)
	assert.Equal(t, 1, report.CacheEntries)

	entries := s.TableCache("c1")
	require.Contains(t, entries, "public|users")
	assert.Equal(t, []database.DataRow{{"id": float64(1)}}, entries["public|users"].Rows)
}

func TestLoad_DropsMalformedCacheBucketAlone(t *testing.T) {
	files := newMemFiles()
	files.put(TableCacheFile, `{
	  "c1": {"default|users": {"columns":[],"rows":[{"id":1}],"hasMore":false,"offset":0}},
	  "c2": 7
	}`)
	s := newTestStore(files)

	report, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, report.CacheReset)
	assert.Equal(t, 1, report.CacheDropped)
	assert.Equal(t, 1, report.CacheEntries)
	assert.Contains(t, s.TableCache("c1"), "default|users")
	assert.Empty(t, s.TableCache("c2"))
}

func TestTableCache_RoundTrip(t *testing.T) {
	files := newMemFiles()
	s := newTestStore(files)
	def := "nextval('users_id_seq')"
	entry := cache.Entry{
		Columns: []database.ColumnInfo{
			{Name: "id", DataType: "integer", IsPrimaryKey: true, DefaultValue: &def},
			{Name: "name", DataType: "text", Nullable: true},
		},
		Rows:    []database.DataRow{{"id": float64(1), "name": "Alice"}, {"id": float64(2), "name": nil}},
		HasMore: true,
		Offset:  100,
	}
	key := database.CacheKey(database.TableInfo{Schema: "public", Name: "users"})

	s.PutTableCacheEntry("c1", key, entry)
	s.PutTableCacheEntry("c1", "default|columns_only", cache.Entry{Columns: entry.Columns})
	require.NoError(t, s.Close(context.Background()))

	loaded := newTestStore(files)
	_, err := loaded.Load(context.Background())
	require.NoError(t, err)

	got := loaded.TableCache("c1")
	assert.Equal(t, entry, got[key])
	assert.Equal(t, cache.Entry{Columns: entry.Columns}, got["default|columns_only"])
}

func TestTableCache_WritesAreDebounced(t *testing.T) {
	files := newMemFiles()
	s := New(files, Options{DebounceDelay: 30 * time.Millisecond})

	for i := 0; i < 5; i++ {
		s.PutTableCacheEntry("c1", "default|t", cache.Entry{Offset: i * 100})
	}

	require.Eventually(t, func() bool { return files.writeCount(TableCacheFile) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(90 * time.Millisecond)
	assert.Equal(t, 1, files.writeCount(TableCacheFile))

	loaded := newTestStore(files)
	_, err := loaded.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 400, loaded.TableCache("c1")["default|t"].Offset)
}

func TestTableCache_DeleteAndClear(t *testing.T) {
	s := newTestStore(newMemFiles())
	s.PutTableCacheEntry("c1", "default|a", cache.Entry{})
	s.PutTableCacheEntry("c1", "default|b", cache.Entry{})
	s.PutTableCacheEntry("c2", "default|a", cache.Entry{})

	s.DeleteTableCacheEntry("c1", "default|a")
	assert.Len(t, s.TableCache("c1"), 1)

	s.ClearTableCache("c1")
	assert.Empty(t, s.TableCache("c1"))
	assert.Len(t, s.TableCache("c2"), 1)
}

func TestUpsertConnection(t *testing.T) {
	s := newTestStore(newMemFiles())

	first, err := s.UpsertConnection(ConnectionInfo{Name: "app", Dialect: database.DialectMySQL, ConnectionString: "mysql://db/app"})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)

	// same natural key: renamed in place
	second, err := s.UpsertConnection(ConnectionInfo{Name: "app (prod)", Dialect: database.DialectMySQL, ConnectionString: "mysql://db/app"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Len(t, s.Connections(), 1)

	other, err := s.UpsertConnection(ConnectionInfo{Name: "other", Dialect: database.DialectSQLite, ConnectionString: "/tmp/x.db"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	// editing one entry onto another's connection string is refused
	other.ConnectionString = "mysql://db/app"
	other.Dialect = database.DialectMySQL
	_, err = s.UpsertConnection(other)
	assert.True(t, errs.IsConflict(err))

	_, err = s.UpsertConnection(ConnectionInfo{Name: " ", Dialect: database.DialectMySQL, ConnectionString: "x"})
	assert.True(t, errs.IsInvalidInput(err))
	_, err = s.UpsertConnection(ConnectionInfo{Name: "x", Dialect: "oracle", ConnectionString: "x"})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRenameConnection(t *testing.T) {
	s := newTestStore(newMemFiles())
	c, err := s.UpsertConnection(ConnectionInfo{Name: "a", Dialect: database.DialectSQLite, ConnectionString: "/tmp/a.db"})
	require.NoError(t, err)

	renamed, err := s.RenameConnection(c.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, c.ID, renamed.ID)
	assert.Equal(t, "b", renamed.Name)

	_, err = s.RenameConnection("missing", "x")
	assert.True(t, errs.IsNotFound(err))
}

func TestDeleteConnection(t *testing.T) {
	s := newTestStore(newMemFiles())
	a, err := s.UpsertConnection(ConnectionInfo{Name: "a", Dialect: database.DialectSQLite, ConnectionString: "/tmp/a.db"})
	require.NoError(t, err)
	b, err := s.UpsertConnection(ConnectionInfo{Name: "b", Dialect: database.DialectSQLite, ConnectionString: "/tmp/b.db"})
	require.NoError(t, err)
	s.PutTableCacheEntry(a.ID, "default|t", cache.Entry{})

	err = s.DeleteConnection(a.ID, a.ID)
	assert.True(t, errs.IsConflict(err))
	assert.Len(t, s.Connections(), 2)

	require.NoError(t, s.DeleteConnection(a.ID, b.ID))
	assert.Len(t, s.Connections(), 1)
	assert.Empty(t, s.TableCache(a.ID))

	assert.True(t, errs.IsNotFound(s.DeleteConnection(a.ID, "")))
}

func TestHistory_NewestFirstAndCapped(t *testing.T) {
	files := newMemFiles()
	s := New(files, Options{DebounceDelay: time.Hour, HistoryLimit: 3, Now: fixedClock()})

	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		s.AddHistory(QueryHistoryItem{ConnectionID: "c1", Query: q})
	}
	s.AddHistory(QueryHistoryItem{ConnectionID: "c2", Query: "bad", Error: "syntax error"})

	all := s.History("", 0)
	require.Len(t, all, 3)
	assert.Equal(t, "bad", all[0].Query)
	assert.True(t, all[0].Failed())
	assert.Equal(t, "q4", all[1].Query)
	assert.NotEmpty(t, all[1].ID)
	assert.False(t, all[1].ExecutedAt.IsZero())

	c1 := s.History("c1", 1)
	require.Len(t, c1, 1)
	assert.Equal(t, "q4", c1[0].Query)

	require.NoError(t, s.Flush(context.Background()))
	loaded := New(files, Options{HistoryLimit: 3})
	report, err := loaded.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.History)
	assert.Equal(t, "bad", loaded.History("", 0)[0].Query)
}

func TestStore_ConcurrentWritesPersistLatestState(t *testing.T) {
	files := newMemFiles()
	s := New(files, Options{DebounceDelay: time.Hour, HistoryLimit: 1000, Now: fixedClock()})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				s.AddHistory(QueryHistoryItem{ConnectionID: "c1", Query: "SELECT 1"})
				s.PutTableCacheEntry("c1", "default|t"+string(rune('a'+i%26))+string(rune('a'+j)), cache.Entry{Offset: j})
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, s.Flush(context.Background()))

	var history []QueryHistoryItem
	require.NoError(t, json.Unmarshal(files.docs[HistoryFile], &history))
	require.Len(t, history, 320)
	for i, h := range s.History("", 0) {
		assert.Equal(t, h.ID, history[i].ID)
	}

	var doc map[string]map[string]cache.Entry
	require.NoError(t, json.Unmarshal(files.docs[TableCacheFile], &doc))
	assert.Len(t, doc["c1"], len(s.TableCache("c1")))
}
