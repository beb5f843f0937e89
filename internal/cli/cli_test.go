package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/dbbrowse/internal/config"
	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/database/sqlite"
	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/persist"
)

type env struct {
	dataDir string
	dbPath  string
}

// newEnv isolates HOME and DBBROWSE_* variables and seeds a SQLite file.
func newEnv(t *testing.T) *env {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, config.EnvPrefix) {
			t.Setenv(name, "")
			require.NoError(t, os.Unsetenv(name))
		}
	}

	dbPath := filepath.Join(home, "shop.db")
	ctx := context.Background()
	a := sqlite.New(database.ConnectionConfig{Dialect: database.DialectSQLite, ConnectionString: dbPath}, nil)
	require.NoError(t, a.Connect(ctx))
	for _, stmt := range []string{
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)`,
		`INSERT INTO customers (id, name) VALUES (1, 'Alice'), (2, 'Bob'), (3, 'Carol')`,
	} {
		_, err := a.Execute(ctx, stmt)
		require.NoError(t, err)
	}
	a.Close(ctx)

	return &env{dataDir: filepath.Join(home, "data"), dbPath: dbPath}
}

// run executes one command line in a fresh root command, the way a new
// process would.
func (e *env) run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--data-dir", e.dataDir, "--log.level", "error"}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func (e *env) mustRun(t *testing.T, out any, args ...string) string {
	t.Helper()
	stdout, stderr, err := e.run(t, args...)
	require.NoError(t, err, stderr)
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(stdout), out), stdout)
	}
	return stderr
}

func (e *env) addShop(t *testing.T) persist.ConnectionInfo {
	t.Helper()
	var added struct {
		Connection persist.ConnectionInfo `json:"connection"`
		Tables     []database.TableInfo   `json:"tables"`
	}
	stderr := e.mustRun(t, &added, "connections", "add", "shop", "--dialect", "sqlite", "--dsn", e.dbPath)
	assert.Contains(t, stderr, "info: Connected to shop (1 tables)")
	require.Len(t, added.Tables, 1)
	assert.Equal(t, "customers", added.Tables[0].Name)
	return added.Connection
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	for _, name := range []string{"connections", "tables", "columns", "rows", "search", "query", "history", "serve"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
		assert.NotEmpty(t, sub.Short, name)
	}
	for _, flag := range []string{"config", "data-dir", "log.level", "log.format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestConnections_AddListRenameDelete(t *testing.T) {
	e := newEnv(t)
	conn := e.addShop(t)
	assert.Equal(t, database.DialectSQLite, conn.Dialect)
	assert.NotEmpty(t, conn.ID)

	var list []persist.ConnectionInfo
	e.mustRun(t, &list, "connections")
	require.Len(t, list, 1)
	assert.Equal(t, conn.ID, list[0].ID)

	var renamed persist.ConnectionInfo
	e.mustRun(t, &renamed, "connections", "rename", "shop", "Shop DB")
	assert.Equal(t, "Shop DB", renamed.Name)

	_, _, err := e.run(t, "connections", "delete", conn.ID, "--active", conn.ID)
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))

	stderr := e.mustRun(t, nil, "connections", "delete", "shop db")
	assert.Contains(t, stderr, "Connection deleted")

	e.mustRun(t, &list, "connections")
	assert.Empty(t, list)
}

func TestConnections_AddRejectsUnknownDialect(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run(t, "connections", "add", "--dialect", "oracle", "--dsn", "x")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestBrowse_TablesColumnsRows(t *testing.T) {
	e := newEnv(t)
	e.addShop(t)

	var tables []database.TableInfo
	e.mustRun(t, &tables, "tables", "-c", "shop")
	require.Len(t, tables, 1)
	assert.Equal(t, "customers", tables[0].Name)

	var cols []database.ColumnInfo
	e.mustRun(t, &cols, "columns", "customers", "-c", "shop")
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "name", cols[1].Name)

	var page rowsOutput
	e.mustRun(t, &page, "rows", "customers", "-c", "shop", "--sort", "name", "--dir", "desc")
	require.Len(t, page.Rows, 3)
	assert.Equal(t, "Carol", page.Rows[0]["name"])
	assert.Equal(t, "Alice", page.Rows[2]["name"])
	assert.False(t, page.HasMore)

	e.mustRun(t, &page, "rows", "customers", "-c", "shop", "--filter", "bob")
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "Bob", page.Rows[0]["name"])
}

func TestBrowse_RowsPersistTableCache(t *testing.T) {
	e := newEnv(t)
	conn := e.addShop(t)

	e.mustRun(t, nil, "rows", "customers", "-c", "shop")

	data, err := os.ReadFile(filepath.Join(e.dataDir, persist.TableCacheFile))
	require.NoError(t, err)
	var doc map[string]map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc[conn.ID], "default|customers")
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	e.addShop(t)

	var res rowsOutput
	e.mustRun(t, &res, "search", "customers", "car", "-c", "shop")
	require.NotNil(t, res.Total)
	assert.Equal(t, 1, *res.Total)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Carol", res.Rows[0]["name"])
}

func TestQueryAndHistory(t *testing.T) {
	e := newEnv(t)
	e.addShop(t)

	var res database.QueryResult
	e.mustRun(t, &res, "query", "-c", "shop", "SELECT count(*) AS n FROM customers")
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, []string{"n"}, res.Fields)

	_, stderr, err := e.run(t, "query", "-c", "shop", "SELECT * FROM nope")
	require.Error(t, err)
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	require.Len(t, lines, 1, "one notice per failure")
	assert.True(t, strings.HasPrefix(lines[0], "error: "), lines[0])

	var items []persist.QueryHistoryItem
	e.mustRun(t, &items, "history", "-c", "shop")
	require.Len(t, items, 2)
	assert.Equal(t, "SELECT * FROM nope", items[0].Query)
	assert.True(t, items[0].Failed())
	assert.Equal(t, "SELECT count(*) AS n FROM customers", items[1].Query)

	e.mustRun(t, &items, "history", "-n", "1")
	assert.Len(t, items, 1)
}

func TestQuery_ReadsStdin(t *testing.T) {
	e := newEnv(t)
	e.addShop(t)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("UPDATE customers SET name = 'Bobby' WHERE id = 2"))
	cmd.SetArgs([]string{"--data-dir", e.dataDir, "--log.level", "error", "query", "-c", "shop", "-"})
	require.NoError(t, cmd.Execute())

	var res database.QueryResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 1, res.RowCount)
}

func TestUnknownConnection(t *testing.T) {
	e := newEnv(t)

	_, _, err := e.run(t, "tables", "-c", "missing")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	_, _, err = e.run(t, "tables")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestResolveConnection_AmbiguousName(t *testing.T) {
	e := newEnv(t)
	e.addShop(t)

	other := filepath.Join(filepath.Dir(e.dbPath), "other.db")
	require.NoError(t, os.WriteFile(other, nil, 0o600))
	e.mustRun(t, nil, "connections", "add", "SHOP", "--dialect", "sqlite", "--dsn", other)

	_, _, err := e.run(t, "tables", "-c", "shop")
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
}
