// Package sqlite implements database.Adapter for SQLite files using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/logger"
	_ "modernc.org/sqlite" // register "sqlite" driver
)

const driverName = "sqlite"

// Adapter is the SQLite database.Adapter. It holds a single file handle
// in WAL journal mode.
type Adapter struct {
	cfg database.ConnectionConfig
	log *logger.Logger
	db  *sql.DB
}

var _ database.Adapter = (*Adapter)(nil)

// New creates an unconnected SQLite adapter. Call Connect before use.
func New(cfg database.ConnectionConfig, log *logger.Logger) *Adapter {
	return &Adapter{
		cfg: cfg,
		log: logger.OrNop(log).Component("sqlite"),
	}
}

// Dialect implements database.Adapter.
func (a *Adapter) Dialect() database.Dialect { return database.DialectSQLite }

// Connect opens the file and verifies it is readable.
func (a *Adapter) Connect(ctx context.Context) error {
	dsn, err := buildDSN(a.cfg)
	if err != nil {
		return err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return errs.Connection("failed to open sqlite database", err)
	}
	db.SetMaxOpenConns(1)

	// Ping alone does not read the file header; reading the schema does.
	var objects int
	if err := db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master").Scan(&objects); err != nil {
		_ = db.Close()
		e := mapError(err, "failed to open sqlite database")
		if e.Kind != errs.ErrKindTimeout {
			e.Kind = errs.ErrKindConnectionFailed
		}
		return e
	}

	a.db = db
	a.log.With().Str("path", filePath(a.cfg.ConnectionString)).Logger().Debug("database opened")
	return nil
}

// Query runs sql and scans every row into a map.
func (a *Adapter) Query(ctx context.Context, sql string, params ...any) (*database.QueryResult, error) {
	if a.db == nil {
		return nil, errs.Connection("not connected", nil)
	}

	rows, err := a.db.QueryContext(ctx, sql, params...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return database.ScanRows(rows)
}

// Execute runs a statement and returns the number of affected rows.
func (a *Adapter) Execute(ctx context.Context, sql string, params ...any) (int64, error) {
	if a.db == nil {
		return 0, errs.Connection("not connected", nil)
	}

	res, err := a.db.ExecContext(ctx, sql, params...)
	if err != nil {
		return 0, mapError(err, "execute failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err, "rows affected unavailable")
	}
	return n, nil
}

// Close releases the file handle.
func (a *Adapter) Close(_ context.Context) {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.log.WarnWith("close failed", err, nil)
	}
	a.db = nil
}

// filePath strips the sqlite:// or file: scheme and any query string.
func filePath(conn string) string {
	p := strings.TrimSpace(conn)
	p = strings.TrimPrefix(p, "sqlite://")
	p = strings.TrimPrefix(p, "sqlite3://")
	p = strings.TrimPrefix(p, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	return p
}

// buildDSN produces a file: URI enabling WAL and a busy timeout derived
// from ConnectTimeout. Query parameters already present are preserved.
func buildDSN(cfg database.ConnectionConfig) (string, error) {
	path := filePath(cfg.ConnectionString)
	if path == "" {
		return "", errs.Connection("empty sqlite path", nil)
	}

	params := url.Values{}
	if i := strings.IndexByte(cfg.ConnectionString, '?'); i >= 0 {
		existing, err := url.ParseQuery(cfg.ConnectionString[i+1:])
		if err != nil {
			return "", errs.Connection("invalid sqlite connection parameters", err)
		}
		params = existing
	}

	opts := cfg.PoolOptions()
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.ConnectTimeout.Milliseconds()))

	return "file:" + path + "?" + params.Encode(), nil
}
