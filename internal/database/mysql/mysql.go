// Package mysql implements database.Adapter for MySQL and MariaDB on top
// of database/sql and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver
	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/logger"
)

// Adapter is the MySQL database.Adapter.
type Adapter struct {
	cfg database.ConnectionConfig
	log *logger.Logger
	db  *sql.DB

	// open is sql.Open; replaced in tests to inject sqlmock.
	open func(driverName, dsn string) (*sql.DB, error)
}

var _ database.Adapter = (*Adapter)(nil)

// New creates an unconnected MySQL adapter. Call Connect before use.
func New(cfg database.ConnectionConfig, log *logger.Logger) *Adapter {
	return &Adapter{
		cfg:  cfg,
		log:  logger.OrNop(log).Component("mysql"),
		open: sql.Open,
	}
}

// Dialect implements database.Adapter.
func (a *Adapter) Dialect() database.Dialect { return database.DialectMySQL }

// Connect opens the pool and verifies it with a bounded ping.
func (a *Adapter) Connect(ctx context.Context) error {
	dsn, err := buildDSN(a.cfg)
	if err != nil {
		return err
	}

	db, err := a.open("mysql", dsn)
	if err != nil {
		return errs.Connection("failed to open mysql pool", err)
	}

	opts := a.cfg.PoolOptions()
	configurePool(db, opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		e := mapError(err, "ping failed")
		if e.Kind != errs.ErrKindTimeout {
			e.Kind = errs.ErrKindConnectionFailed
		}
		return e
	}

	a.db = db
	a.log.With().Int("max_conns", int(opts.MaxConns)).Logger().Debug("pool opened")
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

// Close shuts the pool down, waiting at most CloseTimeout. Draining a MySQL
// pool can hang on a wedged connection; on timeout the close keeps running
// in the background and the caller is released.
func (a *Adapter) Close(ctx context.Context) {
	if a.db == nil {
		return
	}
	db := a.db
	a.db = nil

	if a.closeBounded(ctx, db.Close, a.cfg.PoolOptions().CloseTimeout) {
		a.log.Debug("pool closed")
	}
}

// closeBounded runs closeFn in its own goroutine and reports whether it
// finished cleanly within timeout. Failures and timeouts are logged only.
func (a *Adapter) closeBounded(ctx context.Context, closeFn func() error, timeout time.Duration) bool {
	done := make(chan error, 1)
	go func() { done <- closeFn() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			a.log.WarnWith("pool close failed", err, nil)
			return false
		}
		return true
	case <-timer.C:
		a.log.WarnWith("pool close timed out, continuing in background", nil,
			map[string]interface{}{"timeout_ms": timeout.Milliseconds()})
	case <-ctx.Done():
		a.log.WarnWith("pool close abandoned", ctx.Err(), nil)
	}
	return false
}
