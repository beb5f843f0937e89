// Package postgres implements database.Adapter for PostgreSQL on top of
// a pgxpool connection pool.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/logger"
)

// Adapter is the PostgreSQL database.Adapter.
type Adapter struct {
	cfg  database.ConnectionConfig
	log  *logger.Logger
	pool *pgxpool.Pool
}

var _ database.Adapter = (*Adapter)(nil)

// New creates an unconnected Postgres adapter. Call Connect before use.
func New(cfg database.ConnectionConfig, log *logger.Logger) *Adapter {
	return &Adapter{
		cfg: cfg,
		log: logger.OrNop(log).Component("postgres"),
	}
}

// Dialect implements database.Adapter.
func (a *Adapter) Dialect() database.Dialect { return database.DialectPostgres }

// Connect builds the pool and pings it. Every failure is a connection error.
func (a *Adapter) Connect(ctx context.Context) error {
	poolCfg, err := buildPoolConfig(a.cfg)
	if err != nil {
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return connectError(mapError(err, "failed to create connection pool"))
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return connectError(mapError(err, "ping failed"))
	}

	a.pool = pool
	a.log.With().Int("max_conns", int(poolCfg.MaxConns)).Logger().Debug("pool opened")
	return nil
}

// Query runs sql and decodes every row with pgx's native type mapping.
func (a *Adapter) Query(ctx context.Context, sql string, params ...any) (*database.QueryResult, error) {
	if a.pool == nil {
		return nil, errs.Connection("not connected", nil)
	}

	rows, err := a.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	fields := make([]string, len(descs))
	for i, d := range descs {
		fields[i] = d.Name
	}

	result := &database.QueryResult{Rows: make([]database.DataRow, 0), Fields: fields}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, mapError(err, "failed to decode row")
		}
		result.Rows = append(result.Rows, database.RowFromValues(fields, values))
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error during row iteration")
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// Execute runs a statement and returns the command tag's affected row count.
func (a *Adapter) Execute(ctx context.Context, sql string, params ...any) (int64, error) {
	if a.pool == nil {
		return 0, errs.Connection("not connected", nil)
	}

	tag, err := a.pool.Exec(ctx, sql, params...)
	if err != nil {
		return 0, mapError(err, "execute failed")
	}
	return tag.RowsAffected(), nil
}

// Close drains the pool. Safe to call when Connect failed.
func (a *Adapter) Close(_ context.Context) {
	if a.pool == nil {
		return
	}
	a.pool.Close()
	a.pool = nil
	a.log.Debug("pool closed")
}

// connectError forces any non-timeout failure during Connect into the
// connection-failed kind.
func connectError(e *errs.Error) *errs.Error {
	if e.Kind != errs.ErrKindTimeout {
		e.Kind = errs.ErrKindConnectionFailed
	}
	return e
}
