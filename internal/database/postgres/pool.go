package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/errs"
)

// buildPoolConfig parses the connection string (URL or key=value DSN) and
// applies the pool options on top of it.
func buildPoolConfig(cfg database.ConnectionConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString)
	if err != nil {
		return nil, errs.Connection("invalid postgres connection string", err)
	}

	opts := cfg.PoolOptions()
	poolCfg.MaxConns = opts.MaxConns
	poolCfg.MaxConnIdleTime = opts.IdleTimeout
	poolCfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	if poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = poolCfg.MaxConns
	}

	return poolCfg, nil
}
