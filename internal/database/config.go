package database

import (
	"fmt"
	"strings"
	"time"
)

// Dialect identifies the database engine and its SQL/catalog conventions.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// Dialects lists every supported dialect in a stable order.
var Dialects = []Dialect{DialectPostgres, DialectMySQL, DialectSQLite}

// Valid reports whether d is one of the supported dialects.
func (d Dialect) Valid() bool {
	switch d {
	case DialectPostgres, DialectMySQL, DialectSQLite:
		return true
	}
	return false
}

// ParseDialect maps a free-form engine name onto a Dialect.
// It accepts the canonical tags plus the common aliases found in older
// saved-connection files ("postgresql", "pg", "mariadb", "sqlite3", …).
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg", "pgsql":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3", "file":
		return DialectSQLite, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", name)
}

// Pool defaults.
const (
	DefaultMaxConns       = 10
	DefaultIdleTimeout    = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultCloseTimeout   = 5 * time.Second
)

// PoolOptions tunes the pooled dialects (Postgres, MySQL). SQLite only
// honours ConnectTimeout (as busy_timeout) and always uses one handle.
type PoolOptions struct {
	MaxConns       int32         // maximum number of connections in the pool
	IdleTimeout    time.Duration // maximum time a connection may sit idle
	ConnectTimeout time.Duration // time limit for establishing a new connection
	CloseTimeout   time.Duration // how long Close waits before giving up on the pool
}

// DefaultPoolOptions returns max 10, idle 30s, connect 10s, close 5s.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:       DefaultMaxConns,
		IdleTimeout:    DefaultIdleTimeout,
		ConnectTimeout: DefaultConnectTimeout,
		CloseTimeout:   DefaultCloseTimeout,
	}
}

// withDefaults fills every zero field from DefaultPoolOptions.
func (o PoolOptions) withDefaults() PoolOptions {
	def := DefaultPoolOptions()
	if o.MaxConns <= 0 {
		o.MaxConns = def.MaxConns
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = def.IdleTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = def.CloseTimeout
	}
	return o
}

// ConnectionConfig holds everything needed to open one session.
// It is immutable for the lifetime of a connection attempt.
type ConnectionConfig struct {
	// Dialect selects the adapter.
	Dialect Dialect

	// ConnectionString is a postgres:// or mysql:// URL, a native DSN,
	// or a filesystem path for SQLite.
	ConnectionString string

	// Pool is optional; nil means DefaultPoolOptions.
	Pool *PoolOptions
}

// PoolOptions returns the effective pool settings with defaults applied.
func (c ConnectionConfig) PoolOptions() PoolOptions {
	if c.Pool == nil {
		return DefaultPoolOptions()
	}
	return c.Pool.withDefaults()
}
