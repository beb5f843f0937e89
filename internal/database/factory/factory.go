// Package factory selects the database.Adapter implementation for a
// connection's dialect.
//
// The lookup table lives on a Factory value, never in package state, so
// tests can install fakes with Override and remove them with
// ClearOverrides without affecting other tests.
package factory

import (
	"fmt"
	"sync"

	"github.com/koustreak/dbbrowse/internal/database"
	"github.com/koustreak/dbbrowse/internal/database/mysql"
	"github.com/koustreak/dbbrowse/internal/database/postgres"
	"github.com/koustreak/dbbrowse/internal/database/sqlite"
	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/logger"
)

// Constructor builds an unconnected adapter for one connection attempt.
type Constructor func(cfg database.ConnectionConfig, log *logger.Logger) database.Adapter

// Factory maps dialects to adapter constructors.
type Factory struct {
	log *logger.Logger

	mu        sync.RWMutex
	builtin   map[database.Dialect]Constructor
	overrides map[database.Dialect]Constructor
}

// New returns a Factory wired to the Postgres, MySQL and SQLite adapters.
func New(log *logger.Logger) *Factory {
	return &Factory{
		log: logger.OrNop(log),
		builtin: map[database.Dialect]Constructor{
			database.DialectPostgres: func(cfg database.ConnectionConfig, l *logger.Logger) database.Adapter {
				return postgres.New(cfg, l)
			},
			database.DialectMySQL: func(cfg database.ConnectionConfig, l *logger.Logger) database.Adapter {
				return mysql.New(cfg, l)
			},
			database.DialectSQLite: func(cfg database.ConnectionConfig, l *logger.Logger) database.Adapter {
				return sqlite.New(cfg, l)
			},
		},
		overrides: make(map[database.Dialect]Constructor),
	}
}

// Create returns an unconnected adapter for cfg.Dialect. An installed
// override wins over the built-in constructor. Unknown dialects fail with
// a connection error.
func (f *Factory) Create(cfg database.ConnectionConfig) (database.Adapter, error) {
	f.mu.RLock()
	ctor, ok := f.overrides[cfg.Dialect]
	if !ok {
		ctor, ok = f.builtin[cfg.Dialect]
	}
	f.mu.RUnlock()

	if !ok {
		return nil, errs.Connection(fmt.Sprintf("unsupported dialect %q", cfg.Dialect), nil)
	}
	return ctor(cfg, f.log), nil
}

// Override installs ctor for dialect until ClearOverrides is called.
func (f *Factory) Override(dialect database.Dialect, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[dialect] = ctor
}

// ClearOverrides removes every installed override.
func (f *Factory) ClearOverrides() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides = make(map[database.Dialect]Constructor)
}
