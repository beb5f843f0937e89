package persist

import (
	"time"

	"github.com/koustreak/dbbrowse/internal/database"
)

// ConnectionInfo is a saved connection. ID is stable across edits;
// (Dialect, ConnectionString) is the natural key.
type ConnectionInfo struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Dialect          database.Dialect `json:"dialect"`
	ConnectionString string           `json:"connectionString"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Config returns the ConnectionConfig used to open this connection.
func (c ConnectionInfo) Config() database.ConnectionConfig {
	return database.ConnectionConfig{Dialect: c.Dialect, ConnectionString: c.ConnectionString}
}

func (c ConnectionInfo) naturalKey() string {
	return string(c.Dialect) + "\x00" + c.ConnectionString
}

// QueryHistoryItem records one executed statement. Items are never mutated.
type QueryHistoryItem struct {
	ID           string    `json:"id"`
	ConnectionID string    `json:"connectionId"`
	Query        string    `json:"query"`
	ExecutedAt   time.Time `json:"executedAt"`
	DurationMs   int64     `json:"durationMs"`
	RowCount     int       `json:"rowCount"`
	Error        string    `json:"error,omitempty"`
}

// Failed reports whether the statement returned an error.
func (h QueryHistoryItem) Failed() bool { return h.Error != "" }

// SkipReason explains why a saved connection entry could not be loaded.
// The empty value means the entry was accepted.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipMalformed        SkipReason = "malformed entry"
	SkipMissingName      SkipReason = "missing name"
	SkipMissingConnStr   SkipReason = "missing connection string"
	SkipUnknownDialect   SkipReason = "unknown dialect"
	SkipUnrecognizedForm SkipReason = "unrecognized shape"
)

// LoadReport summarizes what Load found on disk.
type LoadReport struct {
	Connections  int // connections kept after de-duplication
	Normalized   int // legacy entries migrated to the current shape
	Skipped      int // entries matching neither shape
	Deduplicated int // entries dropped as duplicates of a newer one
	History      int

	CacheEntries int
	CacheDropped int  // invalid table cache entries or buckets dropped one by one
	CacheReset   bool // table-cache.json was unreadable and ignored
}
