package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/koustreak/dbbrowse/internal/database"
)

// legacyConnection is the shape written by older releases.
type legacyConnection struct {
	Name          string     `json:"name"`
	Driver        string     `json:"driver"`
	ConnectionStr string     `json:"connection_str"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

// parseCurrent accepts raw only when it is a complete current-shape entry.
func parseCurrent(raw json.RawMessage) (ConnectionInfo, bool) {
	var c ConnectionInfo
	if err := json.Unmarshal(raw, &c); err != nil {
		return ConnectionInfo{}, false
	}
	if c.ID == "" || c.Name == "" || c.ConnectionString == "" || !c.Dialect.Valid() {
		return ConnectionInfo{}, false
	}
	return c, true
}

// migrateLegacy converts an old {name, driver, connection_str} entry. The ID
// is derived from name and connection string so repeated loads agree.
func migrateLegacy(raw json.RawMessage, now time.Time) (ConnectionInfo, SkipReason) {
	var l legacyConnection
	if err := json.Unmarshal(raw, &l); err != nil {
		return ConnectionInfo{}, SkipMalformed
	}
	if l.Driver == "" && l.ConnectionStr == "" {
		return ConnectionInfo{}, SkipUnrecognizedForm
	}

	name := strings.TrimSpace(l.Name)
	if name == "" {
		return ConnectionInfo{}, SkipMissingName
	}
	if strings.TrimSpace(l.ConnectionStr) == "" {
		return ConnectionInfo{}, SkipMissingConnStr
	}
	d, err := database.ParseDialect(l.Driver)
	if err != nil {
		return ConnectionInfo{}, SkipUnknownDialect
	}

	c := ConnectionInfo{
		ID:               legacyID(l.Name, l.ConnectionStr),
		Name:             name,
		Dialect:          d,
		ConnectionString: l.ConnectionStr,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if l.CreatedAt != nil {
		c.CreatedAt = *l.CreatedAt
		c.UpdatedAt = *l.CreatedAt
	}
	if l.UpdatedAt != nil {
		c.UpdatedAt = *l.UpdatedAt
	}
	return c, SkipNone
}

func legacyID(name, connStr string) string {
	sum := sha256.Sum256([]byte(name + ":" + connStr))
	return hex.EncodeToString(sum[:])
}

// dedupe keeps one entry per natural key, the one updated last, at the
// position where the key first appeared.
func dedupe(conns []ConnectionInfo) ([]ConnectionInfo, int) {
	index := make(map[string]int, len(conns))
	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		i, seen := index[c.naturalKey()]
		if !seen {
			index[c.naturalKey()] = len(out)
			out = append(out, c)
			continue
		}
		if c.UpdatedAt.After(out[i].UpdatedAt) {
			out[i] = c
		}
	}
	return out, len(conns) - len(out)
}
