package models

import "encoding/json"

// CachedEntry is a named blob with optional expiry. A read past ExpiresAt
// is a miss; the row is purged lazily on that read.
type CachedEntry struct {
	Key       string          `db:"key" json:"key"`
	Data      json.RawMessage `db:"data" json:"data"`
	Timestamp int64           `db:"created_at" json:"timestamp"`           // epoch ms
	ExpiresAt int64           `db:"expires_at" json:"expiresAt,omitempty"` // epoch ms, 0 = never
}

// TableName returns the table name for CachedEntry.
func (CachedEntry) TableName() string {
	return "cache_entries"
}

// Expired reports whether the entry is past its expiry at the given
// epoch-ms instant.
func (e *CachedEntry) Expired(nowMS int64) bool {
	return e.ExpiresAt > 0 && nowMS > e.ExpiresAt
}
