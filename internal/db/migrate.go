// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents an applied database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// migrationDef is a schema migration carried in code. The store ships its
// own schema; there is no migrations directory to deploy alongside it.
type migrationDef struct {
	version     int
	description string
	sql         string
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS pending_sales (
	id TEXT PRIMARY KEY,
	items TEXT NOT NULL,
	total TEXT NOT NULL,
	tax TEXT NOT NULL,
	final_total TEXT NOT NULL,
	payment_method TEXT NOT NULL,
	sold_by TEXT NOT NULL DEFAULT '',
	sold_by_name TEXT NOT NULL DEFAULT '',
	customer_info TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'pending_sync',
	retry_count INTEGER NOT NULL DEFAULT 0 CHECK(retry_count >= 0),
	last_retry INTEGER,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_sales_created_at ON pending_sales(created_at);

CREATE TABLE IF NOT EXISTS pending_operations (
	id TEXT PRIMARY KEY,
	op_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0 CHECK(retry_count >= 0),
	last_retry INTEGER,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_operations_created_at ON pending_operations(created_at);
CREATE INDEX IF NOT EXISTS idx_pending_operations_type ON pending_operations(op_type);

CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_created_at ON cache_entries(created_at);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
`

const schemaV2 = `
CREATE TABLE IF NOT EXISTS dead_letters (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	abandoned_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dead_letters_abandoned_at ON dead_letters(abandoned_at);
`

var migrations = []migrationDef{
	{version: 1, description: "offline_queue_tables", sql: schemaV1},
	{version: 2, description: "dead_letters", sql: schemaV2},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		applied = append(applied, mig)
	}
	return applied, rows.Err()
}

// Up applies all pending migrations. Idempotent: already-applied versions
// are skipped, so a schema-version bump on an existing install only runs
// the new migrations.
func (m *Migrator) Up() error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedVersions := make(map[int]bool)
	for _, mig := range applied {
		appliedVersions[mig.Version] = true
	}

	for _, mig := range migrations {
		if appliedVersions[mig.version] {
			continue
		}
		if err := m.applyMigration(mig); err != nil {
			return fmt.Errorf("failed to apply migration V%d: %w", mig.version, err)
		}
	}

	return nil
}

// applyMigration applies a single migration in a transaction.
func (m *Migrator) applyMigration(mig migrationDef) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.sql); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	hash := sha256.Sum256([]byte(mig.sql))
	checksum := hex.EncodeToString(hash[:])

	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, mig.version, time.Now().Unix(), mig.description, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
