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

// Step is one schema migration step, embedded in the binary.
type Step struct {
	Version     int
	Description string
	SQL         string
}

// Migrator handles database schema migrations.
type Migrator struct {
	db    *sql.DB
	steps []Step
}

// NewMigrator creates a new Migrator applying the agent's embedded steps.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db, steps: Steps()}
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

// AppliedMigrations returns all applied migrations.
func (m *Migrator) AppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		if err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum); err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		migrations = append(migrations, mig)
	}
	return migrations, rows.Err()
}

// Up applies all pending migration steps in version order.
// Each step runs in its own transaction; a step that was already applied is
// verified against its recorded checksum and skipped.
func (m *Migrator) Up() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	checksums := make(map[int]string, len(applied))
	for _, a := range applied {
		checksums[a.Version] = a.Checksum
	}

	for _, step := range m.steps {
		sum := checksum(step.SQL)

		if step.Version <= current {
			if recorded, ok := checksums[step.Version]; ok && recorded != sum {
				return fmt.Errorf("migration %d checksum mismatch: schema drifted from the shipped steps", step.Version)
			}
			continue
		}

		tx, err := m.db.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(step.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", step.Version, step.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
			step.Version, time.Now().Unix(), step.Description, sum,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", step.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

// checksum returns the hex-encoded SHA-256 of a migration's SQL.
func checksum(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))
	return hex.EncodeToString(sum[:])
}
