package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/fleetworks/fieldsync/internal/clock"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/logging"
	"github.com/fleetworks/fieldsync/internal/models"
)

// snapshotKey is the fixed key the cached list lives under.
const snapshotKey = "synced_runs"

// SQLiteSnapshot is the durable SnapshotCache implementation: one JSON list
// under a fixed key, replaced wholesale on every write.
//
// A payload that fails to parse is treated as corrupt local state: the store
// discards it and reseeds an empty list. This is silent and recoverable —
// the cache is a latency optimization, never the source of truth.
type SQLiteSnapshot struct {
	db  *sql.DB
	clk clock.Clock
}

// NewSQLiteSnapshot creates a SQLiteSnapshot.
func NewSQLiteSnapshot(db *sql.DB, clk clock.Clock) *SQLiteSnapshot {
	return &SQLiteSnapshot{db: db, clk: clk}
}

// Write replaces the cached list, capped at models.SnapshotCap entries.
func (s *SQLiteSnapshot) Write(entries []models.SyncSnapshotEntry) error {
	if len(entries) > models.SnapshotCap {
		entries = entries[:models.SnapshotCap]
	}
	if entries == nil {
		entries = []models.SyncSnapshotEntry{}
	}

	payload, err := json.Marshal(entries)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode snapshot", err)
	}

	_, err = s.db.Exec(`
	INSERT INTO snapshot_cache (cache_key, payload, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		snapshotKey, string(payload), s.clk.Now().Unix())
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write snapshot", err)
	}
	return nil
}

// Read returns the cached list, self-healing on corrupt state.
func (s *SQLiteSnapshot) Read() ([]models.SyncSnapshotEntry, error) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM snapshot_cache WHERE cache_key = ?", snapshotKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []models.SyncSnapshotEntry{}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read snapshot", err)
	}

	var entries []models.SyncSnapshotEntry
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		// Corrupt cache: discard and reseed a known-good default.
		logging.Warn("Discarding corrupt snapshot cache",
			map[string]interface{}{"code": string(apperrors.ErrCorruptState), "error": err.Error()})
		if werr := s.Write(nil); werr != nil {
			return nil, werr
		}
		return []models.SyncSnapshotEntry{}, nil
	}
	if entries == nil {
		entries = []models.SyncSnapshotEntry{}
	}
	return entries, nil
}

var _ SnapshotCache = (*SQLiteSnapshot)(nil)
