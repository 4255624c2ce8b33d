// Package models provides data model definitions for the fieldsync agent.
package models

// SnapshotCap is the maximum number of entries the cross-tab snapshot cache
// retains. The cache keeps the most recent entries first and drops the rest.
const SnapshotCap = 500

// SyncSnapshotEntry is a denormalized projection of a synced checklist run,
// cached for fast cross-tab visibility. The cache is a latency optimization
// only and is never authoritative while the remote API is reachable.
type SyncSnapshotEntry struct {
	SourceID       string `json:"source_id"`
	CompletedAt    string `json:"completed_at"`
	Technician     string `json:"technician"`
	ItemsCompleted int    `json:"items_completed"`
	ItemsTotal     int    `json:"items_total"`
	Notes          string `json:"notes"`
	SyncedAt       int64  `json:"synced_at"`
}

// NaturalKey returns the dedup key for this entry.
func (s *SyncSnapshotEntry) NaturalKey() string {
	return NaturalKey(s.SourceID, s.CompletedAt)
}

// SnapshotFromRun projects a checklist run into a snapshot entry.
func SnapshotFromRun(r *ChecklistRun, syncedAt int64) SyncSnapshotEntry {
	return SyncSnapshotEntry{
		SourceID:       r.SourceID,
		CompletedAt:    r.CompletedAt,
		Technician:     r.Technician,
		ItemsCompleted: r.ItemsCompleted,
		ItemsTotal:     r.ItemsTotal,
		Notes:          r.Notes,
		SyncedAt:       syncedAt,
	}
}

// RunFromSnapshot lifts a snapshot entry back into a checklist run for
// merging. Snapshot entries only ever describe synced runs.
func RunFromSnapshot(s SyncSnapshotEntry) *ChecklistRun {
	return &ChecklistRun{
		SourceID:       s.SourceID,
		CompletedAt:    s.CompletedAt,
		Technician:     s.Technician,
		ItemsCompleted: s.ItemsCompleted,
		ItemsTotal:     s.ItemsTotal,
		Notes:          s.Notes,
		Status:         RunStatusSynced,
	}
}
