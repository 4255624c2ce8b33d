package db

// Steps returns the embedded schema migration steps in version order.
func Steps() []Step {
	return []Step{
		{
			Version:     1,
			Description: "create offline_actions queue",
			SQL: `
			CREATE TABLE offline_actions (
				id TEXT PRIMARY KEY,
				endpoint TEXT NOT NULL,
				method TEXT NOT NULL,
				tenant TEXT NOT NULL,
				payload TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				retry_count INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);
			CREATE INDEX idx_offline_actions_status ON offline_actions(status);`,
		},
		{
			Version:     2,
			Description: "create checklist_runs ledger",
			SQL: `
			CREATE TABLE checklist_runs (
				id TEXT PRIMARY KEY,
				source_id TEXT NOT NULL,
				completed_at TEXT NOT NULL,
				technician TEXT NOT NULL,
				items_completed INTEGER NOT NULL DEFAULT 0,
				items_total INTEGER NOT NULL DEFAULT 0,
				notes TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'pending',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);
			CREATE INDEX idx_checklist_runs_key ON checklist_runs(source_id, completed_at);`,
		},
		{
			Version:     3,
			Description: "create snapshot_cache",
			SQL: `
			CREATE TABLE snapshot_cache (
				cache_key TEXT PRIMARY KEY,
				payload TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			);`,
		},
		{
			Version:     4,
			Description: "create events mirror",
			SQL: `
			CREATE TABLE events (
				id TEXT PRIMARY KEY,
				scheduled_date TEXT NOT NULL,
				scheduled_time TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'scheduled',
				completed_at INTEGER,
				technician TEXT NOT NULL DEFAULT '',
				scheduler_name TEXT NOT NULL DEFAULT '',
				scheduler_registration TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				cancelled INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);
			CREATE INDEX idx_events_slot ON events(scheduled_date, scheduled_time);`,
		},
		{
			Version:     5,
			Description: "create reschedule_audit",
			SQL: `
			CREATE TABLE reschedule_audit (
				id TEXT PRIMARY KEY,
				event_id TEXT NOT NULL REFERENCES events(id),
				actor TEXT NOT NULL,
				from_date TEXT NOT NULL,
				from_time TEXT NOT NULL,
				to_date TEXT NOT NULL,
				to_time TEXT NOT NULL,
				reason TEXT NOT NULL,
				created_at INTEGER NOT NULL
			);
			CREATE INDEX idx_reschedule_audit_event ON reschedule_audit(event_id);`,
		},
	}
}
