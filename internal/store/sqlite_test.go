package store

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/fleetworks/fieldsync/internal/clock"
	"github.com/fleetworks/fieldsync/internal/db"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
)

func openTestDB(t *testing.T) (*sql.DB, *clock.Manual) {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return database.DB, clock.NewManual(time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC))
}

func TestQueueFIFOOrder(t *testing.T) {
	conn, clk := openTestDB(t)
	queue := NewSQLiteQueue(conn, clk)

	var ids []models.UUID
	for i := 0; i < 3; i++ {
		id, err := queue.Enqueue(&models.OfflineAction{
			Endpoint: models.EndpointRuns,
			Method:   "POST",
			Payload:  []byte(fmt.Sprintf(`{"n":%d}`, i)),
		})
		if err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
		ids = append(ids, id)
	}

	pending, err := queue.ListPending()
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("Expected 3 pending actions, got %d", len(pending))
	}
	for i, action := range pending {
		if action.ID != ids[i] {
			t.Errorf("Position %d: expected %s, got %s", i, ids[i], action.ID)
		}
	}
}

func TestQueueStatusTransitions(t *testing.T) {
	conn, clk := openTestDB(t)
	queue := NewSQLiteQueue(conn, clk)

	id1, _ := queue.Enqueue(&models.OfflineAction{Endpoint: models.EndpointRuns, Method: "POST", Payload: []byte(`{}`)})
	id2, _ := queue.Enqueue(&models.OfflineAction{Endpoint: models.EndpointRuns, Method: "POST", Payload: []byte(`{}`)})

	if err := queue.MarkSynced(id1); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	if err := queue.MarkFailed(id2); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	// Synced and failed entries are both out of the drain's reach.
	pending, _ := queue.ListPending()
	if len(pending) != 0 {
		t.Fatalf("Expected no pending actions, got %d", len(pending))
	}

	stats, err := queue.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[models.ActionStatusSynced] != 1 || stats[models.ActionStatusFailed] != 1 || stats[models.ActionStatusPending] != 0 {
		t.Errorf("Unexpected stats %v", stats)
	}

	if err := queue.MarkSynced("not-a-real-id"); apperrors.CodeOf(err) != apperrors.ErrNotFound {
		t.Errorf("Expected NOT_FOUND for unknown id, got %v", err)
	}
}

func TestQueueRequeueFailedBumpsRetryCount(t *testing.T) {
	conn, clk := openTestDB(t)
	queue := NewSQLiteQueue(conn, clk)

	id, _ := queue.Enqueue(&models.OfflineAction{Endpoint: models.EndpointRuns, Method: "POST", Payload: []byte(`{}`)})

	// Fail twice with an explicit requeue in between.
	if err := queue.MarkFailed(id); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	n, err := queue.RequeueFailed()
	if err != nil {
		t.Fatalf("RequeueFailed failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("Expected 1 requeued action, got %d", n)
	}
	if err := queue.MarkFailed(id); err != nil {
		t.Fatalf("Second MarkFailed failed: %v", err)
	}
	if _, err := queue.RequeueFailed(); err != nil {
		t.Fatalf("Second RequeueFailed failed: %v", err)
	}

	pending, _ := queue.ListPending()
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending action after requeue, got %d", len(pending))
	}
	if pending[0].RetryCount != 2 {
		t.Errorf("Expected retry_count 2, got %d", pending[0].RetryCount)
	}
}

func TestLedgerListOrdersByCompletionDesc(t *testing.T) {
	conn, clk := openTestDB(t)
	ledger := NewSQLiteLedger(conn, clk)

	for _, completedAt := range []string{
		"2026-02-18T10:00:00Z",
		"2026-02-20T10:00:00Z",
		"2026-02-19T10:00:00Z",
	} {
		if err := ledger.Append(&models.ChecklistRun{
			SourceID:    "evt-1",
			CompletedAt: completedAt,
			Technician:  "dana",
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	runs, err := ledger.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"2026-02-20T10:00:00Z", "2026-02-19T10:00:00Z", "2026-02-18T10:00:00Z"}
	for i, w := range want {
		if runs[i].CompletedAt != w {
			t.Errorf("Position %d: expected %s, got %s", i, w, runs[i].CompletedAt)
		}
	}
}

func TestLedgerToleratesNaturalKeyCollisions(t *testing.T) {
	conn, clk := openTestDB(t)
	ledger := NewSQLiteLedger(conn, clk)

	// Two tabs record the same completion; the ledger keeps both and
	// deduplication happens at merge time, not here.
	for i := 0; i < 2; i++ {
		if err := ledger.Append(&models.ChecklistRun{
			SourceID:    "evt-1",
			CompletedAt: "2026-02-20T10:00:00Z",
		}); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	runs, _ := ledger.List()
	if len(runs) != 2 {
		t.Fatalf("Expected both colliding records kept, got %d", len(runs))
	}

	// A key-scoped status update transitions every collision together.
	if err := ledger.UpdateStatusByKey("evt-1", "2026-02-20T10:00:00Z", models.RunStatusSynced); err != nil {
		t.Fatalf("UpdateStatusByKey failed: %v", err)
	}
	synced, _ := ledger.ListByStatus(models.RunStatusSynced)
	if len(synced) != 2 {
		t.Errorf("Expected 2 synced records, got %d", len(synced))
	}
	pending, _ := ledger.ListByStatus(models.RunStatusPending)
	if len(pending) != 0 {
		t.Errorf("Expected no pending records, got %d", len(pending))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	conn, clk := openTestDB(t)
	cache := NewSQLiteSnapshot(conn, clk)

	// Empty until first write.
	entries, err := cache.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("Expected empty cache, got %d entries", len(entries))
	}

	if err := cache.Write([]models.SyncSnapshotEntry{
		{SourceID: "evt-1", CompletedAt: "2026-02-20T10:00:00Z", Technician: "dana"},
		{SourceID: "evt-2", CompletedAt: "2026-02-20T09:00:00Z", Technician: "lee"},
	}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries, _ = cache.Read()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].SourceID != "evt-1" || entries[1].Technician != "lee" {
		t.Errorf("Entries did not round-trip: %+v", entries)
	}

	// A second write replaces, never appends.
	if err := cache.Write([]models.SyncSnapshotEntry{{SourceID: "evt-3", CompletedAt: "2026-02-20T11:00:00Z"}}); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}
	entries, _ = cache.Read()
	if len(entries) != 1 || entries[0].SourceID != "evt-3" {
		t.Errorf("Second write did not replace: %+v", entries)
	}
}

func TestSnapshotCapsEntries(t *testing.T) {
	conn, clk := openTestDB(t)
	cache := NewSQLiteSnapshot(conn, clk)

	oversized := make([]models.SyncSnapshotEntry, models.SnapshotCap+50)
	for i := range oversized {
		oversized[i] = models.SyncSnapshotEntry{
			SourceID:    fmt.Sprintf("evt-%d", i),
			CompletedAt: "2026-02-20T10:00:00Z",
		}
	}

	if err := cache.Write(oversized); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries, _ := cache.Read()
	if len(entries) != models.SnapshotCap {
		t.Fatalf("Expected cache capped at %d, got %d", models.SnapshotCap, len(entries))
	}
	// The cap keeps the head of the list, which write-through keeps most
	// recent first.
	if entries[0].SourceID != "evt-0" {
		t.Errorf("Cap dropped the wrong end: first entry %s", entries[0].SourceID)
	}
}

func TestSnapshotSelfHealsCorruptPayload(t *testing.T) {
	conn, clk := openTestDB(t)
	cache := NewSQLiteSnapshot(conn, clk)

	if err := cache.Write([]models.SyncSnapshotEntry{{SourceID: "evt-1", CompletedAt: "2026-02-20T10:00:00Z"}}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Corrupt the stored payload behind the cache's back.
	if _, err := conn.Exec("UPDATE snapshot_cache SET payload = ?", "{not json"); err != nil {
		t.Fatalf("Failed to corrupt payload: %v", err)
	}

	// Read discards the corrupt state and answers with an empty list.
	entries, err := cache.Read()
	if err != nil {
		t.Fatalf("Read of corrupt cache failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("Expected empty list after corruption, got %d entries", len(entries))
	}

	// The reseed is durable: the next read finds valid JSON.
	var payload string
	if err := conn.QueryRow("SELECT payload FROM snapshot_cache").Scan(&payload); err != nil {
		t.Fatalf("Failed to read reseeded payload: %v", err)
	}
	if payload != "[]" {
		t.Errorf("Expected reseeded payload [], got %q", payload)
	}

	// And writes work again.
	if err := cache.Write([]models.SyncSnapshotEntry{{SourceID: "evt-2", CompletedAt: "2026-02-20T11:00:00Z"}}); err != nil {
		t.Fatalf("Write after reseed failed: %v", err)
	}
	entries, _ = cache.Read()
	if len(entries) != 1 || entries[0].SourceID != "evt-2" {
		t.Errorf("Cache unusable after reseed: %+v", entries)
	}
}

func TestEventStoreRoundTrip(t *testing.T) {
	conn, clk := openTestDB(t)
	events := NewSQLiteEventStore(conn, clk)

	ev := &models.MaintenanceEvent{
		ScheduledDate:         "2026-02-25",
		ScheduledTime:         "09:00",
		Technician:            "dana",
		SchedulerName:         "Morgan Reyes",
		SchedulerRegistration: "REG-4411",
		Description:           "quarterly compressor check",
	}
	if err := events.Create(ev); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if ev.ID == "" {
		t.Fatal("Create did not assign an id")
	}
	if ev.Status != models.EventStatusScheduled {
		t.Errorf("Expected scheduled default, got %s", ev.Status)
	}

	got, err := events.Get(ev.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SchedulerRegistration != "REG-4411" || got.Description != ev.Description {
		t.Errorf("Event did not round-trip: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Errorf("Expected nil CompletedAt, got %v", *got.CompletedAt)
	}

	completedAt := clk.Now().Unix()
	got.Status = models.EventStatusCompleted
	got.CompletedAt = &completedAt
	if err := events.Update(got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	updated, _ := events.Get(ev.ID)
	if updated.CompletedAt == nil || *updated.CompletedAt != completedAt {
		t.Errorf("CompletedAt did not persist: %v", updated.CompletedAt)
	}

	if _, err := events.Get("missing-id"); apperrors.CodeOf(err) != apperrors.ErrNotFound {
		t.Errorf("Expected NOT_FOUND, got %v", err)
	}
}

func TestEventStoreCancelAndCapacity(t *testing.T) {
	conn, clk := openTestDB(t)
	events := NewSQLiteEventStore(conn, clk)

	a := &models.MaintenanceEvent{ScheduledDate: "2026-02-25", ScheduledTime: "09:00"}
	b := &models.MaintenanceEvent{ScheduledDate: "2026-02-25", ScheduledTime: "09:00"}
	c := &models.MaintenanceEvent{ScheduledDate: "2026-02-25", ScheduledTime: "10:00"}
	for _, ev := range []*models.MaintenanceEvent{a, b, c} {
		if err := events.Create(ev); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	count, err := events.CountSlot("2026-02-25", "09:00", "")
	if err != nil {
		t.Fatalf("CountSlot failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected slot count 2, got %d", count)
	}

	// Excluding an occupant models a same-slot move.
	count, _ = events.CountSlot("2026-02-25", "09:00", a.ID)
	if count != 1 {
		t.Errorf("Expected excluded count 1, got %d", count)
	}

	if err := events.Cancel(b.ID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	count, _ = events.CountSlot("2026-02-25", "09:00", "")
	if count != 1 {
		t.Errorf("Cancelled event still counted: %d", count)
	}

	// Listings skip cancelled rows but Get still sees them.
	listing, _ := events.List()
	if len(listing) != 2 {
		t.Errorf("Expected 2 listed events, got %d", len(listing))
	}
	cancelled, err := events.Get(b.ID)
	if err != nil {
		t.Fatalf("Get of cancelled event failed: %v", err)
	}
	if !cancelled.Cancelled {
		t.Error("Cancel did not flag the event")
	}
}

func TestEventStoreAuditTrail(t *testing.T) {
	conn, clk := openTestDB(t)
	events := NewSQLiteEventStore(conn, clk)

	ev := &models.MaintenanceEvent{ScheduledDate: "2026-02-20", ScheduledTime: "09:00"}
	if err := events.Create(ev); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i, reason := range []string{"truck breakdown", "customer unavailable"} {
		if err := events.AppendAudit(&models.RescheduleAudit{
			EventID:  ev.ID,
			Actor:    "dispatcher",
			FromDate: "2026-02-20",
			FromTime: "09:00",
			ToDate:   fmt.Sprintf("2026-02-2%d", i+5),
			ToTime:   "10:00",
			Reason:   reason,
		}); err != nil {
			t.Fatalf("AppendAudit %d failed: %v", i, err)
		}
	}

	audits, err := events.ListAudits(ev.ID)
	if err != nil {
		t.Fatalf("ListAudits failed: %v", err)
	}
	if len(audits) != 2 {
		t.Fatalf("Expected 2 audits, got %d", len(audits))
	}
	if audits[0].Reason != "truck breakdown" {
		t.Errorf("Audit trail out of order: %q first", audits[0].Reason)
	}

	// Other events' trails stay separate.
	other := &models.MaintenanceEvent{ScheduledDate: "2026-02-21", ScheduledTime: "09:00"}
	if err := events.Create(other); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if audits, _ := events.ListAudits(other.ID); len(audits) != 0 {
		t.Errorf("Expected empty trail for other event, got %d", len(audits))
	}
}
