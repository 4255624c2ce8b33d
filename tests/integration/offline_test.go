// Integration tests for offline-first behavior: every recording and
// scheduling operation must succeed with no network, and a later drain must
// converge the remote store without duplicates.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fleetworks/fieldsync/internal/clock"
	"github.com/fleetworks/fieldsync/internal/db"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/reconcile"
	"github.com/fleetworks/fieldsync/internal/remote"
	"github.com/fleetworks/fieldsync/internal/schedule"
	"github.com/fleetworks/fieldsync/internal/store"
)

type agent struct {
	queue     store.ActionQueue
	ledger    store.RunLedger
	cache     store.SnapshotCache
	events    store.EventStore
	engine    *reconcile.Engine
	scheduler *schedule.Service
}

func setupAgent(t *testing.T, dataDir string, remoteURL string, clk clock.Clock) (*agent, *db.DB) {
	t.Helper()

	database, err := db.Open(dataDir)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	queue := store.NewSQLiteQueue(database.DB, clk)
	ledger := store.NewSQLiteLedger(database.DB, clk)
	cache := store.NewSQLiteSnapshot(database.DB, clk)
	events := store.NewSQLiteEventStore(database.DB, clk)
	api := remote.NewClient(remoteURL, "tenant-1")

	return &agent{
		queue:     queue,
		ledger:    ledger,
		cache:     cache,
		events:    events,
		engine:    reconcile.NewEngine(queue, ledger, cache, api, clk),
		scheduler: schedule.NewService(events, queue, clk, "tenant-1"),
	}, database
}

// remoteStub is a minimal system of record with idempotency-key dedup and a
// switchable outage mode.
type remoteStub struct {
	mu   sync.Mutex
	runs map[string]json.RawMessage
	keys []string
	down bool
}

func newRemoteStub() *remoteStub {
	return &remoteStub{runs: make(map[string]json.RawMessage)}
}

func (s *remoteStub) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *remoteStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		key := r.Header.Get("Idempotency-Key")
		if _, ok := s.runs[key]; ok {
			w.WriteHeader(http.StatusConflict)
			return
		}
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.runs[key] = body
		s.keys = append(s.keys, key)
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /api/runs", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var runs []json.RawMessage
		for _, key := range s.keys {
			runs = append(runs, s.runs[key])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"runs": runs})
	})
	mux.HandleFunc("PATCH /api/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *remoteStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func recordRun(t *testing.T, a *agent, sourceID, completedAt string) {
	t.Helper()

	run := &models.ChecklistRun{
		SourceID:    sourceID,
		CompletedAt: completedAt,
		Technician:  "dana",
		Status:      models.RunStatusPending,
	}
	if err := a.ledger.Append(run); err != nil {
		t.Fatalf("Failed to append run: %v", err)
	}
	payload, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("Failed to encode run: %v", err)
	}
	if _, err := a.queue.Enqueue(&models.OfflineAction{
		Endpoint: models.EndpointRuns,
		Method:   "POST",
		Tenant:   "tenant-1",
		Payload:  payload,
	}); err != nil {
		t.Fatalf("Failed to enqueue run: %v", err)
	}
}

// TestOfflineRecordThenSync tests the core offline-first loop: recording
// works with the remote down, the records stay visible locally, and a later
// drain converges the remote store.
func TestOfflineRecordThenSync(t *testing.T) {
	stub := newRemoteStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	clk := clock.NewManual(time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC))
	a, database := setupAgent(t, t.TempDir(), server.URL, clk)
	defer database.Close()

	t.Log("Phase 1: Recording while offline...")
	stub.setDown(true)

	recordRun(t, a, "evt-1", "2026-02-20T10:00:00Z")
	recordRun(t, a, "evt-2", "2026-02-20T11:00:00Z")

	// Both records are visible locally before any sync.
	consolidated, err := a.engine.Consolidated(context.Background())
	if err != nil {
		t.Fatalf("Consolidated failed: %v", err)
	}
	if len(consolidated) != 0 {
		// Only synced records appear in the consolidated view; the raw
		// ledger carries the pending ones.
		t.Fatalf("Pending records leaked into consolidated view: %d", len(consolidated))
	}
	local, err := a.ledger.List()
	if err != nil {
		t.Fatalf("Ledger list failed: %v", err)
	}
	if len(local) != 2 {
		t.Fatalf("Expected 2 local records, got %d", len(local))
	}

	t.Log("Phase 2: Draining against a dead remote...")
	result, err := a.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Failed != 2 {
		t.Fatalf("Expected 2 failed deliveries, got %+v", result)
	}
	if stub.count() != 0 {
		t.Fatalf("Remote should hold nothing, has %d", stub.count())
	}

	t.Log("Phase 3: Remote recovers, explicit retry...")
	stub.setDown(false)
	if n, err := a.engine.RequeueFailed(); err != nil || n != 2 {
		t.Fatalf("RequeueFailed = %d, %v", n, err)
	}
	result, err = a.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Synced != 2 || result.Failed != 0 {
		t.Fatalf("Expected 2 synced deliveries, got %+v", result)
	}
	if stub.count() != 2 {
		t.Fatalf("Expected remote to hold 2 runs, got %d", stub.count())
	}

	consolidated, err = a.engine.Consolidated(context.Background())
	if err != nil {
		t.Fatalf("Consolidated failed: %v", err)
	}
	if len(consolidated) != 2 {
		t.Fatalf("Expected 2 consolidated records, got %d", len(consolidated))
	}
	if consolidated[0].CompletedAt != "2026-02-20T11:00:00Z" {
		t.Errorf("Expected most recent completion first, got %s", consolidated[0].CompletedAt)
	}

	t.Log("Phase 4: Redundant drain is a no-op...")
	result, err = a.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Attempted != 0 {
		t.Errorf("Expected empty drain, attempted %d", result.Attempted)
	}
	if stub.count() != 2 {
		t.Errorf("Redundant drain duplicated remote records: %d", stub.count())
	}
}

// TestTwoAgentsSameCompletion tests that two agents recording the same
// completion converge to a single remote record via the idempotency key.
func TestTwoAgentsSameCompletion(t *testing.T) {
	stub := newRemoteStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	clk := clock.NewManual(time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC))
	agentA, dbA := setupAgent(t, t.TempDir(), server.URL, clk)
	defer dbA.Close()
	agentB, dbB := setupAgent(t, t.TempDir(), server.URL, clk)
	defer dbB.Close()

	recordRun(t, agentA, "evt-7", "2026-02-20T10:00:00Z")
	recordRun(t, agentB, "evt-7", "2026-02-20T10:00:00Z")

	if _, err := agentA.engine.Drain(context.Background()); err != nil {
		t.Fatalf("Agent A drain failed: %v", err)
	}
	if _, err := agentB.engine.Drain(context.Background()); err != nil {
		t.Fatalf("Agent B drain failed: %v", err)
	}

	if stub.count() != 1 {
		t.Fatalf("Expected 1 remote record, got %d", stub.count())
	}

	// Both agents see the single record and both ledgers show it synced.
	for name, a := range map[string]*agent{"A": agentA, "B": agentB} {
		consolidated, err := a.engine.Consolidated(context.Background())
		if err != nil {
			t.Fatalf("Agent %s consolidated failed: %v", name, err)
		}
		if len(consolidated) != 1 {
			t.Errorf("Agent %s sees %d records, want 1", name, len(consolidated))
		}
		synced, _ := a.ledger.ListByStatus(models.RunStatusSynced)
		if len(synced) != 1 {
			t.Errorf("Agent %s ledger has %d synced records, want 1", name, len(synced))
		}
	}
}

// TestOfflineSchedulingFlow tests that scheduling mutations validate and
// commit locally with the remote down, then deliver on the next drain.
func TestOfflineSchedulingFlow(t *testing.T) {
	stub := newRemoteStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	clk := clock.NewManual(time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC))
	a, database := setupAgent(t, t.TempDir(), server.URL, clk)
	defer database.Close()

	stub.setDown(true)

	ev := &models.MaintenanceEvent{
		ScheduledDate: "2026-02-25",
		ScheduledTime: "09:00",
		Technician:    "dana",
	}
	if err := a.scheduler.Schedule(ev); err != nil {
		t.Fatalf("Schedule failed offline: %v", err)
	}
	if err := a.scheduler.Schedule(&models.MaintenanceEvent{ScheduledDate: "2026-02-25", ScheduledTime: "09:00"}); err != nil {
		t.Fatalf("Second schedule failed offline: %v", err)
	}

	// Validation still bites with no network.
	err := a.scheduler.Schedule(&models.MaintenanceEvent{ScheduledDate: "2026-02-25", ScheduledTime: "09:00"})
	if apperrors.CodeOf(err) != apperrors.ErrSlotCapacity {
		t.Fatalf("Expected SLOT_CAPACITY_EXCEEDED offline, got %v", err)
	}

	if _, err := a.scheduler.Start(ev.ID); err != nil {
		t.Fatalf("Start failed offline: %v", err)
	}
	if _, err := a.scheduler.Reschedule(ev.ID, "2026-02-26", "10:00", "", "dispatcher"); err != nil {
		t.Fatalf("Reschedule failed offline: %v", err)
	}

	stats, _ := a.engine.QueueStats()
	if stats[models.ActionStatusPending] != 2 {
		t.Fatalf("Expected 2 queued event updates, got %v", stats)
	}

	stub.setDown(false)
	result, err := a.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Synced != 2 {
		t.Fatalf("Expected 2 delivered event updates, got %+v", result)
	}
}

// TestStatePersistsAcrossRestart tests that the queue, ledger, and snapshot
// survive an agent restart mid-sync.
func TestStatePersistsAcrossRestart(t *testing.T) {
	stub := newRemoteStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	dataDir := t.TempDir()
	clk := clock.NewManual(time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC))

	t.Log("Phase 1: Recording, then shutting down...")
	a1, db1 := setupAgent(t, dataDir, server.URL, clk)

	stub.setDown(true)
	recordRun(t, a1, "evt-1", "2026-02-20T10:00:00Z")
	if _, err := a1.engine.Drain(context.Background()); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	db1.Close()

	t.Log("Phase 2: Restarting against the same data directory...")
	a2, db2 := setupAgent(t, dataDir, server.URL, clk)
	defer db2.Close()

	local, err := a2.ledger.List()
	if err != nil {
		t.Fatalf("Ledger list after restart failed: %v", err)
	}
	if len(local) != 1 || local[0].Status != models.RunStatusPending {
		t.Fatalf("Optimistic record lost across restart: %+v", local)
	}

	stats, _ := a2.engine.QueueStats()
	if stats[models.ActionStatusFailed] != 1 {
		t.Fatalf("Failed queue entry lost across restart: %v", stats)
	}

	stub.setDown(false)
	if _, err := a2.engine.RequeueFailed(); err != nil {
		t.Fatalf("RequeueFailed failed: %v", err)
	}
	result, err := a2.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Synced != 1 {
		t.Fatalf("Expected 1 synced delivery after restart, got %+v", result)
	}

	entries, err := a2.cache.Read()
	if err != nil {
		t.Fatalf("Snapshot read failed: %v", err)
	}
	if len(entries) != 1 || entries[0].SourceID != "evt-1" {
		t.Errorf("Snapshot write-through missing after restart: %+v", entries)
	}
}

// TestSequentialRecordingThroughput tests recording a burst of runs offline.
func TestSequentialRecordingThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping throughput test in short mode")
	}

	stub := newRemoteStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	clk := clock.NewManual(time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC))
	a, database := setupAgent(t, t.TempDir(), server.URL, clk)
	defer database.Close()

	stub.setDown(true)
	start := time.Now()
	for i := 0; i < 100; i++ {
		recordRun(t, a, fmt.Sprintf("evt-%d", i), fmt.Sprintf("2026-02-20T10:%02d:00Z", i%60))
	}
	elapsed := time.Since(start)
	t.Logf("Recorded 100 runs offline in %v (avg %v per run)", elapsed, elapsed/100)

	local, _ := a.ledger.List()
	if len(local) != 100 {
		t.Fatalf("Expected 100 local records, got %d", len(local))
	}

	stub.setDown(false)
	result, err := a.engine.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if result.Synced != 100 {
		t.Fatalf("Expected 100 synced deliveries, got %+v", result)
	}
}
