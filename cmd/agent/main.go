// Package main provides the fieldsync localhost agent. Browser tabs sharing
// the storage origin talk to it over REST and WebSocket on localhost.
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/fleetworks/fieldsync/cmd/agent/handlers"
	"github.com/fleetworks/fieldsync/internal/clock"
	"github.com/fleetworks/fieldsync/internal/db"
	"github.com/fleetworks/fieldsync/internal/logging"
	"github.com/fleetworks/fieldsync/internal/reconcile"
	"github.com/fleetworks/fieldsync/internal/remote"
	"github.com/fleetworks/fieldsync/internal/schedule"
	"github.com/fleetworks/fieldsync/internal/store"
)

func main() {
	logging.Init(os.Stdout, logging.LevelInfo)

	port := envOr("FIELDSYNC_PORT", "8090")
	dataDir := envOr("FIELDSYNC_DATA_DIR", "./data")
	remoteURL := envOr("FIELDSYNC_REMOTE_URL", "http://localhost:8080")
	tenant := os.Getenv("FIELDSYNC_TENANT")

	database, err := db.Open(dataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		log.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := migrator.Up(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	clk := clock.System()

	queue := store.NewSQLiteQueue(database.DB, clk)
	ledger := store.NewSQLiteLedger(database.DB, clk)
	cache := store.NewSQLiteSnapshot(database.DB, clk)
	events := store.NewSQLiteEventStore(database.DB, clk)

	api := remote.NewClient(remoteURL, tenant)

	engine := reconcile.NewEngine(queue, ledger, cache, api, clk)
	scheduler := schedule.NewService(events, queue, clk, tenant)

	hub := NewWSHub()
	engine.SetNotifier(hub)

	checklistHandler := handlers.NewChecklistHandler(ledger, queue, engine, clk, tenant)
	scheduleHandler := handlers.NewScheduleHandler(scheduler, clk)
	scheduleHandler.SetBroadcaster(hub)
	syncHandler := handlers.NewSyncHandler(engine)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"fieldsync-agent"}`))
	})

	mux.HandleFunc("POST /api/checklist-runs", checklistHandler.Record)
	mux.HandleFunc("GET /api/checklist-runs", checklistHandler.List)
	mux.HandleFunc("GET /api/checklist-runs/local", checklistHandler.ListLocal)

	mux.HandleFunc("POST /api/events", scheduleHandler.Create)
	mux.HandleFunc("GET /api/events", scheduleHandler.List)
	mux.HandleFunc("GET /api/events/{id}", scheduleHandler.Get)
	mux.HandleFunc("POST /api/events/{id}/start", scheduleHandler.Start)
	mux.HandleFunc("POST /api/events/{id}/complete", scheduleHandler.Complete)
	mux.HandleFunc("POST /api/events/{id}/reschedule", scheduleHandler.Reschedule)
	mux.HandleFunc("DELETE /api/events/{id}", scheduleHandler.Remove)
	mux.HandleFunc("GET /api/events/{id}/audits", scheduleHandler.Audits)

	mux.HandleFunc("POST /api/sync", syncHandler.SyncNow)
	mux.HandleFunc("GET /api/sync/status", syncHandler.Status)
	mux.HandleFunc("POST /api/sync/retry-failed", syncHandler.RetryFailed)

	mux.HandleFunc("GET /ws", hub.ServeWS)

	logging.Info("fieldsync agent starting", map[string]interface{}{
		"port":   port,
		"remote": remoteURL,
	})
	log.Fatal(http.ListenAndServe("localhost:"+port, mux))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
