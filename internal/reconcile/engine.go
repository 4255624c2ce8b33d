// Package reconcile merges checklist-run records from the remote API, the
// local run ledger, and the cross-tab snapshot cache into one deduplicated
// view, and drains the durable mutation queue toward the remote store.
package reconcile

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/fleetworks/fieldsync/internal/clock"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/logging"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/remote"
	"github.com/fleetworks/fieldsync/internal/store"
)

// Notifier receives engine events for cross-tab broadcast. Implementations
// must not block; a nil Notifier disables notification.
type Notifier interface {
	SyncStarted()
	SyncCompleted(synced, failed int, duration time.Duration)
	SyncFailed(errorCode string)
	SnapshotUpdated(entries int)
}

// Engine is the reconciliation/merge engine.
type Engine struct {
	queue    store.ActionQueue
	ledger   store.RunLedger
	cache    store.SnapshotCache
	api      remote.API
	clk      clock.Clock
	notifier Notifier
}

// NewEngine creates an Engine over the device-local stores and the remote API.
func NewEngine(queue store.ActionQueue, ledger store.RunLedger, cache store.SnapshotCache, api remote.API, clk clock.Clock) *Engine {
	return &Engine{
		queue:  queue,
		ledger: ledger,
		cache:  cache,
		api:    api,
		clk:    clk,
	}
}

// SetNotifier sets the cross-tab notifier.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// Merge deduplicates records from the given sources by natural key.
//
// Sources are processed in precedence order (callers pass remote first, then
// ledger, then snapshot); within the order-preserving key map the first
// record seen for a key wins and later duplicates are discarded. The output
// is sorted by completion time descending.
//
// The result depends only on key identity, never on per-source arrival
// order: replaying identical inputs in any order, any number of times,
// yields the same set.
func Merge(sources ...[]*models.ChecklistRun) []*models.ChecklistRun {
	seen := make(map[string]*models.ChecklistRun)
	var order []string

	for _, source := range sources {
		for _, run := range source {
			key := run.NaturalKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = run
			order = append(order, key)
		}
	}

	merged := make([]*models.ChecklistRun, 0, len(order))
	for _, key := range order {
		merged = append(merged, seen[key])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CompletedAt > merged[j].CompletedAt
	})
	return merged
}

// Consolidated produces the consolidated run view: remote list first, then
// the ledger's synced subset, then the snapshot cache, deduplicated by
// natural key.
//
// A remote read failure is tolerated — the local sources still answer — but
// while the remote is reachable it always takes precedence, so the snapshot
// cache is never the sole source of truth.
func (e *Engine) Consolidated(ctx context.Context) ([]*models.ChecklistRun, error) {
	var remoteRuns []*models.ChecklistRun
	if runs, err := e.api.ListRuns(ctx); err != nil {
		logging.Warn("Remote run list unavailable, serving local view",
			map[string]interface{}{"error": err.Error()})
	} else {
		remoteRuns = runs
	}

	synced, err := e.ledger.ListByStatus(models.RunStatusSynced)
	if err != nil {
		return nil, err
	}

	cached, err := e.cache.Read()
	if err != nil {
		return nil, err
	}
	cachedRuns := make([]*models.ChecklistRun, 0, len(cached))
	for _, entry := range cached {
		cachedRuns = append(cachedRuns, models.RunFromSnapshot(entry))
	}

	return Merge(remoteRuns, synced, cachedRuns), nil
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Attempted int           `json:"attempted"`
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration_ms"`
}

// Drain iterates the pending mutation queue FIFO and attempts remote
// delivery of each entry.
//
// On success the entry is marked synced, the matching ledger record (by the
// natural key embedded in the payload) transitions to synced, and the
// snapshot cache is written through so other tabs see the record
// immediately. On failure the entry is marked failed and the optimistic
// local state is retained: the record stays visible as "saved locally,
// pending sync". Failed entries are not retried automatically; requeueing
// them is an explicit operator action.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	start := e.clk.Now()
	result := &DrainResult{}

	if e.notifier != nil {
		e.notifier.SyncStarted()
	}

	pending, err := e.queue.ListPending()
	if err != nil {
		if e.notifier != nil {
			e.notifier.SyncFailed(string(apperrors.CodeOf(err)))
		}
		return nil, err
	}

	for _, action := range pending {
		select {
		case <-ctx.Done():
			result.Duration = e.clk.Now().Sub(start)
			return result, ctx.Err()
		default:
		}

		result.Attempted++
		if err := e.deliver(ctx, action); err != nil {
			result.Failed++
			if markErr := e.queue.MarkFailed(action.ID); markErr != nil {
				logging.Error("Failed to mark queue entry failed", markErr,
					map[string]interface{}{"action_id": action.ID.String()})
			}
			logging.Warn("Delivery failed, keeping local state",
				map[string]interface{}{
					"action_id": action.ID.String(),
					"endpoint":  action.Endpoint,
					"code":      string(apperrors.CodeOf(err)),
					"error":     err.Error(),
				})
			continue
		}

		if err := e.queue.MarkSynced(action.ID); err != nil {
			logging.Error("Failed to mark queue entry synced", err,
				map[string]interface{}{"action_id": action.ID.String()})
		}
		result.Synced++
	}

	result.Duration = e.clk.Now().Sub(start)

	if e.notifier != nil {
		e.notifier.SyncCompleted(result.Synced, result.Failed, result.Duration)
	}

	logging.Info("Drain finished", map[string]interface{}{
		"attempted": result.Attempted,
		"synced":    result.Synced,
		"failed":    result.Failed,
	})
	return result, nil
}

// deliver attempts remote delivery of one queued action.
func (e *Engine) deliver(ctx context.Context, action *models.OfflineAction) error {
	switch {
	case action.Endpoint == models.EndpointRuns && action.Method == "POST":
		return e.deliverRun(ctx, action)
	case strings.HasPrefix(action.Endpoint, models.EndpointEvents+"/") && action.Method == "PATCH":
		return e.deliverEventUpdate(ctx, action)
	default:
		return apperrors.New(apperrors.ErrInvalid,
			"unknown queued action: "+action.Method+" "+action.Endpoint)
	}
}

func (e *Engine) deliverRun(ctx context.Context, action *models.OfflineAction) error {
	var run models.ChecklistRun
	if err := json.Unmarshal(action.Payload, &run); err != nil {
		return apperrors.Wrap(apperrors.ErrCorruptState, "undecodable run payload", err)
	}

	if err := e.api.SubmitRun(ctx, &run); err != nil {
		return err
	}

	if err := e.ledger.UpdateStatusByKey(run.SourceID, run.CompletedAt, models.RunStatusSynced); err != nil {
		return err
	}
	return e.writeThrough(&run)
}

func (e *Engine) deliverEventUpdate(ctx context.Context, action *models.OfflineAction) error {
	var payload models.EventUpdatePayload
	if err := json.Unmarshal(action.Payload, &payload); err != nil {
		return apperrors.Wrap(apperrors.ErrCorruptState, "undecodable event payload", err)
	}

	return e.api.UpdateEvent(ctx, payload.EventID, remote.EventPatch{
		Status: payload.Status,
		Date:   payload.Date,
		Time:   payload.Time,
	})
}

// writeThrough prepends the freshly synced run to the snapshot cache so
// every tab sharing the storage origin sees it immediately.
func (e *Engine) writeThrough(run *models.ChecklistRun) error {
	cached, err := e.cache.Read()
	if err != nil {
		return err
	}

	entry := models.SnapshotFromRun(run, e.clk.Now().Unix())
	entries := make([]models.SyncSnapshotEntry, 0, len(cached)+1)
	entries = append(entries, entry)
	for _, c := range cached {
		if c.NaturalKey() == entry.NaturalKey() {
			continue
		}
		entries = append(entries, c)
	}

	if err := e.cache.Write(entries); err != nil {
		return err
	}
	if e.notifier != nil {
		count := len(entries)
		if count > models.SnapshotCap {
			count = models.SnapshotCap
		}
		e.notifier.SnapshotUpdated(count)
	}
	return nil
}

// RequeueFailed resets failed queue entries to pending. This is the explicit
// retry path; drains never pick failed entries up on their own.
func (e *Engine) RequeueFailed() (int, error) {
	return e.queue.RequeueFailed()
}

// QueueStats returns per-status queue counts for the sync status surface.
func (e *Engine) QueueStats() (map[models.ActionStatus]int, error) {
	return e.queue.Stats()
}
