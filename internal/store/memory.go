package store

import (
	"sort"
	"sync"

	"github.com/fleetworks/fieldsync/internal/clock"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/uuid"
)

// In-memory port implementations used as test doubles. They mirror the
// SQLite implementations' observable behavior, including FIFO queue order
// and read-time snapshot capping.

// MemoryQueue is an in-memory ActionQueue.
type MemoryQueue struct {
	mu      sync.RWMutex
	actions []*models.OfflineAction
	clk     clock.Clock
}

// NewMemoryQueue creates a MemoryQueue.
func NewMemoryQueue(clk clock.Clock) *MemoryQueue {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryQueue{clk: clk}
}

// Enqueue records a delivery intent.
func (q *MemoryQueue) Enqueue(action *models.OfflineAction) (models.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clk.Now().Unix()
	if action.ID == "" {
		action.ID = models.UUID(uuid.New())
	}
	action.Status = models.ActionStatusPending
	action.RetryCount = 0
	action.CreatedAt = now
	action.UpdatedAt = now

	copied := *action
	q.actions = append(q.actions, &copied)
	return action.ID, nil
}

// ListPending returns pending actions in FIFO order.
func (q *MemoryQueue) ListPending() ([]*models.OfflineAction, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var pending []*models.OfflineAction
	for _, a := range q.actions {
		if a.Status == models.ActionStatusPending {
			copied := *a
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}

// MarkSynced transitions an action pending -> synced.
func (q *MemoryQueue) MarkSynced(id models.UUID) error {
	return q.setStatus(id, models.ActionStatusSynced, false)
}

// MarkFailed transitions an action pending -> failed and bumps retry count.
func (q *MemoryQueue) MarkFailed(id models.UUID) error {
	return q.setStatus(id, models.ActionStatusFailed, true)
}

func (q *MemoryQueue) setStatus(id models.UUID, status models.ActionStatus, bumpRetry bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, a := range q.actions {
		if a.ID == id {
			a.Status = status
			if bumpRetry {
				a.RetryCount++
			}
			a.Touch(q.clk.Now())
			return nil
		}
	}
	return apperrors.New(apperrors.ErrNotFound, "queue entry not found: "+id.String())
}

// RequeueFailed resets all failed actions to pending.
func (q *MemoryQueue) RequeueFailed() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	for _, a := range q.actions {
		if a.Status == models.ActionStatusFailed {
			a.Status = models.ActionStatusPending
			a.Touch(q.clk.Now())
			count++
		}
	}
	return count, nil
}

// Stats returns per-status action counts.
func (q *MemoryQueue) Stats() (map[models.ActionStatus]int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := map[models.ActionStatus]int{
		models.ActionStatusPending: 0,
		models.ActionStatusSynced:  0,
		models.ActionStatusFailed:  0,
	}
	for _, a := range q.actions {
		stats[a.Status]++
	}
	return stats, nil
}

// MemoryLedger is an in-memory RunLedger.
type MemoryLedger struct {
	mu   sync.RWMutex
	runs []*models.ChecklistRun
	clk  clock.Clock
}

// NewMemoryLedger creates a MemoryLedger.
func NewMemoryLedger(clk clock.Clock) *MemoryLedger {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryLedger{clk: clk}
}

// Append records a run; colliding natural keys are tolerated.
func (l *MemoryLedger) Append(run *models.ChecklistRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now().Unix()
	if run.ID == "" {
		run.ID = models.UUID(uuid.New())
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	run.CreatedAt = now
	run.UpdatedAt = now

	copied := *run
	l.runs = append(l.runs, &copied)
	return nil
}

// List returns all runs ordered by completion time descending.
func (l *MemoryLedger) List() ([]*models.ChecklistRun, error) {
	return l.list(func(*models.ChecklistRun) bool { return true })
}

// ListByStatus returns runs with the given status, completion desc.
func (l *MemoryLedger) ListByStatus(status models.RunStatus) ([]*models.ChecklistRun, error) {
	return l.list(func(r *models.ChecklistRun) bool { return r.Status == status })
}

func (l *MemoryLedger) list(keep func(*models.ChecklistRun) bool) ([]*models.ChecklistRun, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var runs []*models.ChecklistRun
	for _, r := range l.runs {
		if keep(r) {
			copied := *r
			runs = append(runs, &copied)
		}
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CompletedAt > runs[j].CompletedAt
	})
	return runs, nil
}

// UpdateStatusByKey transitions every record matching the natural key.
func (l *MemoryLedger) UpdateStatusByKey(sourceID, completedAt string, status models.RunStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.runs {
		if r.SourceID == sourceID && r.CompletedAt == completedAt {
			r.Status = status
			r.Touch(l.clk.Now())
		}
	}
	return nil
}

// MemorySnapshot is an in-memory SnapshotCache.
type MemorySnapshot struct {
	mu      sync.RWMutex
	entries []models.SyncSnapshotEntry
}

// NewMemorySnapshot creates a MemorySnapshot.
func NewMemorySnapshot() *MemorySnapshot {
	return &MemorySnapshot{entries: []models.SyncSnapshotEntry{}}
}

// Write replaces the cached list, capped at models.SnapshotCap.
func (s *MemorySnapshot) Write(entries []models.SyncSnapshotEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(entries) > models.SnapshotCap {
		entries = entries[:models.SnapshotCap]
	}
	s.entries = append([]models.SyncSnapshotEntry(nil), entries...)
	return nil
}

// Read returns the cached list.
func (s *MemorySnapshot) Read() ([]models.SyncSnapshotEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SyncSnapshotEntry(nil), s.entries...), nil
}

// MemoryEventStore is an in-memory EventStore.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events map[models.UUID]*models.MaintenanceEvent
	order  []models.UUID
	audits []*models.RescheduleAudit
	clk    clock.Clock
}

// NewMemoryEventStore creates a MemoryEventStore.
func NewMemoryEventStore(clk clock.Clock) *MemoryEventStore {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryEventStore{
		events: make(map[models.UUID]*models.MaintenanceEvent),
		clk:    clk,
	}
}

// Create inserts a new maintenance event.
func (s *MemoryEventStore) Create(event *models.MaintenanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now().Unix()
	if event.ID == "" {
		event.ID = models.UUID(uuid.New())
	}
	if event.Status == "" {
		event.Status = models.EventStatusScheduled
	}
	event.CreatedAt = now
	event.UpdatedAt = now

	copied := *event
	s.events[event.ID] = &copied
	s.order = append(s.order, event.ID)
	return nil
}

// Get retrieves an event by id.
func (s *MemoryEventStore) Get(id models.UUID) (*models.MaintenanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, "event not found: "+id.String())
	}
	copied := *ev
	return &copied, nil
}

// Update persists an event's mutable fields.
func (s *MemoryEventStore) Update(event *models.MaintenanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.events[event.ID]
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, "event not found: "+event.ID.String())
	}
	event.CreatedAt = existing.CreatedAt
	event.Touch(s.clk.Now())
	copied := *event
	s.events[event.ID] = &copied
	return nil
}

// Cancel soft-removes an event.
func (s *MemoryEventStore) Cancel(id models.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, "event not found: "+id.String())
	}
	ev.Cancelled = true
	ev.Touch(s.clk.Now())
	return nil
}

// List returns non-cancelled events ordered by slot.
func (s *MemoryEventStore) List() ([]*models.MaintenanceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*models.MaintenanceEvent
	for _, id := range s.order {
		ev := s.events[id]
		if ev.Cancelled {
			continue
		}
		copied := *ev
		events = append(events, &copied)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Slot() < events[j].Slot()
	})
	return events, nil
}

// CountSlot counts non-cancelled events occupying a (date, time) slot.
func (s *MemoryEventStore) CountSlot(date, timeOfDay string, excludeID models.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, ev := range s.events {
		if ev.Cancelled || ev.ID == excludeID {
			continue
		}
		if ev.ScheduledDate == date && ev.ScheduledTime == timeOfDay {
			count++
		}
	}
	return count, nil
}

// AppendAudit records a justified reschedule.
func (s *MemoryEventStore) AppendAudit(audit *models.RescheduleAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if audit.ID == "" {
		audit.ID = models.UUID(uuid.New())
	}
	audit.CreatedAt = s.clk.Now().Unix()
	copied := *audit
	s.audits = append(s.audits, &copied)
	return nil
}

// ListAudits returns an event's reschedule audit trail, oldest first.
func (s *MemoryEventStore) ListAudits(eventID models.UUID) ([]*models.RescheduleAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var audits []*models.RescheduleAudit
	for _, a := range s.audits {
		if a.EventID == eventID {
			copied := *a
			audits = append(audits, &copied)
		}
	}
	return audits, nil
}

var (
	_ ActionQueue   = (*MemoryQueue)(nil)
	_ RunLedger     = (*MemoryLedger)(nil)
	_ SnapshotCache = (*MemorySnapshot)(nil)
	_ EventStore    = (*MemoryEventStore)(nil)
)
