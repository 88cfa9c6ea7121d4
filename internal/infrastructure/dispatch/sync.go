package dispatch

import (
	"context"
	"sync"

	interfaces "seatalloc/internal/interfaces/infrastructure"
	"seatalloc/pkg/logger"

	"github.com/google/uuid"
)

// SyncDispatcher processes tasks inline on the scheduling goroutine. Used by
// tests and administrative tooling where deterministic ordering matters more
// than throughput.
//
// Tasks scheduled while a drain is in progress (the allocator schedules
// follow-ups after every pass) are appended and drained by the outermost
// call; each (kind, group) pair runs at most once per drain so mirror groups
// cannot ping-pong forever.
type SyncDispatcher struct {
	mu        sync.Mutex
	allocator interfaces.AllocationService
	pending   []interfaces.GroupTask
	draining  bool
}

func NewSyncDispatcher() *SyncDispatcher {
	return &SyncDispatcher{}
}

func (d *SyncDispatcher) SetAllocator(service interfaces.AllocationService) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocator = service
}

// StartWorkers is a no-op; tasks run on the caller's goroutine
func (d *SyncDispatcher) StartWorkers() {}

// StopWorkers is a no-op
func (d *SyncDispatcher) StopWorkers() {}

func (d *SyncDispatcher) ScheduleRefill(ctx context.Context, groupID uuid.UUID) error {
	return d.schedule(ctx, interfaces.GroupTask{Kind: interfaces.TaskRefill, GroupID: groupID})
}

func (d *SyncDispatcher) ScheduleMirrorSync(ctx context.Context, groupID uuid.UUID) error {
	return d.schedule(ctx, interfaces.GroupTask{Kind: interfaces.TaskMirrorSync, GroupID: groupID})
}

func (d *SyncDispatcher) schedule(ctx context.Context, task interfaces.GroupTask) error {
	d.mu.Lock()
	d.pending = append(d.pending, task)
	if d.draining || d.allocator == nil {
		d.mu.Unlock()
		return nil
	}
	d.draining = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.draining = false
		d.mu.Unlock()
	}()

	type taskKey struct {
		kind    interfaces.TaskKind
		groupID uuid.UUID
	}
	done := make(map[taskKey]bool)

	for {
		d.mu.Lock()
		if len(d.pending) == 0 {
			d.mu.Unlock()
			return nil
		}
		next := d.pending[0]
		d.pending = d.pending[1:]
		d.mu.Unlock()

		key := taskKey{next.Kind, next.GroupID}
		if done[key] {
			continue
		}
		done[key] = true

		var err error
		switch next.Kind {
		case interfaces.TaskMirrorSync:
			err = d.allocator.SyncAutoEnrollmentGroup(ctx, next.GroupID)
		default:
			err = d.allocator.FillGroup(ctx, next.GroupID)
		}
		if err != nil {
			logger.Error("Inline %s task for group %s failed: %v", next.Kind, next.GroupID, err)
		}
	}
}

var _ interfaces.DispatchService = (*SyncDispatcher)(nil)
