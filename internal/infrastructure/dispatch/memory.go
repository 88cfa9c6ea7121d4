package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	interfaces "seatalloc/internal/interfaces/infrastructure"
	"seatalloc/pkg/logger"

	"github.com/google/uuid"
)

const taskTimeout = 30 * time.Second

// MemoryDispatcher hands refill and mirror-sync tasks to a channel-backed
// worker pool inside the same process
type MemoryDispatcher struct {
	refillQueue chan uuid.UUID
	mirrorQueue chan uuid.UUID

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex

	allocator interfaces.AllocationService
}

func NewMemoryDispatcher(bufferSize, workers int) interfaces.DispatchService {
	ctx, cancel := context.WithCancel(context.Background())

	return &MemoryDispatcher{
		refillQueue: make(chan uuid.UUID, bufferSize),
		mirrorQueue: make(chan uuid.UUID, bufferSize),
		workers:     workers,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (d *MemoryDispatcher) SetAllocator(service interfaces.AllocationService) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocator = service
}

func (d *MemoryDispatcher) StartWorkers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	if d.allocator == nil {
		logger.Warn("Allocator not set, dispatch workers cannot process tasks")
		return
	}

	logger.Info("Starting %d dispatch workers", d.workers)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.refillWorker(i)
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.mirrorSyncWorker(i)
	}

	d.started = true
	logger.Info("Dispatch workers started successfully")
}

func (d *MemoryDispatcher) StopWorkers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return
	}

	logger.Info("Stopping dispatch workers...")
	d.cancel()
	d.wg.Wait()
	d.started = false
	logger.Info("Dispatch workers stopped")
}

// ScheduleRefill asks the pool to run an allocation pass for the group.
// Delivery is at-least-once and the allocator is idempotent, so a full
// buffer is an error the caller may ignore.
func (d *MemoryDispatcher) ScheduleRefill(ctx context.Context, groupID uuid.UUID) error {
	select {
	case d.refillQueue <- groupID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("refill queue is full")
	}
}

// ScheduleMirrorSync asks the pool to reconcile an auto-enrollment group
func (d *MemoryDispatcher) ScheduleMirrorSync(ctx context.Context, groupID uuid.UUID) error {
	select {
	case d.mirrorQueue <- groupID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("mirror sync queue is full")
	}
}

func (d *MemoryDispatcher) refillWorker(workerID int) {
	defer d.wg.Done()

	logger.Info("Refill worker %d started", workerID)

	for {
		select {
		case <-d.ctx.Done():
			logger.Info("Refill worker %d stopped", workerID)
			return
		case groupID := <-d.refillQueue:
			d.processRefill(workerID, groupID)
		}
	}
}

func (d *MemoryDispatcher) mirrorSyncWorker(workerID int) {
	defer d.wg.Done()

	logger.Info("Mirror sync worker %d started", workerID)

	for {
		select {
		case <-d.ctx.Done():
			logger.Info("Mirror sync worker %d stopped", workerID)
			return
		case groupID := <-d.mirrorQueue:
			d.processMirrorSync(workerID, groupID)
		}
	}
}

func (d *MemoryDispatcher) processRefill(workerID int, groupID uuid.UUID) {
	logger.Debug("Worker %d processing refill for group %s", workerID, groupID)

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	if err := d.allocator.FillGroup(ctx, groupID); err != nil {
		logger.Error("Worker %d failed to refill group %s: %v", workerID, groupID, err)
	}
}

func (d *MemoryDispatcher) processMirrorSync(workerID int, groupID uuid.UUID) {
	logger.Debug("Worker %d processing mirror sync for group %s", workerID, groupID)

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	if err := d.allocator.SyncAutoEnrollmentGroup(ctx, groupID); err != nil {
		logger.Error("Worker %d failed to sync mirror group %s: %v", workerID, groupID, err)
	}
}

var _ interfaces.DispatchService = (*MemoryDispatcher)(nil)
