package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"seatalloc/internal/config"
	interfaces "seatalloc/internal/interfaces/infrastructure"
	"seatalloc/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	RefillQueueKey        = "dispatch:refill"
	MirrorSyncQueueKey    = "dispatch:mirror_sync"
	DefaultDequeueTimeout = 2 * time.Second
	WorkerSleepDuration   = 50 * time.Millisecond
)

// RedisDispatcher runs the task queue over Redis lists so several worker
// processes can share the load
type RedisDispatcher struct {
	client redis.UniversalClient

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex

	allocator interfaces.AllocationService
}

func NewRedisDispatcher(cfg *config.CacheConfig, workers int) interfaces.DispatchService {
	ctx, cancel := context.WithCancel(context.Background())

	rdb := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	})

	return &RedisDispatcher{
		client:  rdb,
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *RedisDispatcher) SetAllocator(service interfaces.AllocationService) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allocator = service
}

func (d *RedisDispatcher) StartWorkers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	if d.allocator == nil {
		logger.Warn("Allocator not set, dispatch workers cannot process tasks")
		return
	}

	logger.Info("Starting %d Redis dispatch workers", d.workers)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.taskWorker(i, RefillQueueKey)
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.taskWorker(i, MirrorSyncQueueKey)
	}

	d.started = true
	logger.Info("Redis dispatch workers started successfully")
}

func (d *RedisDispatcher) StopWorkers() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return
	}

	logger.Info("Stopping Redis dispatch workers...")
	d.cancel()
	d.wg.Wait()
	d.started = false
	logger.Info("Redis dispatch workers stopped")
}

func (d *RedisDispatcher) ScheduleRefill(ctx context.Context, groupID uuid.UUID) error {
	return d.push(ctx, RefillQueueKey, interfaces.GroupTask{
		Kind:      interfaces.TaskRefill,
		GroupID:   groupID,
		Timestamp: time.Now().UTC(),
	})
}

func (d *RedisDispatcher) ScheduleMirrorSync(ctx context.Context, groupID uuid.UUID) error {
	return d.push(ctx, MirrorSyncQueueKey, interfaces.GroupTask{
		Kind:      interfaces.TaskMirrorSync,
		GroupID:   groupID,
		Timestamp: time.Now().UTC(),
	})
}

func (d *RedisDispatcher) push(ctx context.Context, key string, task interfaces.GroupTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal %s task: %w", task.Kind, err)
	}

	if err := d.client.LPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue %s task for group %s: %w", task.Kind, task.GroupID, err)
	}

	logger.Debug("Enqueued %s task for group %s", task.Kind, task.GroupID)
	return nil
}

func (d *RedisDispatcher) pop(ctx context.Context, key string) (*interfaces.GroupTask, error) {
	result, err := d.client.BRPop(ctx, DefaultDequeueTimeout, key).Result()
	if err != nil {
		if err == redis.Nil || err == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue from %s: %w", key, err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected Redis BRPOP result format")
	}

	var task interfaces.GroupTask
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

func (d *RedisDispatcher) taskWorker(workerID int, key string) {
	defer d.wg.Done()

	logger.Info("Redis dispatch worker %d started on %s", workerID, key)

	for {
		select {
		case <-d.ctx.Done():
			logger.Info("Redis dispatch worker %d stopped", workerID)
			return
		default:
			ctx, cancel := context.WithTimeout(context.Background(), DefaultDequeueTimeout)
			task, err := d.pop(ctx, key)
			cancel()

			if err != nil {
				logger.Error("Redis dispatch worker %d error: %v", workerID, err)
				time.Sleep(WorkerSleepDuration)
				continue
			}

			if task != nil {
				d.processTask(workerID, task)
			} else {
				time.Sleep(WorkerSleepDuration)
			}
		}
	}
}

func (d *RedisDispatcher) processTask(workerID int, task *interfaces.GroupTask) {
	logger.Debug("Redis worker %d processing %s task for group %s", workerID, task.Kind, task.GroupID)

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	var err error
	switch task.Kind {
	case interfaces.TaskMirrorSync:
		err = d.allocator.SyncAutoEnrollmentGroup(ctx, task.GroupID)
	default:
		err = d.allocator.FillGroup(ctx, task.GroupID)
	}

	if err != nil {
		logger.Error("Redis worker %d failed to process %s task for group %s: %v",
			workerID, task.Kind, task.GroupID, err)
	}
}

var _ interfaces.DispatchService = (*RedisDispatcher)(nil)
