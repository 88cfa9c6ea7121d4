package interfaces

import (
	"context"
	"time"

	domain "seatalloc/internal/domain/enrollment"

	"github.com/google/uuid"
)

// TaskKind identifies the asynchronous work a dispatched task carries
type TaskKind string

const (
	TaskRefill     TaskKind = "refill"
	TaskMirrorSync TaskKind = "mirror_sync"
)

// GroupTask is the fire-and-forget unit of work produced after every group
// state change. Delivery is at-least-once; the allocator is idempotent.
type GroupTask struct {
	Kind      TaskKind  `json:"kind"`
	GroupID   uuid.UUID `json:"group_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Dispatcher is the narrow surface the engine emits change notifications
// through. Implementations may run work synchronously (tests,
// administrative contexts) or hand it to a worker pool.
type Dispatcher interface {
	ScheduleRefill(ctx context.Context, groupID uuid.UUID) error
	ScheduleMirrorSync(ctx context.Context, groupID uuid.UUID) error
}

// AllocationService is what dispatch workers invoke to process tasks.
// Implemented by the engine.
type AllocationService interface {
	FillGroup(ctx context.Context, groupID uuid.UUID) error
	SyncAutoEnrollmentGroup(ctx context.Context, groupID uuid.UUID) error
}

// DispatchService is a Dispatcher with a managed worker pool behind it
type DispatchService interface {
	Dispatcher
	SetAllocator(service AllocationService)
	StartWorkers()
	StopWorkers()
}

// WindowOracle answers time-window questions the engine treats as a black
// box: whether a student's personal queue window for a group is open, and
// whether the course's enrollment window is open at all.
type WindowOracle interface {
	StudentWindowOpen(ctx context.Context, student *domain.Student, group *domain.Group, at time.Time) (bool, error)
	GroupWindowOpen(ctx context.Context, group *domain.Group, at time.Time) (bool, error)
}

// BudgetPolicy exposes the two-phase global points ceiling for a term: a
// tighter initial ceiling relaxed to the final one at a configured instant.
type BudgetPolicy interface {
	CurrentCeiling(ctx context.Context, termID uuid.UUID, at time.Time) (int, error)
	FinalCeiling(ctx context.Context, termID uuid.UUID) (int, error)
	InInitialPhase(ctx context.Context, termID uuid.UUID, at time.Time) (bool, error)
}

// EventSink consumes the engine's outbound events. The messaging layer
// behind it is out of scope; failures to deliver must not affect the
// allocation outcome, so the methods return nothing.
type EventSink interface {
	StudentPulled(ctx context.Context, studentID, groupID uuid.UUID)
	PullRejected(ctx context.Context, studentID, groupID uuid.UUID, reason domain.Reason)
}
