package interfaces

import (
	"context"
	"errors"

	domain "seatalloc/internal/domain/enrollment"

	"github.com/google/uuid"
)

// ErrTxConflict is returned when the storage layer aborted a transaction to
// break a lock cycle. Callers treat it as transient and retry a bounded
// number of times.
var ErrTxConflict = errors.New("transaction aborted due to lock conflict")

type TermRepository interface {
	Create(ctx context.Context, term *domain.Term) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Term, error)
}

type CourseRepository interface {
	Create(ctx context.Context, course *domain.Course) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Course, error)
}

type GroupRepository interface {
	Create(ctx context.Context, group *domain.Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Group, error)
	GetByCourse(ctx context.Context, courseID uuid.UUID) ([]*domain.Group, error)
}

type StudentRepository interface {
	Create(ctx context.Context, student *domain.Student) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Student, error)
	GetByStudentNumber(ctx context.Context, studentNumber string) (*domain.Student, error)
	// RolesByStudentIDs resolves role tags for many students in one read.
	RolesByStudentIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error)
}

type RecordRepository interface {
	Create(ctx context.Context, record *domain.Record) error
	Update(ctx context.Context, record *domain.Record) error
	// ActiveByStudentAndGroup returns the non-removed record for the pair,
	// or nil when the student holds no live tie to the group.
	ActiveByStudentAndGroup(ctx context.Context, studentID, groupID uuid.UUID) (*domain.Record, error)
	ActiveByStudent(ctx context.Context, studentID uuid.UUID) ([]*domain.Record, error)
	// ActiveByStudentAndGroups is the bulk variant backing Annotate; it must
	// stay a single read regardless of how many groups are asked about.
	ActiveByStudentAndGroups(ctx context.Context, studentID uuid.UUID, groupIDs []uuid.UUID) ([]*domain.Record, error)
	ActiveByGroups(ctx context.Context, groupIDs []uuid.UUID) ([]*domain.Record, error)
	EnrolledCountByGroup(ctx context.Context, groupID uuid.UUID) (int, error)

	// LockGroupRecords acquires the group-scoped lock: every enrolled or
	// queued record of the group, held for the duration of one allocation
	// pass. Records come back ordered by created_at ascending.
	LockGroupRecords(ctx context.Context, groupID uuid.UUID) ([]*domain.Record, error)
	// LockStudentRecords acquires the student-scoped lock: every non-removed
	// record of the student. The two scopes nest (group outer, student
	// inner) and must never be merged.
	LockStudentRecords(ctx context.Context, studentID uuid.UUID) ([]*domain.Record, error)
}

// Store bundles the repositories over one storage backend and provides the
// transaction boundary every mutating engine operation runs under.
type Store interface {
	Terms() TermRepository
	Courses() CourseRepository
	Groups() GroupRepository
	Students() StudentRepository
	Records() RecordRepository

	// Transaction runs fn against a store view bound to one ACID
	// transaction. An abort caused by a lock cycle surfaces as
	// ErrTxConflict (possibly wrapped).
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
