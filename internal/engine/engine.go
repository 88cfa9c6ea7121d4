package engine

import (
	"context"
	"errors"
	"time"

	domain "seatalloc/internal/domain/enrollment"
	interfaces "seatalloc/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrCourseNotFound = errors.New("course not found")
)

// Engine is the enrollment allocation engine. It owns the record store and
// is the only writer of record lifecycle transitions. Queue windows and the
// points ceiling come from external collaborators; group-changed
// notifications go out through the dispatcher.
type Engine struct {
	store      interfaces.Store
	oracle     interfaces.WindowOracle
	budget     interfaces.BudgetPolicy
	dispatcher interfaces.Dispatcher
	events     interfaces.EventSink

	maxPullAttempts int
}

func NewEngine(
	store interfaces.Store,
	oracle interfaces.WindowOracle,
	budget interfaces.BudgetPolicy,
	dispatcher interfaces.Dispatcher,
	events interfaces.EventSink,
) *Engine {
	if events == nil {
		events = NewLogSink()
	}
	return &Engine{
		store:           store,
		oracle:          oracle,
		budget:          budget,
		dispatcher:      dispatcher,
		events:          events,
		maxPullAttempts: maxPullAttempts,
	}
}

var _ interfaces.AllocationService = (*Engine)(nil)

// at normalizes the caller-supplied point in time
func (e *Engine) at(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func (e *Engine) loadGroup(ctx context.Context, st interfaces.Store, id uuid.UUID) (*domain.Group, error) {
	group, err := st.Groups().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return group, nil
}

func (e *Engine) loadCourse(ctx context.Context, st interfaces.Store, id uuid.UUID) (*domain.Course, error) {
	course, err := st.Courses().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	return course, nil
}

// pointsCommitted sums the course costs of the distinct courses the given
// active records tie the student to within one term, plus any hypothetical
// extra courses. Two bulk reads regardless of record count.
func pointsCommitted(ctx context.Context, st interfaces.Store, recs []*domain.Record, termID uuid.UUID, extraCourses []uuid.UUID) (int, error) {
	groupIDs := make([]uuid.UUID, 0, len(recs))
	seen := make(map[uuid.UUID]bool)
	for _, rec := range recs {
		if !rec.IsActive() || seen[rec.GroupID] {
			continue
		}
		seen[rec.GroupID] = true
		groupIDs = append(groupIDs, rec.GroupID)
	}

	courseSet := make(map[uuid.UUID]bool)
	if len(groupIDs) > 0 {
		groups, err := st.Groups().GetByIDs(ctx, groupIDs)
		if err != nil {
			return 0, err
		}
		for _, g := range groups {
			if g.TermID == termID {
				courseSet[g.CourseID] = true
			}
		}
	}
	for _, id := range extraCourses {
		courseSet[id] = true
	}
	if len(courseSet) == 0 {
		return 0, nil
	}

	courseIDs := make([]uuid.UUID, 0, len(courseSet))
	for id := range courseSet {
		courseIDs = append(courseIDs, id)
	}
	courses, err := st.Courses().GetByIDs(ctx, courseIDs)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, c := range courses {
		total += c.Points
	}
	return total, nil
}
