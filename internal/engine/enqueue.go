package engine

import (
	"context"
	"fmt"
	"time"

	domain "seatalloc/internal/domain/enrollment"
	"seatalloc/pkg/logger"
	"seatalloc/pkg/validator"

	"github.com/google/uuid"
)

// EnqueueRequest asks to admit a student into a group's queue
type EnqueueRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	GroupID   uuid.UUID `json:"group_id" validate:"required"`
	At        time.Time `json:"at"`
}

// SetPriorityRequest updates the queue tie-break priority of a live record
type SetPriorityRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	GroupID   uuid.UUID `json:"group_id" validate:"required"`
	Priority  int       `json:"priority" validate:"min=1,max=10"`
}

// CanEnqueue reports whether the student may join the group's queue at the
// given time. Ineligibility is an outcome, not an error.
func (e *Engine) CanEnqueue(ctx context.Context, studentID, groupID uuid.UUID, at time.Time) (bool, error) {
	results, err := e.CanEnqueueBatch(ctx, studentID, []uuid.UUID{groupID}, at)
	if err != nil {
		return false, err
	}
	return results[groupID], nil
}

// CanEnqueueBatch evaluates many candidate groups with a constant number of
// storage round-trips: one record read, one group read, one course read.
func (e *Engine) CanEnqueueBatch(ctx context.Context, studentID uuid.UUID, groupIDs []uuid.UUID, at time.Time) (map[uuid.UUID]bool, error) {
	at = e.at(at)
	results := make(map[uuid.UUID]bool, len(groupIDs))
	for _, id := range groupIDs {
		results[id] = false
	}

	student, err := e.store.Students().GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student == nil || !student.Active {
		return results, nil
	}

	recs, err := e.store.Records().ActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}

	allGroupIDs := make([]uuid.UUID, 0, len(groupIDs)+len(recs))
	seen := make(map[uuid.UUID]bool)
	for _, id := range groupIDs {
		if !seen[id] {
			seen[id] = true
			allGroupIDs = append(allGroupIDs, id)
		}
	}
	for _, rec := range recs {
		if !seen[rec.GroupID] {
			seen[rec.GroupID] = true
			allGroupIDs = append(allGroupIDs, rec.GroupID)
		}
	}

	groups, err := e.store.Groups().GetByIDs(ctx, allGroupIDs)
	if err != nil {
		return nil, err
	}
	groupByID := make(map[uuid.UUID]*domain.Group, len(groups))
	courseIDs := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		groupByID[g.GroupID] = g
		courseIDs = append(courseIDs, g.CourseID)
	}

	courses, err := e.store.Courses().GetByIDs(ctx, courseIDs)
	if err != nil {
		return nil, err
	}
	courseByID := make(map[uuid.UUID]*domain.Course, len(courses))
	for _, c := range courses {
		courseByID[c.CourseID] = c
	}

	// courses the student is already tied to, and the committed points per
	// term over those distinct courses
	heldCourses := make(map[uuid.UUID]bool)
	committedByTerm := make(map[uuid.UUID]int)
	for _, rec := range recs {
		g := groupByID[rec.GroupID]
		if g == nil || heldCourses[g.CourseID] {
			continue
		}
		heldCourses[g.CourseID] = true
		if c := courseByID[g.CourseID]; c != nil {
			committedByTerm[c.TermID] += c.Points
		}
	}

	finalCeilings := make(map[uuid.UUID]int)
	for _, id := range groupIDs {
		group := groupByID[id]
		if group == nil {
			return nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
		}
		// students may never queue directly for a mirror group
		if group.AutoEnrollment {
			continue
		}
		open, err := e.oracle.StudentWindowOpen(ctx, student, group, at)
		if err != nil {
			return nil, err
		}
		if !open {
			continue
		}
		course := courseByID[group.CourseID]
		if course == nil {
			return nil, fmt.Errorf("%w: %s", ErrCourseNotFound, group.CourseID)
		}
		// switching groups within an already-committed course never costs
		// extra budget
		if heldCourses[course.CourseID] {
			results[id] = true
			continue
		}
		ceiling, ok := finalCeilings[course.TermID]
		if !ok {
			ceiling, err = e.budget.FinalCeiling(ctx, course.TermID)
			if err != nil {
				return nil, err
			}
			finalCeilings[course.TermID] = ceiling
		}
		if committedByTerm[course.TermID]+course.Points <= ceiling {
			results[id] = true
		}
	}
	return results, nil
}

// Enqueue admits the student into the group's queue. It is idempotent when
// the student already holds a live tie to the group.
//
// Concurrent calls for the same (student, group) may both pass the
// check-then-act race and insert two records; the allocator collapses the
// duplicate on the first successful pull, so the race is tolerated here.
func (e *Engine) Enqueue(ctx context.Context, req *EnqueueRequest) (bool, error) {
	if err := validator.ValidateStruct(req); err != nil {
		return false, err
	}
	at := e.at(req.At)

	ok, err := e.CanEnqueue(ctx, req.StudentID, req.GroupID, at)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	existing, err := e.store.Records().ActiveByStudentAndGroup(ctx, req.StudentID, req.GroupID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}

	record := &domain.Record{
		RecordID:   uuid.New(),
		StudentID:  req.StudentID,
		GroupID:    req.GroupID,
		Status:     domain.StatusQueued,
		Priority:   domain.DefaultPriority,
		CreatedAt:  at,
		ModifiedAt: at,
	}
	if err := e.store.Records().Create(ctx, record); err != nil {
		return false, err
	}
	logger.Info("Student %s queued for group %s", req.StudentID, req.GroupID)

	if err := e.dispatcher.ScheduleRefill(ctx, req.GroupID); err != nil {
		logger.Warn("Failed to schedule refill for group %s: %v", req.GroupID, err)
	}
	return true, nil
}

// SetQueuePriority updates the tie-break priority of a record that is
// currently queued or blocked. Returns whether exactly one record changed.
func (e *Engine) SetQueuePriority(ctx context.Context, req *SetPriorityRequest) (bool, error) {
	if err := validator.ValidateStruct(req); err != nil {
		return false, err
	}

	rec, err := e.store.Records().ActiveByStudentAndGroup(ctx, req.StudentID, req.GroupID)
	if err != nil {
		return false, err
	}
	if rec == nil || (rec.Status != domain.StatusQueued && rec.Status != domain.StatusBlocked) {
		return false, nil
	}

	rec.Priority = req.Priority
	if err := e.store.Records().Update(ctx, rec); err != nil {
		return false, err
	}
	return true, nil
}
