package engine

import (
	"context"
	"time"

	domain "seatalloc/internal/domain/enrollment"
	interfaces "seatalloc/internal/interfaces/infrastructure"
	"seatalloc/pkg/logger"
	"seatalloc/pkg/validator"

	"github.com/google/uuid"
)

// RemoveRequest asks to take a student out of a group or its queue
type RemoveRequest struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	GroupID   uuid.UUID `json:"group_id" validate:"required"`
	At        time.Time `json:"at"`
}

// CanDequeue reports whether the student may leave the group at the given
// time. Auto-enrollment groups can never be left manually; after the term's
// general remove deadline only queued or blocked ties may still leave, an
// enrolled seat is locked in. A course-level unenrollment deadline
// overrides the term rule.
func (e *Engine) CanDequeue(ctx context.Context, studentID, groupID uuid.UUID, at time.Time) (bool, error) {
	at = e.at(at)

	student, err := e.store.Students().GetByID(ctx, studentID)
	if err != nil {
		return false, err
	}
	if student == nil || !student.Active {
		return false, nil
	}

	group, err := e.loadGroup(ctx, e.store, groupID)
	if err != nil {
		return false, err
	}
	if group.AutoEnrollment {
		return false, nil
	}

	course, err := e.loadCourse(ctx, e.store, group.CourseID)
	if err != nil {
		return false, err
	}
	if course.UnenrollDeadline != nil {
		return at.Before(*course.UnenrollDeadline), nil
	}

	term, err := e.store.Terms().GetByID(ctx, course.TermID)
	if err != nil {
		return false, err
	}
	if term == nil || at.Before(term.RemoveDeadline) {
		return true, nil
	}

	rec, err := e.store.Records().ActiveByStudentAndGroup(ctx, studentID, groupID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	return rec.Status == domain.StatusQueued || rec.Status == domain.StatusBlocked, nil
}

// RemoveFromGroup transitions the student's live record for the group to
// removed. When an enrolled seat is vacated while the initial budget phase
// is still active, every blocked record the student holds is unblocked back
// to queued, since the freed budget may make room elsewhere. Returns true
// iff a record was found and transitioned.
func (e *Engine) RemoveFromGroup(ctx context.Context, req *RemoveRequest) (bool, error) {
	if err := validator.ValidateStruct(req); err != nil {
		return false, err
	}
	at := e.at(req.At)

	ok, err := e.CanDequeue(ctx, req.StudentID, req.GroupID, at)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	group, err := e.loadGroup(ctx, e.store, req.GroupID)
	if err != nil {
		return false, err
	}
	course, err := e.loadCourse(ctx, e.store, group.CourseID)
	if err != nil {
		return false, err
	}
	initialPhase, err := e.budget.InInitialPhase(ctx, course.TermID, at)
	if err != nil {
		return false, err
	}

	var removed bool
	var unblocked []uuid.UUID
	err = e.store.Transaction(ctx, func(tx interfaces.Store) error {
		removed = false
		unblocked = unblocked[:0]

		srecs, err := tx.Records().LockStudentRecords(ctx, req.StudentID)
		if err != nil {
			return err
		}
		var target *domain.Record
		for _, rec := range srecs {
			if rec.GroupID == req.GroupID {
				target = rec
				break
			}
		}
		if target == nil {
			return nil
		}

		wasEnrolled := target.Status == domain.StatusEnrolled
		if err := target.Transition(domain.StatusRemoved); err != nil {
			return err
		}
		if err := tx.Records().Update(ctx, target); err != nil {
			return err
		}
		removed = true

		if wasEnrolled && initialPhase {
			for _, rec := range srecs {
				if rec.RecordID == target.RecordID || rec.Status != domain.StatusBlocked {
					continue
				}
				if err := rec.Transition(domain.StatusQueued); err != nil {
					return err
				}
				if err := tx.Records().Update(ctx, rec); err != nil {
					return err
				}
				unblocked = append(unblocked, rec.GroupID)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}

	logger.Info("Student %s removed from group %s", req.StudentID, req.GroupID)
	for _, gid := range unblocked {
		if err := e.dispatcher.ScheduleRefill(ctx, gid); err != nil {
			logger.Warn("Failed to schedule refill for unblocked group %s: %v", gid, err)
		}
	}
	if err := e.dispatcher.ScheduleRefill(ctx, req.GroupID); err != nil {
		logger.Warn("Failed to schedule refill for group %s: %v", req.GroupID, err)
	}
	return true, nil
}
