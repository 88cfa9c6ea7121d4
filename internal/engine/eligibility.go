package engine

import (
	"context"

	domain "seatalloc/internal/domain/enrollment"

	"github.com/google/uuid"
)

// GroupAnnotation decorates a group with the caller's standing in it
type GroupAnnotation struct {
	Group      *domain.Group `json:"group"`
	IsEnqueued bool          `json:"is_enqueued"`
	IsEnrolled bool          `json:"is_enrolled"`
	Priority   int           `json:"priority,omitempty"`
}

// IsEnrolled reports whether the student holds an enrolled record in the group
func (e *Engine) IsEnrolled(ctx context.Context, studentID, groupID uuid.UUID) (bool, error) {
	rec, err := e.store.Records().ActiveByStudentAndGroup(ctx, studentID, groupID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Status == domain.StatusEnrolled, nil
}

// IsRecorded reports whether the student holds any live tie to the group
func (e *Engine) IsRecorded(ctx context.Context, studentID, groupID uuid.UUID) (bool, error) {
	rec, err := e.store.Records().ActiveByStudentAndGroup(ctx, studentID, groupID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Annotate resolves the student's standing in many groups with a single
// record read, independent of len(groups).
func (e *Engine) Annotate(ctx context.Context, studentID uuid.UUID, groups []*domain.Group) ([]GroupAnnotation, error) {
	groupIDs := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.GroupID)
	}

	recs, err := e.store.Records().ActiveByStudentAndGroups(ctx, studentID, groupIDs)
	if err != nil {
		return nil, err
	}
	byGroup := make(map[uuid.UUID]*domain.Record, len(recs))
	for _, rec := range recs {
		byGroup[rec.GroupID] = rec
	}

	annotated := make([]GroupAnnotation, 0, len(groups))
	for _, g := range groups {
		ann := GroupAnnotation{Group: g}
		if rec, ok := byGroup[g.GroupID]; ok {
			switch rec.Status {
			case domain.StatusEnrolled:
				ann.IsEnrolled = true
			case domain.StatusQueued, domain.StatusBlocked:
				ann.IsEnqueued = true
				ann.Priority = rec.Priority
			}
		}
		annotated = append(annotated, ann)
	}
	return annotated, nil
}

// PointsCommitted sums the points of the distinct courses the student holds
// a non-removed record in during the term. Extra course ids preview the
// budget impact of joining those courses without committing.
func (e *Engine) PointsCommitted(ctx context.Context, studentID, termID uuid.UUID, extraCourses ...uuid.UUID) (int, error) {
	recs, err := e.store.Records().ActiveByStudent(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return pointsCommitted(ctx, e.store, recs, termID, extraCourses)
}
