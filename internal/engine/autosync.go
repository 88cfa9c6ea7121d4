package engine

import (
	"context"
	"fmt"
	"time"

	domain "seatalloc/internal/domain/enrollment"
	interfaces "seatalloc/internal/interfaces/infrastructure"
	"seatalloc/pkg/logger"

	"github.com/google/uuid"
)

// SyncAutoEnrollmentGroup reconciles a mirror group with the union of its
// course's other groups: enrolled anywhere promotes, queued anywhere keeps a
// queued tie, gone everywhere removes. The mirror does not gate, so no seat
// limit or budget check applies here and the usual lifecycle guard is
// bypassed for the enrolled-to-queued demotion.
func (e *Engine) SyncAutoEnrollmentGroup(ctx context.Context, groupID uuid.UUID) error {
	return e.store.Transaction(ctx, func(tx interfaces.Store) error {
		group, err := e.loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if !group.AutoEnrollment {
			return fmt.Errorf("group %s is not an auto-enrollment group", groupID)
		}

		siblings, err := tx.Groups().GetByCourse(ctx, group.CourseID)
		if err != nil {
			return err
		}
		siblingIDs := make([]uuid.UUID, 0, len(siblings))
		for _, g := range siblings {
			if g.GroupID != group.GroupID {
				siblingIDs = append(siblingIDs, g.GroupID)
			}
		}

		siblingRecs, err := tx.Records().ActiveByGroups(ctx, siblingIDs)
		if err != nil {
			return err
		}
		enrolledAnywhere := make(map[uuid.UUID]bool)
		queuedAnywhere := make(map[uuid.UUID]bool)
		for _, rec := range siblingRecs {
			switch rec.Status {
			case domain.StatusEnrolled:
				enrolledAnywhere[rec.StudentID] = true
			case domain.StatusQueued:
				queuedAnywhere[rec.StudentID] = true
			}
		}

		mineRecs, err := tx.Records().ActiveByGroups(ctx, []uuid.UUID{group.GroupID})
		if err != nil {
			return err
		}
		mine := make(map[uuid.UUID]*domain.Record, len(mineRecs))
		for _, rec := range mineRecs {
			mine[rec.StudentID] = rec
		}

		now := time.Now()
		for sid := range union(enrolledAnywhere, queuedAnywhere) {
			if mine[sid] != nil {
				continue
			}
			rec := &domain.Record{
				RecordID:   uuid.New(),
				StudentID:  sid,
				GroupID:    group.GroupID,
				Status:     domain.StatusQueued,
				Priority:   domain.DefaultPriority,
				CreatedAt:  now,
				ModifiedAt: now,
			}
			if err := tx.Records().Create(ctx, rec); err != nil {
				return err
			}
			mine[sid] = rec
		}

		changed := 0
		for sid, rec := range mine {
			switch {
			case !enrolledAnywhere[sid] && !queuedAnywhere[sid]:
				rec.ForceStatus(domain.StatusRemoved)
			case rec.Status == domain.StatusQueued && enrolledAnywhere[sid]:
				rec.ForceStatus(domain.StatusEnrolled)
			case rec.Status == domain.StatusEnrolled && !enrolledAnywhere[sid] && queuedAnywhere[sid]:
				rec.ForceStatus(domain.StatusQueued)
			default:
				continue
			}
			if err := tx.Records().Update(ctx, rec); err != nil {
				return err
			}
			changed++
		}
		if changed > 0 {
			logger.Info("Synchronized auto-enrollment group %s, %d records changed", groupID, changed)
		}
		return nil
	})
}

func union(a, b map[uuid.UUID]bool) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}
