package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	domain "seatalloc/internal/domain/enrollment"
	interfaces "seatalloc/internal/interfaces/infrastructure"
	"seatalloc/pkg/logger"

	"github.com/google/uuid"
)

// maxPullAttempts caps how many transaction aborts one FillGroup invocation
// absorbs before re-raising; beyond that a real bug is more likely than
// lock-cycle bad luck.
const maxPullAttempts = 3

type enrollVerdict int

const (
	verdictOK enrollVerdict = iota
	verdictNotYetOpen
	verdictBudgetExceeded
	verdictIneligible
)

func (v enrollVerdict) reason() domain.Reason {
	switch v {
	case verdictNotYetOpen:
		return domain.ReasonNotYetOpen
	case verdictBudgetExceeded:
		return domain.ReasonBudgetExceeded
	default:
		return domain.ReasonIneligible
	}
}

// enrollResult carries the outcome of one enrollOne attempt back to the
// allocation pass that invoked it
type enrollResult struct {
	status           domain.RecordStatus
	reason           domain.Reason
	displacedGroups  []uuid.UUID
	removedRecordIDs []uuid.UUID
}

type pullOutcome struct {
	studentID uuid.UUID
	accepted  bool
	reason    domain.Reason
}

// FillGroup drains the group's queue into its free seats. It is idempotent
// and safe to invoke redundantly; the dispatcher may deliver refill tasks
// more than once. Transient lock-cycle aborts are retried up to
// maxPullAttempts times, the last one is re-raised to the caller.
func (e *Engine) FillGroup(ctx context.Context, groupID uuid.UUID) error {
	group, err := e.loadGroup(ctx, e.store, groupID)
	if err != nil {
		return err
	}
	course, err := e.loadCourse(ctx, e.store, group.CourseID)
	if err != nil {
		return err
	}

	now := time.Now()
	open, err := e.oracle.GroupWindowOpen(ctx, group, now)
	if err != nil {
		return err
	}
	if !open {
		logger.Debug("Enrollment window closed for group %s, skipping fill", groupID)
		return nil
	}

	conflicts := 0
	for {
		progress, err := e.pullOnce(ctx, group, course, now)
		if err != nil {
			if errors.Is(err, interfaces.ErrTxConflict) {
				conflicts++
				if conflicts >= e.maxPullAttempts {
					return err
				}
				logger.Warn("Allocation pass for group %s aborted on lock conflict, retrying (%d/%d)",
					groupID, conflicts, e.maxPullAttempts)
				continue
			}
			return err
		}
		if !progress {
			break
		}
	}

	e.scheduleMirrorFollowUp(ctx, course.CourseID, groupID)
	return nil
}

// pullOnce performs one fully transactional allocation pass: lock the
// group's enrolled and queued records, compute the free seats per role pool,
// and drain each pool oldest-first. Named role pools are processed before
// the unreserved pool so reserved quotas are filled from their own
// sub-queues independent of general queue pressure. Returns whether any
// record changed state.
func (e *Engine) pullOnce(ctx context.Context, group *domain.Group, course *domain.Course, now time.Time) (bool, error) {
	var progress bool
	var displaced []uuid.UUID
	var outcomes []pullOutcome

	err := e.store.Transaction(ctx, func(tx interfaces.Store) error {
		progress = false
		displaced = displaced[:0]
		outcomes = outcomes[:0]

		recs, err := tx.Records().LockGroupRecords(ctx, group.GroupID)
		if err != nil {
			return err
		}

		studentIDs := make([]uuid.UUID, 0, len(recs))
		seen := make(map[uuid.UUID]bool)
		for _, rec := range recs {
			if !seen[rec.StudentID] {
				seen[rec.StudentID] = true
				studentIDs = append(studentIDs, rec.StudentID)
			}
		}
		roles, err := tx.Students().RolesByStudentIDs(ctx, studentIDs)
		if err != nil {
			return err
		}

		free := freeSpotsByRole(group, recs, roles)

		// seats physically free right now; the capacity invariant is
		// enforced against this regardless of per-pool accounting
		remaining := group.Limit - countEnrolled(recs)
		if remaining < 0 {
			remaining = 0
		}

		attempted := make(map[uuid.UUID]bool) // a student is pulled at most once per pass
		for _, role := range roleDrainOrder(free) {
			for free[role] > 0 && remaining > 0 {
				cand := nextQueued(recs, roles, role, attempted)
				if cand == nil {
					break
				}
				attempted[cand.StudentID] = true

				res, err := e.enrollOne(ctx, tx, cand, group, course, now)
				if err != nil {
					return err
				}
				// reflect the verdict on the locked snapshot so later
				// pools do not re-pull this candidate
				cand.Status = res.status
				markRemoved(recs, res.removedRecordIDs)

				if res.status == domain.StatusEnrolled {
					remaining--
					outcomes = append(outcomes, pullOutcome{studentID: cand.StudentID, accepted: true})
				} else {
					outcomes = append(outcomes, pullOutcome{studentID: cand.StudentID, reason: res.reason})
				}
				displaced = append(displaced, res.displacedGroups...)
				free[role]--
				progress = true
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	// notifications leave the engine only after the transaction committed
	for _, gid := range dedupe(displaced) {
		if gid == group.GroupID {
			continue // this group is being drained right now
		}
		if err := e.dispatcher.ScheduleRefill(ctx, gid); err != nil {
			logger.Warn("Failed to schedule refill for displaced group %s: %v", gid, err)
		}
	}
	for _, o := range outcomes {
		if o.accepted {
			e.events.StudentPulled(ctx, o.studentID, group.GroupID)
		} else {
			e.events.PullRejected(ctx, o.studentID, group.GroupID, o.reason)
		}
	}
	return progress, nil
}

// enrollOne re-validates one queued candidate under the student-scoped lock
// and either enrolls it, blocks it (budget exceeded, eligible for automatic
// retry once the ceiling relaxes) or removes it. On success every competing
// record of the same course and group type is displaced; the groups that
// just lost an enrolled student are returned for re-draining.
func (e *Engine) enrollOne(ctx context.Context, tx interfaces.Store, rec *domain.Record, group *domain.Group, course *domain.Course, now time.Time) (*enrollResult, error) {
	srecs, err := tx.Records().LockStudentRecords(ctx, rec.StudentID)
	if err != nil {
		return nil, err
	}
	student, err := tx.Students().GetByID(ctx, rec.StudentID)
	if err != nil {
		return nil, err
	}

	verdict, err := e.enrollVerdict(ctx, tx, student, group, course, srecs, now)
	if err != nil {
		return nil, err
	}
	if verdict != verdictOK {
		// budget pressure is the only retryable cause; everything else
		// removes the record
		next := domain.StatusRemoved
		if verdict == verdictBudgetExceeded {
			next = domain.StatusBlocked
		}
		if err := rec.Transition(next); err != nil {
			return nil, err
		}
		if err := tx.Records().Update(ctx, rec); err != nil {
			return nil, err
		}
		return &enrollResult{status: next, reason: verdict.reason()}, nil
	}

	groupIDs := make([]uuid.UUID, 0, len(srecs))
	for _, other := range srecs {
		groupIDs = append(groupIDs, other.GroupID)
	}
	groups, err := tx.Groups().GetByIDs(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	groupByID := make(map[uuid.UUID]*domain.Group, len(groups))
	for _, g := range groups {
		groupByID[g.GroupID] = g
	}

	res := &enrollResult{status: domain.StatusEnrolled}
	for _, other := range srecs {
		if other.RecordID == rec.RecordID {
			continue
		}
		g := groupByID[other.GroupID]
		if g == nil || g.CourseID != course.CourseID || g.GroupType != group.GroupType {
			continue
		}
		enrolled := other.Status == domain.StatusEnrolled
		lowerQueued := other.Status == domain.StatusQueued && other.Priority < rec.Priority
		if !enrolled && !lowerQueued {
			continue
		}
		if err := other.Transition(domain.StatusRemoved); err != nil {
			return nil, err
		}
		if err := tx.Records().Update(ctx, other); err != nil {
			return nil, err
		}
		res.removedRecordIDs = append(res.removedRecordIDs, other.RecordID)
		if enrolled {
			res.displacedGroups = append(res.displacedGroups, other.GroupID)
		}
	}

	if err := rec.Transition(domain.StatusEnrolled); err != nil {
		return nil, err
	}
	if err := tx.Records().Update(ctx, rec); err != nil {
		return nil, err
	}
	return res, nil
}

// enrollVerdict is the in-transaction re-validation of the pre-checks the
// enqueue path ran: reads outside a transaction are best-effort and must be
// repeated here before any seat is handed out. Unlike the enqueue check the
// budget is held against the currently active (phase-sensitive) ceiling.
func (e *Engine) enrollVerdict(ctx context.Context, tx interfaces.Store, student *domain.Student, group *domain.Group, course *domain.Course, srecs []*domain.Record, now time.Time) (enrollVerdict, error) {
	if student == nil || !student.Active {
		return verdictIneligible, nil
	}
	open, err := e.oracle.StudentWindowOpen(ctx, student, group, now)
	if err != nil {
		return verdictIneligible, err
	}
	if !open {
		return verdictNotYetOpen, nil
	}

	// the candidate record already ties the student to this course, so the
	// committed sum includes its cost
	committed, err := pointsCommitted(ctx, tx, srecs, course.TermID, nil)
	if err != nil {
		return verdictIneligible, err
	}
	ceiling, err := e.budget.CurrentCeiling(ctx, course.TermID, now)
	if err != nil {
		return verdictIneligible, err
	}
	if committed > ceiling {
		return verdictBudgetExceeded, nil
	}
	return verdictOK, nil
}

// freeSpotsByRole computes the free seats per role pool. For each
// guaranteed-spot rule the currently enrolled holders of the role are
// counted, first-match: a student counted for one rule leaves the pool
// before the next rule is evaluated, so overlapping roles never
// double-count. The unreserved pool gets whatever the seat limit leaves
// after the enrolled students and the seats still held back for reserved
// roles.
func freeSpotsByRole(group *domain.Group, recs []*domain.Record, roles map[uuid.UUID][]string) map[string]int {
	enrolled := make([]uuid.UUID, 0, len(recs))
	unmatched := make(map[uuid.UUID]bool)
	for _, rec := range recs {
		if rec.Status == domain.StatusEnrolled && !unmatched[rec.StudentID] {
			unmatched[rec.StudentID] = true
			enrolled = append(enrolled, rec.StudentID)
		}
	}
	enrolledCount := len(enrolled)

	spots := make([]domain.GuaranteedSpot, len(group.GuaranteedSpots))
	copy(spots, group.GuaranteedSpots)
	sort.Slice(spots, func(i, j int) bool { return spots[i].Role > spots[j].Role })

	free := make(map[string]int, len(spots)+1)
	reservedFree := 0
	for _, gs := range spots {
		count := 0
		for _, sid := range enrolled {
			if unmatched[sid] && hasRole(roles[sid], gs.Role) {
				count++
				delete(unmatched, sid)
			}
		}
		f := gs.Limit - count
		if f < 0 {
			f = 0
		}
		free[gs.Role] = f
		reservedFree += f
	}

	unreserved := group.Limit - enrolledCount - reservedFree
	if unreserved < 0 {
		unreserved = 0
	}
	free[domain.UnreservedRole] = unreserved
	return free
}

// roleDrainOrder orders the role pools for draining: named roles in
// descending name order, the unreserved pool always last. Only
// "named roles before the unreserved pool" is load-bearing; the order among
// named roles merely has to be deterministic.
func roleDrainOrder(free map[string]int) []string {
	names := make([]string, 0, len(free))
	for role := range free {
		if role != domain.UnreservedRole {
			names = append(names, role)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return append(names, domain.UnreservedRole)
}

// nextQueued picks the oldest queued record whose student holds the role
// and was not attempted yet this pass. recs arrive ordered by created_at
// ascending, so the first match is the FIFO head of the role bucket.
func nextQueued(recs []*domain.Record, roles map[uuid.UUID][]string, role string, attempted map[uuid.UUID]bool) *domain.Record {
	for _, rec := range recs {
		if rec.Status != domain.StatusQueued || attempted[rec.StudentID] {
			continue
		}
		if role != domain.UnreservedRole && !hasRole(roles[rec.StudentID], role) {
			continue
		}
		return rec
	}
	return nil
}

func countEnrolled(recs []*domain.Record) int {
	seen := make(map[uuid.UUID]bool)
	n := 0
	for _, rec := range recs {
		if rec.Status == domain.StatusEnrolled && !seen[rec.StudentID] {
			seen[rec.StudentID] = true
			n++
		}
	}
	return n
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func markRemoved(recs []*domain.Record, removedIDs []uuid.UUID) {
	if len(removedIDs) == 0 {
		return
	}
	removed := make(map[uuid.UUID]bool, len(removedIDs))
	for _, id := range removedIDs {
		removed[id] = true
	}
	for _, rec := range recs {
		if removed[rec.RecordID] {
			rec.Status = domain.StatusRemoved
		}
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// scheduleMirrorFollowUp queues a sync for the course's auto-enrollment
// group, if it has one, so the mirror converges after any membership change
func (e *Engine) scheduleMirrorFollowUp(ctx context.Context, courseID, changedGroupID uuid.UUID) {
	groups, err := e.store.Groups().GetByCourse(ctx, courseID)
	if err != nil {
		logger.Warn("Failed to look up groups of course %s for mirror sync: %v", courseID, err)
		return
	}
	for _, g := range groups {
		if g.AutoEnrollment && g.GroupID != changedGroupID {
			if err := e.dispatcher.ScheduleMirrorSync(ctx, g.GroupID); err != nil {
				logger.Warn("Failed to schedule mirror sync for group %s: %v", g.GroupID, err)
			}
		}
	}
}
