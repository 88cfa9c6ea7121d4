package engine

import (
	"testing"
	"time"

	domain "seatalloc/internal/domain/enrollment"

	"github.com/google/uuid"
)

func TestSyncAutoEnrollmentGroup_MirrorsSiblingMembership(t *testing.T) {
	f := newFixture(t)
	course := f.createCourse("CS101", 5)
	exercise := f.createGroup(course, "1", 5)
	mirror := f.createMirrorGroup(course, "M")

	enrolled := f.createStudent("1001")
	queued := f.createStudent("1002")
	f.seedRecord(enrolled, exercise, domain.StatusEnrolled, baseTime)
	f.seedRecord(queued, exercise, domain.StatusQueued, baseTime.Add(time.Minute))

	if err := f.engine.SyncAutoEnrollmentGroup(f.ctx, mirror.GroupID); err != nil {
		t.Fatalf("SyncAutoEnrollmentGroup failed: %v", err)
	}

	if got := f.recordStatus(enrolled, mirror); got != domain.StatusEnrolled {
		t.Errorf("Expected enrolled sibling mirrored as enrolled, got %s", got)
	}
	if got := f.recordStatus(queued, mirror); got != domain.StatusQueued {
		t.Errorf("Expected queued sibling mirrored as queued, got %s", got)
	}
}

func TestSyncAutoEnrollmentGroup_RemovesDepartedStudents(t *testing.T) {
	f := newFixture(t)
	course := f.createCourse("CS101", 5)
	f.createGroup(course, "1", 5)
	mirror := f.createMirrorGroup(course, "M")

	s1 := f.createStudent("1001")
	// mirror tie with no sibling tie left behind it
	f.seedRecord(s1, mirror, domain.StatusEnrolled, baseTime)

	if err := f.engine.SyncAutoEnrollmentGroup(f.ctx, mirror.GroupID); err != nil {
		t.Fatalf("SyncAutoEnrollmentGroup failed: %v", err)
	}

	if got := f.recordStatus(s1, mirror); got != domain.StatusRemoved {
		t.Errorf("Expected departed student removed from the mirror, got %s", got)
	}
}

func TestSyncAutoEnrollmentGroup_DemotesWhenOnlyQueuedRemains(t *testing.T) {
	f := newFixture(t)
	course := f.createCourse("CS101", 5)
	exercise := f.createGroup(course, "1", 5)
	mirror := f.createMirrorGroup(course, "M")

	s1 := f.createStudent("1001")
	// the student slipped from enrolled back to queued in the sibling;
	// the mirror must follow even though enrolled->queued is normally
	// not a legal transition
	f.seedRecord(s1, exercise, domain.StatusQueued, baseTime)
	f.seedRecord(s1, mirror, domain.StatusEnrolled, baseTime)

	if err := f.engine.SyncAutoEnrollmentGroup(f.ctx, mirror.GroupID); err != nil {
		t.Fatalf("SyncAutoEnrollmentGroup failed: %v", err)
	}

	if got := f.recordStatus(s1, mirror); got != domain.StatusQueued {
		t.Errorf("Expected mirror tie demoted to queued, got %s", got)
	}
}

func TestSyncAutoEnrollmentGroup_PromotesQueuedMirrorTie(t *testing.T) {
	f := newFixture(t)
	course := f.createCourse("CS101", 5)
	exercise := f.createGroup(course, "1", 5)
	mirror := f.createMirrorGroup(course, "M")

	s1 := f.createStudent("1001")
	f.seedRecord(s1, exercise, domain.StatusEnrolled, baseTime)
	f.seedRecord(s1, mirror, domain.StatusQueued, baseTime)

	if err := f.engine.SyncAutoEnrollmentGroup(f.ctx, mirror.GroupID); err != nil {
		t.Fatalf("SyncAutoEnrollmentGroup failed: %v", err)
	}

	if got := f.recordStatus(s1, mirror); got != domain.StatusEnrolled {
		t.Errorf("Expected mirror tie promoted to enrolled, got %s", got)
	}
}

func TestSyncAutoEnrollmentGroup_RejectsRegularGroup(t *testing.T) {
	f := newFixture(t)
	course := f.createCourse("CS101", 5)
	group := f.createGroup(course, "1", 5)

	if err := f.engine.SyncAutoEnrollmentGroup(f.ctx, group.GroupID); err == nil {
		t.Fatal("Expected sync of a regular group to fail")
	}
}

func TestSyncAutoEnrollmentGroup_ConvergesAfterRepeat(t *testing.T) {
	f := newFixture(t)
	course := f.createCourse("CS101", 5)
	exercise := f.createGroup(course, "1", 5)
	mirror := f.createMirrorGroup(course, "M")

	s1 := f.createStudent("1001")
	f.seedRecord(s1, exercise, domain.StatusEnrolled, baseTime)

	for i := 0; i < 3; i++ {
		if err := f.engine.SyncAutoEnrollmentGroup(f.ctx, mirror.GroupID); err != nil {
			t.Fatalf("SyncAutoEnrollmentGroup failed: %v", err)
		}
	}

	recs, err := f.store.Records().ActiveByGroups(f.ctx, []uuid.UUID{mirror.GroupID})
	if err != nil {
		t.Fatalf("Failed to read mirror records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected exactly 1 mirror record after repeated syncs, got %d", len(recs))
	}
	if recs[0].Status != domain.StatusEnrolled {
		t.Errorf("Expected mirror record enrolled, got %s", recs[0].Status)
	}
}
