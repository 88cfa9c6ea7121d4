package engine

import (
	"testing"
	"time"

	domain "seatalloc/internal/domain/enrollment"
)

func TestAnnotate_ResolvesStanding(t *testing.T) {
	f := newFixture(t)
	course := f.createCourse("CS101", 5)
	enrolledIn := f.createGroup(course, "1", 2)
	queuedIn := f.createGroup(course, "2", 2)
	blockedIn := f.createGroup(course, "3", 2)
	strangerTo := f.createGroup(course, "4", 2)

	s1 := f.createStudent("1001")
	f.seedRecord(s1, enrolledIn, domain.StatusEnrolled, baseTime)
	f.seedRecord(s1, queuedIn, domain.StatusQueued, baseTime)
	f.seedRecord(s1, blockedIn, domain.StatusBlocked, baseTime)

	groups := []*domain.Group{enrolledIn, queuedIn, blockedIn, strangerTo}
	annotated, err := f.engine.Annotate(f.ctx, s1.StudentID, groups)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if len(annotated) != 4 {
		t.Fatalf("Expected 4 annotations, got %d", len(annotated))
	}

	if !annotated[0].IsEnrolled || annotated[0].IsEnqueued {
		t.Error("Expected the first group annotated as enrolled")
	}
	if !annotated[1].IsEnqueued || annotated[1].IsEnrolled {
		t.Error("Expected the second group annotated as enqueued")
	}
	if annotated[1].Priority != domain.DefaultPriority {
		t.Errorf("Expected priority %d, got %d", domain.DefaultPriority, annotated[1].Priority)
	}
	// blocked ties still count as waiting in the queue
	if !annotated[2].IsEnqueued {
		t.Error("Expected the blocked group annotated as enqueued")
	}
	if annotated[3].IsEnqueued || annotated[3].IsEnrolled {
		t.Error("Expected no standing in the fourth group")
	}
}

func TestIsEnrolledAndIsRecorded(t *testing.T) {
	f := newFixture(t)
	course := f.createCourse("CS101", 5)
	group := f.createGroup(course, "1", 2)
	s1 := f.createStudent("1001")
	f.seedRecord(s1, group, domain.StatusQueued, baseTime)

	enrolled, err := f.engine.IsEnrolled(f.ctx, s1.StudentID, group.GroupID)
	if err != nil {
		t.Fatalf("IsEnrolled failed: %v", err)
	}
	if enrolled {
		t.Error("Expected queued student not to count as enrolled")
	}

	recorded, err := f.engine.IsRecorded(f.ctx, s1.StudentID, group.GroupID)
	if err != nil {
		t.Fatalf("IsRecorded failed: %v", err)
	}
	if !recorded {
		t.Error("Expected queued student to hold a live tie")
	}
}

func TestPointsCommitted_DistinctCoursesOnly(t *testing.T) {
	f := newFixture(t)
	courseA := f.createCourse("CS101", 4)
	courseB := f.createCourse("CS102", 3)
	groupA1 := f.createGroup(courseA, "1", 2)
	groupA2 := f.createGroup(courseA, "2", 2)
	groupB := f.createGroup(courseB, "1", 2)

	s1 := f.createStudent("1001")
	// two ties into course A must charge its points once
	f.seedRecord(s1, groupA1, domain.StatusEnrolled, baseTime)
	f.seedRecord(s1, groupA2, domain.StatusQueued, baseTime.Add(time.Minute))
	f.seedRecord(s1, groupB, domain.StatusBlocked, baseTime.Add(2*time.Minute))

	total, err := f.engine.PointsCommitted(f.ctx, s1.StudentID, f.term.TermID)
	if err != nil {
		t.Fatalf("PointsCommitted failed: %v", err)
	}
	if total != 7 {
		t.Errorf("Expected 7 points committed, got %d", total)
	}
}

func TestPointsCommitted_ExtraCoursesPreview(t *testing.T) {
	f := newFixture(t)
	courseA := f.createCourse("CS101", 4)
	courseB := f.createCourse("CS102", 3)
	groupA := f.createGroup(courseA, "1", 2)
	f.createGroup(courseB, "1", 2)

	s1 := f.createStudent("1001")
	f.seedRecord(s1, groupA, domain.StatusEnrolled, baseTime)

	total, err := f.engine.PointsCommitted(f.ctx, s1.StudentID, f.term.TermID, courseB.CourseID)
	if err != nil {
		t.Fatalf("PointsCommitted failed: %v", err)
	}
	if total != 7 {
		t.Errorf("Expected preview of 7 points, got %d", total)
	}

	// previewing a course already held must not double-charge
	total, err = f.engine.PointsCommitted(f.ctx, s1.StudentID, f.term.TermID, courseA.CourseID)
	if err != nil {
		t.Fatalf("PointsCommitted failed: %v", err)
	}
	if total != 4 {
		t.Errorf("Expected 4 points, got %d", total)
	}
}
