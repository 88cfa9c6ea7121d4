package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "seatalloc/internal/domain/enrollment"
	"seatalloc/internal/infrastructure/repository"

	"github.com/google/uuid"
)

// Fixed points in time shared by the tests. The term opens at termStart,
// the initial budget ceiling relaxes at relaxAt, manual removal closes at
// removeDeadline.
var (
	termStart      = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	relaxAt        = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	removeDeadline = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	termEnd        = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	baseTime       = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
)

// stubOracle keeps every window open unless a student or group is
// explicitly closed
type stubOracle struct {
	closedStudents map[uuid.UUID]bool
	closedGroups   map[uuid.UUID]bool
}

func newStubOracle() *stubOracle {
	return &stubOracle{
		closedStudents: make(map[uuid.UUID]bool),
		closedGroups:   make(map[uuid.UUID]bool),
	}
}

func (o *stubOracle) StudentWindowOpen(ctx context.Context, student *domain.Student, group *domain.Group, at time.Time) (bool, error) {
	return !o.closedStudents[student.StudentID] && !o.closedGroups[group.GroupID], nil
}

func (o *stubOracle) GroupWindowOpen(ctx context.Context, group *domain.Group, at time.Time) (bool, error) {
	return !o.closedGroups[group.GroupID], nil
}

// stubBudget serves a fixed two-phase ceiling
type stubBudget struct {
	initial      int
	final        int
	initialPhase bool
}

func (b *stubBudget) CurrentCeiling(ctx context.Context, termID uuid.UUID, at time.Time) (int, error) {
	if b.initialPhase {
		return b.initial, nil
	}
	return b.final, nil
}

func (b *stubBudget) FinalCeiling(ctx context.Context, termID uuid.UUID) (int, error) {
	return b.final, nil
}

func (b *stubBudget) InInitialPhase(ctx context.Context, termID uuid.UUID, at time.Time) (bool, error) {
	return b.initialPhase, nil
}

// recordingDispatcher records scheduled tasks without processing them
type recordingDispatcher struct {
	mu      sync.Mutex
	refills []uuid.UUID
	syncs   []uuid.UUID
}

func (d *recordingDispatcher) ScheduleRefill(ctx context.Context, groupID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refills = append(d.refills, groupID)
	return nil
}

func (d *recordingDispatcher) ScheduleMirrorSync(ctx context.Context, groupID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncs = append(d.syncs, groupID)
	return nil
}

func (d *recordingDispatcher) refillCount(groupID uuid.UUID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, id := range d.refills {
		if id == groupID {
			n++
		}
	}
	return n
}

// captureSink records pull outcomes
type captureSink struct {
	mu       sync.Mutex
	pulled   []uuid.UUID
	rejected map[uuid.UUID]domain.Reason
}

func newCaptureSink() *captureSink {
	return &captureSink{rejected: make(map[uuid.UUID]domain.Reason)}
}

func (s *captureSink) StudentPulled(ctx context.Context, studentID, groupID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulled = append(s.pulled, studentID)
}

func (s *captureSink) PullRejected(ctx context.Context, studentID, groupID uuid.UUID, reason domain.Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[studentID] = reason
}

func (s *captureSink) rejectionOf(studentID uuid.UUID) (domain.Reason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rejected[studentID]
	return r, ok
}

// fixture wires an engine over the in-memory store with stub collaborators
type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *repository.MemStore
	oracle     *stubOracle
	budget     *stubBudget
	dispatcher *recordingDispatcher
	sink       *captureSink
	engine     *Engine

	term *domain.Term
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      repository.NewMemStore(),
		oracle:     newStubOracle(),
		budget:     &stubBudget{initial: 100, final: 100},
		dispatcher: &recordingDispatcher{},
		sink:       newCaptureSink(),
	}
	f.engine = NewEngine(f.store, f.oracle, f.budget, f.dispatcher, f.sink)

	f.term = &domain.Term{
		TermID:             uuid.New(),
		TermCode:           "2026-1",
		StartDate:          termStart,
		EndDate:            termEnd,
		RemoveDeadline:     removeDeadline,
		PointsLimitInitial: 100,
		PointsLimitFinal:   100,
		LimitRelaxedAt:     relaxAt,
	}
	if err := f.store.Terms().Create(f.ctx, f.term); err != nil {
		t.Fatalf("Failed to create term: %v", err)
	}
	return f
}

func (f *fixture) createCourse(code string, points int) *domain.Course {
	f.t.Helper()
	course := &domain.Course{
		CourseID:   uuid.New(),
		TermID:     f.term.TermID,
		CourseCode: code,
		CourseName: "Course " + code,
		Points:     points,
	}
	if err := f.store.Courses().Create(f.ctx, course); err != nil {
		f.t.Fatalf("Failed to create course: %v", err)
	}
	return course
}

func (f *fixture) createGroup(course *domain.Course, number string, limit int, spots ...domain.GuaranteedSpot) *domain.Group {
	f.t.Helper()
	group := &domain.Group{
		GroupID:         uuid.New(),
		CourseID:        course.CourseID,
		TermID:          course.TermID,
		GroupNumber:     number,
		GroupType:       "exercise",
		Limit:           limit,
		GuaranteedSpots: spots,
	}
	if err := f.store.Groups().Create(f.ctx, group); err != nil {
		f.t.Fatalf("Failed to create group: %v", err)
	}
	return group
}

func (f *fixture) createMirrorGroup(course *domain.Course, number string) *domain.Group {
	f.t.Helper()
	group := &domain.Group{
		GroupID:        uuid.New(),
		CourseID:       course.CourseID,
		TermID:         course.TermID,
		GroupNumber:    number,
		GroupType:      "lecture",
		Limit:          0,
		AutoEnrollment: true,
	}
	if err := f.store.Groups().Create(f.ctx, group); err != nil {
		f.t.Fatalf("Failed to create mirror group: %v", err)
	}
	return group
}

func (f *fixture) createStudent(number string, roles ...string) *domain.Student {
	f.t.Helper()
	student := &domain.Student{
		StudentID:     uuid.New(),
		StudentNumber: number,
		Active:        true,
	}
	for _, role := range roles {
		student.Roles = append(student.Roles, domain.StudentRole{
			RoleID:    uuid.New(),
			StudentID: student.StudentID,
			Role:      role,
		})
	}
	if err := f.store.Students().Create(f.ctx, student); err != nil {
		f.t.Fatalf("Failed to create student: %v", err)
	}
	return student
}

func (f *fixture) deactivateStudent(student *domain.Student) {
	f.t.Helper()
	student.Active = false
	if err := f.store.Students().Create(f.ctx, student); err != nil {
		f.t.Fatalf("Failed to update student: %v", err)
	}
}

// seedRecord inserts a record directly, bypassing the enqueue checks
func (f *fixture) seedRecord(student *domain.Student, group *domain.Group, status domain.RecordStatus, at time.Time) *domain.Record {
	f.t.Helper()
	rec := &domain.Record{
		RecordID:   uuid.New(),
		StudentID:  student.StudentID,
		GroupID:    group.GroupID,
		Status:     status,
		Priority:   domain.DefaultPriority,
		CreatedAt:  at,
		ModifiedAt: at,
	}
	if err := f.store.Records().Create(f.ctx, rec); err != nil {
		f.t.Fatalf("Failed to seed record: %v", err)
	}
	return rec
}

func (f *fixture) enqueue(student *domain.Student, group *domain.Group, at time.Time) {
	f.t.Helper()
	ok, err := f.engine.Enqueue(f.ctx, &EnqueueRequest{
		StudentID: student.StudentID,
		GroupID:   group.GroupID,
		At:        at,
	})
	if err != nil {
		f.t.Fatalf("Enqueue failed: %v", err)
	}
	if !ok {
		f.t.Fatalf("Expected student %s to be admitted to the queue", student.StudentNumber)
	}
}

func (f *fixture) fill(group *domain.Group) {
	f.t.Helper()
	if err := f.engine.FillGroup(f.ctx, group.GroupID); err != nil {
		f.t.Fatalf("FillGroup failed: %v", err)
	}
}

func (f *fixture) recordStatus(student *domain.Student, group *domain.Group) domain.RecordStatus {
	f.t.Helper()
	rec, err := f.store.Records().ActiveByStudentAndGroup(f.ctx, student.StudentID, group.GroupID)
	if err != nil {
		f.t.Fatalf("Failed to read record: %v", err)
	}
	if rec == nil {
		return domain.StatusRemoved
	}
	return rec.Status
}

func (f *fixture) enrolledCount(group *domain.Group) int {
	f.t.Helper()
	n, err := f.store.Records().EnrolledCountByGroup(f.ctx, group.GroupID)
	if err != nil {
		f.t.Fatalf("Failed to count enrolled: %v", err)
	}
	return n
}
