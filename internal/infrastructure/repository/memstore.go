package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "seatalloc/internal/domain/enrollment"
	interfaces "seatalloc/internal/interfaces/infrastructure"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by tests and single-process setups.
// A coarse mutex stands in for row locks; Transaction restores a snapshot
// on error, so failed closures leave no partial writes behind.
type MemStore struct {
	mu    *sync.Mutex
	clock func() time.Time
	data  *memData
	held  bool
}

type memData struct {
	terms    map[uuid.UUID]*domain.Term
	courses  map[uuid.UUID]*domain.Course
	groups   map[uuid.UUID]*domain.Group
	students map[uuid.UUID]*domain.Student
	records  map[uuid.UUID]*domain.Record
}

func NewMemStore() *MemStore {
	return &MemStore{
		mu:    &sync.Mutex{},
		clock: time.Now,
		data: &memData{
			terms:    make(map[uuid.UUID]*domain.Term),
			courses:  make(map[uuid.UUID]*domain.Course),
			groups:   make(map[uuid.UUID]*domain.Group),
			students: make(map[uuid.UUID]*domain.Student),
			records:  make(map[uuid.UUID]*domain.Record),
		},
	}
}

// SetClock overrides the timestamp source. Tests use it to pin created_at
// ordering.
func (m *MemStore) SetClock(clock func() time.Time) {
	m.clock = clock
}

func (m *MemStore) Terms() interfaces.TermRepository       { return memTerms{m} }
func (m *MemStore) Courses() interfaces.CourseRepository   { return memCourses{m} }
func (m *MemStore) Groups() interfaces.GroupRepository     { return memGroups{m} }
func (m *MemStore) Students() interfaces.StudentRepository { return memStudents{m} }
func (m *MemStore) Records() interfaces.RecordRepository   { return memRecords{m} }

// Transaction serializes the closure under the store mutex and rolls the
// dataset back to a snapshot when fn fails. Nested calls join the outer
// transaction.
func (m *MemStore) Transaction(ctx context.Context, fn func(tx interfaces.Store) error) error {
	if m.held {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	tx := &MemStore{mu: m.mu, clock: m.clock, data: m.data, held: true}
	if err := fn(tx); err != nil {
		*m.data = *snapshot
		return err
	}
	return nil
}

// lock acquires the store mutex unless a transaction already holds it
func (m *MemStore) lock() func() {
	if m.held {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (d *memData) clone() *memData {
	out := &memData{
		terms:    make(map[uuid.UUID]*domain.Term, len(d.terms)),
		courses:  make(map[uuid.UUID]*domain.Course, len(d.courses)),
		groups:   make(map[uuid.UUID]*domain.Group, len(d.groups)),
		students: make(map[uuid.UUID]*domain.Student, len(d.students)),
		records:  make(map[uuid.UUID]*domain.Record, len(d.records)),
	}
	for id, t := range d.terms {
		cp := *t
		out.terms[id] = &cp
	}
	for id, c := range d.courses {
		cp := *c
		out.courses[id] = &cp
	}
	for id, g := range d.groups {
		out.groups[id] = copyGroup(g)
	}
	for id, s := range d.students {
		out.students[id] = copyStudent(s)
	}
	for id, r := range d.records {
		cp := *r
		out.records[id] = &cp
	}
	return out
}

func copyGroup(g *domain.Group) *domain.Group {
	cp := *g
	cp.GuaranteedSpots = append([]domain.GuaranteedSpot(nil), g.GuaranteedSpots...)
	return &cp
}

func copyStudent(s *domain.Student) *domain.Student {
	cp := *s
	cp.Roles = append([]domain.StudentRole(nil), s.Roles...)
	return &cp
}

type memTerms struct{ s *MemStore }

func (r memTerms) Create(ctx context.Context, term *domain.Term) error {
	defer r.s.lock()()
	if term.TermID == uuid.Nil {
		term.TermID = uuid.New()
	}
	cp := *term
	r.s.data.terms[cp.TermID] = &cp
	return nil
}

func (r memTerms) GetByID(ctx context.Context, id uuid.UUID) (*domain.Term, error) {
	defer r.s.lock()()
	t, ok := r.s.data.terms[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

type memCourses struct{ s *MemStore }

func (r memCourses) Create(ctx context.Context, course *domain.Course) error {
	defer r.s.lock()()
	if course.CourseID == uuid.Nil {
		course.CourseID = uuid.New()
	}
	cp := *course
	r.s.data.courses[cp.CourseID] = &cp
	return nil
}

func (r memCourses) GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	defer r.s.lock()()
	c, ok := r.s.data.courses[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r memCourses) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Course, error) {
	defer r.s.lock()()
	var out []*domain.Course
	for _, id := range ids {
		if c, ok := r.s.data.courses[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memGroups struct{ s *MemStore }

func (r memGroups) Create(ctx context.Context, group *domain.Group) error {
	defer r.s.lock()()
	if group.GroupID == uuid.Nil {
		group.GroupID = uuid.New()
	}
	for i := range group.GuaranteedSpots {
		if group.GuaranteedSpots[i].SpotID == uuid.Nil {
			group.GuaranteedSpots[i].SpotID = uuid.New()
		}
		group.GuaranteedSpots[i].GroupID = group.GroupID
	}
	r.s.data.groups[group.GroupID] = copyGroup(group)
	return nil
}

func (r memGroups) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	defer r.s.lock()()
	g, ok := r.s.data.groups[id]
	if !ok {
		return nil, nil
	}
	return copyGroup(g), nil
}

func (r memGroups) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Group, error) {
	defer r.s.lock()()
	var out []*domain.Group
	for _, id := range ids {
		if g, ok := r.s.data.groups[id]; ok {
			out = append(out, copyGroup(g))
		}
	}
	return out, nil
}

func (r memGroups) GetByCourse(ctx context.Context, courseID uuid.UUID) ([]*domain.Group, error) {
	defer r.s.lock()()
	var out []*domain.Group
	for _, g := range r.s.data.groups {
		if g.CourseID == courseID {
			out = append(out, copyGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupNumber < out[j].GroupNumber })
	return out, nil
}

type memStudents struct{ s *MemStore }

func (r memStudents) Create(ctx context.Context, student *domain.Student) error {
	defer r.s.lock()()
	if student.StudentID == uuid.Nil {
		student.StudentID = uuid.New()
	}
	for i := range student.Roles {
		if student.Roles[i].RoleID == uuid.Nil {
			student.Roles[i].RoleID = uuid.New()
		}
		student.Roles[i].StudentID = student.StudentID
	}
	r.s.data.students[student.StudentID] = copyStudent(student)
	return nil
}

func (r memStudents) GetByID(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	defer r.s.lock()()
	s, ok := r.s.data.students[id]
	if !ok {
		return nil, nil
	}
	return copyStudent(s), nil
}

func (r memStudents) GetByStudentNumber(ctx context.Context, studentNumber string) (*domain.Student, error) {
	defer r.s.lock()()
	for _, s := range r.s.data.students {
		if s.StudentNumber == studentNumber {
			return copyStudent(s), nil
		}
	}
	return nil, nil
}

func (r memStudents) RolesByStudentIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error) {
	defer r.s.lock()()
	roles := make(map[uuid.UUID][]string, len(ids))
	for _, id := range ids {
		s, ok := r.s.data.students[id]
		if !ok {
			continue
		}
		for _, role := range s.Roles {
			roles[id] = append(roles[id], role.Role)
		}
	}
	return roles, nil
}

type memRecords struct{ s *MemStore }

func (r memRecords) Create(ctx context.Context, record *domain.Record) error {
	defer r.s.lock()()
	if record.RecordID == uuid.Nil {
		record.RecordID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = r.s.clock()
	}
	record.ModifiedAt = r.s.clock()
	cp := *record
	r.s.data.records[cp.RecordID] = &cp
	return nil
}

func (r memRecords) Update(ctx context.Context, record *domain.Record) error {
	defer r.s.lock()()
	record.ModifiedAt = r.s.clock()
	cp := *record
	r.s.data.records[cp.RecordID] = &cp
	return nil
}

func (r memRecords) ActiveByStudentAndGroup(ctx context.Context, studentID, groupID uuid.UUID) (*domain.Record, error) {
	defer r.s.lock()()
	matches := r.filter(func(rec *domain.Record) bool {
		return rec.StudentID == studentID && rec.GroupID == groupID && rec.IsActive()
	})
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (r memRecords) ActiveByStudent(ctx context.Context, studentID uuid.UUID) ([]*domain.Record, error) {
	defer r.s.lock()()
	return r.filter(func(rec *domain.Record) bool {
		return rec.StudentID == studentID && rec.IsActive()
	}), nil
}

func (r memRecords) ActiveByStudentAndGroups(ctx context.Context, studentID uuid.UUID, groupIDs []uuid.UUID) ([]*domain.Record, error) {
	defer r.s.lock()()
	wanted := make(map[uuid.UUID]bool, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = true
	}
	return r.filter(func(rec *domain.Record) bool {
		return rec.StudentID == studentID && wanted[rec.GroupID] && rec.IsActive()
	}), nil
}

func (r memRecords) ActiveByGroups(ctx context.Context, groupIDs []uuid.UUID) ([]*domain.Record, error) {
	defer r.s.lock()()
	wanted := make(map[uuid.UUID]bool, len(groupIDs))
	for _, id := range groupIDs {
		wanted[id] = true
	}
	return r.filter(func(rec *domain.Record) bool {
		return wanted[rec.GroupID] && rec.IsActive()
	}), nil
}

func (r memRecords) EnrolledCountByGroup(ctx context.Context, groupID uuid.UUID) (int, error) {
	defer r.s.lock()()
	count := 0
	for _, rec := range r.s.data.records {
		if rec.GroupID == groupID && rec.Status == domain.StatusEnrolled {
			count++
		}
	}
	return count, nil
}

func (r memRecords) LockGroupRecords(ctx context.Context, groupID uuid.UUID) ([]*domain.Record, error) {
	defer r.s.lock()()
	return r.filter(func(rec *domain.Record) bool {
		return rec.GroupID == groupID &&
			(rec.Status == domain.StatusEnrolled || rec.Status == domain.StatusQueued)
	}), nil
}

func (r memRecords) LockStudentRecords(ctx context.Context, studentID uuid.UUID) ([]*domain.Record, error) {
	defer r.s.lock()()
	return r.filter(func(rec *domain.Record) bool {
		return rec.StudentID == studentID && rec.IsActive()
	}), nil
}

// filter returns copies of matching records ordered by created_at, oldest
// first. Caller must hold the store mutex.
func (r memRecords) filter(match func(*domain.Record) bool) []*domain.Record {
	var out []*domain.Record
	for _, rec := range r.s.data.records {
		if match(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RecordID.String() < out[j].RecordID.String()
	})
	return out
}

var _ interfaces.Store = (*MemStore)(nil)
