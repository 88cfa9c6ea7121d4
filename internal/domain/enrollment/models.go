package enrollment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordStatus represents the lifecycle state of a student/group tie
type RecordStatus string

const (
	StatusQueued   RecordStatus = "queued"
	StatusEnrolled RecordStatus = "enrolled"
	StatusBlocked  RecordStatus = "blocked"
	StatusRemoved  RecordStatus = "removed"
)

// Queue priority bounds. Priority is a tie-break only, never a pull order.
const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// UnreservedRole is the pseudo-role for the seat pool not covered by any
// guaranteed-spot rule. It is always drained after every named role.
const UnreservedRole = "-"

// Reason classifies why a queued record could not be enrolled
type Reason string

const (
	ReasonNotYetOpen     Reason = "not_yet_open"
	ReasonBudgetExceeded Reason = "budget_exceeded"
	ReasonIneligible     Reason = "ineligible"
)

// Term represents an academic cycle
type Term struct {
	TermID             uuid.UUID `json:"term_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	TermCode           string    `json:"term_code" gorm:"unique;not null"`
	StartDate          time.Time `json:"start_date" gorm:"not null"`
	EndDate            time.Time `json:"end_date" gorm:"not null"`
	RemoveDeadline     time.Time `json:"remove_deadline" gorm:"not null"`
	PointsLimitInitial int       `json:"points_limit_initial" gorm:"not null"`
	PointsLimitFinal   int       `json:"points_limit_final" gorm:"not null"`
	LimitRelaxedAt     time.Time `json:"limit_relaxed_at" gorm:"not null"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Course represents a course offering within one term. Points is the
// budget cost charged once per distinct course a student is tied to.
type Course struct {
	CourseID         uuid.UUID  `json:"course_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	TermID           uuid.UUID  `json:"term_id" gorm:"type:uuid;not null"`
	CourseCode       string     `json:"course_code" gorm:"not null"`
	CourseName       string     `json:"course_name" gorm:"not null"`
	Points           int        `json:"points" gorm:"not null;check:points >= 0"`
	UnenrollDeadline *time.Time `json:"unenroll_deadline"`
	CreatedAt        time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	Term             Term       `json:"term,omitempty" gorm:"foreignKey:TermID"`
}

// Group represents one course group (lecture, exercise, lab, ...)
type Group struct {
	GroupID         uuid.UUID        `json:"group_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	CourseID        uuid.UUID        `json:"course_id" gorm:"type:uuid;not null"`
	TermID          uuid.UUID        `json:"term_id" gorm:"type:uuid;not null"`
	GroupNumber     string           `json:"group_number" gorm:"not null"`
	GroupType       string           `json:"group_type" gorm:"not null"`
	Limit           int              `json:"limit" gorm:"column:seat_limit;not null;check:seat_limit >= 0"`
	AutoEnrollment  bool             `json:"auto_enrollment" gorm:"not null;default:false"`
	CreatedAt       time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
	Course          Course           `json:"course,omitempty" gorm:"foreignKey:CourseID"`
	GuaranteedSpots []GuaranteedSpot `json:"guaranteed_spots,omitempty" gorm:"foreignKey:GroupID"`
}

// GuaranteedSpot reserves part of a group's seats for students holding Role
type GuaranteedSpot struct {
	SpotID    uuid.UUID `json:"spot_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	GroupID   uuid.UUID `json:"group_id" gorm:"type:uuid;not null;index"`
	Role      string    `json:"role" gorm:"not null"`
	Limit     int       `json:"limit" gorm:"column:seat_limit;not null;check:seat_limit >= 0"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Student represents a student identity
type Student struct {
	StudentID     uuid.UUID     `json:"student_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	StudentNumber string        `json:"student_number" gorm:"unique;not null"`
	Active        bool          `json:"active" gorm:"not null;default:true"`
	CreatedAt     time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
	Roles         []StudentRole `json:"roles,omitempty" gorm:"foreignKey:StudentID"`
}

// StudentRole tags a student with a caller-defined role (e.g. "freshman"),
// consumed by guaranteed-spot rules
type StudentRole struct {
	RoleID    uuid.UUID `json:"role_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	StudentID uuid.UUID `json:"student_id" gorm:"type:uuid;not null;index"`
	Role      string    `json:"role" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Record is the persistent tie between a student and a group. Records are
// never deleted; removed rows are retained for history.
type Record struct {
	RecordID   uuid.UUID    `json:"record_id" gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	StudentID  uuid.UUID    `json:"student_id" gorm:"type:uuid;not null;index"`
	GroupID    uuid.UUID    `json:"group_id" gorm:"type:uuid;not null;index"`
	Status     RecordStatus `json:"status" gorm:"type:text;not null;default:queued"`
	Priority   int          `json:"priority" gorm:"not null;default:5;check:priority >= 1 AND priority <= 10"`
	CreatedAt  time.Time    `json:"created_at" gorm:"autoCreateTime"`
	ModifiedAt time.Time    `json:"modified_at" gorm:"autoUpdateTime"`
	Student    Student      `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Group      Group        `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

// IsActive reports whether the record is still logically relevant
func (r *Record) IsActive() bool {
	return r.Status != StatusRemoved
}

// CanTransitionTo reports whether the lifecycle allows moving to next.
// Removed is terminal; enrolled leaves only through removal or a budget
// revocation back to blocked.
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	switch s {
	case StatusQueued:
		return next == StatusEnrolled || next == StatusBlocked || next == StatusRemoved
	case StatusEnrolled:
		return next == StatusRemoved || next == StatusBlocked
	case StatusBlocked:
		return next == StatusQueued || next == StatusRemoved
	default:
		return false
	}
}

// Transition moves the record to next, rejecting moves the lifecycle
// forbids. Mirror groups bypass this via ForceStatus.
func (r *Record) Transition(next RecordStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid record transition %s -> %s", r.Status, next)
	}
	r.Status = next
	return nil
}

// ForceStatus sets the status without lifecycle checks. Auto-enrollment
// groups mirror their course and may demote enrolled records back to queued.
func (r *Record) ForceStatus(next RecordStatus) {
	r.Status = next
}
