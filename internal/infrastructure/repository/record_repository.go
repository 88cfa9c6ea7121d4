package repository

import (
	"context"

	domain "seatalloc/internal/domain/enrollment"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordRepository implements the record store using GORM
type RecordRepository struct {
	db *gorm.DB
}

// Create creates a new record
func (r *RecordRepository) Create(ctx context.Context, record *domain.Record) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Update persists a record mutation
func (r *RecordRepository) Update(ctx context.Context, record *domain.Record) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// ActiveByStudentAndGroup retrieves the live record for a (student, group)
// pair, nil when none exists
func (r *RecordRepository) ActiveByStudentAndGroup(ctx context.Context, studentID, groupID uuid.UUID) (*domain.Record, error) {
	var record domain.Record
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND group_id = ? AND status <> ?", studentID, groupID, domain.StatusRemoved).
		Order("created_at ASC").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// ActiveByStudent retrieves all live records of a student
func (r *RecordRepository) ActiveByStudent(ctx context.Context, studentID uuid.UUID) ([]*domain.Record, error) {
	var records []*domain.Record
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND status <> ?", studentID, domain.StatusRemoved).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ActiveByStudentAndGroups retrieves the student's live records across many
// groups in one query
func (r *RecordRepository) ActiveByStudentAndGroups(ctx context.Context, studentID uuid.UUID, groupIDs []uuid.UUID) ([]*domain.Record, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var records []*domain.Record
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND group_id IN ? AND status <> ?", studentID, groupIDs, domain.StatusRemoved).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ActiveByGroups retrieves all live records of the given groups
func (r *RecordRepository) ActiveByGroups(ctx context.Context, groupIDs []uuid.UUID) ([]*domain.Record, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	var records []*domain.Record
	err := r.db.WithContext(ctx).
		Where("group_id IN ? AND status <> ?", groupIDs, domain.StatusRemoved).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// EnrolledCountByGroup counts the enrolled records of a group
func (r *RecordRepository) EnrolledCountByGroup(ctx context.Context, groupID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("group_id = ? AND status = ?", groupID, domain.StatusEnrolled).
		Count(&count).Error
	return int(count), err
}

// LockGroupRecords takes FOR UPDATE row locks on every enrolled or queued
// record of a group. This is the group-scoped lock held for the duration of
// one allocation pass.
func (r *RecordRepository) LockGroupRecords(ctx context.Context, groupID uuid.UUID) ([]*domain.Record, error) {
	var records []*domain.Record
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("group_id = ? AND status IN ?", groupID,
			[]domain.RecordStatus{domain.StatusEnrolled, domain.StatusQueued}).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LockStudentRecords takes FOR UPDATE row locks on every live record of a
// student. This is the student-scoped lock; it nests inside the group lock
// and lock cycles between independent allocator runs are broken by the
// database (surfaced as ErrTxConflict).
func (r *RecordRepository) LockStudentRecords(ctx context.Context, studentID uuid.UUID) ([]*domain.Record, error) {
	var records []*domain.Record
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ? AND status <> ?", studentID, domain.StatusRemoved).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
