package repository

import (
	"context"

	domain "seatalloc/internal/domain/enrollment"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StudentRepository implements the student store using GORM
type StudentRepository struct {
	db *gorm.DB
}

// Create creates a new student together with their role tags
func (r *StudentRepository) Create(ctx context.Context, student *domain.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

// GetByID retrieves a student by ID with roles loaded
func (r *StudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	var student domain.Student
	err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("student_id = ?", id).
		First(&student).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &student, nil
}

// GetByStudentNumber retrieves a student by their student number
func (r *StudentRepository) GetByStudentNumber(ctx context.Context, studentNumber string) (*domain.Student, error) {
	var student domain.Student
	err := r.db.WithContext(ctx).
		Preload("Roles").
		Where("student_number = ?", studentNumber).
		First(&student).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &student, nil
}

// RolesByStudentIDs resolves role tags for many students in one query
func (r *StudentRepository) RolesByStudentIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error) {
	roles := make(map[uuid.UUID][]string, len(ids))
	if len(ids) == 0 {
		return roles, nil
	}
	var rows []domain.StudentRole
	err := r.db.WithContext(ctx).Where("student_id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		roles[row.StudentID] = append(roles[row.StudentID], row.Role)
	}
	return roles, nil
}
