package repository

import (
	"context"

	domain "seatalloc/internal/domain/enrollment"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CourseRepository implements the course store using GORM
type CourseRepository struct {
	db *gorm.DB
}

// Create creates a new course
func (r *CourseRepository) Create(ctx context.Context, course *domain.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

// GetByID retrieves a course by ID
func (r *CourseRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	var course domain.Course
	err := r.db.WithContext(ctx).Where("course_id = ?", id).First(&course).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &course, nil
}

// GetByIDs retrieves many courses in one query
func (r *CourseRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Course, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var courses []*domain.Course
	err := r.db.WithContext(ctx).Where("course_id IN ?", ids).Find(&courses).Error
	if err != nil {
		return nil, err
	}
	return courses, nil
}
