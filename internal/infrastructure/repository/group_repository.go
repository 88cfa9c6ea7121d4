package repository

import (
	"context"

	domain "seatalloc/internal/domain/enrollment"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GroupRepository implements the group store using GORM
type GroupRepository struct {
	db *gorm.DB
}

// Create creates a new group together with its guaranteed spots
func (r *GroupRepository) Create(ctx context.Context, group *domain.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

// GetByID retrieves a group by ID with its guaranteed spots loaded
func (r *GroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Group, error) {
	var group domain.Group
	err := r.db.WithContext(ctx).
		Preload("GuaranteedSpots").
		Where("group_id = ?", id).
		First(&group).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

// GetByIDs retrieves many groups in one query
func (r *GroupRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var groups []*domain.Group
	err := r.db.WithContext(ctx).
		Preload("GuaranteedSpots").
		Where("group_id IN ?", ids).
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// GetByCourse retrieves all groups of a course
func (r *GroupRepository) GetByCourse(ctx context.Context, courseID uuid.UUID) ([]*domain.Group, error) {
	var groups []*domain.Group
	err := r.db.WithContext(ctx).
		Preload("GuaranteedSpots").
		Where("course_id = ?", courseID).
		Order("group_number ASC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}
