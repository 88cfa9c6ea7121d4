package repository

import (
	"context"

	domain "seatalloc/internal/domain/enrollment"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TermRepository implements the term store using GORM
type TermRepository struct {
	db *gorm.DB
}

// Create creates a new term
func (r *TermRepository) Create(ctx context.Context, term *domain.Term) error {
	return r.db.WithContext(ctx).Create(term).Error
}

// GetByID retrieves a term by ID
func (r *TermRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Term, error) {
	var term domain.Term
	err := r.db.WithContext(ctx).Where("term_id = ?", id).First(&term).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &term, nil
}
