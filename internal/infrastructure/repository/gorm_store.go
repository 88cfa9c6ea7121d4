package repository

import (
	"context"
	"fmt"
	"strings"

	interfaces "seatalloc/internal/interfaces/infrastructure"

	"gorm.io/gorm"
)

// GormStore implements the engine's Store over GORM/Postgres
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Terms() interfaces.TermRepository       { return &TermRepository{db: s.db} }
func (s *GormStore) Courses() interfaces.CourseRepository   { return &CourseRepository{db: s.db} }
func (s *GormStore) Groups() interfaces.GroupRepository     { return &GroupRepository{db: s.db} }
func (s *GormStore) Students() interfaces.StudentRepository { return &StudentRepository{db: s.db} }
func (s *GormStore) Records() interfaces.RecordRepository   { return &RecordRepository{db: s.db} }

// Transaction runs fn in one database transaction. Aborts issued by
// Postgres to break a lock cycle come back as ErrTxConflict so the
// allocator can retry them.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx interfaces.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
	if err != nil && isLockConflict(err) {
		return fmt.Errorf("%w: %v", interfaces.ErrTxConflict, err)
	}
	return err
}

// isLockConflict matches serialization failures (40001) and deadlock aborts
// (40P01) surfaced by the Postgres driver
func isLockConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 40001") ||
		strings.Contains(msg, "SQLSTATE 40P01") ||
		strings.Contains(msg, "deadlock detected")
}

var _ interfaces.Store = (*GormStore)(nil)
