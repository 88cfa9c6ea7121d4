package database

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"seatalloc/pkg/logger"

	"gorm.io/gorm"
)

// Migration is one SQL migration file, identified by the numeric prefix of
// its filename (0001_create_enrollment_schema.sql -> id 0001).
type Migration struct {
	ID          string
	Description string
	SQL         string
	AppliedAt   *time.Time
}

// MigrationRunner applies the .sql files of a directory in filename order,
// each in its own transaction, and records them in schema_migrations.
type MigrationRunner struct {
	db  *gorm.DB
	dir string
}

func NewMigrationRunner(db *gorm.DB, migrationsDir string) *MigrationRunner {
	return &MigrationRunner{db: db, dir: migrationsDir}
}

// RunMigrations applies every pending migration
func (mr *MigrationRunner) RunMigrations() error {
	if err := mr.ensureTable(); err != nil {
		return err
	}
	migrations, err := mr.load()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		if m.AppliedAt != nil {
			continue
		}
		err := mr.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.SQL).Error; err != nil {
				return fmt.Errorf("failed to execute migration %s: %w", m.ID, err)
			}
			return tx.Exec("INSERT INTO schema_migrations (id, description) VALUES (?, ?)",
				m.ID, m.Description).Error
		})
		if err != nil {
			return err
		}
		logger.Info("Applied migration %s: %s", m.ID, m.Description)
		applied++
	}

	if applied == 0 {
		logger.Info("No pending migrations")
	} else {
		logger.Info("Applied %d migrations", applied)
	}
	return nil
}

// GetMigrationStatus lists every migration file with its applied timestamp,
// if any
func (mr *MigrationRunner) GetMigrationStatus() ([]Migration, error) {
	if err := mr.ensureTable(); err != nil {
		return nil, err
	}
	return mr.load()
}

func (mr *MigrationRunner) ensureTable() error {
	return mr.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id VARCHAR(255) PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`).Error
}

// load reads the migration files and joins them with their applied_at rows
func (mr *MigrationRunner) load() ([]Migration, error) {
	entries, err := os.ReadDir(mr.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", mr.dir, err)
	}

	var appliedRows []struct {
		ID        string
		AppliedAt time.Time
	}
	if err := mr.db.Raw("SELECT id, applied_at FROM schema_migrations").Scan(&appliedRows).Error; err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	appliedAt := make(map[string]time.Time, len(appliedRows))
	for _, row := range appliedRows {
		appliedAt[row.ID] = row.AppliedAt
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		id, description, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		if !ok {
			return nil, fmt.Errorf("invalid migration filename format: %s", name)
		}
		content, err := os.ReadFile(filepath.Join(mr.dir, name))
		if err != nil {
			return nil, err
		}
		m := Migration{
			ID:          id,
			Description: strings.ReplaceAll(description, "_", " "),
			SQL:         string(content),
		}
		if at, ok := appliedAt[m.ID]; ok {
			m.AppliedAt = &at
		}
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool { return migrations[i].ID < migrations[j].ID })
	return migrations, nil
}

// RunSQLMigrations applies the engine schema from scripts/migrations
func RunSQLMigrations(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return fmt.Errorf("failed to create uuid extension: %w", err)
	}
	return NewMigrationRunner(db, "scripts/migrations").RunMigrations()
}
