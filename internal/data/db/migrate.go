package db

import (
	"fmt"

	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Profiles (source of truth)
		// =========================
		&types.ProfileRecord{},

		// =========================
		// Recovery surface
		// =========================
		&types.BackupRecord{},
		&types.CorruptionAuditRecord{},
	)
}

// EnsureGamificationIndexes creates the indexes AutoMigrate cannot express
// from tags. Plain CREATE INDEX IF NOT EXISTS only, so the same statements
// run on Postgres and SQLite.
func EnsureGamificationIndexes(db *gorm.DB) error {
	// Incident triage: newest corruption reports per user first.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_gamification_corruption_audit_user_detected
		ON gamification_corruption_audit (user_id, detected_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_gamification_corruption_audit_user_detected: %w", err)
	}

	// Retention cleanup deletes audit rows by age.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_gamification_corruption_audit_detected_at
		ON gamification_corruption_audit (detected_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_gamification_corruption_audit_detected_at: %w", err)
	}

	// Operator check on the snapshot job: newest backups across all users.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_gamification_backup_timestamp
		ON gamification_backup (timestamp DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_gamification_backup_timestamp: %w", err)
	}

	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	// uuid-ossp is already enabled in NewPostgresService, but safe to re-run
	if err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		s.log.Error("Extension migration failed", "error", err)
		return fmt.Errorf("enable uuid-ossp: %w", err)
	}
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureGamificationIndexes(s.db); err != nil {
		s.log.Error("Gamification index migration failed", "error", err)
		return err
	}

	return nil
}

func (s *SQLiteService) AutoMigrateAll() error {
	s.log.Info("Auto migrating sqlite tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureGamificationIndexes(s.db); err != nil {
		s.log.Error("Gamification index migration failed", "error", err)
		return err
	}

	return nil
}
