package gamification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/platform/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProfileStore persists profiles through GORM. It serves both the
// Postgres and the SQLite providers; the conditional write is a plain
// guarded UPDATE so it needs nothing backend specific.
type GormProfileStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGormProfileStore(db *gorm.DB, baseLog *logger.Logger) *GormProfileStore {
	return &GormProfileStore{db: db, log: baseLog.With("store", "GormProfileStore")}
}

func (s *GormProfileStore) GetByID(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	var rec types.ProfileRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := rec.ToProfile()
	if err != nil {
		return nil, errors.Join(ErrCorruptPayload, err)
	}
	return p, nil
}

func (s *GormProfileStore) InsertIfAbsent(ctx context.Context, p *types.Profile) (bool, error) {
	rec, err := types.NewProfileRecord(p)
	if err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormProfileStore) UpdateIfMatch(ctx context.Context, userID uuid.UUID, expected ExpectedFields, next *types.Profile) (bool, error) {
	rec, err := types.NewProfileRecord(next)
	if err != nil {
		return false, err
	}
	res := s.db.WithContext(ctx).
		Model(&types.ProfileRecord{}).
		Where("user_id = ? AND xp = ? AND level = ?", userID, expected.XP, expected.Level).
		Updates(map[string]any{
			"xp":              rec.XP,
			"level":           rec.Level,
			"badges":          rec.Badges,
			"streaks":         rec.Streaks,
			"activity_counts": rec.ActivityCounts,
			"xp_history":      rec.XPHistory,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormProfileStore) Overwrite(ctx context.Context, next *types.Profile) error {
	rec, err := types.NewProfileRecord(next)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"xp", "level", "badges", "streaks", "activity_counts", "xp_history", "updated_at",
			}),
		}).
		Create(rec).Error
}

func (s *GormProfileStore) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).
		Model(&types.ProfileRecord{}).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
