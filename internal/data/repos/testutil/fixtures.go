package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"gorm.io/gorm"
)

// ProgressedProfile builds an in-memory profile that has seen some activity.
// It is not persisted anywhere.
func ProgressedProfile(tb testing.TB, userID uuid.UUID) *types.Profile {
	tb.Helper()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	p := types.DefaultProfile(userID)
	p.XP = 45
	p.Level = 1
	p.ActivityCounts[types.CounterQuestsCompleted] = 3
	p.XPHistory = []types.XPTransaction{
		{Amount: 15, Action: types.ActionQuestCompleted, Timestamp: base},
		{Amount: 15, Action: types.ActionQuestCompleted, Timestamp: base.Add(time.Hour)},
		{Amount: 15, Action: types.ActionQuestCompleted, Timestamp: base.Add(2 * time.Hour)},
	}
	return p
}

func SeedProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, p *types.Profile) *types.ProfileRecord {
	tb.Helper()
	rec, err := types.NewProfileRecord(p)
	if err != nil {
		tb.Fatalf("seed profile: build record: %v", err)
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return rec
}

func SeedBackup(tb testing.TB, ctx context.Context, tx *gorm.DB, p *types.Profile, version int) *types.BackupRecord {
	tb.Helper()
	b, err := types.NewBackup(p, version)
	if err != nil {
		tb.Fatalf("seed backup: %v", err)
	}
	rec, err := types.NewBackupRecord(b)
	if err != nil {
		tb.Fatalf("seed backup: build record: %v", err)
	}
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		tb.Fatalf("seed backup: %v", err)
	}
	return rec
}

func PtrTime(v time.Time) *time.Time { return &v }
