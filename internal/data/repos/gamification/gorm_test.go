package gamification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/appquest/appquest-backend/internal/data/repos/testutil"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

func TestGormProfileStore(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	exerciseProfileStore(t, NewGormProfileStore(tx, testutil.Logger(t)))
}

func TestGormBackupStore(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	exerciseBackupStore(t, NewGormBackupStore(tx, testutil.Logger(t)))
}

func TestGormAuditSink(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	sink := NewGormAuditSink(tx, testutil.Logger(t))
	ctx := context.Background()
	userID := uuid.New()

	p := testutil.ProgressedProfile(t, userID)
	p.Level = 99
	if err := sink.RecordCorruption(ctx, userID, []string{"level 99 does not match xp 45"}, p); err != nil {
		t.Fatalf("RecordCorruption: %v", err)
	}

	var rows []types.CorruptionAuditRecord
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		t.Fatalf("load audit rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(rows))
	}
	if rows[0].Reason == "" || len(rows[0].Snapshot) == 0 {
		t.Fatalf("audit row incomplete: %+v", rows[0])
	}
}

func TestGormProfileStore_CorruptPayloadSurfacesAsCorrupt(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	store := NewGormProfileStore(tx, testutil.Logger(t))
	ctx := context.Background()
	userID := uuid.New()

	testutil.SeedProfile(t, ctx, tx, testutil.ProgressedProfile(t, userID))
	if err := tx.WithContext(ctx).
		Model(&types.ProfileRecord{}).
		Where("user_id = ?", userID).
		Update("xp_history", datatypes.JSON([]byte(`{"not":"a list"}`))).Error; err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	_, err := store.GetByID(ctx, userID)
	if !errors.Is(err, ErrCorruptPayload) {
		t.Fatalf("GetByID: expected corrupt payload error, got %v", err)
	}
}
