package gamification

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

// exerciseProfileStore runs the shared conditional-write contract against a
// backend. Every ProfileStore implementation gets the same pass.
func exerciseProfileStore(t *testing.T, store ProfileStore) {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()

	got, err := store.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID (missing): %v", err)
	}
	if got != nil {
		t.Fatalf("GetByID (missing): expected nil profile, got %+v", got)
	}

	initial := types.DefaultProfile(userID)
	ok, err := store.InsertIfAbsent(ctx, initial)
	if err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}
	if !ok {
		t.Fatalf("InsertIfAbsent: expected first insert to win")
	}

	ok, err = store.InsertIfAbsent(ctx, initial)
	if err != nil {
		t.Fatalf("InsertIfAbsent (second): %v", err)
	}
	if ok {
		t.Fatalf("InsertIfAbsent (second): expected existing row to block insert")
	}

	got, err = store.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.UserID != userID || got.XP != 0 || got.Level != 1 {
		t.Fatalf("GetByID: unexpected profile %+v", got)
	}
	if got.Badges == nil || got.ActivityCounts == nil || got.XPHistory == nil {
		t.Fatalf("GetByID: containers must be non-nil: %+v", got)
	}

	next := got.Clone()
	next.XP = 15
	next.Level = 1
	next.ActivityCounts[types.CounterQuestsCompleted] = 1
	next.XPHistory = append(next.XPHistory, types.XPTransaction{
		Amount:    15,
		Action:    types.ActionQuestCompleted,
		Timestamp: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
		Metadata:  types.QuestCompletedMetadata{QuestID: "q-1"},
	})

	ok, err = store.UpdateIfMatch(ctx, userID, ExpectedFields{XP: 999, Level: 5}, next)
	if err != nil {
		t.Fatalf("UpdateIfMatch (stale guard): %v", err)
	}
	if ok {
		t.Fatalf("UpdateIfMatch (stale guard): expected miss")
	}

	ok, err = store.UpdateIfMatch(ctx, userID, ExpectedFields{XP: 0, Level: 1}, next)
	if err != nil {
		t.Fatalf("UpdateIfMatch: %v", err)
	}
	if !ok {
		t.Fatalf("UpdateIfMatch: expected guard to match")
	}

	got, err = store.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID (after update): %v", err)
	}
	if got.XP != 15 || got.ActivityCounts[types.CounterQuestsCompleted] != 1 {
		t.Fatalf("GetByID (after update): unexpected profile %+v", got)
	}
	if len(got.XPHistory) != 1 || !reflect.DeepEqual(got.XPHistory[0].Metadata, types.QuestCompletedMetadata{QuestID: "q-1"}) {
		t.Fatalf("GetByID (after update): history did not survive: %+v", got.XPHistory)
	}

	ok, err = store.UpdateIfMatch(ctx, uuid.New(), ExpectedFields{XP: 0, Level: 1}, next)
	if err != nil {
		t.Fatalf("UpdateIfMatch (unknown user): %v", err)
	}
	if ok {
		t.Fatalf("UpdateIfMatch (unknown user): expected miss")
	}

	restored := types.DefaultProfile(userID)
	restored.XP = 500
	restored.Level = 3
	if err := store.Overwrite(ctx, restored); err != nil {
		t.Fatalf("Overwrite: %v", err)
	}
	got, err = store.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID (after overwrite): %v", err)
	}
	if got.XP != 500 || got.Level != 3 {
		t.Fatalf("GetByID (after overwrite): unexpected profile %+v", got)
	}

	other := types.DefaultProfile(uuid.New())
	if err := store.Overwrite(ctx, other); err != nil {
		t.Fatalf("Overwrite (create): %v", err)
	}

	ids, err := store.ListUserIDs(ctx)
	if err != nil {
		t.Fatalf("ListUserIDs: %v", err)
	}
	if !containsUserID(ids, userID) || !containsUserID(ids, other.UserID) {
		t.Fatalf("ListUserIDs: missing seeded users in %v", ids)
	}
}

// exerciseBackupStore runs the shared snapshot contract against a backend.
func exerciseBackupStore(t *testing.T, store BackupStore) {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()

	b, err := store.Latest(ctx, userID)
	if err != nil {
		t.Fatalf("Latest (none): %v", err)
	}
	if b != nil {
		t.Fatalf("Latest (none): expected nil, got %+v", b)
	}

	p := types.DefaultProfile(userID)
	p.XP = 120
	p.Level = 2
	p.XPHistory = []types.XPTransaction{{
		Amount:    120,
		Action:    types.ActionProfileCompleted,
		Timestamp: time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC),
	}}

	first, err := types.NewBackup(p, 1)
	if err != nil {
		t.Fatalf("NewBackup: %v", err)
	}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save v1: %v", err)
	}
	if err := store.Save(ctx, first); err == nil {
		t.Fatalf("Save v1 twice: expected duplicate version to fail")
	}

	p.XP = 150
	second, err := types.NewBackup(p, 2)
	if err != nil {
		t.Fatalf("NewBackup v2: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save v2: %v", err)
	}

	latest, err := store.Latest(ctx, userID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest == nil || latest.Version != 2 {
		t.Fatalf("Latest: expected version 2, got %+v", latest)
	}
	if err := latest.VerifyChecksum(); err != nil {
		t.Fatalf("Latest: checksum must survive storage: %v", err)
	}

	got, err := store.Get(ctx, userID, 1)
	if err != nil {
		t.Fatalf("Get v1: %v", err)
	}
	if got == nil || got.Version != 1 || got.Data == nil || got.Data.XP != 120 {
		t.Fatalf("Get v1: unexpected backup %+v", got)
	}
	if err := got.VerifyChecksum(); err != nil {
		t.Fatalf("Get v1: checksum must survive storage: %v", err)
	}

	missing, err := store.Get(ctx, userID, 99)
	if err != nil {
		t.Fatalf("Get v99: %v", err)
	}
	if missing != nil {
		t.Fatalf("Get v99: expected nil, got %+v", missing)
	}
}

func containsUserID(ids []uuid.UUID, want uuid.UUID) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}
