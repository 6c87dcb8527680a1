package gamification

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

func TestMemoryProfileStore(t *testing.T) {
	exerciseProfileStore(t, NewMemoryProfileStore())
}

func TestMemoryProfileStore_ReturnsClones(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()
	userID := uuid.New()

	p := types.DefaultProfile(userID)
	if _, err := store.InsertIfAbsent(ctx, p); err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}

	// Mutating what we inserted or what we read back must not leak into
	// the stored copy.
	p.XP = 999
	got, err := store.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.XP != 0 {
		t.Fatalf("stored profile aliased the inserted one: xp=%d", got.XP)
	}
	got.ActivityCounts["questsCompleted"] = 42
	again, err := store.GetByID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByID (again): %v", err)
	}
	if again.ActivityCounts["questsCompleted"] != 0 {
		t.Fatalf("stored profile aliased the returned one: %+v", again.ActivityCounts)
	}
}

func TestMemoryProfileStore_ConcurrentCASSingleWinner(t *testing.T) {
	store := NewMemoryProfileStore()
	ctx := context.Background()
	userID := uuid.New()
	if _, err := store.InsertIfAbsent(ctx, types.DefaultProfile(userID)); err != nil {
		t.Fatalf("InsertIfAbsent: %v", err)
	}

	const writers = 16
	var wg sync.WaitGroup
	wins := make(chan int, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			next := types.DefaultProfile(userID)
			next.XP = int64(10 + n)
			ok, err := store.UpdateIfMatch(ctx, userID, ExpectedFields{XP: 0, Level: 1}, next)
			if err != nil {
				t.Errorf("UpdateIfMatch: %v", err)
				return
			}
			if ok {
				wins <- n
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one CAS winner, got %d", count)
	}
}

func TestMemoryBackupStore(t *testing.T) {
	exerciseBackupStore(t, NewMemoryBackupStore())
}

func TestMemoryAuditSink(t *testing.T) {
	sink := NewMemoryAuditSink()
	userID := uuid.New()
	p := types.DefaultProfile(userID)
	p.XP = -5

	if err := sink.RecordCorruption(context.Background(), userID, []string{"xp is negative"}, p); err != nil {
		t.Fatalf("RecordCorruption: %v", err)
	}
	events := sink.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].UserID != userID || len(events[0].Reasons) != 1 || events[0].Snapshot.XP != -5 {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}
