package gamification

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
)

func mergeFixtures(t *testing.T) (*Catalog, *Profile, *Profile) {
	t.Helper()
	cat := testCatalog(t)
	userID := uuid.New()
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

	local := DefaultProfile(userID)
	local.XP = 40
	local.Level = cat.LevelForXP(local.XP)
	local.ActivityCounts[CounterQuestsCompleted] = 2
	local.ActivityCounts[CounterAppsAdded] = 1
	local.Badges = []BadgeAward{{ID: "quests_10", Name: "Quest Hunter", Category: "quests", EarnedAt: base.Add(time.Hour)}}
	local.Streaks = Streaks{CurrentLoginStreak: 3, LongestLoginStreak: 5}
	d1 := base.AddDate(0, 0, 3)
	local.Streaks.LastLoginDate = &d1
	local.XPHistory = []XPTransaction{
		{Amount: 15, Action: ActionQuestCompleted, Timestamp: base},
		{Amount: 15, Action: ActionQuestCompleted, Timestamp: base.Add(time.Hour)},
		{Amount: 10, Action: ActionAppAdded, Timestamp: base.Add(2 * time.Hour)},
	}

	remote := DefaultProfile(userID)
	remote.XP = 30
	remote.Level = cat.LevelForXP(remote.XP)
	remote.ActivityCounts[CounterQuestsCompleted] = 1
	remote.ActivityCounts[CounterReviewsSubmitted] = 3
	remote.Badges = []BadgeAward{
		{ID: "quests_10", Name: "Quest Hunter", Category: "quests", EarnedAt: base},
		{ID: "apps_5", Name: "App Collector", Category: "apps", EarnedAt: base.Add(30 * time.Minute)},
	}
	remote.Streaks = Streaks{CurrentLoginStreak: 1, LongestLoginStreak: 8}
	d2 := base.AddDate(0, 0, 1)
	remote.Streaks.LastLoginDate = &d2
	remote.XPHistory = []XPTransaction{
		{Amount: 15, Action: ActionQuestCompleted, Timestamp: base},
		{Amount: 5, Action: ActionReviewSubmitted, Timestamp: base.Add(90 * time.Minute)},
		{Amount: 10, Action: ActionAppAdded, Timestamp: base.Add(2 * time.Hour)},
	}

	return cat, local, remote
}

func TestResolve_Idempotent(t *testing.T) {
	cat, local, _ := mergeFixtures(t)
	merged := Resolve(local, local, cat)
	if !reflect.DeepEqual(merged, local) {
		t.Fatalf("resolve(A, A) != A\nwant=%+v\ngot=%+v", local, merged)
	}
}

func TestResolve_Commutative(t *testing.T) {
	cat, local, remote := mergeFixtures(t)
	ab := Resolve(local, remote, cat)
	ba := Resolve(remote, local, cat)
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("resolve not commutative\nab=%+v\nba=%+v", ab, ba)
	}
}

func TestResolve_MonotonicFields(t *testing.T) {
	cat, local, remote := mergeFixtures(t)
	merged := Resolve(local, remote, cat)

	if merged.XP != 40 {
		t.Fatalf("xp: want=40 got=%d", merged.XP)
	}
	if merged.Level != cat.LevelForXP(40) {
		t.Fatalf("level not recomputed from merged xp: got=%d", merged.Level)
	}
	if merged.Streaks.CurrentLoginStreak != 3 || merged.Streaks.LongestLoginStreak != 8 {
		t.Fatalf("streaks not per-field max: %+v", merged.Streaks)
	}
	if merged.Streaks.LastLoginDate == nil || !merged.Streaks.LastLoginDate.Equal(*local.Streaks.LastLoginDate) {
		t.Fatalf("last login date should be the later one: %v", merged.Streaks.LastLoginDate)
	}
	wantCounts := map[string]int64{
		CounterQuestsCompleted:  2,
		CounterAppsAdded:        1,
		CounterReviewsSubmitted: 3,
	}
	if !reflect.DeepEqual(merged.ActivityCounts, wantCounts) {
		t.Fatalf("counts: want=%v got=%v", wantCounts, merged.ActivityCounts)
	}
}

func TestResolve_BadgeUnionKeepsEarlierAward(t *testing.T) {
	cat, local, remote := mergeFixtures(t)
	merged := Resolve(local, remote, cat)

	if len(merged.Badges) != 2 {
		t.Fatalf("badge union size: want=2 got=%d (%v)", len(merged.Badges), merged.Badges)
	}
	var quest *BadgeAward
	for i := range merged.Badges {
		if merged.Badges[i].ID == "quests_10" {
			quest = &merged.Badges[i]
		}
	}
	if quest == nil {
		t.Fatalf("quests_10 missing from union")
	}
	if !quest.EarnedAt.Equal(remote.Badges[0].EarnedAt) {
		t.Fatalf("earlier earnedAt should win: got=%v", quest.EarnedAt)
	}
}

func TestResolve_HistoryUnionDedup(t *testing.T) {
	cat, local, remote := mergeFixtures(t)
	merged := Resolve(local, remote, cat)

	// Shared entries (first quest, app_added) appear once; the union holds
	// the three local plus the remote-only review entry.
	if len(merged.XPHistory) != 4 {
		t.Fatalf("history union size: want=4 got=%d (%v)", len(merged.XPHistory), merged.XPHistory)
	}
	for i := 1; i < len(merged.XPHistory); i++ {
		if merged.XPHistory[i].Timestamp.Before(merged.XPHistory[i-1].Timestamp) {
			t.Fatalf("merged history not sorted: %v", merged.XPHistory)
		}
	}
}

func TestResolve_NilSides(t *testing.T) {
	cat, local, _ := mergeFixtures(t)
	if got := Resolve(nil, local, cat); !reflect.DeepEqual(got, local) {
		t.Fatalf("resolve(nil, A) should clone A")
	}
	if got := Resolve(local, nil, cat); !reflect.DeepEqual(got, local) {
		t.Fatalf("resolve(A, nil) should clone A")
	}
	if got := Resolve(nil, nil, cat); got != nil {
		t.Fatalf("resolve(nil, nil) should be nil, got %+v", got)
	}
}
