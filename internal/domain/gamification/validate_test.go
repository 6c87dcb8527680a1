package gamification

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestValidate_DefaultProfileIsValid(t *testing.T) {
	cat := testCatalog(t)
	if v := Validate(DefaultProfile(uuid.New()), cat); len(v) != 0 {
		t.Fatalf("default profile should be valid, got %v", v)
	}
}

func TestValidate_ValidProgressedProfile(t *testing.T) {
	cat := testCatalog(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	p := DefaultProfile(uuid.New())
	p.XP = 30
	p.Level = cat.LevelForXP(p.XP)
	p.ActivityCounts[CounterQuestsCompleted] = 2
	p.XPHistory = []XPTransaction{
		{Amount: 15, Action: ActionQuestCompleted, Timestamp: base},
		{Amount: 15, Action: ActionQuestCompleted, Timestamp: base.Add(time.Hour)},
	}
	if v := Validate(p, cat); len(v) != 0 {
		t.Fatalf("expected valid profile, got %v", v)
	}
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cat := testCatalog(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	p := &Profile{
		UserID: uuid.New(),
		XP:     -100,
		Level:  5,
		Badges: []BadgeAward{
			{ID: "xp_100", EarnedAt: base},
			{ID: "xp_100", EarnedAt: base},
		},
		ActivityCounts: map[string]int64{CounterQuestsCompleted: -1},
		XPHistory: []XPTransaction{
			{Amount: 10, Action: ActionAppAdded, Timestamp: base.Add(time.Hour)},
			{Amount: 5, Action: ActionReviewSubmitted, Timestamp: base},
		},
		Streaks: Streaks{CurrentLoginStreak: -2, LongestLoginStreak: -1},
	}

	violations := Validate(p, cat)
	wantFragments := []string{
		"xp is negative",
		"level 5 does not match",
		`activity counter "questsCompleted" is negative`,
		`duplicate badge id "xp_100"`,
		"not sorted by timestamp",
		"does not match xp -100",
		"current login streak is negative",
		"longest login streak is negative",
	}
	for _, frag := range wantFragments {
		if !containsFragment(violations, frag) {
			t.Fatalf("missing violation %q in %v", frag, violations)
		}
	}
	if len(violations) != len(wantFragments) {
		t.Fatalf("violation count: want=%d got=%d (%v)", len(wantFragments), len(violations), violations)
	}
}

func TestValidate_SumMismatchOnly(t *testing.T) {
	cat := testCatalog(t)
	p := DefaultProfile(uuid.New())
	p.XP = 50
	p.Level = cat.LevelForXP(p.XP)
	p.XPHistory = []XPTransaction{
		{Amount: 15, Action: ActionQuestCompleted, Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
	}
	violations := Validate(p, cat)
	if len(violations) != 1 || !strings.Contains(violations[0], "history sum 15 does not match xp 50") {
		t.Fatalf("expected single sum violation, got %v", violations)
	}
}

func containsFragment(violations []string, frag string) bool {
	for _, v := range violations {
		if strings.Contains(v, frag) {
			return true
		}
	}
	return false
}
