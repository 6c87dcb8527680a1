// Package gamification holds the per-user gamification aggregate and the
// pure domain logic that operates on it: the XP catalog and level curve,
// the badge rule engine, invariant validation, checksummed backups, and
// the monotonic conflict resolver.
package gamification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Profile is the per-user gamification aggregate. It is created lazily on
// first mutation, never deleted, and mutated only through the profile
// aggregate (or the explicit backup/restore and conflict-resolver paths).
type Profile struct {
	UserID         uuid.UUID        `json:"userId"`
	XP             int64            `json:"xp"`
	Level          int              `json:"level"`
	Badges         []BadgeAward     `json:"badges"`
	Streaks        Streaks          `json:"streaks"`
	ActivityCounts map[string]int64 `json:"activityCounts"`
	XPHistory      []XPTransaction  `json:"xpHistory"`
}

// BadgeAward is an earned badge stored on the profile. Award ids are unique
// per profile.
type BadgeAward struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	EarnedAt    time.Time `json:"earnedAt"`
}

// Streaks tracks daily-login streak state. LongestLoginStreak only ever
// increases; LastLoginDate is nil until the first recorded login.
type Streaks struct {
	CurrentLoginStreak int        `json:"currentLoginStreak"`
	LongestLoginStreak int        `json:"longestLoginStreak"`
	LastLoginDate      *time.Time `json:"lastLoginDate,omitempty"`
}

// XPTransaction is one append-only history entry. The history is ordered
// ascending by timestamp and its amounts always sum to the profile XP.
type XPTransaction struct {
	Amount    int64      `json:"amount"`
	Action    ActionType `json:"action"`
	Timestamp time.Time  `json:"timestamp"`
	Metadata  Metadata   `json:"metadata,omitempty"`
}

type xpTransactionJSON struct {
	Amount    int64           `json:"amount"`
	Action    ActionType      `json:"action"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

func (t XPTransaction) MarshalJSON() ([]byte, error) {
	out := xpTransactionJSON{
		Amount:    t.Amount,
		Action:    t.Action,
		Timestamp: t.Timestamp,
	}
	if t.Metadata != nil {
		raw, err := MarshalMetadata(t.Metadata)
		if err != nil {
			return nil, err
		}
		out.Metadata = raw
	}
	return json.Marshal(out)
}

func (t *XPTransaction) UnmarshalJSON(data []byte) error {
	var in xpTransactionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	t.Amount = in.Amount
	t.Action = in.Action
	t.Timestamp = in.Timestamp
	t.Metadata = nil
	if len(in.Metadata) > 0 && string(in.Metadata) != "null" {
		meta, err := UnmarshalMetadata(in.Metadata)
		if err != nil {
			return err
		}
		t.Metadata = meta
	}
	return nil
}

// DefaultProfile returns the zeroed aggregate persisted on lazy creation:
// no XP, level 1, empty badges/counters/history.
func DefaultProfile(userID uuid.UUID) *Profile {
	return &Profile{
		UserID:         userID,
		XP:             0,
		Level:          1,
		Badges:         []BadgeAward{},
		Streaks:        Streaks{},
		ActivityCounts: map[string]int64{},
		XPHistory:      []XPTransaction{},
	}
}

// Clone deep-copies the profile so candidate states never alias stored ones.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := &Profile{
		UserID:  p.UserID,
		XP:      p.XP,
		Level:   p.Level,
		Streaks: p.Streaks,
	}
	if p.Streaks.LastLoginDate != nil {
		d := *p.Streaks.LastLoginDate
		out.Streaks.LastLoginDate = &d
	}
	if p.Badges != nil {
		out.Badges = make([]BadgeAward, len(p.Badges))
		copy(out.Badges, p.Badges)
	}
	if p.ActivityCounts != nil {
		out.ActivityCounts = make(map[string]int64, len(p.ActivityCounts))
		for k, v := range p.ActivityCounts {
			out.ActivityCounts[k] = v
		}
	}
	if p.XPHistory != nil {
		out.XPHistory = make([]XPTransaction, len(p.XPHistory))
		copy(out.XPHistory, p.XPHistory)
	}
	return out
}

// HasBadge reports whether the profile already holds an award with the id.
func (p *Profile) HasBadge(id string) bool {
	for _, b := range p.Badges {
		if b.ID == id {
			return true
		}
	}
	return false
}

// HistorySum totals all history amounts.
func (p *Profile) HistorySum() int64 {
	var sum int64
	for _, tx := range p.XPHistory {
		sum += tx.Amount
	}
	return sum
}
