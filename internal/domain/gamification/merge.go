package gamification

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// Resolve merges two divergent copies of one user's profile monotonically:
// nothing earned on either side is ever lost, and no counter moves backward.
// The merge is commutative and idempotent; level is always recomputed from
// the merged XP.
func Resolve(local, remote *Profile, c *Catalog) *Profile {
	if local == nil && remote == nil {
		return nil
	}
	if local == nil {
		return remote.Clone()
	}
	if remote == nil {
		return local.Clone()
	}

	userID := local.UserID
	if userID == uuid.Nil {
		userID = remote.UserID
	}
	merged := &Profile{
		UserID: userID,
		XP:     maxInt64(local.XP, remote.XP),
	}
	merged.Level = c.LevelForXP(merged.XP)
	merged.Badges = mergeBadges(local.Badges, remote.Badges, c)
	merged.Streaks = mergeStreaks(local.Streaks, remote.Streaks)
	merged.ActivityCounts = mergeCounts(local.ActivityCounts, remote.ActivityCounts)
	merged.XPHistory = mergeHistory(local.XPHistory, remote.XPHistory)
	return merged
}

func mergeBadges(local, remote []BadgeAward, c *Catalog) []BadgeAward {
	byID := make(map[string]BadgeAward, len(local)+len(remote))
	for _, b := range local {
		byID[b.ID] = b
	}
	for _, b := range remote {
		existing, ok := byID[b.ID]
		if !ok {
			byID[b.ID] = b
			continue
		}
		byID[b.ID] = pickEarlierAward(existing, b)
	}
	out := make([]BadgeAward, 0, len(byID))
	for _, b := range byID {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EarnedAt.Equal(out[j].EarnedAt) {
			return out[i].EarnedAt.Before(out[j].EarnedAt)
		}
		pi, pj := c.badgePosition(out[i].ID), c.badgePosition(out[j].ID)
		if pi != pj {
			return pi < pj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// pickEarlierAward keeps the award earned first; full ties resolve on field
// content so the merge stays commutative even for divergent award copies.
func pickEarlierAward(a, b BadgeAward) BadgeAward {
	switch {
	case a.EarnedAt.Before(b.EarnedAt):
		return a
	case b.EarnedAt.Before(a.EarnedAt):
		return b
	}
	if a.Name != b.Name {
		if a.Name < b.Name {
			return a
		}
		return b
	}
	if a.Description != b.Description {
		if a.Description < b.Description {
			return a
		}
		return b
	}
	if a.Category <= b.Category {
		return a
	}
	return b
}

func mergeStreaks(local, remote Streaks) Streaks {
	out := Streaks{
		CurrentLoginStreak: maxInt(local.CurrentLoginStreak, remote.CurrentLoginStreak),
		LongestLoginStreak: maxInt(local.LongestLoginStreak, remote.LongestLoginStreak),
	}
	switch {
	case local.LastLoginDate == nil && remote.LastLoginDate == nil:
	case local.LastLoginDate == nil:
		d := *remote.LastLoginDate
		out.LastLoginDate = &d
	case remote.LastLoginDate == nil:
		d := *local.LastLoginDate
		out.LastLoginDate = &d
	default:
		d := *local.LastLoginDate
		if remote.LastLoginDate.After(d) {
			d = *remote.LastLoginDate
		}
		out.LastLoginDate = &d
	}
	return out
}

func mergeCounts(local, remote map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(local)+len(remote))
	for k, v := range local {
		out[k] = v
	}
	for k, v := range remote {
		if cur, ok := out[k]; !ok || v > cur {
			out[k] = v
		}
	}
	return out
}

type historyKey struct {
	action ActionType
	ts     int64
	amount int64
}

func mergeHistory(local, remote []XPTransaction) []XPTransaction {
	byKey := make(map[historyKey]XPTransaction, len(local)+len(remote))
	order := make([]historyKey, 0, len(local)+len(remote))
	add := func(tx XPTransaction) {
		key := historyKey{action: tx.Action, ts: tx.Timestamp.UTC().UnixNano(), amount: tx.Amount}
		existing, ok := byKey[key]
		if !ok {
			byKey[key] = tx
			order = append(order, key)
			return
		}
		byKey[key] = pickRicherTransaction(existing, tx)
	}
	for _, tx := range local {
		add(tx)
	}
	for _, tx := range remote {
		add(tx)
	}
	out := make([]XPTransaction, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		if out[i].Action != out[j].Action {
			return out[i].Action < out[j].Action
		}
		return out[i].Amount < out[j].Amount
	})
	return out
}

// pickRicherTransaction resolves duplicate history keys whose metadata
// diverged: prefer the entry that carries metadata, then the one whose
// serialized form sorts first. Deterministic regardless of argument order.
func pickRicherTransaction(a, b XPTransaction) XPTransaction {
	if a.Metadata == nil && b.Metadata != nil {
		return b
	}
	if b.Metadata == nil {
		return a
	}
	rawA, errA := MarshalMetadata(a.Metadata)
	rawB, errB := MarshalMetadata(b.Metadata)
	if errA != nil || errB != nil {
		return a
	}
	if bytes.Compare(rawA, rawB) <= 0 {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
