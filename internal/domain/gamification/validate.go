package gamification

import "fmt"

// Validate checks every aggregate invariant and returns the full list of
// violations, one message per broken invariant. An empty slice means the
// profile is valid.
func Validate(p *Profile, c *Catalog) []string {
	if p == nil {
		return []string{"profile is nil"}
	}
	var violations []string
	if p.XP < 0 {
		violations = append(violations, fmt.Sprintf("xp is negative (%d)", p.XP))
	}
	if want := c.LevelForXP(p.XP); p.Level != want {
		violations = append(violations, fmt.Sprintf("level %d does not match xp %d (want %d)", p.Level, p.XP, want))
	}
	for field, count := range p.ActivityCounts {
		if count < 0 {
			violations = append(violations, fmt.Sprintf("activity counter %q is negative (%d)", field, count))
		}
	}
	seen := make(map[string]bool, len(p.Badges))
	for _, b := range p.Badges {
		if seen[b.ID] {
			violations = append(violations, fmt.Sprintf("duplicate badge id %q", b.ID))
			continue
		}
		seen[b.ID] = true
	}
	for i := 1; i < len(p.XPHistory); i++ {
		if p.XPHistory[i].Timestamp.Before(p.XPHistory[i-1].Timestamp) {
			violations = append(violations, "xp history is not sorted by timestamp")
			break
		}
	}
	if sum := p.HistorySum(); sum != p.XP {
		violations = append(violations, fmt.Sprintf("xp history sum %d does not match xp %d", sum, p.XP))
	}
	if p.Streaks.CurrentLoginStreak < 0 {
		violations = append(violations, fmt.Sprintf("current login streak is negative (%d)", p.Streaks.CurrentLoginStreak))
	}
	if p.Streaks.LongestLoginStreak < 0 {
		violations = append(violations, fmt.Sprintf("longest login streak is negative (%d)", p.Streaks.LongestLoginStreak))
	}
	return violations
}
