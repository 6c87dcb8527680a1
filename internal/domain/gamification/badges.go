package gamification

import (
	"fmt"
	"time"
)

// Requirement is a closed badge requirement variant. A badge is earned when
// every one of its requirements holds.
type Requirement interface {
	requirement()
}

// XPRequirement holds when lifetime XP reaches the threshold.
type XPRequirement struct {
	Threshold int64
}

// ActivityCountRequirement holds when a named activity counter reaches the
// threshold.
type ActivityCountRequirement struct {
	Field     string
	Threshold int64
}

// StreakRequirement holds when the best login streak (current or longest)
// reaches the threshold.
type StreakRequirement struct {
	Threshold int
}

func (XPRequirement) requirement()            {}
func (ActivityCountRequirement) requirement() {}
func (StreakRequirement) requirement()        {}

// BadgeDefinition is one static catalog badge.
type BadgeDefinition struct {
	ID           string
	Name         string
	Description  string
	Category     string
	Requirements []Requirement
}

// Award stamps a definition into a profile-held award.
func (d BadgeDefinition) Award(earnedAt time.Time) BadgeAward {
	return BadgeAward{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Category:    d.Category,
		EarnedAt:    earnedAt,
	}
}

// BadgeProgress reports how far a profile is toward one catalog badge.
type BadgeProgress struct {
	Badge    BadgeDefinition `json:"badge"`
	Progress int64           `json:"progress"`
	Target   int64           `json:"target"`
	Earned   bool            `json:"earned"`
}

// EvaluateRequirement checks a single requirement against a profile.
// The variant set is closed; anything else is a catalog bug.
func EvaluateRequirement(req Requirement, p *Profile) (bool, error) {
	measured, target, err := requirementMeasure(req, p)
	if err != nil {
		return false, err
	}
	return measured >= target, nil
}

func requirementMeasure(req Requirement, p *Profile) (measured, target int64, err error) {
	switch r := req.(type) {
	case XPRequirement:
		return p.XP, r.Threshold, nil
	case ActivityCountRequirement:
		return p.ActivityCounts[r.Field], r.Threshold, nil
	case StreakRequirement:
		best := p.Streaks.CurrentLoginStreak
		if p.Streaks.LongestLoginStreak > best {
			best = p.Streaks.LongestLoginStreak
		}
		return int64(best), int64(r.Threshold), nil
	default:
		return 0, 0, fmt.Errorf("unsupported requirement type %T", req)
	}
}

// CheckAndAward returns the catalog badges newly earned by the profile state,
// in catalog order. Badges already on the profile are skipped. The profile is
// never mutated here; callers stamp and append awards.
func (c *Catalog) CheckAndAward(p *Profile) ([]BadgeDefinition, error) {
	var earned []BadgeDefinition
	for _, def := range c.badges {
		if p.HasBadge(def.ID) {
			continue
		}
		all := true
		for _, req := range def.Requirements {
			ok, err := EvaluateRequirement(req, p)
			if err != nil {
				return nil, fmt.Errorf("badge %s: %w", def.ID, err)
			}
			if !ok {
				all = false
				break
			}
		}
		if all {
			earned = append(earned, def)
		}
	}
	return earned, nil
}

// BadgeProgressAll reports progress toward every catalog badge. For
// multi-requirement badges the least-satisfied requirement drives the
// progress/target pair; progress is capped at target.
func (c *Catalog) BadgeProgressAll(p *Profile) ([]BadgeProgress, error) {
	out := make([]BadgeProgress, 0, len(c.badges))
	for _, def := range c.badges {
		progress, target := int64(0), int64(0)
		worst := -1.0
		for _, req := range def.Requirements {
			measured, reqTarget, err := requirementMeasure(req, p)
			if err != nil {
				return nil, fmt.Errorf("badge %s: %w", def.ID, err)
			}
			ratio := float64(measured) / float64(reqTarget)
			if worst < 0 || ratio < worst {
				worst = ratio
				progress, target = measured, reqTarget
			}
		}
		if progress > target {
			progress = target
		}
		if progress < 0 {
			progress = 0
		}
		out = append(out, BadgeProgress{
			Badge:    def,
			Progress: progress,
			Target:   target,
			Earned:   p.HasBadge(def.ID),
		})
	}
	return out, nil
}
