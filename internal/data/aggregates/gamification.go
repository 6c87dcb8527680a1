package aggregates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

// UserDirectory reports whether a user id is known to the main app. A nil
// directory disables the check and every id is presumed valid.
type UserDirectory interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
}

type GamificationAggregateDeps struct {
	Base BaseDeps

	Profiles  repos.ProfileStore
	Backups   repos.BackupStore
	Audit     repos.AuditSink
	Directory UserDirectory

	Catalog *types.Catalog

	// Gate is the per-user fast-fail exclusive section shared by AwardXP
	// and UpdateLoginStreak. Instance-scoped; correctness comes from the
	// storage CAS, the gate only sheds doomed writes early.
	Gate *InflightGate

	Clock       func() time.Time
	ReadRetries int
	ReadBackoff time.Duration
}

type gamificationAggregate struct {
	deps GamificationAggregateDeps
}

func NewGamificationAggregate(deps GamificationAggregateDeps) domainagg.GamificationAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.Gate == nil {
		deps.Gate = NewInflightGate()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Catalog == nil {
		deps.Catalog = types.CurrentCatalog(deps.Base.Log)
	}
	if deps.ReadRetries <= 0 {
		deps.ReadRetries = 3
	}
	if deps.ReadBackoff <= 0 {
		deps.ReadBackoff = 50 * time.Millisecond
	}
	return &gamificationAggregate{deps: deps}
}

func (a *gamificationAggregate) Contract() domainagg.Contract {
	return domainagg.GamificationAggregateContract
}

func (a *gamificationAggregate) AwardXP(ctx context.Context, in domainagg.AwardXPInput) (domainagg.AwardXPResult, error) {
	const op = "Gamification.Profile.AwardXP"
	var out domainagg.AwardXPResult
	if in.UserID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing user_id", nil)
	}
	if strings.TrimSpace(string(in.Action)) == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing action", nil)
	}
	if in.Metadata != nil && in.Metadata.MetadataKind() != string(in.Action) {
		return out, domainagg.NewError(domainagg.CodeValidation, op,
			fmt.Sprintf("metadata kind %q does not match action %q", in.Metadata.MetadataKind(), in.Action), nil)
	}
	if a.deps.Profiles == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "profile store not configured", nil)
	}

	err := executeOperation(ctx, a.deps.Base, op, func(ctx context.Context) error {
		if !a.deps.Gate.TryAcquire(in.UserID) {
			return BusyError("another write is in flight for this user")
		}
		defer a.deps.Gate.Release(in.UserID)

		if err := a.checkDirectory(ctx, op, in.UserID); err != nil {
			return err
		}
		current, err := a.safeRead(ctx, op, in.UserID)
		if err != nil {
			return err
		}

		amount, err := a.deps.Catalog.XPForAction(in.Action)
		if err != nil {
			return err
		}
		if amount <= 0 {
			// Tracked-but-unrewarded actions award nothing and mutate nothing.
			out = domainagg.AwardXPResult{TotalXP: current.XP}
			return nil
		}

		now := a.deps.Clock().UTC()
		candidate := current.Clone()
		candidate.XP += amount
		if cfg, ok := a.deps.Catalog.Action(in.Action); ok && cfg.Counter != "" {
			candidate.ActivityCounts[cfg.Counter]++
		}
		candidate.XPHistory = append(candidate.XPHistory, types.XPTransaction{
			Amount:    amount,
			Action:    in.Action,
			Timestamp: now,
			Metadata:  in.Metadata,
		})
		candidate.Level = a.deps.Catalog.LevelForXP(candidate.XP)

		earned := make([]types.BadgeAward, 0, 2)
		for _, def := range a.newlyEarnedBadges(candidate) {
			award := def.Award(now)
			candidate.Badges = append(candidate.Badges, award)
			earned = append(earned, award)
		}

		ok, err := a.deps.Profiles.UpdateIfMatch(ctx, in.UserID,
			repos.ExpectedFields{XP: current.XP, Level: current.Level}, candidate)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "profile changed while awarding xp"); err != nil {
			return err
		}

		out = domainagg.AwardXPResult{
			XPAwarded:    amount,
			TotalXP:      candidate.XP,
			LevelUp:      candidate.Level > current.Level,
			BadgesEarned: earned,
		}
		if out.LevelUp {
			lvl := candidate.Level
			out.NewLevel = &lvl
		}
		return nil
	})
	return out, err
}

func (a *gamificationAggregate) UpdateLoginStreak(ctx context.Context, in domainagg.UpdateLoginStreakInput) (*domainagg.LoginStreakResult, error) {
	const op = "Gamification.Profile.UpdateLoginStreak"
	if in.UserID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing user_id", nil)
	}
	if a.deps.Profiles == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "profile store not configured", nil)
	}

	var out *domainagg.LoginStreakResult
	err := executeOperation(ctx, a.deps.Base, op, func(ctx context.Context) error {
		if !a.deps.Gate.TryAcquire(in.UserID) {
			return BusyError("another write is in flight for this user")
		}
		defer a.deps.Gate.Release(in.UserID)

		if err := a.checkDirectory(ctx, op, in.UserID); err != nil {
			return err
		}
		current, err := a.safeRead(ctx, op, in.UserID)
		if err != nil {
			return err
		}

		now := a.deps.Clock().UTC()
		candidate := current.Clone()
		if last := current.Streaks.LastLoginDate; last == nil {
			candidate.Streaks.CurrentLoginStreak = 1
		} else {
			switch delta := calendarDaysBetween(*last, now); {
			case delta <= 0:
				// Already counted today.
				return nil
			case delta == 1:
				candidate.Streaks.CurrentLoginStreak++
				if candidate.Streaks.CurrentLoginStreak > candidate.Streaks.LongestLoginStreak {
					candidate.Streaks.LongestLoginStreak = candidate.Streaks.CurrentLoginStreak
				}
			default:
				candidate.Streaks.CurrentLoginStreak = 1
			}
		}
		loginAt := now
		candidate.Streaks.LastLoginDate = &loginAt

		var bonus int64
		if a.deps.Catalog.IsStreakMilestone(candidate.Streaks.CurrentLoginStreak) {
			bonus = a.deps.Catalog.StreakBonusXP()
		}
		if bonus > 0 {
			candidate.XP += bonus
			if cfg, ok := a.deps.Catalog.Action(types.ActionStreakMilestone); ok && cfg.Counter != "" {
				candidate.ActivityCounts[cfg.Counter]++
			}
			candidate.XPHistory = append(candidate.XPHistory, types.XPTransaction{
				Amount:    bonus,
				Action:    types.ActionStreakMilestone,
				Timestamp: now,
				Metadata:  types.StreakMilestoneMetadata{StreakDays: candidate.Streaks.CurrentLoginStreak},
			})
			candidate.Level = a.deps.Catalog.LevelForXP(candidate.XP)
		}

		ok, err := a.deps.Profiles.UpdateIfMatch(ctx, in.UserID,
			repos.ExpectedFields{XP: current.XP, Level: current.Level}, candidate)
		if err != nil {
			return err
		}
		if err := RequireCASSuccess(ok, "profile changed while updating login streak"); err != nil {
			return err
		}

		if bonus > 0 {
			out = &domainagg.LoginStreakResult{XPAwarded: bonus}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *gamificationAggregate) GetProfileSafe(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	const op = "Gamification.Profile.GetProfileSafe"
	if userID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing user_id", nil)
	}
	if a.deps.Profiles == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "profile store not configured", nil)
	}

	var out *types.Profile
	err := executeOperation(ctx, a.deps.Base, op, func(ctx context.Context) error {
		p, err := a.safeRead(ctx, op, userID)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *gamificationAggregate) BadgeProgress(ctx context.Context, userID uuid.UUID) ([]types.BadgeProgress, error) {
	const op = "Gamification.Profile.BadgeProgress"
	if userID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing user_id", nil)
	}
	if a.deps.Profiles == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "profile store not configured", nil)
	}

	var out []types.BadgeProgress
	err := executeOperation(ctx, a.deps.Base, op, func(ctx context.Context) error {
		p, err := a.safeRead(ctx, op, userID)
		if err != nil {
			return err
		}
		progress, err := a.deps.Catalog.BadgeProgressAll(p)
		if err != nil {
			return err
		}
		out = progress
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *gamificationAggregate) ResolveConflicts(ctx context.Context, in domainagg.ResolveConflictsInput) (*types.Profile, error) {
	const op = "Gamification.Profile.ResolveConflicts"
	if in.Local == nil && in.Remote == nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "both profiles are nil", nil)
	}
	if in.Local != nil && in.Remote != nil &&
		in.Local.UserID != uuid.Nil && in.Remote.UserID != uuid.Nil &&
		in.Local.UserID != in.Remote.UserID {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "profiles belong to different users", nil)
	}

	var out *types.Profile
	err := executeOperation(ctx, a.deps.Base, op, func(ctx context.Context) error {
		out = types.Resolve(in.Local, in.Remote, a.deps.Catalog)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// newlyEarnedBadges asks the rule engine what the candidate just earned.
// Engine failures, panics included, must not block the XP commit: they are
// logged and the award proceeds badge-less.
func (a *gamificationAggregate) newlyEarnedBadges(candidate *types.Profile) (defs []types.BadgeDefinition) {
	defer func() {
		if r := recover(); r != nil {
			a.deps.Base.Log.Error("badge evaluation panicked; awarding xp without badges",
				"user_id", candidate.UserID.String(), "panic", fmt.Sprint(r))
			defs = nil
		}
	}()
	defs, err := a.deps.Catalog.CheckAndAward(candidate)
	if err != nil {
		a.deps.Base.Log.Error("badge evaluation failed; awarding xp without badges",
			"user_id", candidate.UserID.String(), "error", err)
		return nil
	}
	return defs
}

// checkDirectory enforces user existence when a directory client is wired.
// Directory outages are logged and waved through; gamification writes do
// not fail because the main app is briefly unreachable.
func (a *gamificationAggregate) checkDirectory(ctx context.Context, op string, userID uuid.UUID) error {
	if a.deps.Directory == nil {
		return nil
	}
	exists, err := a.deps.Directory.Exists(ctx, userID)
	if err != nil {
		a.deps.Base.Log.Warn("user directory check failed (continuing)",
			"user_id", userID.String(), "error", err)
		return nil
	}
	if !exists {
		return domainagg.NewError(domainagg.CodeNotFound, op,
			fmt.Sprintf("user not found: %s", userID.String()), nil)
	}
	return nil
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// calendarDaysBetween counts whole UTC calendar days from one instant's
// day to another's. Wall-clock hours are irrelevant: 23:59 to 00:01 the
// next day is one day.
func calendarDaysBetween(from, to time.Time) int {
	return int(utcDay(to).Sub(utcDay(from)) / (24 * time.Hour))
}
