package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appquest/appquest-backend/internal/app"
	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

func runShow(cmd *cobra.Command, args []string) {
	withApp(defaultCommandTimeout, func(ctx context.Context, a *app.App) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		profile, err := a.Aggregate.GetProfileSafe(ctx, userID)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(profile)
		}
		printProfile(a, profile)
		return nil
	})
}

func printProfile(a *app.App, p *types.Profile) {
	fmt.Printf("User        %s\n", p.UserID)
	fmt.Printf("XP          %d (level %d", p.XP, p.Level)
	if toNext := a.Catalog.XPToNextLevel(p.XP); toNext > 0 {
		fmt.Printf(", %d to next", toNext)
	} else {
		fmt.Printf(", max level")
	}
	fmt.Println(")")
	fmt.Printf("Streak      %d current / %d longest\n",
		p.Streaks.CurrentLoginStreak, p.Streaks.LongestLoginStreak)
	if p.Streaks.LastLoginDate != nil {
		fmt.Printf("Last login  %s\n", p.Streaks.LastLoginDate.Format("2006-01-02"))
	}

	if len(p.ActivityCounts) > 0 {
		fmt.Println("Activity")
		names := make([]string, 0, len(p.ActivityCounts))
		for name := range p.ActivityCounts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-24s %d\n", name, p.ActivityCounts[name])
		}
	}

	fmt.Printf("Badges      %d of %d\n", len(p.Badges), len(a.Catalog.Badges()))
	for _, b := range p.Badges {
		fmt.Printf("  %-24s %s (earned %s)\n", b.ID, b.Name, b.EarnedAt.Format("2006-01-02"))
	}
	fmt.Printf("History     %d transactions\n", len(p.XPHistory))
}

func runAward(cmd *cobra.Command, args []string) {
	withApp(defaultCommandTimeout, func(ctx context.Context, a *app.App) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		action := types.ActionType(args[1])
		if _, ok := a.Catalog.Action(action); !ok {
			return fmt.Errorf("unknown action %q (known: %s)", args[1], knownActions(a.Catalog))
		}

		var meta types.Metadata
		if strings.TrimSpace(awardMetaJSON) != "" {
			meta, err = types.UnmarshalMetadata(json.RawMessage(awardMetaJSON))
			if err != nil {
				return fmt.Errorf("parse --meta: %w", err)
			}
		}

		res, err := a.Aggregate.AwardXP(ctx, domainagg.AwardXPInput{
			UserID:   userID,
			Action:   action,
			Metadata: meta,
		})
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(res)
		}

		fmt.Printf("Awarded %d XP for %s (total %d)\n", res.XPAwarded, action, res.TotalXP)
		if res.LevelUp && res.NewLevel != nil {
			fmt.Printf("Level up: now level %d\n", *res.NewLevel)
		}
		for _, b := range res.BadgesEarned {
			fmt.Printf("Badge earned: %s (%s)\n", b.Name, b.ID)
		}
		return nil
	})
}

func knownActions(c *types.Catalog) string {
	actions := c.Actions()
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		names = append(names, string(a.Type))
	}
	return strings.Join(names, ", ")
}

func runStreak(cmd *cobra.Command, args []string) {
	withApp(defaultCommandTimeout, func(ctx context.Context, a *app.App) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		res, err := a.Aggregate.UpdateLoginStreak(ctx, domainagg.UpdateLoginStreakInput{UserID: userID})
		if err != nil {
			return err
		}
		profile, err := a.Aggregate.GetProfileSafe(ctx, userID)
		if err != nil {
			return err
		}

		if outputJSON {
			out := struct {
				XPAwarded     int64 `json:"xpAwarded"`
				CurrentStreak int   `json:"currentStreak"`
				LongestStreak int   `json:"longestStreak"`
			}{
				CurrentStreak: profile.Streaks.CurrentLoginStreak,
				LongestStreak: profile.Streaks.LongestLoginStreak,
			}
			if res != nil {
				out.XPAwarded = res.XPAwarded
			}
			return printJSON(out)
		}

		fmt.Printf("Login streak: %d current / %d longest\n",
			profile.Streaks.CurrentLoginStreak, profile.Streaks.LongestLoginStreak)
		if res != nil {
			fmt.Printf("Milestone bonus: %d XP\n", res.XPAwarded)
		}
		return nil
	})
}

func runProgress(cmd *cobra.Command, args []string) {
	withApp(defaultCommandTimeout, func(ctx context.Context, a *app.App) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		list, err := a.Aggregate.BadgeProgress(ctx, userID)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(list)
		}

		fmt.Printf("%-24s %-12s %-12s %s\n", "BADGE", "CATEGORY", "PROGRESS", "EARNED")
		for _, bp := range list {
			earned := "no"
			if bp.Earned {
				earned = "yes"
			}
			fmt.Printf("%-24s %-12s %-12s %s\n",
				bp.Badge.ID, bp.Badge.Category,
				fmt.Sprintf("%d/%d", bp.Progress, bp.Target), earned)
		}
		return nil
	})
}

func runTop(cmd *cobra.Command, args []string) {
	withApp(defaultCommandTimeout, func(ctx context.Context, a *app.App) error {
		ids, err := a.Profiles.ListUserIDs(ctx)
		if err != nil {
			return err
		}

		profiles := make([]*types.Profile, 0, len(ids))
		unreadable := 0
		for _, id := range ids {
			p, err := a.Aggregate.GetProfileSafe(ctx, id)
			if err != nil {
				unreadable++
				continue
			}
			profiles = append(profiles, p)
		}
		sort.Slice(profiles, func(i, j int) bool {
			if profiles[i].XP != profiles[j].XP {
				return profiles[i].XP > profiles[j].XP
			}
			return profiles[i].UserID.String() < profiles[j].UserID.String()
		})
		if topLimit > 0 && len(profiles) > topLimit {
			profiles = profiles[:topLimit]
		}

		if outputJSON {
			return printJSON(profiles)
		}

		fmt.Printf("%-5s %-38s %-8s %-10s %s\n", "RANK", "USER", "LEVEL", "XP", "BADGES")
		for i, p := range profiles {
			fmt.Printf("%-5d %-38s %-8d %-10d %d\n",
				i+1, p.UserID, p.Level, p.XP, len(p.Badges))
		}
		if unreadable > 0 {
			fmt.Printf("(%d profiles could not be read)\n", unreadable)
		}
		return nil
	})
}

func runCatalog(cmd *cobra.Command, args []string) {
	withApp(defaultCommandTimeout, func(ctx context.Context, a *app.App) error {
		c := a.Catalog

		if outputJSON {
			out := struct {
				LevelThresholds []int64                 `json:"levelThresholds"`
				Actions         []types.ActionConfig    `json:"actions"`
				Streak          types.StreakConfig      `json:"streak"`
				Badges          []types.BadgeDefinition `json:"badges"`
			}{c.LevelThresholds(), c.Actions(), c.Streak(), c.Badges()}
			return printJSON(out)
		}

		fmt.Println("Actions")
		for _, ac := range c.Actions() {
			fmt.Printf("  %-20s %4d XP  counter=%s\n", ac.Type, ac.XP, ac.Counter)
		}

		fmt.Println("Levels")
		for i, threshold := range c.LevelThresholds() {
			fmt.Printf("  level %-3d from %d XP\n", i+1, threshold)
		}

		streak := c.Streak()
		fmt.Printf("Streak      milestone every %d days, bonus action %s (%d XP)\n",
			streak.MilestoneEvery, streak.BonusAction, c.StreakBonusXP())

		fmt.Printf("Badges      %d\n", len(c.Badges()))
		for _, b := range c.Badges() {
			fmt.Printf("  %-24s %-12s %s\n", b.ID, b.Category, b.Name)
		}
		return nil
	})
}
