package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/appquest/appquest-backend/internal/app"
	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/platform/gcs"
	"github.com/appquest/appquest-backend/internal/services"
)

const sweepCommandTimeout = 10 * time.Minute

func runResolve(cmd *cobra.Command, args []string) {
	withApp(defaultCommandTimeout, func(ctx context.Context, a *app.App) error {
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		remote, err := readProfileFile(resolveRemoteFile)
		if err != nil {
			return err
		}

		var local *types.Profile
		if resolveLocalFile != "" {
			local, err = readProfileFile(resolveLocalFile)
		} else {
			local, err = a.Aggregate.GetProfileSafe(ctx, userID)
		}
		if err != nil {
			return err
		}

		merged, err := a.Aggregate.ResolveConflicts(ctx, domainagg.ResolveConflictsInput{
			Local:  local,
			Remote: remote,
		})
		if err != nil {
			return err
		}

		if resolveApply {
			if err := a.Profiles.Overwrite(ctx, merged); err != nil {
				return fmt.Errorf("persist merged profile: %w", err)
			}
		}

		if outputJSON {
			return printJSON(merged)
		}
		fmt.Printf("Merged profile: XP %d, level %d, %d badges, streak %d/%d\n",
			merged.XP, merged.Level, len(merged.Badges),
			merged.Streaks.CurrentLoginStreak, merged.Streaks.LongestLoginStreak)
		if resolveApply {
			fmt.Println("Merged profile persisted")
		} else {
			fmt.Println("Dry run only; re-run with --apply to persist")
		}
		return nil
	})
}

func readProfileFile(path string) (*types.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p types.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &p, nil
}

func runSweep(cmd *cobra.Command, args []string) {
	withApp(sweepCommandTimeout, func(ctx context.Context, a *app.App) error {
		res, err := a.Aggregate.SweepProfiles(ctx, domainagg.SweepProfilesInput{
			Concurrency: sweepConcurrency,
		})
		if err != nil {
			return err
		}
		if outputJSON {
			if err := printJSON(res); err != nil {
				return err
			}
		} else {
			fmt.Printf("Sweep finished: scanned=%d healed=%d failed=%d\n",
				res.Scanned, res.Healed, res.Failed)
		}
		if res.Failed > 0 {
			return fmt.Errorf("%d profiles failed to read", res.Failed)
		}
		return nil
	})
}

func runIcons(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultCommandTimeout)
	defer cancel()

	log, err := newCLILogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	catalog := types.CurrentCatalog(log)

	var bucket *gcs.IconBucket
	if strings.TrimSpace(os.Getenv("BADGE_ICON_GCS_BUCKET_NAME")) != "" {
		cfg, err := gcs.ResolveConfigFromEnv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		client, err := gcs.NewClientWithConfig(ctx, log, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer client.Close()
		bucket, err = gcs.NewIconBucket(log, client, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	svc, err := services.NewBadgeIconService(log, catalog, bucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	artifacts, err := svc.PublishAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if outputJSON {
		if err := printJSON(artifacts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	for _, art := range artifacts {
		fmt.Printf("%-24s %s\n", art.BadgeID, art.Location)
	}
}
