package main

import (
	"github.com/spf13/cobra"
)

var (
	outputJSON bool

	awardMetaJSON string

	restoreVersion int
	verifyVersion  int

	resolveLocalFile  string
	resolveRemoteFile string
	resolveApply      bool

	sweepConcurrency int
	topLimit         int

	rootCmd = &cobra.Command{
		Use:   "gamifyctl",
		Short: "Operate the gamification persistence engine",
		Long: `gamifyctl runs engine operations directly against the configured
profile store (GAMIFICATION_STORE) without going through the product.
It boots the same wiring as the daemon, acts once, and shuts down.`,
	}

	showCmd = &cobra.Command{
		Use:   "show [user-id]",
		Short: "Print a user's gamification profile",
		Args:  cobra.ExactArgs(1),
		Run:   runShow, // Defined in cmd_profile.go
	}

	awardCmd = &cobra.Command{
		Use:   "award [user-id] [action]",
		Short: "Award XP for one action, with level and badge effects",
		Args:  cobra.ExactArgs(2),
		Run:   runAward, // Defined in cmd_profile.go
	}

	streakCmd = &cobra.Command{
		Use:   "streak [user-id]",
		Short: "Record a daily login and advance the streak",
		Args:  cobra.ExactArgs(1),
		Run:   runStreak, // Defined in cmd_profile.go
	}

	progressCmd = &cobra.Command{
		Use:   "progress [user-id]",
		Short: "Show per-badge progress toward every catalog badge",
		Args:  cobra.ExactArgs(1),
		Run:   runProgress, // Defined in cmd_profile.go
	}

	topCmd = &cobra.Command{
		Use:   "top",
		Short: "Rank known profiles by XP",
		Run:   runTop, // Defined in cmd_profile.go
	}

	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "Print the active catalog: actions, levels, badges, streak policy",
		Run:   runCatalog, // Defined in cmd_profile.go
	}

	backupCmd = &cobra.Command{
		Use:   "backup [user-id]",
		Short: "Snapshot a user's profile into the backup store",
		Args:  cobra.ExactArgs(1),
		Run:   runBackup, // Defined in cmd_backup.go
	}

	restoreCmd = &cobra.Command{
		Use:   "restore [user-id]",
		Short: "Overwrite a user's profile from a verified backup",
		Args:  cobra.ExactArgs(1),
		Run:   runRestore, // Defined in cmd_backup.go
	}

	verifyBackupCmd = &cobra.Command{
		Use:   "verify-backup [user-id]",
		Short: "Check a backup's checksum and invariants without writing",
		Args:  cobra.ExactArgs(1),
		Run:   runVerifyBackup, // Defined in cmd_backup.go
	}

	resolveCmd = &cobra.Command{
		Use:   "resolve [user-id]",
		Short: "Merge two divergent copies of a profile monotonically",
		Long: `Merges the stored profile (or --local-file) with a profile exported
as JSON in --remote-file. The merged result is printed; nothing is
written unless --apply is set.`,
		Args: cobra.ExactArgs(1),
		Run:  runResolve, // Defined in cmd_admin.go
	}

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run one integrity sweep across all known profiles",
		Run:   runSweep, // Defined in cmd_admin.go
	}

	iconsCmd = &cobra.Command{
		Use:   "icons",
		Short: "Render badge icons for the catalog (and upload when a bucket is set)",
		Run:   runIcons, // Defined in cmd_admin.go
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON for scripting")

	rootCmd.AddCommand(showCmd)

	rootCmd.AddCommand(awardCmd)
	awardCmd.Flags().StringVar(&awardMetaJSON, "meta", "",
		`Kind-tagged metadata envelope, e.g. '{"kind":"quest_completed","questId":"...","questName":"..."}'`)

	rootCmd.AddCommand(streakCmd)
	rootCmd.AddCommand(progressCmd)

	rootCmd.AddCommand(topCmd)
	topCmd.Flags().IntVar(&topLimit, "limit", 10, "Number of profiles to show")

	rootCmd.AddCommand(catalogCmd)

	rootCmd.AddCommand(backupCmd)

	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().IntVar(&restoreVersion, "version", 0, "Backup version to restore (default: latest)")

	rootCmd.AddCommand(verifyBackupCmd)
	verifyBackupCmd.Flags().IntVar(&verifyVersion, "version", 0, "Backup version to verify (default: latest)")

	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveRemoteFile, "remote-file", "", "Path to the remote profile JSON (required)")
	resolveCmd.Flags().StringVar(&resolveLocalFile, "local-file", "", "Path to the local profile JSON (default: read from the store)")
	resolveCmd.Flags().BoolVar(&resolveApply, "apply", false, "Persist the merged profile")
	_ = resolveCmd.MarkFlagRequired("remote-file")

	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().IntVar(&sweepConcurrency, "concurrency", 4, "Parallel reads during the sweep")

	rootCmd.AddCommand(iconsCmd)
}
