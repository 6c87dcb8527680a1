package aggregates

import (
	"context"

	"github.com/google/uuid"

	"github.com/appquest/appquest-backend/internal/domain/gamification"
)

var GamificationAggregateContract = Contract{
	Name:             "Gamification.ProfileAggregate",
	WriteTxOwnership: WriteTxOwnedByAggregate,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Owns atomic XP/level/badge/streak consistency for per-user gamification profile writes.",
}

// GamificationAggregate owns gamification profile progression invariants.
//
// Write method failures should return *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeInvalidAction, CodeConflict, CodeBusy,
// CodeChecksumMismatch, CodeUnavailable, CodeInternal.
type GamificationAggregate interface {
	Aggregate

	// AwardXP atomically applies one action's XP, counter, history, level, and badge effects.
	// Concurrent awards for the same user fail fast with CodeBusy; a lost
	// compare-and-set race surfaces CodeConflict and is never retried internally.
	AwardXP(ctx context.Context, in AwardXPInput) (AwardXPResult, error)

	// UpdateLoginStreak advances the daily login streak and pays the milestone
	// bonus when the new streak lands on one. The result is nil when nothing
	// was awarded (same-day call or a plain non-milestone increment).
	UpdateLoginStreak(ctx context.Context, in UpdateLoginStreakInput) (*LoginStreakResult, error)

	// GetProfileSafe reads the profile, lazily creating defaults and replacing
	// invariant-violating state with an audited fresh default.
	GetProfileSafe(ctx context.Context, userID uuid.UUID) (*gamification.Profile, error)

	// BadgeProgress reports per-badge progress toward every catalog badge.
	BadgeProgress(ctx context.Context, userID uuid.UUID) ([]gamification.BadgeProgress, error)

	// CreateBackup snapshots a valid profile with a content checksum.
	// Returns nil (no error) when the user has no profile or the stored state is invalid.
	CreateBackup(ctx context.Context, userID uuid.UUID) (*gamification.Backup, error)

	// RecoverFromBackup verifies checksum + invariants, then unconditionally
	// overwrites the stored profile with the backup contents.
	RecoverFromBackup(ctx context.Context, in RecoverFromBackupInput) (*gamification.Profile, error)

	// ResolveConflicts merges two divergent copies of one user's profile
	// monotonically. Pure: nothing is persisted.
	ResolveConflicts(ctx context.Context, in ResolveConflictsInput) (*gamification.Profile, error)

	// SweepProfiles runs the safe read across all known profiles, healing
	// corrupt ones as a side effect.
	SweepProfiles(ctx context.Context, in SweepProfilesInput) (SweepProfilesResult, error)
}

type AwardXPInput struct {
	UserID   uuid.UUID
	Action   gamification.ActionType
	Metadata gamification.Metadata
}

type AwardXPResult struct {
	XPAwarded    int64
	TotalXP      int64
	LevelUp      bool
	NewLevel     *int
	BadgesEarned []gamification.BadgeAward
}

type UpdateLoginStreakInput struct {
	UserID uuid.UUID
}

type LoginStreakResult struct {
	XPAwarded int64
}

type RecoverFromBackupInput struct {
	UserID uuid.UUID
	Backup *gamification.Backup
}

type ResolveConflictsInput struct {
	Local  *gamification.Profile
	Remote *gamification.Profile
}

type SweepProfilesInput struct {
	Concurrency int
}

type SweepProfilesResult struct {
	Scanned int
	Healed  int
	Failed  int
}
