package aggregates

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

func (a *gamificationAggregate) CreateBackup(ctx context.Context, userID uuid.UUID) (*types.Backup, error) {
	const op = "Gamification.Profile.CreateBackup"
	if userID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing user_id", nil)
	}
	if a.deps.Profiles == nil || a.deps.Backups == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "backup stores not configured", nil)
	}

	var out *types.Backup
	err := executeOperation(ctx, a.deps.Base, op, func(ctx context.Context) error {
		p, err := a.deps.Profiles.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repos.ErrCorruptPayload) {
				a.deps.Base.Log.Warn("skipping backup of undecodable profile", "user_id", userID.String())
				return nil
			}
			return err
		}
		if p == nil {
			a.deps.Base.Log.Info("no profile to back up", "user_id", userID.String())
			return nil
		}
		if violations := types.Validate(p, a.deps.Catalog); len(violations) > 0 {
			// Snapshotting corrupt state would just preserve the corruption.
			a.deps.Base.Log.Warn("skipping backup of invalid profile",
				"user_id", userID.String(), "reasons", strings.Join(violations, "; "))
			return nil
		}

		version := 1
		latest, err := a.deps.Backups.Latest(ctx, userID)
		if err != nil {
			return err
		}
		if latest != nil {
			version = latest.Version + 1
		}

		b, err := types.NewBackup(p, version)
		if err != nil {
			return err
		}
		if err := a.deps.Backups.Save(ctx, b); err != nil {
			return err
		}
		a.deps.Base.Log.Info("profile backup created",
			"user_id", userID.String(), "version", version, "xp", p.XP)
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *gamificationAggregate) RecoverFromBackup(ctx context.Context, in domainagg.RecoverFromBackupInput) (*types.Profile, error) {
	const op = "Gamification.Profile.RecoverFromBackup"
	if in.UserID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing user_id", nil)
	}
	if in.Backup == nil || in.Backup.Data == nil {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "missing backup data", nil)
	}
	if in.Backup.UserID != uuid.Nil && in.Backup.UserID != in.UserID {
		return nil, domainagg.NewError(domainagg.CodeValidation, op, "backup belongs to a different user", nil)
	}
	if a.deps.Profiles == nil {
		return nil, domainagg.NewError(domainagg.CodeInternal, op, "profile store not configured", nil)
	}

	var out *types.Profile
	err := executeOperation(ctx, a.deps.Base, op, func(ctx context.Context) error {
		if err := in.Backup.VerifyChecksum(); err != nil {
			return err
		}
		restored := in.Backup.Data.Clone()
		if restored.UserID != uuid.Nil && restored.UserID != in.UserID {
			return domainagg.NewError(domainagg.CodeValidation, op, "backup data belongs to a different user", nil)
		}
		restored.UserID = in.UserID
		if violations := types.Validate(restored, a.deps.Catalog); len(violations) > 0 {
			return ValidationError("backup data violates profile invariants: " + strings.Join(violations, "; "))
		}
		// Operator path: restore deliberately bypasses the CAS guard.
		if err := a.deps.Profiles.Overwrite(ctx, restored); err != nil {
			return err
		}
		a.deps.Base.Log.Info("profile restored from backup",
			"user_id", in.UserID.String(), "version", in.Backup.Version, "xp", restored.XP)
		out = restored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
