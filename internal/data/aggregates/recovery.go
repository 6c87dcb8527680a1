package aggregates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

// errProfileInitRace marks a lost InsertIfAbsent race during lazy creation.
// The next read attempt observes the winner's row.
var errProfileInitRace = errors.New("lost profile initialization race")

// safeRead is the single entry point for reading a profile inside an
// operation. It lazily creates the default profile for unknown users,
// discards and resets invariant-violating or undecodable state (audited),
// and retries transient store failures with a doubling backoff. Callers
// always get a structurally valid profile or an error.
func (a *gamificationAggregate) safeRead(ctx context.Context, op string, userID uuid.UUID) (*types.Profile, error) {
	var lastErr error
	backoff := a.deps.ReadBackoff
	for attempt := 0; attempt <= a.deps.ReadRetries; attempt++ {
		if attempt > 0 {
			a.deps.Base.Hooks.IncRetry(op)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		p, err := a.deps.Profiles.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, repos.ErrCorruptPayload) {
				return a.resetCorrupted(ctx, userID, nil, []string{"stored payload does not decode"})
			}
			lastErr = err
			continue
		}
		if p == nil {
			fresh := types.DefaultProfile(userID)
			inserted, err := a.deps.Profiles.InsertIfAbsent(ctx, fresh)
			if err != nil {
				lastErr = err
				continue
			}
			if inserted {
				return fresh, nil
			}
			// Someone else created it between the read and the insert.
			lastErr = errProfileInitRace
			continue
		}
		if violations := types.Validate(p, a.deps.Catalog); len(violations) > 0 {
			return a.resetCorrupted(ctx, userID, p, violations)
		}
		return p, nil
	}
	return nil, UnavailableError(fmt.Sprintf("profile read failed after %d attempts: %v", a.deps.ReadRetries+1, lastErr))
}

// resetCorrupted audits the discarded state and overwrites it with a fresh
// default. Resetting is preferred over failing: a corrupt profile would
// otherwise wedge every operation for that user. Audit sink failures are
// logged and never block the reset.
func (a *gamificationAggregate) resetCorrupted(ctx context.Context, userID uuid.UUID, snapshot *types.Profile, reasons []string) (*types.Profile, error) {
	a.deps.Base.Log.Warn("invalid profile discarded and reset",
		"user_id", userID.String(), "reasons", strings.Join(reasons, "; "))
	if a.deps.Audit != nil {
		if err := a.deps.Audit.RecordCorruption(ctx, userID, reasons, snapshot); err != nil {
			a.deps.Base.Log.Error("corruption audit failed", "user_id", userID.String(), "error", err)
		}
	}
	fresh := types.DefaultProfile(userID)
	if err := a.deps.Profiles.Overwrite(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (a *gamificationAggregate) SweepProfiles(ctx context.Context, in domainagg.SweepProfilesInput) (domainagg.SweepProfilesResult, error) {
	const op = "Gamification.Profile.SweepProfiles"
	var out domainagg.SweepProfilesResult
	if a.deps.Profiles == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "profile store not configured", nil)
	}

	err := executeOperation(ctx, a.deps.Base, op, func(ctx context.Context) error {
		concurrency := in.Concurrency
		if concurrency <= 0 {
			concurrency = 4
		}
		ids, err := a.deps.Profiles.ListUserIDs(ctx)
		if err != nil {
			return err
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				healed, err := a.sweepOne(gctx, id)
				mu.Lock()
				defer mu.Unlock()
				out.Scanned++
				if err != nil {
					out.Failed++
					a.deps.Base.Log.Error("profile sweep failed for user",
						"user_id", id.String(), "error", err)
					return nil
				}
				if healed {
					out.Healed++
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		// Per-user failures are counted, not fatal; cancellation is.
		if err := ctx.Err(); err != nil {
			return err
		}
		a.deps.Base.Log.Info("profile sweep finished",
			"scanned", out.Scanned, "healed", out.Healed, "failed", out.Failed)
		return nil
	})
	return out, err
}

func (a *gamificationAggregate) sweepOne(ctx context.Context, userID uuid.UUID) (healed bool, err error) {
	p, err := a.deps.Profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repos.ErrCorruptPayload) {
			if _, err := a.resetCorrupted(ctx, userID, nil, []string{"stored payload does not decode"}); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, err
	}
	if p == nil {
		// Deleted between the listing and the read; nothing to heal.
		return false, nil
	}
	if violations := types.Validate(p, a.deps.Catalog); len(violations) > 0 {
		if _, err := a.resetCorrupted(ctx, userID, p, violations); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}
