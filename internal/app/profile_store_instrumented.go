package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/observability"
)

type instrumentedProfileStore struct {
	backend string
	inner   repos.ProfileStore
	metrics *observability.Metrics
}

func instrumentProfileStore(backend string, inner repos.ProfileStore) repos.ProfileStore {
	if inner == nil {
		return nil
	}
	return &instrumentedProfileStore{
		backend: backend,
		inner:   inner,
		metrics: observability.Current(),
	}
}

func (s *instrumentedProfileStore) GetByID(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	start := time.Now()
	p, err := s.inner.GetByID(ctx, userID)
	s.observe("get_by_id", err, time.Since(start))
	return p, err
}

func (s *instrumentedProfileStore) InsertIfAbsent(ctx context.Context, p *types.Profile) (bool, error) {
	start := time.Now()
	inserted, err := s.inner.InsertIfAbsent(ctx, p)
	s.observe("insert_if_absent", err, time.Since(start))
	return inserted, err
}

func (s *instrumentedProfileStore) UpdateIfMatch(ctx context.Context, userID uuid.UUID, expected repos.ExpectedFields, next *types.Profile) (bool, error) {
	start := time.Now()
	applied, err := s.inner.UpdateIfMatch(ctx, userID, expected, next)
	s.observe("update_if_match", err, time.Since(start))
	return applied, err
}

func (s *instrumentedProfileStore) Overwrite(ctx context.Context, next *types.Profile) error {
	start := time.Now()
	err := s.inner.Overwrite(ctx, next)
	s.observe("overwrite", err, time.Since(start))
	return err
}

func (s *instrumentedProfileStore) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	start := time.Now()
	ids, err := s.inner.ListUserIDs(ctx)
	s.observe("list_user_ids", err, time.Since(start))
	return ids, err
}

func (s *instrumentedProfileStore) observe(operation string, err error, dur time.Duration) {
	if s == nil || s.metrics == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, repos.ErrCorruptPayload):
		// A corrupt payload is the recovery path working, not a store outage.
		status = "corrupt"
	case err != nil:
		status = "error"
	}
	s.metrics.ObserveProfileStoreOperation(s.backend, operation, status, dur)
}
