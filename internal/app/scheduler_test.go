package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

type fakeSchedulerAggregate struct {
	mu          sync.Mutex
	backupCalls []uuid.UUID
	failFor     map[uuid.UUID]error

	sweepCalls int
	sweepIn    domainagg.SweepProfilesInput
	sweepRes   domainagg.SweepProfilesResult
	sweepErr   error
}

func (f *fakeSchedulerAggregate) Contract() domainagg.Contract {
	return domainagg.GamificationAggregateContract
}

func (f *fakeSchedulerAggregate) AwardXP(context.Context, domainagg.AwardXPInput) (domainagg.AwardXPResult, error) {
	return domainagg.AwardXPResult{}, nil
}

func (f *fakeSchedulerAggregate) UpdateLoginStreak(context.Context, domainagg.UpdateLoginStreakInput) (*domainagg.LoginStreakResult, error) {
	return nil, nil
}

func (f *fakeSchedulerAggregate) GetProfileSafe(context.Context, uuid.UUID) (*types.Profile, error) {
	return nil, nil
}

func (f *fakeSchedulerAggregate) BadgeProgress(context.Context, uuid.UUID) ([]types.BadgeProgress, error) {
	return nil, nil
}

func (f *fakeSchedulerAggregate) CreateBackup(_ context.Context, userID uuid.UUID) (*types.Backup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backupCalls = append(f.backupCalls, userID)
	if err, ok := f.failFor[userID]; ok {
		return nil, err
	}
	return &types.Backup{UserID: userID}, nil
}

func (f *fakeSchedulerAggregate) RecoverFromBackup(context.Context, domainagg.RecoverFromBackupInput) (*types.Profile, error) {
	return nil, nil
}

func (f *fakeSchedulerAggregate) ResolveConflicts(context.Context, domainagg.ResolveConflictsInput) (*types.Profile, error) {
	return nil, nil
}

func (f *fakeSchedulerAggregate) SweepProfiles(_ context.Context, in domainagg.SweepProfilesInput) (domainagg.SweepProfilesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweepCalls++
	f.sweepIn = in
	return f.sweepRes, f.sweepErr
}

type fakeSchedulerProfileStore struct {
	ids     []uuid.UUID
	listErr error
}

func (f *fakeSchedulerProfileStore) GetByID(context.Context, uuid.UUID) (*types.Profile, error) {
	return nil, nil
}

func (f *fakeSchedulerProfileStore) InsertIfAbsent(context.Context, *types.Profile) (bool, error) {
	return false, nil
}

func (f *fakeSchedulerProfileStore) UpdateIfMatch(context.Context, uuid.UUID, repos.ExpectedFields, *types.Profile) (bool, error) {
	return false, nil
}

func (f *fakeSchedulerProfileStore) Overwrite(context.Context, *types.Profile) error {
	return nil
}

func (f *fakeSchedulerProfileStore) ListUserIDs(context.Context) ([]uuid.UUID, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.ids, nil
}

func TestBackupAllIsolatesPerUserFailures(t *testing.T) {
	log := newProviderTestLogger(t)

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	agg := &fakeSchedulerAggregate{
		failFor: map[uuid.UUID]error{ids[1]: errors.New("store unavailable")},
	}
	profiles := &fakeSchedulerProfileStore{ids: ids}

	s := NewScheduler(log, agg, profiles, Config{SweepConcurrency: 2})
	saved, failed, err := s.backupAll(context.Background())
	if err != nil {
		t.Fatalf("backupAll: %v", err)
	}
	if saved != 2 {
		t.Fatalf("saved: want=2 got=%d", saved)
	}
	if failed != 1 {
		t.Fatalf("failed: want=1 got=%d", failed)
	}
	if len(agg.backupCalls) != 3 {
		t.Fatalf("backup calls: want=3 got=%d", len(agg.backupCalls))
	}
}

func TestBackupAllPropagatesListError(t *testing.T) {
	log := newProviderTestLogger(t)

	listErr := errors.New("list failed")
	s := NewScheduler(log, &fakeSchedulerAggregate{}, &fakeSchedulerProfileStore{listErr: listErr}, Config{})

	_, _, err := s.backupAll(context.Background())
	if !errors.Is(err, listErr) {
		t.Fatalf("backupAll: want listErr, got=%v", err)
	}
}

func TestRunSweepOncePassesConcurrency(t *testing.T) {
	log := newProviderTestLogger(t)

	agg := &fakeSchedulerAggregate{sweepRes: domainagg.SweepProfilesResult{Scanned: 10}}
	s := NewScheduler(log, agg, &fakeSchedulerProfileStore{}, Config{SweepConcurrency: 3})

	s.runSweepOnce(context.Background())
	if agg.sweepCalls != 1 {
		t.Fatalf("sweep calls: want=1 got=%d", agg.sweepCalls)
	}
	if agg.sweepIn.Concurrency != 3 {
		t.Fatalf("concurrency: want=3 got=%d", agg.sweepIn.Concurrency)
	}
}

func TestSweepDriftMetricsThresholds(t *testing.T) {
	cases := []struct {
		name      string
		res       domainagg.SweepProfilesResult
		wantNames []string
	}{
		{
			name:      "clean run",
			res:       domainagg.SweepProfilesResult{Scanned: 100},
			wantNames: nil,
		},
		{
			name:      "nothing scanned",
			res:       domainagg.SweepProfilesResult{},
			wantNames: nil,
		},
		{
			name:      "at threshold stays quiet",
			res:       domainagg.SweepProfilesResult{Scanned: 100, Healed: 1, Failed: 5},
			wantNames: nil,
		},
		{
			name:      "heal rate crossed",
			res:       domainagg.SweepProfilesResult{Scanned: 100, Healed: 5},
			wantNames: []string{"sweep_heal_rate"},
		},
		{
			name:      "failure rate crossed",
			res:       domainagg.SweepProfilesResult{Scanned: 100, Failed: 10},
			wantNames: []string{"sweep_read_failure_rate"},
		},
		{
			name:      "both crossed",
			res:       domainagg.SweepProfilesResult{Scanned: 10, Healed: 2, Failed: 3},
			wantNames: []string{"sweep_heal_rate", "sweep_read_failure_rate"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sweepDriftMetrics(tc.res, 0.01, 0.05)
			if len(got) != len(tc.wantNames) {
				t.Fatalf("findings: want=%d got=%d (%+v)", len(tc.wantNames), len(got), got)
			}
			for i, name := range tc.wantNames {
				if got[i].Name != name {
					t.Fatalf("finding %d: want=%q got=%q", i, name, got[i].Name)
				}
				if got[i].Value <= got[i].Threshold {
					t.Fatalf("finding %q: value %v not above threshold %v", name, got[i].Value, got[i].Threshold)
				}
			}
		})
	}
}
