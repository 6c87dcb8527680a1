package app

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	"github.com/appquest/appquest-backend/internal/observability"
	"github.com/appquest/appquest-backend/internal/platform/ctxutil"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

// Scheduler drives the periodic integrity sweep and the backup-all loop.
// Both are in-process tickers; a failed run is logged and the next tick
// tries again.
type Scheduler struct {
	log       *logger.Logger
	aggregate domainagg.GamificationAggregate
	profiles  repos.ProfileStore

	sweepInterval  time.Duration
	backupInterval time.Duration
	concurrency    int
}

func NewScheduler(baseLog *logger.Logger, aggregate domainagg.GamificationAggregate, profiles repos.ProfileStore, cfg Config) *Scheduler {
	concurrency := cfg.SweepConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		log:            baseLog.With("component", "Scheduler"),
		aggregate:      aggregate,
		profiles:       profiles,
		sweepInterval:  cfg.SweepInterval,
		backupInterval: cfg.BackupInterval,
		concurrency:    concurrency,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if s.sweepInterval > 0 {
		s.log.Info("Starting integrity sweep loop", "interval", s.sweepInterval, "concurrency", s.concurrency)
		go s.runSweepLoop(ctx)
	}
	if s.backupInterval > 0 {
		s.log.Info("Starting backup loop", "interval", s.backupInterval, "concurrency", s.concurrency)
		go s.runBackupLoop(ctx)
	}
}

func (s *Scheduler) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sweep loop stopped")
			return
		case <-ticker.C:
			s.runSweepOnce(ctx)
		}
	}
}

func (s *Scheduler) runSweepOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Sweep run panic", "panic", r)
			if metrics := observability.Current(); metrics != nil {
				metrics.ObserveSweep("panic", 0, 0, 0, 0)
			}
		}
	}()

	runID := uuid.NewString()
	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{RequestID: "sweep-" + runID})
	start := time.Now()
	res, err := s.aggregate.SweepProfiles(ctx, domainagg.SweepProfilesInput{Concurrency: s.concurrency})
	status := "success"
	if err != nil {
		status = "error"
		s.log.Error("Scheduled sweep failed", "run_id", runID, "error", err)
	}
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveSweep(status, time.Since(start), res.Scanned, res.Healed, res.Failed)
	}

	drift := sweepDriftMetrics(
		res,
		getEnvFloat("INTEGRITY_DRIFT_HEAL_RATE_THRESHOLD", 0.01),
		getEnvFloat("INTEGRITY_DRIFT_FAILURE_RATE_THRESHOLD", 0.05),
	)
	if len(drift) > 0 {
		observability.ReportIntegrityDrift(ctx, s.log, drift, map[string]any{"run_id": runID})
	}
}

// sweepDriftMetrics converts a sweep result into drift findings. Healing
// anything at steady state means some writer is producing invalid
// profiles, so the heal threshold is deliberately low.
func sweepDriftMetrics(res domainagg.SweepProfilesResult, healThreshold, failThreshold float64) []observability.IntegrityDriftMetric {
	if res.Scanned <= 0 {
		return nil
	}
	var out []observability.IntegrityDriftMetric
	healRate := float64(res.Healed) / float64(res.Scanned)
	if healRate > healThreshold {
		out = append(out, observability.IntegrityDriftMetric{
			Name:      "sweep_heal_rate",
			Status:    "alert",
			Value:     healRate,
			Threshold: healThreshold,
			Meta:      map[string]any{"scanned": res.Scanned, "healed": res.Healed},
		})
	}
	failRate := float64(res.Failed) / float64(res.Scanned)
	if failRate > failThreshold {
		out = append(out, observability.IntegrityDriftMetric{
			Name:      "sweep_read_failure_rate",
			Status:    "alert",
			Value:     failRate,
			Threshold: failThreshold,
			Meta:      map[string]any{"scanned": res.Scanned, "failed": res.Failed},
		})
	}
	return out
}

func (s *Scheduler) runBackupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.backupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Backup loop stopped")
			return
		case <-ticker.C:
			s.runBackupOnce(ctx)
		}
	}
}

func (s *Scheduler) runBackupOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Backup run panic", "panic", r)
			if metrics := observability.Current(); metrics != nil {
				metrics.ObserveBackupRun("panic", 0)
			}
		}
	}()

	runID := uuid.NewString()
	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{RequestID: "backup-" + runID})
	start := time.Now()
	saved, failed, err := s.backupAll(ctx)
	status := "success"
	if err != nil || failed > 0 {
		status = "error"
	}
	if err != nil {
		s.log.Error("Scheduled backup run failed", "run_id", runID, "error", err)
	} else {
		s.log.Info("Scheduled backup run finished", "run_id", runID, "saved", saved, "failed", failed)
	}
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveBackupRun(status, time.Since(start))
	}
}

// backupAll snapshots every known profile. Per-user failures are counted
// and logged, never fatal to the run; only listing or cancellation abort.
func (s *Scheduler) backupAll(ctx context.Context) (saved, failed int, err error) {
	ids, err := s.profiles.ListUserIDs(ctx)
	if err != nil {
		return 0, 0, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			_, berr := s.aggregate.CreateBackup(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if berr != nil {
				failed++
				s.log.Error("Scheduled backup failed for user", "user_id", id.String(), "error", berr)
				return nil
			}
			saved++
			return nil
		})
	}
	if werr := g.Wait(); werr != nil {
		return saved, failed, werr
	}
	return saved, failed, ctx.Err()
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
