package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/appquest/appquest-backend/internal/clients/directory"
	"github.com/appquest/appquest-backend/internal/data/aggregates"
	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
	domainagg "github.com/appquest/appquest-backend/internal/domain/aggregates"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/observability"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

type App struct {
	Log       *logger.Logger
	Cfg       Config
	Catalog   *types.Catalog
	Aggregate domainagg.GamificationAggregate
	Profiles  repos.ProfileStore
	Backups   repos.BackupStore
	Scheduler *Scheduler

	backend      *profileBackend
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	metrics := observability.Init(log)

	backend, err := resolveProfileBackend(log, cfg)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init profile store: %w", err)
	}

	backups, err := resolveBackupStore(log, cfg, backend)
	if err != nil {
		backend.Close(context.Background())
		log.Sync()
		return nil, fmt.Errorf("init backup store: %w", err)
	}

	// Without a directory every user id is presumed valid.
	var dir aggregates.UserDirectory
	if strings.TrimSpace(os.Getenv("DIRECTORY_BASE_URL")) != "" {
		d, derr := directory.NewFromEnv(log)
		if derr != nil {
			backend.Close(context.Background())
			log.Sync()
			return nil, fmt.Errorf("init directory client: %w", derr)
		}
		dir = d
	}

	catalog := types.CurrentCatalog(log)

	aggregate := aggregates.NewGamificationAggregate(aggregates.GamificationAggregateDeps{
		Base: aggregates.BaseDeps{
			Log:   log,
			Hooks: aggregates.NewObservabilityHooks(metrics),
		},
		Profiles:    backend.profiles,
		Backups:     backups,
		Audit:       backend.audit,
		Directory:   dir,
		Catalog:     catalog,
		ReadRetries: cfg.ReadRetries,
		ReadBackoff: cfg.ReadBackoff,
	})

	return &App{
		Log:       log,
		Cfg:       cfg,
		Catalog:   catalog,
		Aggregate: aggregate,
		Profiles:  backend.profiles,
		Backups:   backups,
		Scheduler: NewScheduler(log, aggregate, backend.profiles, cfg),
		backend:   backend,
	}, nil
}

func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "appquest-gamification",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})

	if metrics := observability.Current(); metrics != nil {
		metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		metrics.StartSLOEvaluator(ctx, a.Log)
		if a.backend != nil {
			if a.backend.provider == ProfileProviderPostgres && a.backend.gormDB != nil {
				metrics.StartPostgresCollector(ctx, a.Log, a.backend.gormDB)
			}
			if a.backend.redis != nil {
				metrics.StartRedisCollector(ctx, a.Log, a.backend.redis.Addr())
			}
			if a.backend.badger != nil {
				metrics.StartBadgerCollector(ctx, a.Log, a.backend.badger.DB())
			}
		}
	}

	if a.backend != nil && a.backend.badger != nil {
		a.backend.badger.StartGC(ctx)
	}

	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(shutdownCtx)
		cancel()
		a.otelShutdown = nil
	}
	if a.backend != nil {
		a.backend.Close(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
