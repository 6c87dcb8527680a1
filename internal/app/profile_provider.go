package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/appquest/appquest-backend/internal/clients/redis"
	"github.com/appquest/appquest-backend/internal/data/db"
	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/observability"
	"github.com/appquest/appquest-backend/internal/platform/logger"
	"github.com/appquest/appquest-backend/internal/platform/neo4jdb"
)

var (
	newPostgresService = db.NewPostgresService
	newSQLiteService   = db.NewSQLiteService
	newBadgerService   = db.NewBadgerService
	newRedisClient     = redis.NewClient
	newNeo4jClient     = neo4jdb.NewFromEnv
)

type ProfileProvider string

const (
	ProfileProviderMemory   ProfileProvider = "memory"
	ProfileProviderPostgres ProfileProvider = "postgres"
	ProfileProviderSQLite   ProfileProvider = "sqlite"
	ProfileProviderRedis    ProfileProvider = "redis"
	ProfileProviderBadger   ProfileProvider = "badger"
	ProfileProviderNeo4j    ProfileProvider = "neo4j"
)

func IsSupportedProfileProvider(p ProfileProvider) bool {
	switch p {
	case ProfileProviderMemory, ProfileProviderPostgres, ProfileProviderSQLite,
		ProfileProviderRedis, ProfileProviderBadger, ProfileProviderNeo4j:
		return true
	default:
		return false
	}
}

type ProfileProviderBootstrapErrorCode string

const (
	ProfileProviderBootstrapErrorInvalidProvider ProfileProviderBootstrapErrorCode = "invalid_provider"
	ProfileProviderBootstrapErrorNotConfigured   ProfileProviderBootstrapErrorCode = "not_configured"
	ProfileProviderBootstrapErrorConnectFailed   ProfileProviderBootstrapErrorCode = "connect_failed"
	ProfileProviderBootstrapErrorMigrateFailed   ProfileProviderBootstrapErrorCode = "migrate_failed"
	ProfileProviderBootstrapErrorInitFailed      ProfileProviderBootstrapErrorCode = "provider_init_failed"
)

type ProfileProviderBootstrapError struct {
	Code     ProfileProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *ProfileProviderBootstrapError) Error() string {
	if e == nil {
		return "profile store bootstrap failed"
	}
	return fmt.Sprintf(
		"profile store bootstrap failed (code=%s provider=%q): %v",
		e.Code,
		e.Provider,
		e.Cause,
	)
}

func (e *ProfileProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// profileBackend carries the resolved stores plus the live handles the
// runtime collectors and the shutdown path need.
type profileBackend struct {
	provider ProfileProvider
	profiles repos.ProfileStore
	audit    repos.AuditSink

	gormDB *gorm.DB
	sqlite *db.SQLiteService
	redis  *redis.Client
	badger *db.BadgerService
	neo4j  *neo4jdb.Client
}

func (b *profileBackend) Close(ctx context.Context) {
	if b == nil {
		return
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.badger != nil {
		_ = b.badger.Close()
	}
	if b.neo4j != nil {
		_ = b.neo4j.Close(ctx)
	}
	if b.sqlite != nil {
		_ = b.sqlite.Close()
	}
}

// resolveProfileBackend builds the profile store for the configured
// provider, running migrations where the backend has a schema. The store
// comes back wrapped in the metrics decorator and the audit sink in the
// corruption-reporting one.
func resolveProfileBackend(log *logger.Logger, cfg Config) (*profileBackend, error) {
	provider := ProfileProvider(strings.TrimSpace(strings.ToLower(cfg.ProfileStore)))
	metrics := observability.Current()
	if metrics != nil {
		metrics.SetProfileProviderActive(string(provider))
	}

	if !IsSupportedProfileProvider(provider) {
		err := &ProfileProviderBootstrapError{
			Code:     ProfileProviderBootstrapErrorInvalidProvider,
			Provider: string(provider),
			Cause:    fmt.Errorf("unsupported profile store provider %q", provider),
		}
		if metrics != nil {
			metrics.ObserveProfileProviderBootstrap(string(provider), "error", string(err.Code))
		}
		log.Error(
			"Profile store provider selection failed",
			"provider", provider,
			"error_code", err.Code,
			"error", err,
		)
		return nil, err
	}

	log.Info("Selecting profile store provider", "provider", provider)

	backend := &profileBackend{provider: provider}
	var store repos.ProfileStore

	switch provider {
	case ProfileProviderMemory:
		store = repos.NewMemoryProfileStore()

	case ProfileProviderPostgres:
		pg, err := newPostgresService(log)
		if err != nil {
			return nil, failProfileBootstrap(log, metrics, provider, classifyProfileProviderBootstrapError(provider, err))
		}
		if err := pg.AutoMigrateAll(); err != nil {
			return nil, failProfileBootstrap(log, metrics, provider, &ProfileProviderBootstrapError{
				Code:     ProfileProviderBootstrapErrorMigrateFailed,
				Provider: string(provider),
				Cause:    err,
			})
		}
		backend.gormDB = pg.DB()
		store = repos.NewGormProfileStore(backend.gormDB, log)

	case ProfileProviderSQLite:
		sq, err := newSQLiteService(log)
		if err != nil {
			return nil, failProfileBootstrap(log, metrics, provider, classifyProfileProviderBootstrapError(provider, err))
		}
		if err := sq.AutoMigrateAll(); err != nil {
			_ = sq.Close()
			return nil, failProfileBootstrap(log, metrics, provider, &ProfileProviderBootstrapError{
				Code:     ProfileProviderBootstrapErrorMigrateFailed,
				Provider: string(provider),
				Cause:    err,
			})
		}
		backend.sqlite = sq
		backend.gormDB = sq.DB()
		store = repos.NewGormProfileStore(backend.gormDB, log)

	case ProfileProviderRedis:
		rc, err := newRedisClient(log)
		if err != nil {
			return nil, failProfileBootstrap(log, metrics, provider, classifyProfileProviderBootstrapError(provider, err))
		}
		backend.redis = rc
		store = repos.NewRedisProfileStore(rc.RDB(), log)

	case ProfileProviderBadger:
		bs, err := newBadgerService(log)
		if err != nil {
			return nil, failProfileBootstrap(log, metrics, provider, classifyProfileProviderBootstrapError(provider, err))
		}
		backend.badger = bs
		store = repos.NewBadgerProfileStore(bs.DB(), log)

	case ProfileProviderNeo4j:
		nc, err := newNeo4jClient(log)
		if err != nil {
			return nil, failProfileBootstrap(log, metrics, provider, classifyProfileProviderBootstrapError(provider, err))
		}
		if nc == nil {
			return nil, failProfileBootstrap(log, metrics, provider, &ProfileProviderBootstrapError{
				Code:     ProfileProviderBootstrapErrorNotConfigured,
				Provider: string(provider),
				Cause:    fmt.Errorf("NEO4J_URI is not set"),
			})
		}
		backend.neo4j = nc
		store = repos.NewNeo4jProfileStore(nc, log)
	}

	backend.profiles = instrumentProfileStore(string(provider), store)
	backend.audit = instrumentAuditSink(string(provider), log, resolveAuditSink(log, backend))

	if metrics != nil {
		metrics.ObserveProfileProviderBootstrap(string(provider), "success", "none")
	}
	return backend, nil
}

// resolveAuditSink prefers the relational audit table; providers without
// one keep the discarded-state trail in the structured log.
func resolveAuditSink(log *logger.Logger, backend *profileBackend) repos.AuditSink {
	if backend.gormDB != nil {
		return repos.NewGormAuditSink(backend.gormDB, log)
	}
	return repos.NewLogAuditSink(log)
}

func failProfileBootstrap(log *logger.Logger, metrics *observability.Metrics, provider ProfileProvider, err error) error {
	code := profileProviderBootstrapErrorCode(err)
	if metrics != nil {
		metrics.ObserveProfileProviderBootstrap(string(provider), "error", string(code))
	}
	log.Error(
		"Profile store provider bootstrap failed",
		"provider", provider,
		"error_code", code,
		"error", err,
	)
	return err
}

func classifyProfileProviderBootstrapError(provider ProfileProvider, err error) error {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return &ProfileProviderBootstrapError{
			Code:     ProfileProviderBootstrapErrorConnectFailed,
			Provider: string(provider),
			Cause:    err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ProfileProviderBootstrapError{
			Code:     ProfileProviderBootstrapErrorConnectFailed,
			Provider: string(provider),
			Cause:    err,
		}
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "missing ") {
		return &ProfileProviderBootstrapError{
			Code:     ProfileProviderBootstrapErrorNotConfigured,
			Provider: string(provider),
			Cause:    err,
		}
	}
	if strings.Contains(errLower, "connection refused") || strings.Contains(errLower, "ping") {
		return &ProfileProviderBootstrapError{
			Code:     ProfileProviderBootstrapErrorConnectFailed,
			Provider: string(provider),
			Cause:    err,
		}
	}
	return &ProfileProviderBootstrapError{
		Code:     ProfileProviderBootstrapErrorInitFailed,
		Provider: string(provider),
		Cause:    err,
	}
}

func profileProviderBootstrapErrorCode(err error) ProfileProviderBootstrapErrorCode {
	var bootstrapErr *ProfileProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return ProfileProviderBootstrapErrorConnectFailed
}

// reportingAuditSink feeds every corruption event through the metrics and
// alerting pipeline before handing it to the persisted sink.
type reportingAuditSink struct {
	backend string
	log     *logger.Logger
	inner   repos.AuditSink
}

func instrumentAuditSink(backend string, log *logger.Logger, inner repos.AuditSink) repos.AuditSink {
	if inner == nil {
		return nil
	}
	return &reportingAuditSink{backend: backend, log: log, inner: inner}
}

func (s *reportingAuditSink) RecordCorruption(ctx context.Context, userID uuid.UUID, reasons []string, snapshot *types.Profile) error {
	observability.ReportCorruption(ctx, s.log, s.backend, reasons, map[string]any{
		"user_id": userID.String(),
	})
	return s.inner.RecordCorruption(ctx, userID, reasons, snapshot)
}
