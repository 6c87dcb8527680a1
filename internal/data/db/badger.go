package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/appquest/appquest-backend/internal/platform/logger"
	"github.com/appquest/appquest-backend/internal/utils"
)

// BadgerService owns the embedded Badger database behind the "badger"
// provider. Sync writes are on: an award that was acknowledged must survive a
// process crash.
type BadgerService struct {
	db  *badger.DB
	log *logger.Logger
}

func NewBadgerService(logg *logger.Logger) (*BadgerService, error) {
	serviceLog := logg.With("service", "BadgerService")

	path := utils.GetEnv("BADGER_PATH", "data/badger", logg)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogAdapter{log: serviceLog})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &BadgerService{db: db, log: serviceLog}, nil
}

func (s *BadgerService) DB() *badger.DB { return s.db }

func (s *BadgerService) Close() error { return s.db.Close() }

// StartGC reclaims value-log space in the background until ctx is done.
// Badger never garbage collects on its own.
func (s *BadgerService) StartGC(ctx context.Context) {
	interval := time.Duration(utils.GetEnvAsInt("BADGER_GC_INTERVAL_SECONDS", 300, s.log)) * time.Second
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// One GC call rewrites at most one vlog file, so loop
				// until there is nothing left worth rewriting.
				for {
					err := s.db.RunValueLogGC(0.5)
					if err == nil {
						continue
					}
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.log.Warn("badger value log GC failed", "error", err)
					}
					break
				}
			}
		}
	}()
}

// badgerLogAdapter routes Badger's internal logging through the service log.
// Badger is chatty at INFO during compactions, so that level maps to debug.
type badgerLogAdapter struct {
	log *logger.Logger
}

func (a badgerLogAdapter) Errorf(format string, args ...interface{}) {
	a.log.Error(fmt.Sprintf(format, args...))
}

func (a badgerLogAdapter) Warningf(format string, args ...interface{}) {
	a.log.Warn(fmt.Sprintf(format, args...))
}

func (a badgerLogAdapter) Infof(format string, args ...interface{}) {
	a.log.Debug(fmt.Sprintf(format, args...))
}

func (a badgerLogAdapter) Debugf(format string, args ...interface{}) {
	a.log.Debug(fmt.Sprintf(format, args...))
}
