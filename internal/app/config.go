package app

import (
	"time"

	"github.com/appquest/appquest-backend/internal/platform/logger"
	"github.com/appquest/appquest-backend/internal/utils"
)

type Config struct {
	// ProfileStore selects the backend behind the profile aggregate:
	// memory, postgres, sqlite, redis, badger or neo4j.
	ProfileStore string

	// BackupStore selects where snapshots land: db, fs, gcs or memory.
	// Empty derives it from the profile provider.
	BackupStore string
	BackupDir   string

	ReadRetries int
	ReadBackoff time.Duration

	// Zero interval disables the corresponding scheduler loop.
	SweepInterval    time.Duration
	SweepConcurrency int
	BackupInterval   time.Duration

	MetricsAddr string
}

func LoadConfig(log *logger.Logger) Config {
	profileStore := utils.GetEnv("GAMIFICATION_STORE", "memory", log)
	backupStore := utils.GetEnv("BACKUP_STORE", "", log)
	backupDir := utils.GetEnv("BACKUP_DIR", "data/backups", log)
	readRetries := utils.GetEnvAsInt("GAMIFICATION_READ_RETRIES", 3, log)
	readBackoffMS := utils.GetEnvAsInt("GAMIFICATION_READ_BACKOFF_MS", 50, log)
	sweepIntervalMin := utils.GetEnvAsInt("SWEEP_INTERVAL_MINUTES", 60, log)
	sweepConcurrency := utils.GetEnvAsInt("SWEEP_CONCURRENCY", 4, log)
	backupIntervalMin := utils.GetEnvAsInt("BACKUP_INTERVAL_MINUTES", 1440, log)
	metricsAddr := utils.GetEnv("METRICS_ADDR", ":9464", log)
	return Config{
		ProfileStore:     profileStore,
		BackupStore:      backupStore,
		BackupDir:        backupDir,
		ReadRetries:      readRetries,
		ReadBackoff:      time.Duration(readBackoffMS) * time.Millisecond,
		SweepInterval:    time.Duration(sweepIntervalMin) * time.Minute,
		SweepConcurrency: sweepConcurrency,
		BackupInterval:   time.Duration(backupIntervalMin) * time.Minute,
		MetricsAddr:      metricsAddr,
	}
}
