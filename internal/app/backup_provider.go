package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strings"

	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
	"github.com/appquest/appquest-backend/internal/observability"
	"github.com/appquest/appquest-backend/internal/platform/gcs"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

var newGCSClient = gcs.NewClient

type BackupStoreKind string

const (
	BackupStoreDB     BackupStoreKind = "db"
	BackupStoreFS     BackupStoreKind = "fs"
	BackupStoreGCS    BackupStoreKind = "gcs"
	BackupStoreMemory BackupStoreKind = "memory"
)

type BackupStoreBootstrapErrorCode string

const (
	BackupStoreBootstrapErrorInvalidStore        BackupStoreBootstrapErrorCode = "invalid_store"
	BackupStoreBootstrapErrorMissingRelationalDB BackupStoreBootstrapErrorCode = "missing_relational_db"
	BackupStoreBootstrapErrorMissingBucketName   BackupStoreBootstrapErrorCode = "missing_bucket_name"
	BackupStoreBootstrapErrorConnectFailed       BackupStoreBootstrapErrorCode = "connect_failed"
	BackupStoreBootstrapErrorInitFailed          BackupStoreBootstrapErrorCode = "init_failed"
)

type BackupStoreBootstrapError struct {
	Code  BackupStoreBootstrapErrorCode
	Store string
	Cause error
}

func (e *BackupStoreBootstrapError) Error() string {
	if e == nil {
		return "backup store bootstrap failed"
	}
	return fmt.Sprintf(
		"backup store bootstrap failed (code=%s store=%q): %v",
		e.Code,
		e.Store,
		e.Cause,
	)
}

func (e *BackupStoreBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBackupStore picks the snapshot destination. An empty BACKUP_STORE
// derives one from the profile backend: relational providers reuse their
// database, the memory provider stays in memory, everything else lands on
// the local filesystem.
func resolveBackupStore(log *logger.Logger, cfg Config, backend *profileBackend) (repos.BackupStore, error) {
	requested := strings.TrimSpace(strings.ToLower(cfg.BackupStore))
	kind := BackupStoreKind(requested)
	if requested == "" {
		kind = deriveBackupStoreKind(backend)
	}
	metrics := observability.Current()

	var store repos.BackupStore
	switch kind {
	case BackupStoreMemory:
		store = repos.NewMemoryBackupStore()

	case BackupStoreDB:
		if backend == nil || backend.gormDB == nil {
			return nil, failBackupBootstrap(log, metrics, kind, &BackupStoreBootstrapError{
				Code:  BackupStoreBootstrapErrorMissingRelationalDB,
				Store: string(kind),
				Cause: fmt.Errorf("BACKUP_STORE=db requires a postgres or sqlite profile store"),
			})
		}
		store = repos.NewGormBackupStore(backend.gormDB, log)

	case BackupStoreFS:
		st, err := repos.NewFSBackupStore(cfg.BackupDir, log)
		if err != nil {
			return nil, failBackupBootstrap(log, metrics, kind, classifyBackupStoreBootstrapError(kind, err))
		}
		store = st

	case BackupStoreGCS:
		bucket := strings.TrimSpace(os.Getenv("BACKUP_GCS_BUCKET_NAME"))
		if bucket == "" {
			return nil, failBackupBootstrap(log, metrics, kind, &BackupStoreBootstrapError{
				Code:  BackupStoreBootstrapErrorMissingBucketName,
				Store: string(kind),
				Cause: fmt.Errorf("BACKUP_GCS_BUCKET_NAME is not set"),
			})
		}
		client, err := newGCSClient(context.Background(), log)
		if err != nil {
			return nil, failBackupBootstrap(log, metrics, kind, classifyBackupStoreBootstrapError(kind, err))
		}
		st, err := repos.NewGCSBackupStore(client, bucket, os.Getenv("BACKUP_GCS_PREFIX"), log)
		if err != nil {
			return nil, failBackupBootstrap(log, metrics, kind, classifyBackupStoreBootstrapError(kind, err))
		}
		store = st

	default:
		err := &BackupStoreBootstrapError{
			Code:  BackupStoreBootstrapErrorInvalidStore,
			Store: string(kind),
			Cause: fmt.Errorf("unsupported backup store %q", kind),
		}
		return nil, failBackupBootstrap(log, metrics, kind, err)
	}

	log.Info("Selecting backup store", "store", kind, "requested", requestedLabel(requested))
	if metrics != nil {
		metrics.SetBackupStoreActive(string(kind))
		metrics.ObserveBackupStoreBootstrap(string(kind), "success", "none")
	}
	return store, nil
}

func deriveBackupStoreKind(backend *profileBackend) BackupStoreKind {
	if backend != nil && backend.gormDB != nil {
		return BackupStoreDB
	}
	if backend != nil && backend.provider == ProfileProviderMemory {
		return BackupStoreMemory
	}
	return BackupStoreFS
}

func requestedLabel(requested string) string {
	if requested == "" {
		return "auto"
	}
	return requested
}

func failBackupBootstrap(log *logger.Logger, metrics *observability.Metrics, kind BackupStoreKind, err error) error {
	code := backupStoreBootstrapErrorCode(err)
	if metrics != nil {
		metrics.ObserveBackupStoreBootstrap(string(kind), "error", string(code))
	}
	log.Error(
		"Backup store bootstrap failed",
		"store", kind,
		"error_code", code,
		"error", err,
	)
	return err
}

func classifyBackupStoreBootstrapError(kind BackupStoreKind, err error) error {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return &BackupStoreBootstrapError{
			Code:  BackupStoreBootstrapErrorConnectFailed,
			Store: string(kind),
			Cause: err,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &BackupStoreBootstrapError{
			Code:  BackupStoreBootstrapErrorConnectFailed,
			Store: string(kind),
			Cause: err,
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return &BackupStoreBootstrapError{
			Code:  BackupStoreBootstrapErrorConnectFailed,
			Store: string(kind),
			Cause: err,
		}
	}
	return &BackupStoreBootstrapError{
		Code:  BackupStoreBootstrapErrorInitFailed,
		Store: string(kind),
		Cause: err,
	}
}

func backupStoreBootstrapErrorCode(err error) BackupStoreBootstrapErrorCode {
	var bootstrapErr *BackupStoreBootstrapError
	if errors.As(err, &bootstrapErr) {
		if bootstrapErr.Code != "" {
			return bootstrapErr.Code
		}
	}
	return BackupStoreBootstrapErrorInitFailed
}
