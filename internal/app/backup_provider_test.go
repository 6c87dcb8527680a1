package app

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	repos "github.com/appquest/appquest-backend/internal/data/repos/gamification"
)

func TestResolveBackupStoreInvalidStore(t *testing.T) {
	log := newProviderTestLogger(t)
	backend := &profileBackend{provider: ProfileProviderMemory}

	_, err := resolveBackupStore(log, Config{BackupStore: "tape"}, backend)
	if err == nil {
		t.Fatalf("resolveBackupStore: expected error, got nil")
	}

	var got *BackupStoreBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected BackupStoreBootstrapError, got=%T", err)
	}
	if got.Code != BackupStoreBootstrapErrorInvalidStore {
		t.Fatalf("code: want=%q got=%q", BackupStoreBootstrapErrorInvalidStore, got.Code)
	}
}

func TestResolveBackupStoreExplicitMemory(t *testing.T) {
	log := newProviderTestLogger(t)
	backend := &profileBackend{provider: ProfileProviderBadger}

	store, err := resolveBackupStore(log, Config{BackupStore: "memory"}, backend)
	if err != nil {
		t.Fatalf("resolveBackupStore: %v", err)
	}
	if _, ok := store.(*repos.MemoryBackupStore); !ok {
		t.Fatalf("store: want=*repos.MemoryBackupStore got=%T", store)
	}
}

func TestResolveBackupStoreDerivesMemory(t *testing.T) {
	log := newProviderTestLogger(t)
	backend := &profileBackend{provider: ProfileProviderMemory}

	store, err := resolveBackupStore(log, Config{}, backend)
	if err != nil {
		t.Fatalf("resolveBackupStore: %v", err)
	}
	if _, ok := store.(*repos.MemoryBackupStore); !ok {
		t.Fatalf("store: want=*repos.MemoryBackupStore got=%T", store)
	}
}

func TestResolveBackupStoreDerivesFS(t *testing.T) {
	log := newProviderTestLogger(t)
	backend := &profileBackend{provider: ProfileProviderBadger}

	store, err := resolveBackupStore(log, Config{BackupDir: t.TempDir()}, backend)
	if err != nil {
		t.Fatalf("resolveBackupStore: %v", err)
	}
	if _, ok := store.(*repos.FSBackupStore); !ok {
		t.Fatalf("store: want=*repos.FSBackupStore got=%T", store)
	}
}

func TestResolveBackupStoreDerivesDB(t *testing.T) {
	log := newProviderTestLogger(t)
	backend := &profileBackend{provider: ProfileProviderPostgres, gormDB: &gorm.DB{}}

	store, err := resolveBackupStore(log, Config{}, backend)
	if err != nil {
		t.Fatalf("resolveBackupStore: %v", err)
	}
	if _, ok := store.(*repos.GormBackupStore); !ok {
		t.Fatalf("store: want=*repos.GormBackupStore got=%T", store)
	}
}

func TestResolveBackupStoreDBRequiresRelationalBackend(t *testing.T) {
	log := newProviderTestLogger(t)
	backend := &profileBackend{provider: ProfileProviderBadger}

	_, err := resolveBackupStore(log, Config{BackupStore: "db"}, backend)
	if err == nil {
		t.Fatalf("resolveBackupStore: expected error, got nil")
	}

	var got *BackupStoreBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected BackupStoreBootstrapError, got=%T", err)
	}
	if got.Code != BackupStoreBootstrapErrorMissingRelationalDB {
		t.Fatalf("code: want=%q got=%q", BackupStoreBootstrapErrorMissingRelationalDB, got.Code)
	}
}

func TestResolveBackupStoreGCSRequiresBucketName(t *testing.T) {
	log := newProviderTestLogger(t)
	t.Setenv("BACKUP_GCS_BUCKET_NAME", "")
	backend := &profileBackend{provider: ProfileProviderMemory}

	_, err := resolveBackupStore(log, Config{BackupStore: "gcs"}, backend)
	if err == nil {
		t.Fatalf("resolveBackupStore: expected error, got nil")
	}

	var got *BackupStoreBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected BackupStoreBootstrapError, got=%T", err)
	}
	if got.Code != BackupStoreBootstrapErrorMissingBucketName {
		t.Fatalf("code: want=%q got=%q", BackupStoreBootstrapErrorMissingBucketName, got.Code)
	}
}

func TestDeriveBackupStoreKind(t *testing.T) {
	cases := []struct {
		name    string
		backend *profileBackend
		want    BackupStoreKind
	}{
		{"relational", &profileBackend{provider: ProfileProviderPostgres, gormDB: &gorm.DB{}}, BackupStoreDB},
		{"memory", &profileBackend{provider: ProfileProviderMemory}, BackupStoreMemory},
		{"badger", &profileBackend{provider: ProfileProviderBadger}, BackupStoreFS},
		{"redis", &profileBackend{provider: ProfileProviderRedis}, BackupStoreFS},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := deriveBackupStoreKind(tc.backend); got != tc.want {
				t.Fatalf("deriveBackupStoreKind: want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestClassifyBackupStoreBootstrapError(t *testing.T) {
	err := classifyBackupStoreBootstrapError(BackupStoreGCS, errors.New("dial tcp: connection refused"))

	var got *BackupStoreBootstrapError
	if !errors.As(err, &got) {
		t.Fatalf("expected BackupStoreBootstrapError, got=%T", err)
	}
	if got.Code != BackupStoreBootstrapErrorConnectFailed {
		t.Fatalf("code: want=%q got=%q", BackupStoreBootstrapErrorConnectFailed, got.Code)
	}

	err = classifyBackupStoreBootstrapError(BackupStoreFS, errors.New("mkdir /proc/backups: permission denied"))
	if !errors.As(err, &got) {
		t.Fatalf("expected BackupStoreBootstrapError, got=%T", err)
	}
	if got.Code != BackupStoreBootstrapErrorInitFailed {
		t.Fatalf("code: want=%q got=%q", BackupStoreBootstrapErrorInitFailed, got.Code)
	}
}
