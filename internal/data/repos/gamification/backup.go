package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/platform/logger"
	"gorm.io/gorm"
)

// MemoryBackupStore keeps snapshots per user in process memory.
type MemoryBackupStore struct {
	mu      sync.RWMutex
	backups map[uuid.UUID][]*types.Backup
}

func NewMemoryBackupStore() *MemoryBackupStore {
	return &MemoryBackupStore{backups: make(map[uuid.UUID][]*types.Backup)}
}

func (s *MemoryBackupStore) Save(ctx context.Context, b *types.Backup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.backups[b.UserID] {
		if existing.Version == b.Version {
			return fmt.Errorf("backup version %d already exists for user %s", b.Version, b.UserID)
		}
	}
	cp := *b
	cp.Data = b.Data.Clone()
	s.backups[b.UserID] = append(s.backups[b.UserID], &cp)
	sort.Slice(s.backups[b.UserID], func(i, j int) bool {
		return s.backups[b.UserID][i].Version < s.backups[b.UserID][j].Version
	})
	return nil
}

func (s *MemoryBackupStore) Latest(ctx context.Context, userID uuid.UUID) (*types.Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.backups[userID]
	if len(list) == 0 {
		return nil, nil
	}
	return copyBackup(list[len(list)-1]), nil
}

func (s *MemoryBackupStore) Get(ctx context.Context, userID uuid.UUID, version int) (*types.Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.backups[userID] {
		if b.Version == version {
			return copyBackup(b), nil
		}
	}
	return nil, nil
}

func copyBackup(b *types.Backup) *types.Backup {
	cp := *b
	cp.Data = b.Data.Clone()
	return &cp
}

// GormBackupStore persists snapshots in the gamification_backup table with a
// unique (user, version) index, so a duplicate version surfaces as a
// constraint violation rather than a silent overwrite.
type GormBackupStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGormBackupStore(db *gorm.DB, baseLog *logger.Logger) *GormBackupStore {
	return &GormBackupStore{db: db, log: baseLog.With("store", "GormBackupStore")}
}

func (s *GormBackupStore) Save(ctx context.Context, b *types.Backup) error {
	rec, err := types.NewBackupRecord(b)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormBackupStore) Latest(ctx context.Context, userID uuid.UUID) (*types.Backup, error) {
	var rec types.BackupRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("version DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.ToBackup()
}

func (s *GormBackupStore) Get(ctx context.Context, userID uuid.UUID, version int) (*types.Backup, error) {
	var rec types.BackupRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND version = ?", userID, version).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.ToBackup()
}

// FSBackupStore writes each snapshot to <root>/<userID>/v<version>.json.
// It backs the non-relational providers, where there is no second table to
// lean on, and doubles as a operator-friendly export format.
type FSBackupStore struct {
	root string
	log  *logger.Logger
}

func NewFSBackupStore(root string, baseLog *logger.Logger) (*FSBackupStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("backup root directory required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create backup root %s: %w", root, err)
	}
	return &FSBackupStore{root: root, log: baseLog.With("store", "FSBackupStore")}, nil
}

func (s *FSBackupStore) userDir(userID uuid.UUID) string {
	return filepath.Join(s.root, userID.String())
}

func backupFileName(version int) string {
	return fmt.Sprintf("v%d.json", version)
}

func (s *FSBackupStore) Save(ctx context.Context, b *types.Backup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.userDir(b.UserID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, backupFileName(b.Version))
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("backup version %d already exists for user %s", b.Version, b.UserID)
	}
	payload, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func (s *FSBackupStore) Latest(ctx context.Context, userID uuid.UUID) (*types.Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	versions, err := s.listVersions(userID)
	if err != nil || len(versions) == 0 {
		return nil, err
	}
	return s.Get(ctx, userID, versions[len(versions)-1])
}

func (s *FSBackupStore) Get(ctx context.Context, userID uuid.UUID, version int) (*types.Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(s.userDir(userID), backupFileName(version)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var b types.Backup
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errors.Join(ErrCorruptPayload, err)
	}
	return &b, nil
}

func (s *FSBackupStore) listVersions(userID uuid.UUID) ([]int, error) {
	entries, err := os.ReadDir(s.userDir(userID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	versions := []int{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "v"), ".json"))
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}
