package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

// GCSBackupStore mirrors snapshots into an object bucket under
// <prefix>/<userID>/v<version>.json. It serves as the off-box copy for
// disaster recovery; the relational store stays authoritative.
type GCSBackupStore struct {
	client *storage.Client
	bucket string
	prefix string
	log    *logger.Logger
}

func NewGCSBackupStore(client *storage.Client, bucket, prefix string, baseLog *logger.Logger) (*GCSBackupStore, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("backup bucket name required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "gamification/backups"
	}
	return &GCSBackupStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
		log:    baseLog.With("store", "GCSBackupStore"),
	}, nil
}

func (s *GCSBackupStore) objectKey(userID uuid.UUID, version int) string {
	return path.Join(s.prefix, userID.String(), backupFileName(version))
}

func (s *GCSBackupStore) Save(ctx context.Context, b *types.Backup) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := s.client.Bucket(s.bucket).Object(s.objectKey(b.UserID, b.Version))
	// DoesNotExist guard keeps versions immutable once written.
	w := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/json"
	payload, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return fmt.Errorf("write backup object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close backup writer: %w", err)
	}
	return nil
}

func (s *GCSBackupStore) Latest(ctx context.Context, userID uuid.UUID) (*types.Backup, error) {
	versions, err := s.listVersions(ctx, userID)
	if err != nil || len(versions) == 0 {
		return nil, err
	}
	return s.Get(ctx, userID, versions[len(versions)-1])
}

func (s *GCSBackupStore) Get(ctx context.Context, userID uuid.UUID, version int) (*types.Backup, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	r, err := s.client.Bucket(s.bucket).Object(s.objectKey(userID, version)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var b types.Backup
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errors.Join(ErrCorruptPayload, err)
	}
	return &b, nil
}

func (s *GCSBackupStore) listVersions(ctx context.Context, userID uuid.UUID) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dir := path.Join(s.prefix, userID.String()) + "/"
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: dir})
	versions := []int{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		name := path.Base(attrs.Name)
		if !strings.HasPrefix(name, "v") || !strings.HasSuffix(name, ".json") {
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
