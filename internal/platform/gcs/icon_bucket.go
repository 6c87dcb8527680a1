package gcs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/appquest/appquest-backend/internal/platform/logger"
)

// IconBucket publishes rendered badge icons. Icons are regenerable from the
// catalog, so uploads overwrite in place and nothing is versioned.
type IconBucket struct {
	log        *logger.Logger
	client     *storage.Client
	name       string
	cdnDomain  string
	mode       Mode
	publicBase string
}

func NewIconBucket(log *logger.Logger, client *storage.Client, cfg Config) (*IconBucket, error) {
	name := strings.TrimSpace(os.Getenv("BADGE_ICON_GCS_BUCKET_NAME"))
	if name == "" {
		return nil, fmt.Errorf("missing env var BADGE_ICON_GCS_BUCKET_NAME")
	}

	publicBase := strings.TrimRight(strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL")), "/")
	if publicBase == "" && cfg.IsEmulator() {
		publicBase = strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
	}

	return &IconBucket{
		log:        log.With("service", "IconBucket"),
		client:     client,
		name:       name,
		cdnDomain:  strings.TrimSpace(os.Getenv("BADGE_ICON_CDN_DOMAIN")),
		mode:       cfg.Mode,
		publicBase: publicBase,
	}, nil
}

func (b *IconBucket) UploadPNG(ctx context.Context, key string, r io.Reader) error {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return fmt.Errorf("icon object key required")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	w.ContentType = "image/png"
	w.CacheControl = "public, max-age=86400"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write icon to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (b *IconBucket) PublicURL(key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if b.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", b.cdnDomain, key)
	}
	if b.mode == ModeEmulator && b.publicBase != "" {
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", b.publicBase, b.name, url.PathEscape(key))
	}
	if b.publicBase != "" {
		return fmt.Sprintf("%s/%s/%s", b.publicBase, b.name, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.name, key)
}
