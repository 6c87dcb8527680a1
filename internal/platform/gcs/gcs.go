package gcs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/appquest/appquest-backend/internal/platform/logger"
)

type Mode string

const (
	ModeGCS      Mode = "gcs"
	ModeEmulator Mode = "gcs_emulator"
)

type Config struct {
	Mode         Mode
	EmulatorHost string
}

func (cfg Config) IsEmulator() bool { return cfg.Mode == ModeEmulator }

// ResolveConfigFromEnv picks the storage mode. An unset mode with
// STORAGE_EMULATOR_HOST present falls back to the emulator, so local
// compose setups keep working without declaring OBJECT_STORAGE_MODE.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{EmulatorHost: strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST"))}

	rawMode := strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE"))
	switch Mode(strings.ToLower(rawMode)) {
	case "":
		if cfg.EmulatorHost != "" {
			cfg.Mode = ModeEmulator
		} else {
			cfg.Mode = ModeGCS
		}
	case ModeGCS:
		cfg.Mode = ModeGCS
	case ModeEmulator:
		cfg.Mode = ModeEmulator
	default:
		return cfg, fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", rawMode, ModeGCS, ModeEmulator)
	}

	if cfg.Mode == ModeEmulator {
		if cfg.EmulatorHost == "" {
			return cfg, fmt.Errorf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST to be set", ModeEmulator)
		}
		u, err := url.Parse(cfg.EmulatorHost)
		if err != nil || strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
			return cfg, fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", cfg.EmulatorHost)
		}
	}

	return cfg, nil
}

func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// NewClient builds the storage client for the resolved mode. The backup
// store and the icon bucket share one client.
func NewClient(ctx context.Context, log *logger.Logger) (*storage.Client, error) {
	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewClientWithConfig(ctx, log, cfg)
}

func NewClientWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*storage.Client, error) {
	var (
		client *storage.Client
		err    error
	)
	switch cfg.Mode {
	case ModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		client, err = storage.NewClient(ctx, opts...)
	case ModeEmulator:
		endpoint := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		_ = os.Setenv("STORAGE_EMULATOR_HOST", endpoint)
		client, err = storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, fmt.Errorf("unsupported object storage mode: %s", cfg.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	if log != nil {
		log.Info("Object storage initialized",
			"mode", cfg.Mode,
			"emulator_host", cfg.EmulatorHost,
		)
	}
	return client, nil
}
