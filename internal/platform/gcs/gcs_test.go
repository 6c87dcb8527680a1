package gcs

import (
	"testing"
)

func TestResolveConfigFromEnvDefaultGCS(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Mode != ModeGCS {
		t.Fatalf("mode: want=%q got=%q", ModeGCS, cfg.Mode)
	}
}

func TestResolveConfigFromEnvEmulatorFallback(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")

	cfg, err := ResolveConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Mode != ModeEmulator {
		t.Fatalf("mode: want=%q got=%q", ModeEmulator, cfg.Mode)
	}
}

func TestResolveConfigFromEnvInvalidMode(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "local")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("ResolveConfigFromEnv: expected error, got nil")
	}
}

func TestResolveConfigFromEnvMissingEmulatorHost(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("ResolveConfigFromEnv: expected error, got nil")
	}
}

func TestResolveConfigFromEnvInvalidEmulatorHost(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "fake-gcs:4443")

	if _, err := ResolveConfigFromEnv(); err == nil {
		t.Fatalf("ResolveConfigFromEnv: expected error, got nil")
	}
}

func TestIconBucketPublicURLPrefersCDN(t *testing.T) {
	b := &IconBucket{name: "appquest-icons", cdnDomain: "cdn.appquest.dev", mode: ModeGCS}
	got := b.PublicURL("/badges/xp_100.png")
	want := "https://cdn.appquest.dev/badges/xp_100.png"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestIconBucketPublicURLEmulator(t *testing.T) {
	b := &IconBucket{name: "appquest-icons", mode: ModeEmulator, publicBase: "http://fake-gcs:4443"}
	got := b.PublicURL("badges/xp_100.png")
	want := "http://fake-gcs:4443/storage/v1/b/appquest-icons/o/badges%2Fxp_100.png?alt=media"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}

func TestIconBucketPublicURLDefaultsToGCS(t *testing.T) {
	b := &IconBucket{name: "appquest-icons", mode: ModeGCS}
	got := b.PublicURL("badges/xp_100.png")
	want := "https://storage.googleapis.com/appquest-icons/badges/xp_100.png"
	if got != want {
		t.Fatalf("PublicURL: want=%q got=%q", want, got)
	}
}
