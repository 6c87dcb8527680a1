package services

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

func TestGlyphFromName(t *testing.T) {
	cases := map[string]string{
		"Quest Master":     "QM",
		"Centurion":        "C",
		"One Week Streak":  "OW",
		"  power   user  ": "PU",
		"":                 "?",
	}
	for name, want := range cases {
		if got := glyphFromName(name); got != want {
			t.Errorf("glyphFromName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestParseIconHex(t *testing.T) {
	r, g, b, err := parseIconHex("#3B82F6")
	if err != nil {
		t.Fatalf("parseIconHex: %v", err)
	}
	if r != 0x3B || g != 0x82 || b != 0xF6 {
		t.Fatalf("parseIconHex = (%#x, %#x, %#x), want (0x3b, 0x82, 0xf6)", r, g, b)
	}

	for _, bad := range []string{"", "#FFF", "#GGGGGG", "123456789"} {
		if _, _, _, err := parseIconHex(bad); err == nil {
			t.Errorf("parseIconHex(%q): expected error", bad)
		}
	}
}

func TestLoadIconPaletteOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colors.json")
	if err := os.WriteFile(path, []byte(`{"quests": "#000000", "custom": "#112233"}`), 0o644); err != nil {
		t.Fatalf("write palette file: %v", err)
	}

	palette, err := loadIconPalette(path)
	if err != nil {
		t.Fatalf("loadIconPalette: %v", err)
	}
	if c := palette["quests"]; c.R != 0 || c.G != 0 || c.B != 0 {
		t.Fatalf("quests override not applied: %+v", c)
	}
	if _, ok := palette["custom"]; !ok {
		t.Fatal("custom category missing from palette")
	}
	if _, ok := palette["streaks"]; !ok {
		t.Fatal("default category lost after override")
	}
}

func TestLoadIconPaletteRejectsBadHex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colors.json")
	if err := os.WriteFile(path, []byte(`{"quests": "bogus"}`), 0o644); err != nil {
		t.Fatalf("write palette file: %v", err)
	}
	if _, err := loadIconPalette(path); err == nil {
		t.Fatal("loadIconPalette: expected error for bad hex")
	}
}

func TestRenderBadgeIcon(t *testing.T) {
	if os.Getenv("BADGE_FONT") == "" {
		t.Skip("BADGE_FONT not set; skipping render test")
	}

	logg, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Setenv("BADGE_ICON_DIR", t.TempDir())

	svc, err := NewBadgeIconService(logg, types.CurrentCatalog(logg), nil)
	if err != nil {
		t.Fatalf("NewBadgeIconService: %v", err)
	}

	buf, err := svc.Render(context.Background(), types.BadgeDefinition{
		ID: "quests_10", Name: "Quest Hunter", Category: "quests",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode rendered PNG: %v", err)
	}
	if w := img.Bounds().Dx(); w != badgeIconSize {
		t.Fatalf("icon width = %d, want %d", w, badgeIconSize)
	}
}
