package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/observability"
	"github.com/appquest/appquest-backend/internal/platform/gcs"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

const (
	badgeIconSize  = 512
	badgeThumbSize = 128
)

// BadgeIconService renders one PNG medallion per catalog badge: category
// colored disc, ring, and an initials-style glyph from the badge name.
type BadgeIconService interface {
	Render(ctx context.Context, def types.BadgeDefinition) (bytes.Buffer, error)
	PublishAll(ctx context.Context) ([]BadgeIconArtifact, error)
}

// BadgeIconArtifact reports where one badge's icon landed: a local path, or
// the public object URL when a bucket is configured.
type BadgeIconArtifact struct {
	BadgeID  string `json:"badge_id"`
	Location string `json:"location"`
	ThumbURL string `json:"thumb_location"`
}

type badgeIconService struct {
	log     *logger.Logger
	catalog *types.Catalog
	bucket  *gcs.IconBucket
	dir     string

	palette  map[string]color.NRGBA
	fallback color.NRGBA

	fontFace font.Face
}

// NewBadgeIconService loads the truetype face from BADGE_FONT and the
// category palette (built-in, overridable via BADGE_ICON_COLORS_JSON_PATH).
// A nil bucket keeps output local under BADGE_ICON_DIR.
func NewBadgeIconService(log *logger.Logger, catalog *types.Catalog, bucket *gcs.IconBucket) (BadgeIconService, error) {
	serviceLog := log.With("service", "BadgeIconService")

	fontPath := os.Getenv("BADGE_FONT")
	if strings.TrimSpace(fontPath) == "" {
		return nil, fmt.Errorf("Env var BADGE_FONT is empty")
	}
	serviceLog.Info("Loading badge icon font", "font", fontPath)

	face, err := loadIconFontFace(fontPath, 200)
	if err != nil {
		return nil, fmt.Errorf("could not load badge icon font: %w", err)
	}

	palette, err := loadIconPalette(os.Getenv("BADGE_ICON_COLORS_JSON_PATH"))
	if err != nil {
		return nil, fmt.Errorf("could not load badge icon palette: %w", err)
	}

	dir := strings.TrimSpace(os.Getenv("BADGE_ICON_DIR"))
	if dir == "" {
		dir = "data/icons"
	}

	return &badgeIconService{
		log:      serviceLog,
		catalog:  catalog,
		bucket:   bucket,
		dir:      dir,
		palette:  palette,
		fallback: color.NRGBA{R: 0x6B, G: 0x72, B: 0x80, A: 0xFF},
		fontFace: face,
	}, nil
}

func (bs *badgeIconService) Render(ctx context.Context, def types.BadgeDefinition) (bytes.Buffer, error) {
	var buf bytes.Buffer
	if err := ctx.Err(); err != nil {
		return buf, err
	}

	img, err := bs.renderImage(def)
	if err != nil {
		return buf, err
	}
	if err := png.Encode(&buf, img); err != nil {
		return buf, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf, nil
}

func (bs *badgeIconService) renderImage(def types.BadgeDefinition) (image.Image, error) {
	const size = badgeIconSize

	dc := gg.NewContext(size, size)

	// Clip to circle
	cx, cy := float64(size)/2, float64(size)/2
	dc.DrawCircle(cx, cy, float64(size)/2)
	dc.Clip()

	// Fill disc with the category color
	base := bs.pickCategoryColor(def.Category)
	dc.SetColor(base)
	dc.DrawRectangle(0, 0, float64(size), float64(size))
	dc.Fill()

	// Medallion ring
	dc.SetRGBA(1, 1, 1, 0.85)
	dc.SetLineWidth(10)
	dc.DrawCircle(cx, cy, float64(size)/2-26)
	dc.Stroke()

	// Glyph from the badge name
	glyph := glyphFromName(def.Name)
	dc.SetFontFace(bs.fontFace)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(glyph, cx, cy, 0.5, 0.36)

	return dc.Image(), nil
}

// PublishAll renders every catalog badge, writes <id>.png and <id>_128.png,
// and uploads them when a bucket is configured. A badge that fails to render
// does not stop the rest.
func (bs *badgeIconService) PublishAll(ctx context.Context) ([]BadgeIconArtifact, error) {
	if err := os.MkdirAll(bs.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create icon dir %s: %w", bs.dir, err)
	}

	badges := bs.catalog.Badges()
	artifacts := make([]BadgeIconArtifact, 0, len(badges))
	failed := 0
	for _, def := range badges {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}
		start := time.Now()
		artifact, err := bs.publishOne(ctx, def)
		status := "success"
		if err != nil {
			status = "error"
			failed++
			bs.log.Warn("badge icon render failed", "badge_id", def.ID, "error", err)
		} else {
			artifacts = append(artifacts, artifact)
		}
		if metrics := observability.Current(); metrics != nil {
			metrics.ObserveIconRender(status, time.Since(start))
		}
	}

	if failed > 0 {
		return artifacts, fmt.Errorf("%d of %d badge icons failed", failed, len(badges))
	}
	return artifacts, nil
}

func (bs *badgeIconService) publishOne(ctx context.Context, def types.BadgeDefinition) (BadgeIconArtifact, error) {
	img, err := bs.renderImage(def)
	if err != nil {
		return BadgeIconArtifact{}, err
	}

	var base bytes.Buffer
	if err := png.Encode(&base, img); err != nil {
		return BadgeIconArtifact{}, fmt.Errorf("encode png: %w", err)
	}

	thumb := image.NewRGBA(image.Rect(0, 0, badgeThumbSize, badgeThumbSize))
	draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Over, nil)
	var thumbBuf bytes.Buffer
	if err := png.Encode(&thumbBuf, thumb); err != nil {
		return BadgeIconArtifact{}, fmt.Errorf("encode thumbnail png: %w", err)
	}

	baseName := def.ID + ".png"
	thumbName := fmt.Sprintf("%s_%d.png", def.ID, badgeThumbSize)

	basePath := filepath.Join(bs.dir, baseName)
	thumbPath := filepath.Join(bs.dir, thumbName)
	if err := os.WriteFile(basePath, base.Bytes(), 0o644); err != nil {
		return BadgeIconArtifact{}, fmt.Errorf("write icon %s: %w", basePath, err)
	}
	if err := os.WriteFile(thumbPath, thumbBuf.Bytes(), 0o644); err != nil {
		return BadgeIconArtifact{}, fmt.Errorf("write thumbnail %s: %w", thumbPath, err)
	}

	artifact := BadgeIconArtifact{BadgeID: def.ID, Location: basePath, ThumbURL: thumbPath}
	if bs.bucket == nil {
		return artifact, nil
	}

	baseKey := "badges/" + baseName
	thumbKey := "badges/" + thumbName
	if err := bs.bucket.UploadPNG(ctx, baseKey, bytes.NewReader(base.Bytes())); err != nil {
		return BadgeIconArtifact{}, fmt.Errorf("upload icon %s: %w", baseKey, err)
	}
	if err := bs.bucket.UploadPNG(ctx, thumbKey, bytes.NewReader(thumbBuf.Bytes())); err != nil {
		return BadgeIconArtifact{}, fmt.Errorf("upload thumbnail %s: %w", thumbKey, err)
	}
	artifact.Location = bs.bucket.PublicURL(baseKey)
	artifact.ThumbURL = bs.bucket.PublicURL(thumbKey)
	return artifact, nil
}

// -------------------- Color helpers --------------------

// defaultIconPalette maps catalog categories to disc colors. Unknown
// categories fall back to gray so a new catalog entry never fails rendering.
var defaultIconPalette = map[string]string{
	"milestones": "#F59E0B",
	"quests":     "#3B82F6",
	"apps":       "#10B981",
	"reviews":    "#8B5CF6",
	"streaks":    "#EF4444",
	"special":    "#EC4899",
}

func (bs *badgeIconService) pickCategoryColor(category string) color.NRGBA {
	if c, ok := bs.palette[strings.ToLower(strings.TrimSpace(category))]; ok {
		return c
	}
	return bs.fallback
}

func loadIconPalette(jsonPath string) (map[string]color.NRGBA, error) {
	hexes := make(map[string]string, len(defaultIconPalette))
	for k, v := range defaultIconPalette {
		hexes[k] = v
	}

	if strings.TrimSpace(jsonPath) != "" {
		data, err := os.ReadFile(jsonPath)
		if err != nil {
			return nil, fmt.Errorf("read file error: %w", err)
		}
		var overrides map[string]string
		if err := json.Unmarshal(data, &overrides); err != nil {
			return nil, fmt.Errorf("json unmarshal error: %w", err)
		}
		for k, v := range overrides {
			hexes[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}

	out := make(map[string]color.NRGBA, len(hexes))
	for category, h := range hexes {
		r, g, b, err := parseIconHex(h)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", category, err)
		}
		out[category] = color.NRGBA{R: r, G: g, B: b, A: 0xFF}
	}
	return out, nil
}

func parseIconHex(s string) (r, g, b uint8, err error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		s = s[1:]
	}
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("expected 6 hex chars")
	}

	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid hex")
	}
	return raw[0], raw[1], raw[2], nil
}

// -------------------- Misc helpers --------------------

// glyphFromName turns "Quest Master" into "QM" and "Centurion" into "C".
func glyphFromName(name string) string {
	fields := strings.Fields(name)
	switch {
	case len(fields) >= 2:
		return strings.ToUpper(firstRune(fields[0]) + firstRune(fields[1]))
	case len(fields) == 1:
		return strings.ToUpper(firstRune(fields[0]))
	default:
		return "?"
	}
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

func loadIconFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return face, nil
}
