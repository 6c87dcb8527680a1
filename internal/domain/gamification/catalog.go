package gamification

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/appquest/appquest-backend/internal/platform/logger"
)

const catalogEnv = "GAMIFICATION_CATALOG_YAML"

//go:embed catalog.yaml
var catalogSpecFS embed.FS

// ErrUnknownAction marks XP lookups for actions outside the catalog.
var ErrUnknownAction = errors.New("unknown action")

// ActionConfig describes one catalog action: its XP value and the activity
// counter it increments (empty when the action is tracked without a counter).
type ActionConfig struct {
	Type    ActionType
	XP      int64
	Counter string
}

// StreakConfig describes the login-streak bonus policy.
type StreakConfig struct {
	MilestoneEvery int
	BonusAction    ActionType
}

// CatalogConfig is the assembled catalog input, either the compiled-in
// defaults or a parsed YAML override.
type CatalogConfig struct {
	LevelThresholds []int64
	Actions         []ActionConfig
	Streak          StreakConfig
	Badges          []BadgeDefinition
}

// Catalog is the immutable XP/level/badge configuration loaded once at
// process start.
type Catalog struct {
	thresholds  []int64
	actions     map[ActionType]ActionConfig
	actionOrder []ActionType
	badges      []BadgeDefinition
	badgeIndex  map[string]int
	streak      StreakConfig
}

// NewCatalog validates and freezes a catalog configuration.
func NewCatalog(cfg CatalogConfig) (*Catalog, error) {
	if len(cfg.LevelThresholds) == 0 {
		return nil, errors.New("no level thresholds defined")
	}
	prev := int64(0)
	for i, t := range cfg.LevelThresholds {
		if t <= prev {
			return nil, fmt.Errorf("level thresholds must be strictly increasing and positive (index %d)", i)
		}
		prev = t
	}
	if len(cfg.Actions) == 0 {
		return nil, errors.New("no actions defined")
	}
	actions := make(map[ActionType]ActionConfig, len(cfg.Actions))
	order := make([]ActionType, 0, len(cfg.Actions))
	for _, a := range cfg.Actions {
		if strings.TrimSpace(string(a.Type)) == "" {
			return nil, errors.New("action type is required")
		}
		if _, exists := actions[a.Type]; exists {
			return nil, fmt.Errorf("duplicate action type: %s", a.Type)
		}
		if a.XP < 0 {
			return nil, fmt.Errorf("action %s has negative xp", a.Type)
		}
		actions[a.Type] = a
		order = append(order, a.Type)
	}
	if cfg.Streak.MilestoneEvery < 1 {
		return nil, errors.New("streak milestone_every must be >= 1")
	}
	if _, ok := actions[cfg.Streak.BonusAction]; !ok {
		return nil, fmt.Errorf("streak bonus action %s is not in the action table", cfg.Streak.BonusAction)
	}
	badgeIndex := make(map[string]int, len(cfg.Badges))
	for i, b := range cfg.Badges {
		if strings.TrimSpace(b.ID) == "" || strings.TrimSpace(b.Name) == "" {
			return nil, fmt.Errorf("badge at index %d is missing id or name", i)
		}
		if _, exists := badgeIndex[b.ID]; exists {
			return nil, fmt.Errorf("duplicate badge id: %s", b.ID)
		}
		if len(b.Requirements) == 0 {
			return nil, fmt.Errorf("badge %s has no requirements", b.ID)
		}
		for _, req := range b.Requirements {
			if err := validateRequirement(b.ID, req); err != nil {
				return nil, err
			}
		}
		badgeIndex[b.ID] = i
	}
	return &Catalog{
		thresholds:  append([]int64(nil), cfg.LevelThresholds...),
		actions:     actions,
		actionOrder: order,
		badges:      append([]BadgeDefinition(nil), cfg.Badges...),
		badgeIndex:  badgeIndex,
		streak:      cfg.Streak,
	}, nil
}

func validateRequirement(badgeID string, req Requirement) error {
	switch r := req.(type) {
	case XPRequirement:
		if r.Threshold <= 0 {
			return fmt.Errorf("badge %s: xp requirement threshold must be positive", badgeID)
		}
	case ActivityCountRequirement:
		if strings.TrimSpace(r.Field) == "" {
			return fmt.Errorf("badge %s: activity_count requirement needs a field", badgeID)
		}
		if r.Threshold <= 0 {
			return fmt.Errorf("badge %s: activity_count requirement threshold must be positive", badgeID)
		}
	case StreakRequirement:
		if r.Threshold <= 0 {
			return fmt.Errorf("badge %s: streak requirement threshold must be positive", badgeID)
		}
	default:
		return fmt.Errorf("badge %s: unsupported requirement type %T", badgeID, req)
	}
	return nil
}

// XPForAction resolves the XP value for an action. Unknown actions fail with
// ErrUnknownAction.
func (c *Catalog) XPForAction(action ActionType) (int64, error) {
	a, ok := c.actions[action]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return a.XP, nil
}

// Action returns the full action config.
func (c *Catalog) Action(action ActionType) (ActionConfig, bool) {
	a, ok := c.actions[action]
	return a, ok
}

// Actions lists the catalog actions in declaration order.
func (c *Catalog) Actions() []ActionConfig {
	out := make([]ActionConfig, 0, len(c.actionOrder))
	for _, t := range c.actionOrder {
		out = append(out, c.actions[t])
	}
	return out
}

// LevelForXP derives the level implied by an XP total: one plus the number
// of thresholds at or below it, capped at the max level.
func (c *Catalog) LevelForXP(xp int64) int {
	level := 1
	for _, t := range c.thresholds {
		if xp < t {
			break
		}
		level++
	}
	return level
}

// XPToNextLevel returns the XP still needed for the next level, zero at max.
func (c *Catalog) XPToNextLevel(xp int64) int64 {
	level := c.LevelForXP(xp)
	if level > len(c.thresholds) {
		return 0
	}
	return c.thresholds[level-1] - xp
}

// MaxLevel is the highest reachable level.
func (c *Catalog) MaxLevel() int {
	return len(c.thresholds) + 1
}

// LevelThresholds returns a copy of the ascending threshold table.
func (c *Catalog) LevelThresholds() []int64 {
	return append([]int64(nil), c.thresholds...)
}

// Badges returns a copy of the badge definitions in catalog order.
func (c *Catalog) Badges() []BadgeDefinition {
	return append([]BadgeDefinition(nil), c.badges...)
}

// BadgeByID looks up one badge definition.
func (c *Catalog) BadgeByID(id string) (BadgeDefinition, bool) {
	i, ok := c.badgeIndex[id]
	if !ok {
		return BadgeDefinition{}, false
	}
	return c.badges[i], true
}

// badgePosition orders badge ids by catalog position; unknown ids sort last.
func (c *Catalog) badgePosition(id string) int {
	if i, ok := c.badgeIndex[id]; ok {
		return i
	}
	return len(c.badges)
}

// Streak returns the login-streak bonus policy.
func (c *Catalog) Streak() StreakConfig {
	return c.streak
}

// IsStreakMilestone reports whether a streak length lands on a bonus day.
func (c *Catalog) IsStreakMilestone(streak int) bool {
	return streak > 0 && streak%c.streak.MilestoneEvery == 0
}

// StreakBonusXP is the fixed milestone bonus amount.
func (c *Catalog) StreakBonusXP() int64 {
	return c.actions[c.streak.BonusAction].XP
}

var (
	catalogOnce  sync.Once
	catalogCache *Catalog
	catalogErr   error
)

// CurrentCatalog returns the process-wide catalog: the YAML override when
// GAMIFICATION_CATALOG_YAML points at a valid file, otherwise the embedded
// defaults, otherwise the compiled-in fallback.
func CurrentCatalog(log *logger.Logger) *Catalog {
	catalogOnce.Do(func() {
		catalogCache, catalogErr = loadCatalog()
	})
	if catalogErr != nil {
		if log != nil {
			log.Warn("gamification: catalog load failed; using fallback", "error", catalogErr)
		}
		return fallbackCatalog()
	}
	return catalogCache
}

func loadCatalog() (*Catalog, error) {
	data, err := readCatalogSpec()
	if err != nil {
		return nil, err
	}
	cfg, err := parseCatalogYAML(data)
	if err != nil {
		return nil, err
	}
	return NewCatalog(cfg)
}

func readCatalogSpec() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(catalogEnv)); path != "" {
		return os.ReadFile(path)
	}
	return catalogSpecFS.ReadFile("catalog.yaml")
}

// LoadCatalogFile parses and validates a catalog YAML file. Used by tooling
// that wants explicit errors instead of the fallback behavior.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := parseCatalogYAML(data)
	if err != nil {
		return nil, err
	}
	return NewCatalog(cfg)
}

type yamlCatalogSpec struct {
	Catalog         string           `yaml:"catalog"`
	Version         int              `yaml:"version"`
	LevelThresholds []int64          `yaml:"level_thresholds"`
	Actions         []yamlActionSpec `yaml:"actions"`
	Streak          yamlStreakSpec   `yaml:"streak"`
	Badges          []yamlBadgeSpec  `yaml:"badges"`
}

type yamlActionSpec struct {
	Type    string `yaml:"type"`
	XP      int64  `yaml:"xp"`
	Counter string `yaml:"counter"`
}

type yamlStreakSpec struct {
	MilestoneEvery int    `yaml:"milestone_every"`
	BonusAction    string `yaml:"bonus_action"`
}

type yamlBadgeSpec struct {
	ID           string                `yaml:"id"`
	Name         string                `yaml:"name"`
	Description  string                `yaml:"description"`
	Category     string                `yaml:"category"`
	Requirements []yamlRequirementSpec `yaml:"requirements"`
}

type yamlRequirementSpec struct {
	Kind      string `yaml:"kind"`
	Field     string `yaml:"field"`
	Threshold int64  `yaml:"threshold"`
}

func parseCatalogYAML(data []byte) (CatalogConfig, error) {
	var spec yamlCatalogSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return CatalogConfig{}, err
	}
	if strings.TrimSpace(spec.Catalog) != "gamification" {
		return CatalogConfig{}, fmt.Errorf("unexpected catalog: %s", spec.Catalog)
	}
	cfg := CatalogConfig{
		LevelThresholds: spec.LevelThresholds,
		Streak: StreakConfig{
			MilestoneEvery: spec.Streak.MilestoneEvery,
			BonusAction:    ActionType(spec.Streak.BonusAction),
		},
	}
	for _, a := range spec.Actions {
		cfg.Actions = append(cfg.Actions, ActionConfig{
			Type:    ActionType(strings.TrimSpace(a.Type)),
			XP:      a.XP,
			Counter: strings.TrimSpace(a.Counter),
		})
	}
	for _, b := range spec.Badges {
		def := BadgeDefinition{
			ID:          strings.TrimSpace(b.ID),
			Name:        strings.TrimSpace(b.Name),
			Description: strings.TrimSpace(b.Description),
			Category:    strings.TrimSpace(b.Category),
		}
		for _, r := range b.Requirements {
			req, err := requirementFromYAML(r)
			if err != nil {
				return CatalogConfig{}, fmt.Errorf("badge %s: %w", def.ID, err)
			}
			def.Requirements = append(def.Requirements, req)
		}
		cfg.Badges = append(cfg.Badges, def)
	}
	return cfg, nil
}

func requirementFromYAML(r yamlRequirementSpec) (Requirement, error) {
	switch strings.TrimSpace(r.Kind) {
	case "xp":
		return XPRequirement{Threshold: r.Threshold}, nil
	case "activity_count":
		return ActivityCountRequirement{Field: strings.TrimSpace(r.Field), Threshold: r.Threshold}, nil
	case "streak":
		return StreakRequirement{Threshold: int(r.Threshold)}, nil
	default:
		return nil, fmt.Errorf("unknown requirement kind %q", r.Kind)
	}
}

var fallbackOnce sync.Once
var fallbackCache *Catalog

// fallbackCatalog mirrors catalog.yaml in Go so a broken override can never
// leave the engine without a catalog.
func fallbackCatalog() *Catalog {
	fallbackOnce.Do(func() {
		cat, err := NewCatalog(fallbackCatalogConfig())
		if err != nil {
			panic(fmt.Sprintf("gamification: fallback catalog invalid: %v", err))
		}
		fallbackCache = cat
	})
	return fallbackCache
}

func fallbackCatalogConfig() CatalogConfig {
	return CatalogConfig{
		LevelThresholds: []int64{100, 250, 500, 1000, 2000, 3500, 5500, 8000, 11000, 15000},
		Actions: []ActionConfig{
			{Type: ActionQuestCompleted, XP: 15, Counter: CounterQuestsCompleted},
			{Type: ActionAppAdded, XP: 10, Counter: CounterAppsAdded},
			{Type: ActionReviewSubmitted, XP: 5, Counter: CounterReviewsSubmitted},
			{Type: ActionProfileCompleted, XP: 25, Counter: CounterProfileUpdates},
			{Type: ActionAppViewed, XP: 0},
			{Type: ActionStreakMilestone, XP: 50, Counter: CounterStreakMilestones},
		},
		Streak: StreakConfig{MilestoneEvery: 7, BonusAction: ActionStreakMilestone},
		Badges: []BadgeDefinition{
			{
				ID: "xp_100", Name: "Centurion", Description: "Reach 100 lifetime XP.", Category: "milestones",
				Requirements: []Requirement{XPRequirement{Threshold: 100}},
			},
			{
				ID: "xp_1000", Name: "XP Veteran", Description: "Reach 1,000 lifetime XP.", Category: "milestones",
				Requirements: []Requirement{XPRequirement{Threshold: 1000}},
			},
			{
				ID: "quests_10", Name: "Quest Hunter", Description: "Complete 10 quests.", Category: "quests",
				Requirements: []Requirement{ActivityCountRequirement{Field: CounterQuestsCompleted, Threshold: 10}},
			},
			{
				ID: "quests_50", Name: "Quest Master", Description: "Complete 50 quests.", Category: "quests",
				Requirements: []Requirement{ActivityCountRequirement{Field: CounterQuestsCompleted, Threshold: 50}},
			},
			{
				ID: "apps_5", Name: "App Collector", Description: "Add 5 apps to your library.", Category: "apps",
				Requirements: []Requirement{ActivityCountRequirement{Field: CounterAppsAdded, Threshold: 5}},
			},
			{
				ID: "reviews_25", Name: "Critic", Description: "Submit 25 reviews.", Category: "reviews",
				Requirements: []Requirement{ActivityCountRequirement{Field: CounterReviewsSubmitted, Threshold: 25}},
			},
			{
				ID: "streak_7", Name: "One Week Streak", Description: "Log in 7 days in a row.", Category: "streaks",
				Requirements: []Requirement{StreakRequirement{Threshold: 7}},
			},
			{
				ID: "streak_30", Name: "Monthly Devotion", Description: "Log in 30 days in a row.", Category: "streaks",
				Requirements: []Requirement{StreakRequirement{Threshold: 30}},
			},
			{
				ID: "power_user", Name: "Power User", Description: "Reach 500 XP with 3 apps added and a 3-day streak.", Category: "special",
				Requirements: []Requirement{
					XPRequirement{Threshold: 500},
					ActivityCountRequirement{Field: CounterAppsAdded, Threshold: 3},
					StreakRequirement{Threshold: 3},
				},
			},
		},
	}
}
