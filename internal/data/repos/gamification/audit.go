package gamification

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

// LogAuditSink records corruption events to the structured log only. It is
// the fallback sink for providers without a relational database.
type LogAuditSink struct {
	log *logger.Logger
}

func NewLogAuditSink(baseLog *logger.Logger) *LogAuditSink {
	return &LogAuditSink{log: baseLog.With("sink", "CorruptionAudit")}
}

func (s *LogAuditSink) RecordCorruption(ctx context.Context, userID uuid.UUID, reasons []string, snapshot *types.Profile) error {
	s.log.Warn("corrupted profile discarded",
		"user_id", userID.String(),
		"reasons", strings.Join(reasons, "; "),
		"had_snapshot", snapshot != nil,
	)
	return nil
}

// GormAuditSink appends one gamification_corruption_audit row per event,
// preserving the discarded state for later inspection.
type GormAuditSink struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGormAuditSink(db *gorm.DB, baseLog *logger.Logger) *GormAuditSink {
	return &GormAuditSink{db: db, log: baseLog.With("sink", "CorruptionAudit")}
}

func (s *GormAuditSink) RecordCorruption(ctx context.Context, userID uuid.UUID, reasons []string, snapshot *types.Profile) error {
	rec := &types.CorruptionAuditRecord{
		ID:         uuid.New(),
		UserID:     userID,
		Reason:     strings.Join(reasons, "; "),
		DetectedAt: time.Now().UTC(),
	}
	if snapshot != nil {
		raw, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		rec.Snapshot = datatypes.JSON(raw)
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		s.log.Error("failed to persist corruption audit", "user_id", userID.String(), "error", err)
		return err
	}
	return nil
}

// MemoryAuditSink collects events in memory for tests.
type MemoryAuditSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

type AuditEvent struct {
	UserID   uuid.UUID
	Reasons  []string
	Snapshot *types.Profile
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) RecordCorruption(ctx context.Context, userID uuid.UUID, reasons []string, snapshot *types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, AuditEvent{
		UserID:   userID,
		Reasons:  append([]string(nil), reasons...),
		Snapshot: snapshot.Clone(),
	})
	return nil
}

func (s *MemoryAuditSink) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}
