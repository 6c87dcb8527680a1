// Package gamification provides the persistence stores behind the
// gamification profile aggregate. Every store implements the same
// conditional-write contract so the aggregate can run its optimistic
// concurrency loop against Postgres, SQLite, Redis, Badger, Neo4j or an
// in-memory map without caring which backend is wired in.
package gamification

import (
	"context"
	"errors"

	"github.com/google/uuid"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

// ErrCorruptPayload marks a stored profile whose payload no longer decodes.
// The aggregate treats it as recoverable corruption rather than an outage.
var ErrCorruptPayload = errors.New("profile payload does not decode")

// ExpectedFields is the guard for conditional profile writes. A write
// succeeds only when the persisted row still carries these values.
type ExpectedFields struct {
	XP    int64
	Level int
}

// ProfileStore persists gamification profiles.
//
// GetByID returns (nil, nil) when no profile exists for the user.
// InsertIfAbsent and UpdateIfMatch report (false, nil) when they lose a
// race or the guard does not match; callers re-read and retry.
// Overwrite replaces the stored profile unconditionally, creating it if
// needed. It is reserved for recovery flows that have already validated
// what they are writing.
type ProfileStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*types.Profile, error)
	InsertIfAbsent(ctx context.Context, p *types.Profile) (bool, error)
	UpdateIfMatch(ctx context.Context, userID uuid.UUID, expected ExpectedFields, next *types.Profile) (bool, error)
	Overwrite(ctx context.Context, next *types.Profile) error
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// BackupStore persists checksummed profile snapshots. Versions are
// monotonically increasing per user; Latest returns (nil, nil) when the
// user has no backups and Get returns (nil, nil) for an unknown version.
type BackupStore interface {
	Save(ctx context.Context, b *types.Backup) error
	Latest(ctx context.Context, userID uuid.UUID) (*types.Backup, error)
	Get(ctx context.Context, userID uuid.UUID, version int) (*types.Backup, error)
}

// AuditSink records profiles that failed integrity validation before the
// aggregate reset them. Sinks must not fail the caller's read path; they
// report errors for observability only.
type AuditSink interface {
	RecordCorruption(ctx context.Context, userID uuid.UUID, reasons []string, snapshot *types.Profile) error
}
