package gamification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ProfileRecord is the relational shape of a profile: the conditional-write
// predicate (xp, level) as native columns, the rich bags as JSON documents.
// Records never carry a soft-delete column; profiles are never deleted.
type ProfileRecord struct {
	UserID uuid.UUID `gorm:"type:uuid;primaryKey;column:user_id" json:"user_id"`
	XP     int64     `gorm:"not null;column:xp" json:"xp"`
	Level  int       `gorm:"not null;column:level" json:"level"`

	Badges         datatypes.JSON `gorm:"type:jsonb;column:badges" json:"badges"`
	Streaks        datatypes.JSON `gorm:"type:jsonb;column:streaks" json:"streaks"`
	ActivityCounts datatypes.JSON `gorm:"type:jsonb;column:activity_counts" json:"activity_counts"`
	XPHistory      datatypes.JSON `gorm:"type:jsonb;column:xp_history" json:"xp_history"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ProfileRecord) TableName() string { return "gamification_profile" }

// NewProfileRecord flattens a profile for relational storage.
func NewProfileRecord(p *Profile) (*ProfileRecord, error) {
	badges, err := json.Marshal(p.Badges)
	if err != nil {
		return nil, err
	}
	streaks, err := json.Marshal(p.Streaks)
	if err != nil {
		return nil, err
	}
	counts, err := json.Marshal(p.ActivityCounts)
	if err != nil {
		return nil, err
	}
	history, err := json.Marshal(p.XPHistory)
	if err != nil {
		return nil, err
	}
	return &ProfileRecord{
		UserID:         p.UserID,
		XP:             p.XP,
		Level:          p.Level,
		Badges:         datatypes.JSON(badges),
		Streaks:        datatypes.JSON(streaks),
		ActivityCounts: datatypes.JSON(counts),
		XPHistory:      datatypes.JSON(history),
	}, nil
}

// ToProfile rehydrates the aggregate. Absent or null bags come back as the
// empty containers DefaultProfile uses, never nil.
func (r *ProfileRecord) ToProfile() (*Profile, error) {
	p := DefaultProfile(r.UserID)
	p.XP = r.XP
	p.Level = r.Level
	if present(r.Badges) {
		if err := json.Unmarshal(r.Badges, &p.Badges); err != nil {
			return nil, err
		}
	}
	if present(r.Streaks) {
		if err := json.Unmarshal(r.Streaks, &p.Streaks); err != nil {
			return nil, err
		}
	}
	if present(r.ActivityCounts) {
		if err := json.Unmarshal(r.ActivityCounts, &p.ActivityCounts); err != nil {
			return nil, err
		}
	}
	if present(r.XPHistory) {
		if err := json.Unmarshal(r.XPHistory, &p.XPHistory); err != nil {
			return nil, err
		}
	}
	if p.Badges == nil {
		p.Badges = []BadgeAward{}
	}
	if p.ActivityCounts == nil {
		p.ActivityCounts = map[string]int64{}
	}
	if p.XPHistory == nil {
		p.XPHistory = []XPTransaction{}
	}
	return p, nil
}

func present(raw datatypes.JSON) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// BackupRecord stores one checksummed snapshot per (user, version).
type BackupRecord struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_gamification_backup_user_version" json:"user_id"`
	Version   int            `gorm:"not null;uniqueIndex:idx_gamification_backup_user_version" json:"version"`
	Timestamp time.Time      `gorm:"not null" json:"timestamp"`
	Checksum  string         `gorm:"not null" json:"checksum"`
	Data      datatypes.JSON `gorm:"type:jsonb;column:data" json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

func (BackupRecord) TableName() string { return "gamification_backup" }

// NewBackupRecord flattens a backup for relational storage.
func NewBackupRecord(b *Backup) (*BackupRecord, error) {
	data, err := json.Marshal(b.Data)
	if err != nil {
		return nil, err
	}
	return &BackupRecord{
		ID:        uuid.New(),
		UserID:    b.UserID,
		Version:   b.Version,
		Timestamp: b.Timestamp,
		Checksum:  b.Checksum,
		Data:      datatypes.JSON(data),
	}, nil
}

// ToBackup rehydrates the snapshot.
func (r *BackupRecord) ToBackup() (*Backup, error) {
	b := &Backup{
		UserID:    r.UserID,
		Timestamp: r.Timestamp,
		Version:   r.Version,
		Checksum:  r.Checksum,
	}
	if present(r.Data) {
		var p Profile
		if err := json.Unmarshal(r.Data, &p); err != nil {
			return nil, err
		}
		b.Data = &p
	}
	return b, nil
}

// CorruptionAuditRecord preserves a discarded invalid profile for later
// inspection.
type CorruptionAuditRecord struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Reason     string         `gorm:"not null" json:"reason"`
	Snapshot   datatypes.JSON `gorm:"type:jsonb;column:snapshot" json:"snapshot"`
	DetectedAt time.Time      `gorm:"not null" json:"detected_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (CorruptionAuditRecord) TableName() string { return "gamification_corruption_audit" }
