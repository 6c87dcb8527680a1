package gamification

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrChecksumMismatch marks a backup whose data no longer matches its
// recorded checksum.
var ErrChecksumMismatch = errors.New("backup checksum mismatch")

// Backup is an immutable, checksummed snapshot of one profile.
type Backup struct {
	UserID    uuid.UUID `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
	Data      *Profile  `json:"data"`
	Version   int       `json:"version"`
	Checksum  string    `json:"checksum"`
}

// NewBackup snapshots a profile with a freshly computed checksum. The data
// is cloned so later aggregate mutations cannot bleed into the snapshot.
func NewBackup(p *Profile, version int) (*Backup, error) {
	if p == nil {
		return nil, errors.New("cannot back up nil profile")
	}
	data := p.Clone()
	sum, err := ChecksumProfile(data)
	if err != nil {
		return nil, err
	}
	return &Backup{
		UserID:    p.UserID,
		Timestamp: time.Now().UTC(),
		Data:      data,
		Version:   version,
		Checksum:  sum,
	}, nil
}

// ChecksumProfile hashes the canonical JSON serialization of a profile.
// Struct field order and sorted map keys make the serialization stable, so
// the checksum survives a store-and-reload round trip.
func ChecksumProfile(p *Profile) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("canonical profile serialization: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum recomputes the data checksum and fails with
// ErrChecksumMismatch on any difference.
func (b *Backup) VerifyChecksum() error {
	if b == nil {
		return errors.New("nil backup")
	}
	sum, err := ChecksumProfile(b.Data)
	if err != nil {
		return err
	}
	if sum != b.Checksum {
		return fmt.Errorf("%w: recorded %s, computed %s", ErrChecksumMismatch, b.Checksum, sum)
	}
	return nil
}
