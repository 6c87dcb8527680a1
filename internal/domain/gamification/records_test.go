package gamification

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

func TestProfileRecordRoundTrip(t *testing.T) {
	p := backupFixtureProfile(t)
	d := p.XPHistory[0].Timestamp
	p.Streaks = Streaks{CurrentLoginStreak: 2, LongestLoginStreak: 6, LastLoginDate: &d}

	rec, err := NewProfileRecord(p)
	if err != nil {
		t.Fatalf("NewProfileRecord: %v", err)
	}
	if rec.XP != p.XP || rec.Level != p.Level || rec.UserID != p.UserID {
		t.Fatalf("native columns: %+v", rec)
	}
	back, err := rec.ToProfile()
	if err != nil {
		t.Fatalf("ToProfile: %v", err)
	}
	if !reflect.DeepEqual(back, p) {
		t.Fatalf("round trip: want=%+v got=%+v", p, back)
	}
}

func TestProfileRecord_NullBagsNormalize(t *testing.T) {
	rec := &ProfileRecord{
		UserID: uuid.New(),
		XP:     0,
		Level:  1,
		Badges: datatypes.JSON([]byte("null")),
	}
	p, err := rec.ToProfile()
	if err != nil {
		t.Fatalf("ToProfile: %v", err)
	}
	if p.Badges == nil || p.ActivityCounts == nil || p.XPHistory == nil {
		t.Fatalf("bags must hydrate to empty containers, got %+v", p)
	}
}

func TestBackupRecordRoundTrip(t *testing.T) {
	p := backupFixtureProfile(t)
	b, err := NewBackup(p, 3)
	if err != nil {
		t.Fatalf("NewBackup: %v", err)
	}
	rec, err := NewBackupRecord(b)
	if err != nil {
		t.Fatalf("NewBackupRecord: %v", err)
	}
	if rec.ID == uuid.Nil {
		t.Fatalf("backup record id not assigned")
	}
	back, err := rec.ToBackup()
	if err != nil {
		t.Fatalf("ToBackup: %v", err)
	}
	if back.Checksum != b.Checksum || back.Version != b.Version || back.UserID != b.UserID {
		t.Fatalf("backup header round trip: %+v", back)
	}
	if err := back.VerifyChecksum(); err != nil {
		t.Fatalf("checksum must survive the record round trip: %v", err)
	}
}
