package gamification

import (
	"context"
	"encoding/json"
	"errors"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

const badgerProfilePrefix = "gamification/profile/"

// BadgerProfileStore keeps profiles in an embedded Badger database. Badger
// transactions are serializable, so a conditional write that raced another
// writer fails at commit with ErrConflict and reports a plain CAS miss.
type BadgerProfileStore struct {
	db  *badger.DB
	log *logger.Logger
}

func NewBadgerProfileStore(db *badger.DB, baseLog *logger.Logger) *BadgerProfileStore {
	return &BadgerProfileStore{db: db, log: baseLog.With("store", "BadgerProfileStore")}
}

func badgerProfileKey(userID uuid.UUID) []byte {
	return []byte(badgerProfilePrefix + userID.String())
}

func (s *BadgerProfileStore) GetByID(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p *types.Profile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerProfileKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error {
			decoded, err := decodeProfile(raw)
			if err != nil {
				return err
			}
			p = decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *BadgerProfileStore) InsertIfAbsent(ctx context.Context, p *types.Profile) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return false, err
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	key := badgerProfileKey(p.UserID)
	_, err = txn.Get(key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, err
	}
	if err := txn.Set(key, payload); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *BadgerProfileStore) UpdateIfMatch(ctx context.Context, userID uuid.UUID, expected ExpectedFields, next *types.Profile) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	key := badgerProfileKey(userID)
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var cur *types.Profile
	if err := item.Value(func(raw []byte) error {
		decoded, err := decodeProfile(raw)
		if err != nil {
			return err
		}
		cur = decoded
		return nil
	}); err != nil {
		return false, err
	}
	if cur.XP != expected.XP || cur.Level != expected.Level {
		return false, nil
	}
	if err := txn.Set(key, payload); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *BadgerProfileStore) Overwrite(ctx context.Context, next *types.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerProfileKey(next.UserID), payload)
	})
}

func (s *BadgerProfileStore) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := []uuid.UUID{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerProfilePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			id, err := uuid.Parse(key[len(badgerProfilePrefix):])
			if err != nil {
				s.log.Warn("skipping malformed profile key", "key", key)
				continue
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
