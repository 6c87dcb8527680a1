package gamification

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/platform/logger"
)

const redisProfilePrefix = "gamification:profile:"

// RedisProfileStore keeps profiles as JSON values under
// gamification:profile:<userID>. Conditional writes run as WATCH/MULTI
// transactions so a concurrent write to the same key aborts the EXEC.
type RedisProfileStore struct {
	rdb *goredis.Client
	log *logger.Logger
}

func NewRedisProfileStore(rdb *goredis.Client, baseLog *logger.Logger) *RedisProfileStore {
	return &RedisProfileStore{rdb: rdb, log: baseLog.With("store", "RedisProfileStore")}
}

func redisProfileKey(userID uuid.UUID) string {
	return redisProfilePrefix + userID.String()
}

func (s *RedisProfileStore) GetByID(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	raw, err := s.rdb.Get(ctx, redisProfileKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeProfile(raw)
}

func (s *RedisProfileStore) InsertIfAbsent(ctx context.Context, p *types.Profile) (bool, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	return s.rdb.SetNX(ctx, redisProfileKey(p.UserID), payload, 0).Result()
}

func (s *RedisProfileStore) UpdateIfMatch(ctx context.Context, userID uuid.UUID, expected ExpectedFields, next *types.Profile) (bool, error) {
	key := redisProfileKey(userID)
	payload, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	var matched bool
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		cur, err := decodeProfile(raw)
		if err != nil {
			return err
		}
		if cur.XP != expected.XP || cur.Level != expected.Level {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			matched = true
		}
		return err
	}

	err = s.rdb.Watch(ctx, txf, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return matched, nil
}

func (s *RedisProfileStore) Overwrite(ctx context.Context, next *types.Profile) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisProfileKey(next.UserID), payload, 0).Err()
}

func (s *RedisProfileStore) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	iter := s.rdb.Scan(ctx, 0, redisProfilePrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		id, err := uuid.Parse(iter.Val()[len(redisProfilePrefix):])
		if err != nil {
			s.log.Warn("skipping malformed profile key", "key", iter.Val())
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sortUserIDs(ids)
	return ids, nil
}

func decodeProfile(raw []byte) (*types.Profile, error) {
	var p types.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Join(ErrCorruptPayload, err)
	}
	if p.Badges == nil {
		p.Badges = []types.BadgeAward{}
	}
	if p.ActivityCounts == nil {
		p.ActivityCounts = map[string]int64{}
	}
	if p.XPHistory == nil {
		p.XPHistory = []types.XPTransaction{}
	}
	return &p, nil
}
