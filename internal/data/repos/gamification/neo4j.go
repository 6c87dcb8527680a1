package gamification

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/appquest/appquest-backend/internal/domain/gamification"
	"github.com/appquest/appquest-backend/internal/platform/logger"
	"github.com/appquest/appquest-backend/internal/platform/neo4jdb"
)

// Neo4jProfileStore keeps each profile as a GamificationProfile node. The
// guard fields live as node properties so the conditional write is a single
// guarded SET; the full document rides along in the data property.
type Neo4jProfileStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jProfileStore(client *neo4jdb.Client, baseLog *logger.Logger) *Neo4jProfileStore {
	s := &Neo4jProfileStore{client: client, log: baseLog.With("store", "Neo4jProfileStore")}
	s.initSchema()
	return s
}

// Best-effort schema init, mirroring how the concept graph bootstraps its
// constraints. Failure is logged and the store carries on.
func (s *Neo4jProfileStore) initSchema() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	if res, err := session.Run(ctx, `CREATE CONSTRAINT gamification_profile_user_id_unique IF NOT EXISTS FOR (p:GamificationProfile) REQUIRE p.userId IS UNIQUE`, nil); err != nil {
		s.log.Warn("neo4j schema init failed (continuing)", "error", err)
	} else {
		_, _ = res.Consume(ctx)
	}
}

func (s *Neo4jProfileStore) newSession(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.client.Database,
	})
}

func (s *Neo4jProfileStore) GetByID(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	session := s.newSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (p:GamificationProfile {userId: $user_id})
RETURN p.data AS data
`, map[string]any{"user_id": userID.String()})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		raw, _ := records[0].Get("data")
		data, _ := raw.(string)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return decodeProfile([]byte(out.(string)))
}

func (s *Neo4jProfileStore) InsertIfAbsent(ctx context.Context, p *types.Profile) (bool, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
OPTIONAL MATCH (existing:GamificationProfile {userId: $user_id})
WITH existing
WHERE existing IS NULL
CREATE (p:GamificationProfile {userId: $user_id, xp: $xp, level: $level, data: $data, updatedAt: $updated_at})
RETURN count(p) AS created
`, map[string]any{
			"user_id":    p.UserID.String(),
			"xp":         p.XP,
			"level":      int64(p.Level),
			"data":       string(payload),
			"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		created, _ := record.Get("created")
		n, _ := created.(int64)
		return n > 0, nil
	})
	if err != nil {
		if isConstraintViolation(err) {
			return false, nil
		}
		return false, err
	}
	return out.(bool), nil
}

func (s *Neo4jProfileStore) UpdateIfMatch(ctx context.Context, userID uuid.UUID, expected ExpectedFields, next *types.Profile) (bool, error) {
	payload, err := json.Marshal(next)
	if err != nil {
		return false, err
	}
	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (p:GamificationProfile {userId: $user_id})
WHERE p.xp = $expected_xp AND p.level = $expected_level
SET p.xp = $xp, p.level = $level, p.data = $data, p.updatedAt = $updated_at
RETURN count(p) AS updated
`, map[string]any{
			"user_id":        userID.String(),
			"expected_xp":    expected.XP,
			"expected_level": int64(expected.Level),
			"xp":             next.XP,
			"level":          int64(next.Level),
			"data":           string(payload),
			"updated_at":     time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		updated, _ := record.Get("updated")
		n, _ := updated.(int64)
		return n > 0, nil
	})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

func (s *Neo4jProfileStore) Overwrite(ctx context.Context, next *types.Profile) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	session := s.newSession(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (p:GamificationProfile {userId: $user_id})
SET p.xp = $xp, p.level = $level, p.data = $data, p.updatedAt = $updated_at
`, map[string]any{
			"user_id":    next.UserID.String(),
			"xp":         next.XP,
			"level":      int64(next.Level),
			"data":       string(payload),
			"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}

func (s *Neo4jProfileStore) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	session := s.newSession(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (p:GamificationProfile)
RETURN p.userId AS user_id
ORDER BY p.userId
`, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, 0, len(records))
		for _, rec := range records {
			raw, _ := rec.Get("user_id")
			str, _ := raw.(string)
			id, err := uuid.Parse(str)
			if err != nil {
				s.log.Warn("skipping malformed profile node", "user_id", str)
				continue
			}
			ids = append(ids, id)
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]uuid.UUID), nil
}

func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "ConstraintValidationFailed") ||
		strings.Contains(strings.ToLower(msg), "already exists")
}
