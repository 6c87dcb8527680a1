package gamification

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	types "github.com/appquest/appquest-backend/internal/domain/gamification"
)

// MemoryProfileStore is a map-backed ProfileStore. It is the default
// provider for local runs and the workhorse of the aggregate tests.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*types.Profile
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[uuid.UUID]*types.Profile)}
}

func (s *MemoryProfileStore) GetByID(ctx context.Context, userID uuid.UUID) (*types.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (s *MemoryProfileStore) InsertIfAbsent(ctx context.Context, p *types.Profile) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; ok {
		return false, nil
	}
	s.profiles[p.UserID] = p.Clone()
	return true, nil
}

func (s *MemoryProfileStore) UpdateIfMatch(ctx context.Context, userID uuid.UUID, expected ExpectedFields, next *types.Profile) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.profiles[userID]
	if !ok {
		return false, nil
	}
	if cur.XP != expected.XP || cur.Level != expected.Level {
		return false, nil
	}
	s.profiles[userID] = next.Clone()
	return true, nil
}

func (s *MemoryProfileStore) Overwrite(ctx context.Context, next *types.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[next.UserID] = next.Clone()
	return nil
}

func (s *MemoryProfileStore) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sortUserIDs(ids)
	return ids, nil
}

// Corrupt replaces a stored profile wholesale, bypassing the guard. Tests
// use it to simulate writers outside this process.
func (s *MemoryProfileStore) Corrupt(userID uuid.UUID, p *types.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = p.Clone()
}

func sortUserIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
