package aggregates

import (
	"sync"

	"github.com/google/uuid"
)

// InflightGate is the per-user fast-fail exclusive section. It never
// queues: a second writer for the same user is rejected immediately so
// callers can back off on their own schedule. The gate is scoped to one
// aggregate instance; cross-instance safety comes from the storage CAS.
type InflightGate struct {
	mu    sync.Mutex
	users map[uuid.UUID]struct{}
}

func NewInflightGate() *InflightGate {
	return &InflightGate{users: make(map[uuid.UUID]struct{})}
}

// TryAcquire claims the user's slot if free. It never blocks.
func (g *InflightGate) TryAcquire(userID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.users[userID]; held {
		return false
	}
	g.users[userID] = struct{}{}
	return true
}

// Release frees the user's slot. Releasing an unheld slot is a no-op.
func (g *InflightGate) Release(userID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.users, userID)
}
