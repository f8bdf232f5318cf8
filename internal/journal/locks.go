package journal

import "sync"

// ownerLocks hands out one mutex per owner id so clustering runs for the
// same owner serialize while runs for different owners proceed in parallel.
// Locks are never released from the map; the set of active owners is small
// and bounded by the user population.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *ownerLocks) get(ownerID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.locks[ownerID]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.locks[ownerID] = m
	return m
}
