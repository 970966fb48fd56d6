package scheduler

import (
	"sync"

	"apiwatch/internal/domain"
)

// Lease guarantees at most one in-flight check per target. A tick that
// finds the lease taken skips instead of queueing, so a slow probe never
// builds a backlog.
type Lease struct {
	mu   sync.Mutex
	held map[domain.TargetID]struct{}
}

func NewLease() *Lease {
	return &Lease{held: make(map[domain.TargetID]struct{})}
}

func (l *Lease) TryAcquire(id domain.TargetID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[id]; taken {
		return false
	}
	l.held[id] = struct{}{}
	return true
}

func (l *Lease) Release(id domain.TargetID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}
