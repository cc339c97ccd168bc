package tasks

import (
	"fmt"
	"sync"

	"github.com/desertthunder/ytr/internal/shared"
)

// entityLocks guards cache entities against overlapping work. A command
// acquires its entity scope before touching the remote; a refresh acquires
// its collection. Acquisition is all-or-nothing so two operations can never
// deadlock on a shared subset.
type entityLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newEntityLocks() *entityLocks {
	return &entityLocks{held: make(map[string]struct{})}
}

// acquire takes every ID in the scope or none, returning
// [shared.ErrEntityBusy] naming the first contended entity.
func (l *entityLocks) acquire(ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		if _, ok := l.held[id]; ok {
			return fmt.Errorf("%w: %s", shared.ErrEntityBusy, id)
		}
	}
	for _, id := range ids {
		l.held[id] = struct{}{}
	}
	return nil
}

func (l *entityLocks) release(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		delete(l.held, id)
	}
}
