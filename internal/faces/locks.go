package faces

import (
	"fmt"
	"sync"

	"photo-library/internal/apperr"
)

// ownerLocks is a keyed mutex serializing catalog writes to the face groups
// of one owner.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[int64]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[int64]*ownerLock)}
}

// lock blocks until owner's lock is held and returns its release function.
func (l *ownerLocks) lock(owner int64) func() {
	l.mu.Lock()
	entry, ok := l.locks[owner]
	if !ok {
		entry = &ownerLock{}
		l.locks[owner] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, owner)
		}
		l.mu.Unlock()
	}
}

// inflight tracks the face groups a mutation is operating on.
type inflight struct {
	mu     sync.Mutex
	groups map[int64]bool
}

func newInflight() *inflight {
	return &inflight{groups: make(map[int64]bool)}
}

// claim marks every group busy, or none when one of them already is.
func (f *inflight) claim(ids ...int64) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		if f.groups[id] {
			return nil, fmt.Errorf("face group %d is being modified: %w", id, apperr.ErrConflict)
		}
	}
	for _, id := range ids {
		f.groups[id] = true
	}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, id := range ids {
			delete(f.groups, id)
		}
	}, nil
}
