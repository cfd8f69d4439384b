package order

import (
	"sync"

	"kitchenline/internal/types"
)

// keyLocks hands out one mutex per order ID and forgets it once unused.
type keyLocks struct {
	mu sync.Mutex
	m  map[types.ID]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: make(map[types.ID]*keyLock)}
}

func (l *keyLocks) Lock(id types.ID) (unlock func()) {
	l.mu.Lock()
	k, ok := l.m[id]
	if !ok {
		k = &keyLock{}
		l.m[id] = k
	}
	k.refs++
	l.mu.Unlock()

	k.mu.Lock()
	return func() {
		k.mu.Unlock()
		l.mu.Lock()
		k.refs--
		if k.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
