package executive

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
)

const defaultLockEntries = 1024

// TurnLocks serializes turns per user. Idle locks live in a bounded cache;
// a lock that is held or waited on is pinned until released.
type TurnLocks struct {
	mu     sync.Mutex
	idle   *lru.Cache[string, *semaphore.Weighted]
	active map[string]*activeLock
}

type activeLock struct {
	sem  *semaphore.Weighted
	refs int
}

// NewTurnLocks creates a lock table keeping up to size idle locks
func NewTurnLocks(size int) *TurnLocks {
	if size <= 0 {
		size = defaultLockEntries
	}
	idle, _ := lru.New[string, *semaphore.Weighted](size)
	return &TurnLocks{
		idle:   idle,
		active: make(map[string]*activeLock),
	}
}

// Acquire blocks until the user's lock is free or ctx is done. The returned
// func releases it.
func (l *TurnLocks) Acquire(ctx context.Context, user string) (func(), error) {
	l.mu.Lock()
	a, ok := l.active[user]
	if !ok {
		sem, cached := l.idle.Get(user)
		if !cached {
			sem = semaphore.NewWeighted(1)
		}
		a = &activeLock{sem: sem}
		l.active[user] = a
	}
	a.refs++
	l.mu.Unlock()

	if err := a.sem.Acquire(ctx, 1); err != nil {
		l.unpin(user, a)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			a.sem.Release(1)
			l.unpin(user, a)
		})
	}, nil
}

func (l *TurnLocks) unpin(user string, a *activeLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a.refs--
	if a.refs == 0 {
		delete(l.active, user)
		l.idle.Add(user, a.sem)
	}
}

// Active returns the number of users with a held or awaited lock
func (l *TurnLocks) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}
