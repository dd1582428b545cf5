package digest

import (
	"context"
	"sync"
	"time"
)

// Locker serialises flushes of one bucket across processes.
type Locker interface {
	// Acquire takes the lock for key or returns ErrLockHeld. The lock expires
	// after ttl if release is never called.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// keyedMutex serialises flushes of one bucket inside the process.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[BucketKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key BucketKey) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[BucketKey]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
