package namespace

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Locker hands out one exclusive lock per key. Entries are reference counted
// and dropped once no caller holds or waits for them.
type Locker struct {
	mu      sync.Mutex
	entries map[Key]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewLocker creates an empty Locker
func NewLocker() *Locker {
	return &Locker{entries: make(map[Key]*lockEntry)}
}

// Lock blocks until the key is free or ctx is done. The returned function
// releases the lock.
func (l *Locker) Lock(ctx context.Context, key Key) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.release(key, entry)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.release(key, entry)
		})
	}, nil
}

func (l *Locker) release(key Key, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// Len reports the number of keys currently held or awaited
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
