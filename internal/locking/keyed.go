package locking

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout means the bounded wait for a per-key exclusive section
// elapsed. Callers treat it as transient and requeue the candidate.
var ErrLockTimeout = errors.New("timed out waiting for key lock")

// KeyedLocker serializes the check-then-act window of resolution per natural
// deduplication key. Acquire blocks at most wait; the returned release func
// is idempotent.
type KeyedLocker interface {
	Acquire(ctx context.Context, key string, wait time.Duration) (func(), error)
}

type lockEntry struct {
	token chan struct{}
	refs  int
}

// KeyedMutex is the in-process KeyedLocker used when a single instance owns
// the database. Entries are refcounted and dropped once unused, so the key
// space does not grow with history.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: map[string]*lockEntry{}}
}

func (k *KeyedMutex) Acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{token: make(chan struct{}, 1)}
		entry.token <- struct{}{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-entry.token:
		var once sync.Once
		release := func() {
			once.Do(func() {
				entry.token <- struct{}{}
				k.unref(key, entry)
			})
		}
		return release, nil
	case <-timer.C:
		k.unref(key, entry)
		return nil, ErrLockTimeout
	case <-ctx.Done():
		k.unref(key, entry)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) unref(key string, entry *lockEntry) {
	k.mu.Lock()
	entry.refs--
	if entry.refs <= 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()
}
