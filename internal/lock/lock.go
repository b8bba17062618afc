// Package lock provides per-key mutual exclusion used to serialize all
// engine operations touching the same customer identity.
package lock

import (
	"context"
	"sync"
)

// Locker serializes work per key. Acquire blocks until the key's lock is
// held or ctx is done; the returned release function must be called once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is an in-process Locker backed by per-key channel semaphores.
// Suitable for single-instance deployments and tests; multi-instance
// deployments use the Redis locker instead.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

// NewKeyedMutex creates an in-process keyed locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Acquire takes the lock for key, waiting until it is free or ctx is done.
func (m *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &keyedEntry{ch: make(chan struct{}, 1)}
		m.entries[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			m.put(key, entry)
		}, nil
	case <-ctx.Done():
		m.put(key, entry)
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) put(key string, entry *keyedEntry) {
	m.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}
