// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package keymutex

import "sync"

// KeyedMutex is a set of mutexes indexed by string key. Locking a key
// blocks only other holders of the same key; distinct keys never
// contend. The zero value is not usable; construct with New.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu sync.Mutex

	// holders counts goroutines that have locked or are waiting to
	// lock this entry. Guarded by KeyedMutex.mu, not entry.mu. When
	// it drops to zero the entry is removed from the map.
	holders int
}

// New returns an empty KeyedMutex.
func New() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// Lock acquires the exclusive section for key, blocking while another
// goroutine holds it. Each Lock must be paired with exactly one Unlock
// for the same key, typically via defer.
func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		e = &entry{}
		km.entries[key] = e
	}
	e.holders++
	km.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the exclusive section for key. Panics (via the
// underlying mutex) if the section is not held.
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		km.mu.Unlock()
		panic("keymutex: Unlock of unheld key " + key)
	}
	e.holders--
	if e.holders == 0 {
		delete(km.entries, key)
	}
	km.mu.Unlock()

	e.mu.Unlock()
}

// Len returns the number of keys currently held or contended. Used by
// tests to verify entries are reclaimed.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.entries)
}
