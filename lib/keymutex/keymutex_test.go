// Copyright 2026 The Evidentia Authors
// SPDX-License-Identifier: Apache-2.0

package keymutex

import (
	"sync"
	"testing"
)

func TestSameKeySerializes(t *testing.T) {
	km := New()

	const goroutines = 32
	const increments = 100

	// Without serialization this racy counter would lose updates
	// (and the race detector would flag it).
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				km.Lock("EVD-aaaa")
				counter++
				km.Unlock("EVD-aaaa")
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*increments {
		t.Errorf("counter = %d, want %d", counter, goroutines*increments)
	}
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	km := New()

	km.Lock("EVD-aaaa")
	defer km.Unlock("EVD-aaaa")

	// Locking a different key while the first is held must not block.
	done := make(chan struct{})
	go func() {
		km.Lock("EVD-bbbb")
		km.Unlock("EVD-bbbb")
		close(done)
	}()

	<-done
}

func TestEntriesReclaimed(t *testing.T) {
	km := New()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "CASE-2026-" + string(rune('A'+n%26))
			km.Lock(key)
			km.Unlock(key)
		}(i)
	}
	wg.Wait()

	if got := km.Len(); got != 0 {
		t.Errorf("Len after all unlocks = %d, want 0", got)
	}
}

func TestUnlockUnheldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Unlock of unheld key should panic")
		}
	}()
	New().Unlock("EVD-cccc")
}
