package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserLocksSerializeOneUser(t *testing.T) {
	locks := newUserLocks()
	var (
		wg      sync.WaitGroup
		inside  int
		maxSeen int
		mu      sync.Mutex
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(1)
			defer unlock()
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, locks.size(), "idle locks are released")
}

func TestUserLocksIndependentUsers(t *testing.T) {
	locks := newUserLocks()
	unlockA := locks.Lock(1)
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock(2)
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("user 2 blocked by user 1")
	}
	unlockA()
}

func TestUpdateWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := newUpdateWindow(time.Minute, func() time.Time { return now })

	assert.False(t, w.Seen(10))
	w.Mark(10)
	assert.True(t, w.Seen(10))

	w.Mark(0)
	assert.False(t, w.Seen(0), "zero ids are never tracked")

	now = now.Add(2 * time.Minute)
	assert.False(t, w.Seen(10), "expired after the window")
	w.Mark(11)
	assert.Equal(t, 1, w.size(), "marking sweeps expired ids")
}
