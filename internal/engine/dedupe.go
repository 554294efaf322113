package engine

import (
	"sync"
	"time"
)

// DefaultDedupeWindow is how long an applied update id is remembered.
const DefaultDedupeWindow = 10 * time.Minute

// updateWindow remembers applied update ids for a bounded time.
type updateWindow struct {
	mu        sync.Mutex
	window    time.Duration
	seen      map[int]time.Time
	now       func() time.Time
	lastSweep time.Time
}

func newUpdateWindow(window time.Duration, now func() time.Time) *updateWindow {
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	if now == nil {
		now = time.Now
	}
	return &updateWindow{window: window, seen: make(map[int]time.Time), now: now}
}

// Seen reports whether id was marked within the window.
func (w *updateWindow) Seen(id int) bool {
	if id == 0 {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	at, ok := w.seen[id]
	return ok && w.now().Sub(at) < w.window
}

// Mark records id as applied.
func (w *updateWindow) Mark(id int) {
	if id == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.seen[id] = now
	if now.Sub(w.lastSweep) >= w.window {
		for k, at := range w.seen {
			if now.Sub(at) >= w.window {
				delete(w.seen, k)
			}
		}
		w.lastSweep = now
	}
}

func (w *updateWindow) size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
