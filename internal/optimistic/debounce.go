// Package optimistic implements the client sync contract: speculative
// patches reconciled against authoritative snapshots, per-key
// debouncing for high-frequency mutations (drag, resize, prompt
// edits), and coordinated two-phase deletion so an animated removal
// deletes each agent exactly once however many observers report it.
package optimistic

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid calls per key into one trailing-edge
// invocation. Scheduling a key cancels its pending timer and installs
// a fresh one, so the table stays bounded by the number of live keys.
type Debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule runs fn after the delay unless the key is scheduled again
// first.
func (d *Debouncer) Schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops any pending invocation for the key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
		delete(d.timers, key)
	}
}

// Stop cancels every pending invocation.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
	}
}

// Pending reports how many keys have an invocation scheduled.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}
