package debounce

import (
	"sync"
	"time"
)

// Debouncer delays a function until input for a key has been quiet for the
// configured interval. Re-triggering a key cancels the pending timer, so only
// the last call within the window runs.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	pending  map[string]*time.Timer
	closed   bool
}

func New(interval time.Duration) *Debouncer {
	if interval < 0 {
		interval = 0
	}
	return &Debouncer{
		interval: interval,
		pending:  make(map[string]*time.Timer),
	}
}

// Trigger schedules fn for key, replacing any pending schedule for that key.
func (d *Debouncer) Trigger(key string, fn func()) {
	if fn == nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if timer, ok := d.pending[key]; ok {
		timer.Stop()
	}
	d.pending[key] = time.AfterFunc(d.interval, func() {
		d.mu.Lock()
		delete(d.pending, key)
		closed := d.closed
		d.mu.Unlock()
		if closed {
			return
		}
		fn()
	})
}

// Cancel drops any pending schedule for key without running it.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[key]; ok {
		timer.Stop()
		delete(d.pending, key)
	}
}

// Close cancels all pending schedules; the debouncer is unusable afterwards.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for key, timer := range d.pending {
		timer.Stop()
		delete(d.pending, key)
	}
}
