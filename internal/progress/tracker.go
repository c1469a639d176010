package progress

import "sync"

// Callback receives progress as (completed, total).
type Callback func(completed, total int)

// Multi returns a Callback that invokes each non-nil callback in order.
func Multi(cbs ...Callback) Callback {
	return func(completed, total int) {
		for _, cb := range cbs {
			if cb != nil {
				cb(completed, total)
			}
		}
	}
}

// Tracker counts resolved segments for one download run.
type Tracker struct {
	mu        sync.Mutex
	completed int
	total     int
	cb        Callback
}

// NewTracker creates a tracker for total segments. cb may be nil.
func NewTracker(total int, cb Callback) *Tracker {
	return &Tracker{total: total, cb: cb}
}

// Increment records one resolved segment and returns the new count and the
// total. The callback runs before the lock is released, so no two callers
// observe the same count and observed counts never go backwards.
//
// Once completed reaches total further calls are no-ops.
func (t *Tracker) Increment() (completed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.completed >= t.total {
		return t.completed, t.total
	}

	t.completed++
	if t.cb != nil {
		t.cb(t.completed, t.total)
	}

	return t.completed, t.total
}

// Completed returns the number of resolved segments so far.
func (t *Tracker) Completed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Total returns the number of segments in the run.
func (t *Tracker) Total() int {
	return t.total
}
