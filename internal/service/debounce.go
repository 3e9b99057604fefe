package service

import (
	"sync"
	"time"
)

// QueryDebouncer collapses bursts of query strings into a single dispatch
// after a quiet period, then drops the query if it equals the last one
// dispatched.
//
// The callback runs on a timer goroutine. A callback whose sequence number
// was superseded while it waited for the lock is discarded.
type QueryDebouncer struct {
	mu       sync.Mutex
	delay    time.Duration
	timer    *time.Timer
	pending  bool
	seq      uint64
	query    string
	last     string
	hasLast  bool
	callback func(query string)
}

// NewQueryDebouncer creates a debouncer that calls callback with the latest
// query once no new query arrived for delay.
func NewQueryDebouncer(delay time.Duration, callback func(query string)) *QueryDebouncer {
	return &QueryDebouncer{
		delay:    delay,
		callback: callback,
	}
}

// Submit schedules query, replacing any query still waiting out the window.
func (d *QueryDebouncer) Submit(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = true
	d.query = query
	d.seq++
	currentSeq := d.seq

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if !d.pending || d.seq != currentSeq {
			d.mu.Unlock()
			return
		}
		d.pending = false
		query, ok := d.takeLocked()
		d.mu.Unlock()
		if ok {
			d.callback(query)
		}
	})
}

// Flush dispatches a pending query immediately.
func (d *QueryDebouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	if !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	query, ok := d.takeLocked()
	d.mu.Unlock()
	if ok {
		d.callback(query)
	}
}

// Cancel drops any pending query.
func (d *QueryDebouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}

// Forget clears the last dispatched query so the next identical query is
// dispatched again.
func (d *QueryDebouncer) Forget() {
	d.mu.Lock()
	d.last = ""
	d.hasLast = false
	d.mu.Unlock()
}

// IsPending reports whether a query is waiting out the window.
func (d *QueryDebouncer) IsPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *QueryDebouncer) takeLocked() (string, bool) {
	if d.hasLast && d.last == d.query {
		return "", false
	}
	d.last = d.query
	d.hasLast = true
	return d.query, true
}
