package vault

import (
	"sync"
	"time"
)

// debouncer collapses a burst of events for the same path into a single
// callback once the window elapses. At most one task is outstanding per
// path; a newer event supersedes it.
type debouncer struct {
	window time.Duration
	fn     func(path string)

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newDebouncer(window time.Duration, fn func(string)) *debouncer {
	return &debouncer{
		window: window,
		fn:     fn,
		timers: make(map[string]*time.Timer),
	}
}

// Trigger schedules (or reschedules) the evaluation of path after the window.
func (d *debouncer) Trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	d.timers[path] = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		d.fn(path)
	})
}

// Stop cancels every outstanding task.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}
