package vault

import (
	"sync"
	"time"
)

// suppressor tracks paths recently written on behalf of the remote so the
// watcher's resulting notifications are recognized as echoes and discarded.
// A path must be marked before the write reaches disk; the watcher must not
// be able to race ahead of the mark.
type suppressor struct {
	window time.Duration

	mu    sync.Mutex
	until map[string]time.Time
}

func newSuppressor(window time.Duration) *suppressor {
	return &suppressor{
		window: window,
		until:  make(map[string]time.Time),
	}
}

// Mark records that path is about to be written by the remote. Events for it
// are treated as echoes until the window elapses.
func (s *suppressor) Mark(path string) {
	s.mu.Lock()
	s.until[path] = time.Now().Add(s.window)
	s.mu.Unlock()
}

// Active reports whether path is currently suppressed. Expired entries are
// lazily pruned on lookup; an active entry is left to expire naturally.
func (s *suppressor) Active(path string) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, t := range s.until {
		if now.After(t) {
			delete(s.until, p)
		}
	}
	t, ok := s.until[path]
	return ok && now.Before(t)
}

// Clear drops all suppression state.
func (s *suppressor) Clear() {
	s.mu.Lock()
	s.until = make(map[string]time.Time)
	s.mu.Unlock()
}
