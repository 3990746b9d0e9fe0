package vault

import (
	"testing"
	"time"
)

func TestSuppressor_ActiveWithinWindow(t *testing.T) {
	s := newSuppressor(100 * time.Millisecond)
	s.Mark("a.md")

	if !s.Active("a.md") {
		t.Error("expected a.md to be suppressed immediately after Mark")
	}
	if s.Active("other.md") {
		t.Error("unmarked path should not be suppressed")
	}
}

func TestSuppressor_ExpiresAfterWindow(t *testing.T) {
	s := newSuppressor(50 * time.Millisecond)
	s.Mark("a.md")

	time.Sleep(80 * time.Millisecond)
	if s.Active("a.md") {
		t.Error("expected suppression to expire after the window")
	}
}

func TestSuppressor_LazyPrune(t *testing.T) {
	s := newSuppressor(10 * time.Millisecond)
	s.Mark("a.md")
	s.Mark("b.md")

	time.Sleep(30 * time.Millisecond)
	s.Active("c.md") // lookup prunes expired entries

	s.mu.Lock()
	remaining := len(s.until)
	s.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected expired entries pruned, %d remain", remaining)
	}
}

func TestSuppressor_Clear(t *testing.T) {
	s := newSuppressor(time.Minute)
	s.Mark("a.md")
	s.Clear()
	if s.Active("a.md") {
		t.Error("expected no suppression after Clear")
	}
}
