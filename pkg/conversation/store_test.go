package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStoreGetRecentAfterAppends(t *testing.T) {
	for n := 0; n <= 12; n++ {
		s := NewStore(DefaultMaxHistory)
		for i := 0; i < n; i++ {
			s.Append("whatsapp:+1", Turn{User: fmt.Sprintf("u%d", i), Agent: fmt.Sprintf("a%d", i)})
		}
		got := s.GetRecent("whatsapp:+1", 5)
		want := n
		if want > 5 {
			want = 5
		}
		if len(got) != want {
			t.Fatalf("n=%d: expected %d turns, got %d", n, want, len(got))
		}
		for i, turn := range got {
			idx := n - want + i
			if turn.User != fmt.Sprintf("u%d", idx) || turn.Agent != fmt.Sprintf("a%d", idx) {
				t.Fatalf("n=%d: turn %d mismatch: %+v", n, i, turn)
			}
		}
		if s.Len("whatsapp:+1") > DefaultMaxHistory {
			t.Fatalf("n=%d: history exceeded cap: %d", n, s.Len("whatsapp:+1"))
		}
	}
}

func TestStoreGetRecentSubset(t *testing.T) {
	s := NewStore(5)
	for i := 0; i < 7; i++ {
		s.Append("id", Turn{User: fmt.Sprintf("u%d", i)})
	}
	got := s.GetRecent("id", 3)
	if len(got) != 3 || got[0].User != "u4" || got[2].User != "u6" {
		t.Fatalf("unexpected recent turns: %+v", got)
	}
	if got := s.GetRecent("id", 0); len(got) != 0 {
		t.Fatalf("expected no turns for n=0, got %d", len(got))
	}
}

func TestStoreUnknownIdentity(t *testing.T) {
	s := NewStore(0)
	if s.MaxHistory() != DefaultMaxHistory {
		t.Fatalf("expected default cap, got %d", s.MaxHistory())
	}
	got := s.GetRecent("nobody", 3)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if s.Len("nobody") != 0 {
		t.Fatalf("GetRecent must not create history")
	}
}

func TestStoreGetRecentReturnsCopy(t *testing.T) {
	s := NewStore(5)
	s.Append("id", Turn{User: "hello", Agent: "hi"})
	got := s.GetRecent("id", 5)
	got[0].User = "mutated"
	if again := s.GetRecent("id", 5); again[0].User != "hello" {
		t.Fatalf("store was mutated through returned slice")
	}
}

func TestStoreIdentitiesIsolated(t *testing.T) {
	s := NewStore(5)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("id-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Append(id, Turn{User: id, Agent: fmt.Sprintf("%d", j)})
			}
		}()
	}
	wg.Wait()
	if n := s.Identities(); n != 8 {
		t.Fatalf("expected 8 identities, got %d", n)
	}
	for i := 0; i < 8; i++ {
		id := fmt.Sprintf("id-%d", i)
		got := s.GetRecent(id, 5)
		if len(got) != 5 {
			t.Fatalf("%s: expected 5 turns, got %d", id, len(got))
		}
		for k, turn := range got {
			if turn.User != id || turn.Agent != fmt.Sprintf("%d", 45+k) {
				t.Fatalf("%s: unexpected turn %d: %+v", id, k, turn)
			}
		}
	}
}

func TestStoreLockSerializesSameIdentity(t *testing.T) {
	s := NewStore(5)
	unlock := s.Lock("id")
	acquired := make(chan struct{})
	go func() {
		release := s.Lock("id")
		close(acquired)
		release()
	}()
	select {
	case <-acquired:
		t.Fatalf("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second lock never acquired")
	}
}

func TestStoreLockDistinctIdentities(t *testing.T) {
	s := NewStore(5)
	unlock := s.Lock("a")
	defer unlock()
	done := make(chan struct{})
	go func() {
		release := s.Lock("b")
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on distinct identity blocked")
	}
}

func TestStoreLockReleasesEntries(t *testing.T) {
	s := NewStore(5)
	unlock := s.Lock("id")
	unlock()
	unlock()
	s.locksMu.Lock()
	n := len(s.locks)
	s.locksMu.Unlock()
	if n != 0 {
		t.Fatalf("expected lock table to be empty, got %d", n)
	}
}
