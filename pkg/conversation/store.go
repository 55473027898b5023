package conversation

import "sync"

// DefaultMaxHistory is the number of turns retained per identity.
const DefaultMaxHistory = 5

// Turn is one user message paired with the reply sent back.
type Turn struct {
	User  string
	Agent string
}

// history is a fixed-capacity ring of turns; start indexes the oldest entry.
type history struct {
	turns []Turn
	start int
	size  int
}

func newHistory(capacity int) *history {
	return &history{turns: make([]Turn, capacity)}
}

func (h *history) push(t Turn) {
	capacity := len(h.turns)
	if h.size < capacity {
		h.turns[(h.start+h.size)%capacity] = t
		h.size++
		return
	}
	h.turns[h.start] = t
	h.start = (h.start + 1) % capacity
}

func (h *history) recent(n int) []Turn {
	if n > h.size {
		n = h.size
	}
	out := make([]Turn, 0, n)
	capacity := len(h.turns)
	for i := h.size - n; i < h.size; i++ {
		out = append(out, h.turns[(h.start+i)%capacity])
	}
	return out
}

// Store keeps a bounded, in-memory history per identity.
// It is safe for concurrent use.
type Store struct {
	maxHistory int

	mu        sync.Mutex
	histories map[string]*history

	locksMu sync.Mutex
	locks   map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates a store retaining at most maxHistory turns per identity.
func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		maxHistory: maxHistory,
		histories:  make(map[string]*history),
		locks:      make(map[string]*identityLock),
	}
}

// MaxHistory returns the per-identity capacity.
func (s *Store) MaxHistory() int { return s.maxHistory }

// GetRecent returns at most the last n turns for id, oldest first.
// The returned slice is a copy; unknown identities yield an empty slice.
func (s *Store) GetRecent(id string, n int) []Turn {
	if n <= 0 {
		return []Turn{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[id]
	if !ok {
		return []Turn{}
	}
	return h.recent(n)
}

// Append records t as the newest turn for id, evicting the oldest turns
// beyond the store capacity.
func (s *Store) Append(id string, t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[id]
	if !ok {
		h = newHistory(s.maxHistory)
		s.histories[id] = h
	}
	h.push(t)
}

// Len returns the number of turns held for id.
func (s *Store) Len(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histories[id]; ok {
		return h.size
	}
	return 0
}

// Identities returns how many identities have stored history.
func (s *Store) Identities() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.histories)
}

// Lock serializes work for a single identity. Callers must invoke the
// returned function exactly once. Distinct identities never contend.
func (s *Store) Lock(id string) (unlock func()) {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &identityLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.locksMu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, id)
			}
			s.locksMu.Unlock()
		})
	}
}
