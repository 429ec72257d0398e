// Package session provides the in-memory conversation store for the
// orchestrator.
//
// The store keeps, per session identifier, an ordered list of turns capped
// to a fixed number of user/assistant pairs. State lives for the lifetime
// of the process; there is no persistence and no explicit session deletion
// (eviction is FIFO truncation of the oldest pair).
//
// Concurrency model: the store is safe for concurrent use across sessions.
// Within one session, Append is atomic on its own, and Acquire exposes a
// per-session critical section so a caller can serialize its whole
// read-history/append-result sequence against concurrent requests for the
// same session. Requests for different sessions never contend.
package session

import "sync"

// Role constants for turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one user or assistant message within a session.
// Turns are immutable once appended.
type Turn struct {
	Role string
	Text string
}

// DefaultMaxPairs is the default history cap in user/assistant pairs.
const DefaultMaxPairs = 10

// Store is a keyed, bounded conversation store.
// The zero value is not usable; use NewStore.
type Store struct {
	maxPairs int

	mu       sync.RWMutex // guards the sessions map, not entry contents
	sessions map[string]*entry
}

// entry holds one session's turns.
//
// Two locks with distinct roles:
//   - mu guards the turns slice (Append/History atomicity)
//   - serial is the whole-request critical section handed out by Acquire;
//     it is separate from mu so Append can be called while serial is held.
type entry struct {
	mu     sync.Mutex
	serial sync.Mutex
	turns  []Turn
}

// NewStore creates a Store capped at maxPairs user/assistant pairs per
// session. maxPairs <= 0 selects DefaultMaxPairs.
func NewStore(maxPairs int) *Store {
	if maxPairs <= 0 {
		maxPairs = DefaultMaxPairs
	}
	return &Store{
		maxPairs: maxPairs,
		sessions: make(map[string]*entry),
	}
}

// History returns a copy of the session's turns in insertion order.
// An unknown session identifier is valid and yields an empty history;
// it does not allocate an entry.
func (s *Store) History(sessionID string) []Turn {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	turns := make([]Turn, len(e.turns))
	copy(turns, e.turns)
	return turns
}

// Append records one completed exchange (user question + assistant answer)
// atomically, evicting the oldest pair once the cap is exceeded.
func (s *Store) Append(sessionID, userText, assistantText string) {
	e := s.entryFor(sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns,
		Turn{Role: RoleUser, Text: userText},
		Turn{Role: RoleAssistant, Text: assistantText},
	)
	if over := len(e.turns) - 2*s.maxPairs; over > 0 {
		e.turns = e.turns[over:]
	}
}

// Acquire takes the session's request-serialization lock and returns the
// release function. While held, no other Acquire for the same session
// proceeds; other sessions are unaffected.
func (s *Store) Acquire(sessionID string) (release func()) {
	e := s.entryFor(sessionID)
	e.serial.Lock()
	return e.serial.Unlock
}

// Pairs reports the number of completed pairs stored for the session.
func (s *Store) Pairs(sessionID string) int {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.turns) / 2
}

// entryFor returns the session's entry, creating it if needed.
func (s *Store) entryFor(sessionID string) *entry {
	s.mu.RLock()
	e, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[sessionID]; ok {
		return e
	}
	e = &entry{}
	s.sessions[sessionID] = e
	return e
}
