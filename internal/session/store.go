package session

import (
	"context"
	"sync"
	"time"

	"github.com/danghm/tellerbot/internal/intent"
)

// Role tags a history turn with its author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a session's rolling history window.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type entry struct {
	history   []Turn
	state     intent.Intent
	hasState  bool
	lastWrite time.Time
}

// Store keeps per-session conversation history and sticky intent state with
// a shared idle TTL. Reads on a missing or expired session return empty
// values, never errors: an expired session is indistinguishable from a new
// one.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxHistory int

	onEvict func(sessionID string)
}

// NewStore builds a store holding at most maxHistory exchanges (user plus
// assistant pairs) per session, expiring sessions idle longer than ttl.
func NewStore(ttl time.Duration, maxHistory int) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxHistory <= 0 {
		maxHistory = 5
	}
	return &Store{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxHistory: maxHistory,
	}
}

// SetEvictHook registers a callback fired once per evicted session. Used
// for gauge bookkeeping.
func (s *Store) SetEvictHook(hook func(sessionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = hook
}

// History returns a copy of the session's turns, oldest first. Missing or
// expired sessions yield nil.
func (s *Store) History(sessionID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(sessionID)
	if e == nil {
		return nil
	}
	out := make([]Turn, len(e.history))
	copy(out, e.history)
	return out
}

// AppendHistory records one turn, creating the session on first write and
// dropping the oldest exchange once the window is full. Each exchange is a
// user turn plus its assistant turn, so the raw cap is twice maxHistory.
func (s *Store) AppendHistory(sessionID string, turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.liveOrNew(sessionID)
	e.history = append(e.history, turn)
	if max := s.maxHistory * 2; len(e.history) > max {
		e.history = e.history[len(e.history)-max:]
	}
	e.lastWrite = time.Now().UTC()
}

// State returns the session's sticky intent and whether one has been saved.
func (s *Store) State(sessionID string) (intent.Intent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(sessionID)
	if e == nil || !e.hasState {
		return intent.Intent{}, false
	}
	return e.state, true
}

// SaveState overwrites the session's sticky intent. Callers decide what is
// worth pinning; the store keeps whatever it is given, last write wins.
func (s *Store) SaveState(sessionID string, state intent.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.liveOrNew(sessionID)
	e.state = state
	e.hasState = true
	e.lastWrite = time.Now().UTC()
}

// Create registers the session id with empty contents so minted ids count
// as live before their first turn.
func (s *Store) Create(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveOrNew(sessionID)
}

// Touch refreshes the session's idle clock without modifying its contents.
func (s *Store) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(sessionID); e != nil {
		e.lastWrite = time.Now().UTC()
	}
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now().UTC()
	for _, e := range s.entries {
		if now.Sub(e.lastWrite) < s.ttl {
			n++
		}
	}
	return n
}

// StartJanitor sweeps expired sessions in the background until ctx ends.
// Expiry is also enforced lazily on every read, so the janitor only bounds
// memory, not correctness.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	now := time.Now().UTC()
	var evicted []string

	s.mu.Lock()
	for id, e := range s.entries {
		if now.Sub(e.lastWrite) >= s.ttl {
			delete(s.entries, id)
			evicted = append(evicted, id)
		}
	}
	hook := s.onEvict
	s.mu.Unlock()

	if hook != nil {
		for _, id := range evicted {
			hook(id)
		}
	}
}

// live returns the entry if present and unexpired, deleting it otherwise.
// Callers must hold mu.
func (s *Store) live(sessionID string) *entry {
	e, ok := s.entries[sessionID]
	if !ok {
		return nil
	}
	if time.Now().UTC().Sub(e.lastWrite) >= s.ttl {
		// Lazy expiry stays silent; the janitor's sweep fires the evict
		// hook outside the lock.
		delete(s.entries, sessionID)
		return nil
	}
	return e
}

func (s *Store) liveOrNew(sessionID string) *entry {
	if e := s.live(sessionID); e != nil {
		return e
	}
	e := &entry{lastWrite: time.Now().UTC()}
	s.entries[sessionID] = e
	return e
}
