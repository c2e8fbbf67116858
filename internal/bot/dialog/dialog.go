// Package dialog tracks per-user conversation state for multi-step commands.
// Each step is a distinct state type carrying exactly the data collected so
// far, so a handler can type-switch instead of probing a generic bag of
// partially filled fields.
package dialog

import "sync"

// State is one step of a user's conversation. Implementations are immutable
// values; advancing a conversation means storing a new state.
type State interface {
	isState()
}

// Idle means no multi-step command is in progress; plain text is a debate
// topic.
type Idle struct{}

// AwaitingProvider follows /addkey: the user must pick a provider.
type AwaitingProvider struct{}

// AwaitingSecret holds the chosen provider while the user supplies the key.
type AwaitingSecret struct {
	Provider string
}

// AwaitingAlias holds everything collected so far; the alias is the last
// piece before the credential is stored.
type AwaitingAlias struct {
	Provider string
	Secret   string
}

// AwaitingRounds follows /rounds: the user must supply a round count.
type AwaitingRounds struct{}

func (Idle) isState()             {}
func (AwaitingProvider) isState() {}
func (AwaitingSecret) isState()   {}
func (AwaitingAlias) isState()    {}
func (AwaitingRounds) isState()   {}

// Store keeps conversation state per user. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	states map[int64]State
}

func NewStore() *Store {
	return &Store{states: make(map[int64]State)}
}

// Get returns the user's current state, Idle if none.
func (s *Store) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[userID]; ok {
		return st
	}
	return Idle{}
}

// Set advances the user's conversation to st.
func (s *Store) Set(userID int64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = st
}

// Reset returns the user to Idle and drops any collected input.
func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}
