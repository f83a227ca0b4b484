package state

import (
	"sync"
	"time"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
)

// Session is one conversation. The history always starts with the system
// message it was created with.
type Session struct {
	ID        string
	CreatedAt time.Time

	// turnMu serializes conversational turns; mu guards the fields below.
	turnMu sync.Mutex

	mu         sync.RWMutex
	system     contractx.Message
	messages   []contractx.Message
	lastActive time.Time
}

func NewSession(id, systemPrompt string, now time.Time) *Session {
	system := contractx.Message{Role: contractx.RoleSystem, Content: systemPrompt}
	return &Session{
		ID:         id,
		CreatedAt:  now,
		system:     system,
		messages:   []contractx.Message{system},
		lastActive: now,
	}
}

// LockTurn blocks until no other turn runs on this session and returns the
// matching unlock.
func (s *Session) LockTurn() (unlock func()) {
	s.turnMu.Lock()
	return s.turnMu.Unlock
}

// busy reports whether a turn currently holds the session.
func (s *Session) busy() bool {
	if s.turnMu.TryLock() {
		s.turnMu.Unlock()
		return false
	}
	return true
}

// Messages returns a copy of the history.
func (s *Session) Messages() []contractx.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contractx.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Session) Append(msgs ...contractx.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msgs...)
	s.mu.Unlock()
}

// Reset truncates the history to exactly the initial system message.
func (s *Session) Reset() {
	s.mu.Lock()
	s.messages = []contractx.Message{s.system}
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActive) {
		s.lastActive = now
	}
	s.mu.Unlock()
}
