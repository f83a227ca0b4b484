package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("session id is empty")
)

// DefaultSessionID is the shared session used by requests that carry no
// session token.
const DefaultSessionID = "default"

type Config struct {
	IdleTTL         time.Duration `split_words:"true" default:"30m"`
	CleanupInterval time.Duration `split_words:"true" default:"5m"`
}

// Store is the session table used by the conversation engine.
type Store interface {
	// Create starts a session under a fresh opaque token.
	Create(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	// Ensure returns the session with id, creating it when absent.
	Ensure(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// EvictIdle removes sessions idle for longer than ttl and reports how
	// many were removed. Sessions with a turn in progress are kept.
	EvictIdle(ctx context.Context, ttl time.Duration) (int, error)
}

type StoreOption func(*MemoryStore)

func WithClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(gen func() string) StoreOption {
	return func(s *MemoryStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// MemoryStore keeps sessions in process memory. Nothing survives a restart.
type MemoryStore struct {
	systemPrompt string
	now          func() time.Time
	newID        func() string

	mu       sync.Mutex
	sessions map[string]*Session
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(systemPrompt string, opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		systemPrompt: systemPrompt,
		now:          time.Now,
		newID:        uuid.NewString,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *MemoryStore) Create(_ context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range 3 {
		id := s.newID()
		if _, taken := s.sessions[id]; taken || strings.TrimSpace(id) == "" {
			continue
		}
		sess := NewSession(id, s.systemPrompt, s.now())
		s.sessions[id] = sess
		return sess, nil
	}
	return nil, errors.New("could not allocate a unique session id")
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *MemoryStore) Ensure(_ context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	sess := NewSession(id, s.systemPrompt, s.now())
	s.sessions[id] = sess
	return sess, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) EvictIdle(_ context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.LastActive().After(cutoff) || sess.busy() {
			continue
		}
		delete(s.sessions, id)
		evicted++
	}
	return evicted, nil
}

// Len reports how many sessions are live.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
