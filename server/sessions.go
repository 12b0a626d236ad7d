package server

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/quill/pkg/interner"
	"github.com/chazu/quill/vm"
)

// ErrSessionNotFound indicates the requested session doesn't exist
var ErrSessionNotFound = errors.New("session not found")

// Session is a workspace with its own interner and globals, so that a
// definition made by one evaluation is visible to the next.
// Interner and Globals are only touched on the worker goroutine.
type Session struct {
	ID       string
	Name     string
	Created  time.Time
	Interner *interner.Interner
	Globals  *vm.Globals

	runs int
}

func newSession(id, name string) *Session {
	return &Session{
		ID:       id,
		Name:     name,
		Created:  time.Now(),
		Interner: interner.New(),
		Globals:  vm.NewGlobals(),
	}
}

// Runs returns the number of evaluations run in the session.
func (s *Session) Runs() int {
	return s.runs
}

// SessionStore manages workspace sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates a new session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

// Create creates a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	session := newSession(uuid.NewString(), name)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	return session, ok
}

// Resolve returns the session for id, or a fresh unregistered session
// when id is empty.
func (s *SessionStore) Resolve(id string) (*Session, error) {
	if id == "" {
		return newSession("", ""), nil
	}
	session, ok := s.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Destroy removes a session. It reports whether the session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// List returns all sessions, oldest first.
func (s *SessionStore) List() []*Session {
	s.mu.RLock()
	list := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		list = append(list, session)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Created.Equal(list[j].Created) {
			return list[i].ID < list[j].ID
		}
		return list[i].Created.Before(list[j].Created)
	})
	return list
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
