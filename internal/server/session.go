package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bodul/waifu100/internal/editor"
)

// Session is one editing session. Events are applied one at a time, in
// arrival order.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	mu         sync.Mutex
	ed         *editor.Editor
	lastActive time.Time
	revision   atomic.Uint64
	publish    func(id string, st editor.State)
	now        func() time.Time
}

// Do runs fn against the session's editor and publishes the resulting state
// while still holding the session lock, so observers receive states in the
// order they were produced. A failed event is published too: some failures
// still end the drag.
func (s *Session) Do(fn func(ed *editor.Editor) error) (editor.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.now()
	err := fn(s.ed)
	st := s.ed.State()
	if s.publish != nil {
		s.publish(s.ID, st)
	}
	return st, err
}

// State returns the current state without publishing it.
func (s *Session) State() editor.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ed.State()
}

// Document returns the serialized grid.
func (s *Session) Document() editor.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ed.Export()
}

// Revision counts grid mutations since the session started.
func (s *Session) Revision() uint64 { return s.revision.Load() }

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Registry holds the live editing sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	publish  func(id string, st editor.State)
	now      func() time.Time
}

// NewRegistry creates an empty registry. publish receives every state change.
func NewRegistry(publish func(id string, st editor.State)) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		publish:  publish,
		now:      time.Now,
	}
}

// Create starts a new session.
func (r *Registry) Create() *Session {
	now := r.now()
	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		ed:         editor.New(),
		lastActive: now,
		publish:    r.publish,
		now:        r.now,
	}
	s.ed.Grid().Subscribe(func(editor.Change) { s.revision.Add(1) })
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns a session by ID, or nil if not found.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Delete removes a session.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than ttl and returns their IDs.
func (r *Registry) Sweep(ttl time.Duration) []string {
	cutoff := r.now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, id)
		}
	}
	return expired
}
