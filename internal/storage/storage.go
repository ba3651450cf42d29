// Package storage keeps wizard sessions in memory for the lifetime of the server.
package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bistro-cms/menuimport/internal/wizard"
)

var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	state   wizard.State
	touched time.Time
}

type SessionStore struct {
	sessions map[string]*entry
	mu       sync.RWMutex
	now      func() time.Time
}

func New() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

func (s *SessionStore) Get(sessionID string) (wizard.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, exists := s.sessions[sessionID]
	if !exists {
		return wizard.State{}, false
	}
	return e.state, true
}

func (s *SessionStore) Set(state wizard.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.ID] = &entry{state: state, touched: s.now()}
}

// Update applies fn to the stored state under the write lock. The state is
// replaced only when fn succeeds.
func (s *SessionStore) Update(sessionID string, fn func(wizard.State) (wizard.State, error)) (wizard.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.sessions[sessionID]
	if !exists {
		return wizard.State{}, ErrSessionNotFound
	}
	next, err := fn(e.state)
	if err != nil {
		return e.state, err
	}
	e.state = next
	e.touched = s.now()
	return next, nil
}

// GetAll returns every session, most recently touched first
func (s *SessionStore) GetAll() []wizard.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*entry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].touched.After(entries[j].touched) })

	result := make([]wizard.State, len(entries))
	for i, e := range entries {
		result[i] = e.state
	}
	return result
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Expire drops sessions untouched for longer than ttl and returns how many went.
// Busy sessions are kept.
func (s *SessionStore) Expire(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-ttl)
	n := 0
	for id, e := range s.sessions {
		if e.touched.Before(cutoff) && !e.state.Busy {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
