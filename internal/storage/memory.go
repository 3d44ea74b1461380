package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a thread-safe store used when no database is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]Session)}
}

// CreateSession stores a new session, assigning an ID when missing.
func (s *InMemoryStore) CreateSession(_ context.Context, session Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = time.Now()
	}
	s.sessions[session.ID] = cloneSession(session)
	return session, nil
}

// GetSession returns a copy of the stored session.
func (s *InMemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return cloneSession(session), nil
}

// UpdateSession applies fn under the store lock.
func (s *InMemoryStore) UpdateSession(_ context.Context, id string, fn func(Session) (Session, error)) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	next, err := fn(cloneSession(current))
	if err != nil {
		return Session{}, err
	}
	next.ID = id
	next.UpdatedAt = time.Now()
	s.sessions[id] = cloneSession(next)
	return next, nil
}

// DeleteSession removes a session by ID.
func (s *InMemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Close satisfies the Store interface.
func (s *InMemoryStore) Close() {}

func cloneSession(in Session) Session {
	out := in
	if in.GeneratedImages != nil {
		out.GeneratedImages = append([]string(nil), in.GeneratedImages...)
	}
	if in.Analysis != nil {
		a := *in.Analysis
		a.ImprovementSuggestions = append([]Suggestion(nil), in.Analysis.ImprovementSuggestions...)
		a.AlternativeOutfit.ColorPalette = append([]PaletteColor(nil), in.Analysis.AlternativeOutfit.ColorPalette...)
		a.ImageGenerationPrompts = append([]string(nil), in.Analysis.ImageGenerationPrompts...)
		out.Analysis = &a
	}
	return out
}
