package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use.
type Store struct {
	data   map[string]*domain.Session
	active map[string]string // contact key -> live session id
	mu     sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:   make(map[string]*domain.Session),
		active: make(map[string]string),
	}
}

// FindActiveByContact retrieves the live session of the contact.
func (s *Store) FindActiveByContact(ctx context.Context, key domain.ContactKey) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.active[key.String()]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	// Create a copy on read so caller can't mutate store state directly by pointer
	return s.data[id].Clone(), nil
}

// Create inserts a live session, rejecting a second one for the same contact.
func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := session.Key().String()
	if _, taken := s.active[k]; taken {
		return domain.ErrSessionConflict
	}
	s.data[session.ID] = session.Clone()
	if session.Status.Live() {
		s.active[k] = session.ID
	}
	return nil
}

// Save persists the session and maintains the live index.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := session.Key().String()
	if session.Status.Live() {
		if other, taken := s.active[k]; taken && other != session.ID {
			return domain.ErrSessionConflict
		}
		s.active[k] = session.ID
	} else if s.active[k] == session.ID {
		delete(s.active, k)
	}
	// Deep copy to ensure isolation, similar to serialization
	s.data[session.ID] = session.Clone()
	return nil
}

// Get retrieves a session by id.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// List returns all session ids, live or not.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.data))
	for id := range s.data {
		sessions = append(sessions, id)
	}
	sort.Strings(sessions)
	return sessions, nil
}
