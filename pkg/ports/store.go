package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// SessionStore defines the interface for persisting sessions.
//
// Implementations MUST guarantee that at most one session with a live status
// (active or awaiting_input) exists per contact key, even under concurrent
// Create calls from several replicas.
type SessionStore interface {
	// FindActiveByContact returns the live session of the contact.
	// Returns domain.ErrSessionNotFound if there is none.
	FindActiveByContact(ctx context.Context, key domain.ContactKey) (*domain.Session, error)

	// Create inserts a new live session.
	// Returns domain.ErrSessionConflict if the contact already has one.
	Create(ctx context.Context, session *domain.Session) error

	// Save persists the session. Moving it to a terminal status releases the
	// contact for a new session.
	Save(ctx context.Context, session *domain.Session) error

	// Get retrieves a session by id, whatever its status.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// List returns the ids of all stored sessions.
	List(ctx context.Context) ([]string, error)
}
