package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// FlowProvider defines how the engine retrieves flow definitions.
// This allows the storage layer (Loam, Redis, Memory) to be decoupled.
type FlowProvider interface {
	// FindActiveByTrigger returns the active flow of the project whose trigger
	// keyword equals keyword, compared case-insensitively.
	// Returns domain.ErrFlowNotFound when none matches.
	FindActiveByTrigger(ctx context.Context, projectID, tenantID, keyword string) (*domain.Flow, error)

	// FindByID returns a flow regardless of its status, so parked sessions
	// can finish after a flow is deactivated.
	FindByID(ctx context.Context, flowID string) (*domain.Flow, error)
}

// FlowLister is implemented by providers that can enumerate their flows.
// It is used by introspection tools (e.g. 'chatflow flow ls').
type FlowLister interface {
	ListFlows(ctx context.Context) ([]domain.Flow, error)
}

// Watchable defines an interface for providers that can notify about backend changes.
// This is typically used to invalidate caches on hot-reload.
type Watchable interface {
	// Watch returns a channel that is signaled when the underlying flows change.
	Watch(ctx context.Context) (<-chan struct{}, error)
}
