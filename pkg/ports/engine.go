package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// EventHandler is the single entrypoint of the engine.
// It is the interface used by driving adapters (e.g., HTTP, MCP, CLI).
type EventHandler interface {
	HandleIncomingEvent(ctx context.Context, event domain.InboundEvent) (domain.Result, error)
}
