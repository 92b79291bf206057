package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter   EventType = "node_enter"
	EventNodeLeave   EventType = "node_leave"
	EventMessageSent EventType = "message_sent"
	EventSendFailed  EventType = "send_failed"
	EventSessionEnd  EventType = "session_end"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	FlowID    string    `json:"flow_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string   `json:"node_id"`
	NodeKind NodeKind `json:"node_kind"`
}

// MessageEvent represents a delivery attempt of an outbound message.
type MessageEvent struct {
	EventBase
	NodeID      string `json:"node_id"`
	MessageType string `json:"message_type"`
	MessageID   string `json:"message_id,omitempty"`
	Err         error  `json:"-"`
}

// SessionEvent is emitted when a session reaches a terminal status.
type SessionEvent struct {
	EventBase
	Status SessionStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any hook may be nil.
type LifecycleHooks struct {
	OnNodeEnter   func(context.Context, *NodeEvent)
	OnNodeLeave   func(context.Context, *NodeEvent)
	OnMessageSent func(context.Context, *MessageEvent)
	OnSendFailed  func(context.Context, *MessageEvent)
	OnSessionEnd  func(context.Context, *SessionEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnNodeEnter:   chain(h.OnNodeEnter, other.OnNodeEnter),
		OnNodeLeave:   chain(h.OnNodeLeave, other.OnNodeLeave),
		OnMessageSent: chain(h.OnMessageSent, other.OnMessageSent),
		OnSendFailed:  chain(h.OnSendFailed, other.OnSendFailed),
		OnSessionEnd:  chain(h.OnSessionEnd, other.OnSessionEnd),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
