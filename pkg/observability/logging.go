package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/chatflow/pkg/domain"
)

// LoggingHooks logs node traversal at debug level and deliveries and
// session endings at info level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"session_id", e.SessionID,
				"flow_id", e.FlowID,
				"node_id", e.NodeID,
				"type", e.NodeKind,
			)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_leave", "session_id", e.SessionID, "node_id", e.NodeID)
		},
		OnMessageSent: func(ctx context.Context, e *domain.MessageEvent) {
			logger.InfoContext(ctx, "message_sent",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"message_type", e.MessageType,
				"message_id", e.MessageID,
			)
		},
		OnSendFailed: func(ctx context.Context, e *domain.MessageEvent) {
			logger.WarnContext(ctx, "send_failed",
				"session_id", e.SessionID,
				"node_id", e.NodeID,
				"message_type", e.MessageType,
				"error", e.Err,
			)
		},
		OnSessionEnd: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_end",
				"session_id", e.SessionID,
				"flow_id", e.FlowID,
				"status", e.Status,
				"reason", e.Reason,
			)
		},
	}
}
