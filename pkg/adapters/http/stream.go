package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// StreamManager fans notifications out to Server-Sent Events clients.
// It implements ports.Notifier, so the engine can publish into it directly.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- domain.Notification]struct{} // TenantID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- domain.Notification]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe(tenantID string) (chan domain.Notification, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.Notification, 10)
	if _, ok := sm.subscribers[tenantID]; !ok {
		sm.subscribers[tenantID] = make(map[chan<- domain.Notification]struct{})
	}
	sm.subscribers[tenantID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[tenantID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, tenantID)
			}
		}
	}
}

// Subscribers returns the number of clients listening to a tenant.
func (sm *StreamManager) Subscribers(tenantID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[tenantID])
}

// Publish implements ports.Notifier. Slow clients lose notifications
// instead of blocking the engine.
func (sm *StreamManager) Publish(ctx context.Context, note domain.Notification) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[note.TenantID] {
		select {
		case ch <- note:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping notification", "tenant_id", note.TenantID, "kind", note.Kind)
		}
	}
	return nil
}

// SubscribeEvents handles GET /v1/tenants/{tenant}/stream.
// The optional "kinds" query parameter filters by notification kind.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	tenantID := chi.URLParam(r, "tenant")

	kinds := make(map[string]bool)
	if raw := r.URL.Query().Get("kinds"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			kinds[strings.TrimSpace(k)] = true
		}
	}

	ch, cancel := s.Streams.Subscribe(tenantID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to tenant notifications", "tenant_id", tenantID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "tenant_id", tenantID)
			return
		case note, ok := <-ch:
			if !ok {
				return
			}
			if len(kinds) > 0 && !kinds[note.Kind] {
				continue
			}
			data, err := json.Marshal(note)
			if err != nil {
				s.logger.Error("SSE: notification encode failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", note.Kind, data)
			flusher.Flush()
		}
	}
}
