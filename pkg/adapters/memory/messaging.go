package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Sender implements ports.MessageSender by recording every message.
// It is used by tests and the local chat simulator.
type Sender struct {
	mu   sync.Mutex
	sent []domain.OutboundMessage
	seq  int

	// FailWith, when set, decides whether a message must fail.
	FailWith func(domain.OutboundMessage) error
	// OnSend is called after a successful send.
	OnSend func(domain.OutboundMessage)
}

// NewSender creates a recording sender that always succeeds.
func NewSender() *Sender {
	return &Sender{}
}

// Send records msg and returns a synthetic provider id.
func (s *Sender) Send(ctx context.Context, msg domain.OutboundMessage, creds domain.Credentials) (domain.SendResult, error) {
	if s.FailWith != nil {
		if err := s.FailWith(msg); err != nil {
			return domain.SendResult{}, err
		}
	}
	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("wamid.mem.%d", s.seq)
	s.sent = append(s.sent, msg)
	onSend := s.OnSend
	s.mu.Unlock()

	if onSend != nil {
		onSend(msg)
	}
	return domain.SendResult{ProviderMessageID: id}, nil
}

// Sent returns a copy of the recorded messages.
func (s *Sender) Sent() []domain.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboundMessage(nil), s.sent...)
}

// Reset drops the recorded messages.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

// MessageLog implements ports.MessageLogger in memory.
type MessageLog struct {
	mu      sync.Mutex
	records []domain.MessageRecord
}

func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

func (l *MessageLog) Append(ctx context.Context, record domain.MessageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, record)
	return nil
}

// Records returns the appended records, optionally filtered by session.
func (l *MessageLog) Records(sessionID string) []domain.MessageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.MessageRecord
	for _, r := range l.records {
		if sessionID == "" || r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

// Notifier implements ports.Notifier with in-process subscriptions per tenant.
type Notifier struct {
	mu   sync.RWMutex
	subs map[string][]chan domain.Notification
	all  []domain.Notification
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string][]chan domain.Notification)}
}

// Subscribe returns a buffered channel receiving the tenant's notifications.
// Notifications are dropped for subscribers that fall behind.
func (n *Notifier) Subscribe(tenantID string, buffer int) <-chan domain.Notification {
	ch := make(chan domain.Notification, buffer)
	n.mu.Lock()
	n.subs[tenantID] = append(n.subs[tenantID], ch)
	n.mu.Unlock()
	return ch
}

func (n *Notifier) Publish(ctx context.Context, note domain.Notification) error {
	n.mu.Lock()
	n.all = append(n.all, note)
	subs := n.subs[note.TenantID]
	n.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- note:
		default:
		}
	}
	return nil
}

// Published returns every notification seen so far.
func (n *Notifier) Published() []domain.Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]domain.Notification(nil), n.all...)
}
