package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// MessageLog implements ports.MessageLogger on a Redis stream per session.
type MessageLog struct {
	client *backend.Client
	prefix string
	maxLen int64
}

// NewMessageLog creates a message log. maxLen caps each stream
// approximately; zero keeps every entry.
func NewMessageLog(client *backend.Client, prefix string, maxLen int64) *MessageLog {
	return &MessageLog{client: client, prefix: prefix, maxLen: maxLen}
}

func (l *MessageLog) streamKey(sessionID string) string {
	return l.prefix + "messages:" + sessionID
}

// Append adds the record to its session stream.
func (l *MessageLog) Append(ctx context.Context, record domain.MessageRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal message record: %w", err)
	}
	args := &backend.XAddArgs{
		Stream: l.streamKey(record.SessionID),
		Values: map[string]any{"id": record.ID, "record": data},
	}
	if l.maxLen > 0 {
		args.MaxLen = l.maxLen
		args.Approx = true
	}
	if err := l.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append message record: %w", err)
	}
	return nil
}

// Records reads the session's records in append order.
func (l *MessageLog) Records(ctx context.Context, sessionID string) ([]domain.MessageRecord, error) {
	entries, err := l.client.XRange(ctx, l.streamKey(sessionID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read message records: %w", err)
	}
	out := make([]domain.MessageRecord, 0, len(entries))
	for _, e := range entries {
		raw, _ := e.Values["record"].(string)
		var rec domain.MessageRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message record %s: %w", e.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Notifier implements ports.Notifier over Redis Pub/Sub, one channel per tenant.
type Notifier struct {
	client *backend.Client
	prefix string
}

func NewNotifier(client *backend.Client, prefix string) *Notifier {
	return &Notifier{client: client, prefix: prefix}
}

// Channel returns the Pub/Sub channel of a tenant.
func (n *Notifier) Channel(tenantID string) string {
	return n.prefix + "events:" + tenantID
}

func (n *Notifier) Publish(ctx context.Context, note domain.Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.Channel(note.TenantID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Subscribe decodes the tenant's notifications until ctx is done.
// The returned channel is closed when the subscription ends.
func (n *Notifier) Subscribe(ctx context.Context, tenantID string) (<-chan domain.Notification, error) {
	sub := n.client.Subscribe(ctx, n.Channel(tenantID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan domain.Notification)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var note domain.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &note); err != nil {
					continue
				}
				select {
				case out <- note:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// CredentialResolver implements ports.CredentialResolver from a hash per
// phone number holding the fields access_token, api_base and version.
type CredentialResolver struct {
	client *backend.Client
	prefix string
}

func NewCredentialResolver(client *backend.Client, prefix string) *CredentialResolver {
	return &CredentialResolver{client: client, prefix: prefix}
}

// Key returns the hash key holding a phone number's credentials.
func (r *CredentialResolver) Key(tenantID, projectID, phoneNumberID string) string {
	return r.prefix + "credentials:" + tenantID + ":" + projectID + ":" + phoneNumberID
}

func (r *CredentialResolver) Resolve(ctx context.Context, tenantID, projectID, phoneNumberID string) (domain.Credentials, error) {
	fields, err := r.client.HGetAll(ctx, r.Key(tenantID, projectID, phoneNumberID)).Result()
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}
	creds := domain.Credentials{
		AccessToken: fields["access_token"],
		APIBase:     fields["api_base"],
		Version:     fields["version"],
	}
	if creds.AccessToken == "" {
		return domain.Credentials{}, fmt.Errorf("%w for phone number %s", domain.ErrCredentialsNotFound, phoneNumberID)
	}
	return creds, nil
}
