package ports

import (
	"context"

	"github.com/aretw0/chatflow/pkg/domain"
)

// MessageSender delivers one outbound message to the messaging provider.
// A returned error means the message was not delivered.
type MessageSender interface {
	Send(ctx context.Context, msg domain.OutboundMessage, creds domain.Credentials) (domain.SendResult, error)
}

// CredentialResolver supplies provider credentials for a phone number when
// the inbound event carries none. Unknown phone numbers yield
// domain.ErrCredentialsNotFound; other errors abort the event.
type CredentialResolver interface {
	Resolve(ctx context.Context, tenantID, projectID, phoneNumberID string) (domain.Credentials, error)
}

// MessageLogger appends audit records for sent messages.
type MessageLogger interface {
	Append(ctx context.Context, record domain.MessageRecord) error
}

// Notifier publishes real-time notifications to a tenant's subscribers.
type Notifier interface {
	Publish(ctx context.Context, n domain.Notification) error
}
