package domain

import "time"

// Outbound message types understood by delivery adapters.
const (
	MessageText        = "text"
	MessageImage       = "image"
	MessageVideo       = "video"
	MessageAudio       = "audio"
	MessageDocument    = "document"
	MessageSticker     = "sticker"
	MessageTemplate    = "template"
	MessageInteractive = "interactive"
)

// OutboundMessage is a provider-formatted message addressed to a contact.
// Payload holds the body of Type, e.g. {"body": "..."} for text.
type OutboundMessage struct {
	To      string         `json:"to"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// SendResult is what the delivery collaborator reports on success.
type SendResult struct {
	ProviderMessageID string         `json:"providerMessageId"`
	Response          map[string]any `json:"response,omitempty"`
}

// Credentials authorize the delivery collaborator for one phone number.
type Credentials struct {
	AccessToken string `json:"-"`
	APIBase     string `json:"apiBase,omitempty"`
	Version     string `json:"version,omitempty"`
	// PhoneNumberID is the sending business number; the engine fills it
	// from the inbound event.
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
}

// IsZero reports whether no credentials were supplied.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.APIBase == "" && c.Version == ""
}

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// MessageStatusSent is the status of a record written after a successful send.
const MessageStatusSent = "sent"

// MessageRecord is the audit entry written for every outbound message.
type MessageRecord struct {
	ID                string         `json:"id"`
	SessionID         string         `json:"sessionId"`
	ContactID         string         `json:"contactId"`
	PhoneNumberID     string         `json:"phoneNumberId"`
	ProjectID         string         `json:"projectId"`
	TenantID          string         `json:"tenantId"`
	FlowID            string         `json:"flowId"`
	NodeID            string         `json:"nodeId"`
	To                string         `json:"to"`
	Direction         string         `json:"direction"`
	Type              string         `json:"type"`
	Content           string         `json:"content"`
	Payload           map[string]any `json:"payload,omitempty"`
	Status            string         `json:"status"`
	ProviderMessageID string         `json:"providerMessageId,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
}

// Notification is published to the tenant's real-time channel after a send.
type Notification struct {
	TenantID  string         `json:"tenantId"`
	ProjectID string         `json:"projectId"`
	Kind      string         `json:"kind"`
	Message   *MessageRecord `json:"message,omitempty"`
	Diff      *SessionDiff   `json:"diff,omitempty"`
}

// Notification kinds.
const (
	NotificationNewMessage     = "new_message"
	NotificationSessionUpdated = "session_updated"
)
