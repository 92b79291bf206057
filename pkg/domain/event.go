package domain

// InboundEvent is one message received from a contact, already resolved
// to a tenant, project and phone number by the ingestion layer.
type InboundEvent struct {
	ContactID     string `json:"contactId"`
	PhoneNumberID string `json:"phoneNumberId"`
	ProjectID     string `json:"projectId"`
	TenantID      string `json:"tenantId"`
	UserInput     string `json:"userInput"`
	// InteractiveResponseID is the id of the tapped button, if any.
	InteractiveResponseID string `json:"interactiveResponseId,omitempty"`
	// Credentials may be empty when a CredentialResolver is configured.
	Credentials Credentials `json:"-"`
}

// Key returns the contact triple the event belongs to.
func (e InboundEvent) Key() ContactKey {
	return ContactKey{ContactID: e.ContactID, PhoneNumberID: e.PhoneNumberID, ProjectID: e.ProjectID}
}

// Result is the outcome of handling one inbound event.
type Result struct {
	Success bool     `json:"success"`
	Session *Session `json:"session,omitempty"`
	// Message describes why nothing happened, e.g. no flow matched.
	Message string `json:"message,omitempty"`
}
