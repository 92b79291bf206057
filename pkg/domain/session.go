package domain

import (
	"strings"
	"time"
)

// SessionStatus is the execution status of a session.
type SessionStatus string

const (
	StatusActive           SessionStatus = "active"
	StatusAwaitingInput    SessionStatus = "awaiting_input"
	StatusEnded            SessionStatus = "ended"
	StatusLiveAgentHandoff SessionStatus = "live_agent_handoff"
)

// Live reports whether the status counts towards the one-live-session-per-contact rule.
func (s SessionStatus) Live() bool {
	return s == StatusActive || s == StatusAwaitingInput
}

// Terminal reports whether the engine stops driving a session in this status.
func (s SessionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusLiveAgentHandoff
}

// End reasons recorded on Session.EndReason.
const (
	EndReasonCompleted   = "completed"
	EndReasonTraversal   = "traversal_gap"
	EndReasonSendFailed  = "send_failed"
	EndReasonInvalidNode = "invalid_node"
	EndReasonStepLimit   = "step_limit"
	EndReasonUnhandled   = "unhandled_error"
	EndReasonResume      = "unresumable"
	EndReasonStale       = "stale"
	EndReasonHandoff     = "handoff"
	EndReasonMainMenu    = "main_menu"
	EndReasonFallback    = "fallback"
)

// ContactKey identifies the conversation a session belongs to.
type ContactKey struct {
	ContactID     string `json:"contactId"`
	PhoneNumberID string `json:"phoneNumberId"`
	ProjectID     string `json:"projectId"`
}

// String renders the key as a stable, colon-separated identifier.
func (k ContactKey) String() string {
	return strings.Join([]string{k.ProjectID, k.PhoneNumberID, k.ContactID}, ":")
}

// ResumeContext is the position a parked session waits at.
type ResumeContext struct {
	NodeID          string `json:"nodeId"`
	AwaitingFieldID string `json:"awaitingFieldId,omitempty"`
}

// Session is the persisted per-contact execution state of a flow.
// Sessions are never deleted; they move to a terminal status instead.
type Session struct {
	ID              string            `json:"id"`
	ContactID       string            `json:"contactId"`
	PhoneNumberID   string            `json:"phoneNumberId"`
	ProjectID       string            `json:"projectId"`
	TenantID        string            `json:"tenantId"`
	CurrentFlowID   string            `json:"currentFlowId"`
	CurrentNodeID   string            `json:"currentNodeId"`
	CollectedData   map[string]string `json:"collectedData"`
	AwaitingFieldID string            `json:"awaitingFieldId,omitempty"`
	Status          SessionStatus     `json:"status"`
	LastBotMessage  string            `json:"lastBotMessage,omitempty"`
	LastActivityAt  time.Time         `json:"lastActivityAt"`
	CreatedAt       time.Time         `json:"createdAt"`
	EndReason       string            `json:"endReason,omitempty"`
}

// NewSession creates a live session for key positioned at startNodeID.
func NewSession(id string, key ContactKey, tenantID, flowID, startNodeID string, now time.Time) *Session {
	return &Session{
		ID:             id,
		ContactID:      key.ContactID,
		PhoneNumberID:  key.PhoneNumberID,
		ProjectID:      key.ProjectID,
		TenantID:       tenantID,
		CurrentFlowID:  flowID,
		CurrentNodeID:  startNodeID,
		CollectedData:  make(map[string]string),
		Status:         StatusActive,
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

// Key returns the contact triple of the session.
func (s *Session) Key() ContactKey {
	return ContactKey{ContactID: s.ContactID, PhoneNumberID: s.PhoneNumberID, ProjectID: s.ProjectID}
}

// Resume returns the parked position of the session.
func (s *Session) Resume() ResumeContext {
	return ResumeContext{NodeID: s.CurrentNodeID, AwaitingFieldID: s.AwaitingFieldID}
}

// Park suspends the session at rc until the awaited input arrives.
func (s *Session) Park(rc ResumeContext) {
	s.CurrentNodeID = rc.NodeID
	s.AwaitingFieldID = rc.AwaitingFieldID
	s.Status = StatusAwaitingInput
}

// Clone returns a deep copy so stores and callers never share the data map.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.CollectedData = make(map[string]string, len(s.CollectedData))
	for k, v := range s.CollectedData {
		c.CollectedData[k] = v
	}
	return &c
}
