package domain

// SessionDiff represents the changes between two snapshots of a session.
// It is published to real-time subscribers so dashboards can patch their
// local copy instead of reloading the session.
type SessionDiff struct {
	// SessionID is always present to identify the target.
	SessionID string `json:"sessionId"`

	CurrentNodeID   *string        `json:"currentNodeId,omitempty"`
	Status          *SessionStatus `json:"status,omitempty"`
	AwaitingFieldID *string        `json:"awaitingFieldId,omitempty"`
	LastBotMessage  *string        `json:"lastBotMessage,omitempty"`
	EndReason       *string        `json:"endReason,omitempty"`

	// CollectedData contains only added or modified fields.
	// Collected data is append-only, so deletions are not tracked.
	CollectedData map[string]string `json:"collectedData,omitempty"`
}

// Diff calculates the difference between old and new.
// If old is nil, the diff describes the whole new session.
// It returns nil when nothing changed.
func Diff(old, new *Session) *SessionDiff {
	if new == nil {
		return nil
	}

	diff := &SessionDiff{SessionID: new.ID}

	if old == nil || old.CurrentNodeID != new.CurrentNodeID {
		diff.CurrentNodeID = &new.CurrentNodeID
	}
	if old == nil || old.Status != new.Status {
		diff.Status = &new.Status
	}
	if old == nil || old.AwaitingFieldID != new.AwaitingFieldID {
		diff.AwaitingFieldID = &new.AwaitingFieldID
	}
	if (old == nil && new.LastBotMessage != "") || (old != nil && old.LastBotMessage != new.LastBotMessage) {
		diff.LastBotMessage = &new.LastBotMessage
	}
	if (old == nil && new.EndReason != "") || (old != nil && old.EndReason != new.EndReason) {
		diff.EndReason = &new.EndReason
	}
	diff.CollectedData = diffCollected(old, new)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffCollected(old, new *Session) map[string]string {
	delta := make(map[string]string)
	for k, v := range new.CollectedData {
		if old == nil {
			delta[k] = v
			continue
		}
		if prev, ok := old.CollectedData[k]; !ok || prev != v {
			delta[k] = v
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *SessionDiff) IsEmpty() bool {
	return d.CurrentNodeID == nil &&
		d.Status == nil &&
		d.AwaitingFieldID == nil &&
		d.LastBotMessage == nil &&
		d.EndReason == nil &&
		len(d.CollectedData) == 0
}
