package domain

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestDiff(t *testing.T) {
	awaiting := StatusAwaitingInput
	ended := StatusEnded

	tests := []struct {
		name     string
		old      *Session
		new      *Session
		wantDiff *SessionDiff // nil means no diff expected
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &Session{
				ID:            "sess-1",
				CurrentNodeID: "start",
				Status:        StatusActive,
				CollectedData: map[string]string{"name": "Ana"},
			},
			wantDiff: &SessionDiff{
				SessionID:     "sess-1",
				CurrentNodeID: &[]string{"start"}[0],
				CollectedData: map[string]string{"name": "Ana"},
			},
		},
		{
			name: "No Changes",
			old: &Session{
				ID:            "sess-1",
				CurrentNodeID: "ask",
				Status:        StatusAwaitingInput,
				CollectedData: map[string]string{"name": "Ana"},
			},
			new: &Session{
				ID:            "sess-1",
				CurrentNodeID: "ask",
				Status:        StatusAwaitingInput,
				CollectedData: map[string]string{"name": "Ana"},
			},
			wantDiff: nil,
		},
		{
			name: "Parked On Field",
			old: &Session{
				ID:            "sess-1",
				CurrentNodeID: "ask",
				Status:        StatusActive,
			},
			new: &Session{
				ID:              "sess-1",
				CurrentNodeID:   "ask",
				Status:          StatusAwaitingInput,
				AwaitingFieldID: "email",
			},
			wantDiff: &SessionDiff{
				SessionID:       "sess-1",
				Status:          &awaiting,
				AwaitingFieldID: &[]string{"email"}[0],
			},
		},
		{
			name: "Collected Field Added",
			old: &Session{
				ID:            "sess-1",
				CurrentNodeID: "ask",
				CollectedData: map[string]string{"name": "Ana"},
			},
			new: &Session{
				ID:            "sess-1",
				CurrentNodeID: "ask",
				CollectedData: map[string]string{"name": "Ana", "email": "ana@example.com"},
			},
			wantDiff: &SessionDiff{
				SessionID:     "sess-1",
				CollectedData: map[string]string{"email": "ana@example.com"},
			},
		},
		{
			name: "Ended With Reason",
			old: &Session{
				ID:            "sess-1",
				CurrentNodeID: "cond",
				Status:        StatusActive,
			},
			new: &Session{
				ID:            "sess-1",
				CurrentNodeID: "cond",
				Status:        StatusEnded,
				EndReason:     EndReasonTraversal,
			},
			wantDiff: &SessionDiff{
				SessionID: "sess-1",
				Status:    &ended,
				EndReason: &[]string{EndReasonTraversal}[0],
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			if tt.wantDiff == nil {
				if got != nil {
					t.Errorf("Diff() = %+v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("Diff() = nil, want %+v", tt.wantDiff)
			}

			if got.SessionID != tt.wantDiff.SessionID {
				t.Errorf("Diff().SessionID = %v, want %v", got.SessionID, tt.wantDiff.SessionID)
			}
			if !reflect.DeepEqual(got.CollectedData, tt.wantDiff.CollectedData) {
				t.Errorf("Diff().CollectedData = %v, want %v", got.CollectedData, tt.wantDiff.CollectedData)
			}
			if !equalPtr(got.CurrentNodeID, tt.wantDiff.CurrentNodeID) {
				t.Errorf("Diff().CurrentNodeID = %v, want %v", got.CurrentNodeID, tt.wantDiff.CurrentNodeID)
			}
			if tt.old != nil && !equalPtr(got.Status, tt.wantDiff.Status) {
				t.Errorf("Diff().Status = %v, want %v", got.Status, tt.wantDiff.Status)
			}
			if tt.old != nil && !equalPtr(got.AwaitingFieldID, tt.wantDiff.AwaitingFieldID) {
				t.Errorf("Diff().AwaitingFieldID = %v, want %v", got.AwaitingFieldID, tt.wantDiff.AwaitingFieldID)
			}
			if !equalPtr(got.EndReason, tt.wantDiff.EndReason) {
				t.Errorf("Diff().EndReason = %v, want %v", got.EndReason, tt.wantDiff.EndReason)
			}
		})
	}
}

func TestDiffJSONSerialization(t *testing.T) {
	t.Run("Unchanged Fields Omitted", func(t *testing.T) {
		s1 := &Session{ID: "s", CurrentNodeID: "a", CollectedData: map[string]string{"x": "1"}}
		s2 := &Session{ID: "s", CurrentNodeID: "b", CollectedData: map[string]string{"x": "1"}}
		diff := Diff(s1, s2)
		if diff == nil {
			t.Fatal("Expected diff, got nil")
		}

		bytes, _ := json.Marshal(diff)
		if strings.Contains(string(bytes), `"collectedData"`) {
			t.Errorf("JSON should not contain 'collectedData' when unchanged, got: %s", string(bytes))
		}
		if !strings.Contains(string(bytes), `"currentNodeId":"b"`) {
			t.Errorf("JSON should contain the new node, got: %s", string(bytes))
		}
	})
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
