package tests

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// FlowProviderContractTest is a reusable test suite that verifies if an adapter complies with ports.FlowProvider.
// setupData must contain at least one active flow; inactive flows must be reachable by id only.
func FlowProviderContractTest(t *testing.T, provider ports.FlowProvider, setupData []domain.Flow) {
	t.Helper()
	ctx := context.Background()

	// 1. FindByID (Success), whatever the status
	t.Run("FindByID_Success", func(t *testing.T) {
		for _, expected := range setupData {
			got, err := provider.FindByID(ctx, expected.ID)
			if err != nil {
				t.Fatalf("unexpected error getting flow %s: %v", expected.ID, err)
			}
			if got.ID != expected.ID || len(got.Nodes) != len(expected.Nodes) || len(got.Edges) != len(expected.Edges) {
				t.Errorf("flow mismatch for %s. got %+v, want %+v", expected.ID, got, expected)
			}
		}
	})

	// 2. FindByID (NotFound)
	t.Run("FindByID_NotFound", func(t *testing.T) {
		_, err := provider.FindByID(ctx, "non-existent-flow")
		if !errors.Is(err, domain.ErrFlowNotFound) {
			t.Errorf("expected ErrFlowNotFound, got %v", err)
		}
	})

	// 3. FindActiveByTrigger matches case-insensitively and skips inactive flows
	t.Run("FindActiveByTrigger", func(t *testing.T) {
		for _, f := range setupData {
			got, err := provider.FindActiveByTrigger(ctx, f.ProjectID, f.TenantID, "  "+strings.ToUpper(f.TriggerKeyword)+" ")
			if !f.IsActive() {
				if err == nil && got.ID == f.ID {
					t.Errorf("inactive flow %s must not be triggerable", f.ID)
				}
				continue
			}
			if err != nil {
				t.Fatalf("unexpected error triggering %q: %v", f.TriggerKeyword, err)
			}
			if got.ID != f.ID {
				t.Errorf("trigger %q: got flow %s, want %s", f.TriggerKeyword, got.ID, f.ID)
			}
		}
	})

	// 4. Unknown trigger
	t.Run("FindActiveByTrigger_NotFound", func(t *testing.T) {
		_, err := provider.FindActiveByTrigger(ctx, "proj", "tenant", "no-such-keyword")
		if !errors.Is(err, domain.ErrFlowNotFound) {
			t.Errorf("expected ErrFlowNotFound, got %v", err)
		}
	})
}
