package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/persistence/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIINotifier_Masking(t *testing.T) {
	underlying := memory.NewNotifier()
	notifier := middleware.NewPIINotifier([]string{"(?i)password", "^cpf$"})(underlying)

	diff := &domain.SessionDiff{
		SessionID: "s1",
		CollectedData: map[string]string{
			"name":          "Ana",
			"user_password": "secret123",
			"cpf":           "123.456.789-00",
		},
	}
	require.NoError(t, notifier.Publish(context.Background(), domain.Notification{
		TenantID: "tenant-1", Kind: domain.NotificationSessionUpdated, Diff: diff,
	}))

	// The original diff is not modified.
	assert.Equal(t, "secret123", diff.CollectedData["user_password"])

	published := underlying.Published()
	require.Len(t, published, 1)
	got := published[0].Diff.CollectedData
	assert.Equal(t, "Ana", got["name"])
	assert.Equal(t, middleware.Mask, got["user_password"])
	assert.Equal(t, middleware.Mask, got["cpf"])
}

func TestPIINotifier_PassesMessages(t *testing.T) {
	underlying := memory.NewNotifier()
	notifier := middleware.NewPIINotifier([]string{"cpf"})(underlying)

	note := domain.Notification{TenantID: "t", Kind: domain.NotificationNewMessage, Message: &domain.MessageRecord{ID: "m1"}}
	require.NoError(t, notifier.Publish(context.Background(), note))
	assert.Equal(t, []domain.Notification{note}, underlying.Published())
}

func TestMaskSession(t *testing.T) {
	s := newSession("s1")
	s.CollectedData["cpf"] = "123"
	s.CollectedData["city"] = "Recife"

	masked := middleware.MaskSession(s, []string{"cpf"})
	assert.Equal(t, middleware.Mask, masked.CollectedData["cpf"])
	assert.Equal(t, "Recife", masked.CollectedData["city"])
	assert.Equal(t, "123", s.CollectedData["cpf"])
}
