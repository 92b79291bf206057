package cli

import (
	"context"
	"testing"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenRecorder struct {
	tokens []string
}

func (r *tokenRecorder) Send(ctx context.Context, msg domain.OutboundMessage, creds domain.Credentials) (domain.SendResult, error) {
	r.tokens = append(r.tokens, creds.AccessToken)
	return domain.SendResult{ProviderMessageID: "wamid.test"}, nil
}

func TestDefaultCredentials(t *testing.T) {
	inner := &tokenRecorder{}
	sender := &defaultCredentials{inner: inner, token: "configured"}
	ctx := context.Background()

	_, err := sender.Send(ctx, domain.OutboundMessage{To: "c1"}, domain.Credentials{})
	require.NoError(t, err)
	_, err = sender.Send(ctx, domain.OutboundMessage{To: "c1"}, domain.Credentials{AccessToken: "stored"})
	require.NoError(t, err)

	assert.Equal(t, []string{"configured", "stored"}, inner.tokens)
}
