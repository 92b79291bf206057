package cloudapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/chatflow/pkg/adapters/cloudapi"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMessage() domain.OutboundMessage {
	return domain.OutboundMessage{To: "5511999990000", Type: domain.MessageText, Payload: map[string]any{"body": "Hi"}}
}

func creds(base string) domain.Credentials {
	return domain.Credentials{AccessToken: "token", APIBase: base, PhoneNumberID: "phone-1"}
}

func TestSender_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/phone-1/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"messaging_product":"whatsapp","messages":[{"id":"wamid.123"}]}`))
	}))
	defer srv.Close()

	res, err := cloudapi.New().Send(context.Background(), textMessage(), creds(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "wamid.123", res.ProviderMessageID)

	assert.Equal(t, "whatsapp", got["messaging_product"])
	assert.Equal(t, "5511999990000", got["to"])
	assert.Equal(t, "text", got["type"])
	assert.Equal(t, map[string]any{"body": "Hi"}, got["text"])
}

func TestSender_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100}}`))
	}))
	defer srv.Close()

	_, err := cloudapi.New(cloudapi.WithRetries(3, time.Millisecond)).Send(context.Background(), textMessage(), creds(srv.URL))
	var apiErr *cloudapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 100, apiErr.Code)
	assert.Equal(t, "Invalid parameter", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSender_RetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"messages":[{"id":"wamid.ok"}]}`))
	}))
	defer srv.Close()

	var logs bytes.Buffer
	sender := cloudapi.New(
		cloudapi.WithRetries(3, time.Millisecond),
		cloudapi.WithLogger(slog.New(slog.NewJSONHandler(&logs, nil))),
	)

	res, err := sender.Send(context.Background(), textMessage(), creds(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, "wamid.ok", res.ProviderMessageID)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, logs.String(), `"err":`)
	assert.NotContains(t, logs.String(), `"error":`)
}

func TestSender_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := cloudapi.New(cloudapi.WithRetries(2, time.Millisecond)).Send(context.Background(), textMessage(), creds(srv.URL))
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSender_MissingCredentials(t *testing.T) {
	_, err := cloudapi.New().Send(context.Background(), textMessage(), domain.Credentials{AccessToken: "t"})
	assert.ErrorIs(t, err, cloudapi.ErrMissingCredentials)
}
