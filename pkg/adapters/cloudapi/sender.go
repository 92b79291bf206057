// Package cloudapi delivers outbound messages through a WhatsApp Cloud API
// compatible HTTP endpoint.
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	backoff "github.com/cenkalti/backoff/v4"
)

const (
	DefaultAPIBase = "https://graph.facebook.com"
	DefaultVersion = "v21.0"
)

// ErrMissingCredentials is returned when no token or phone number is available.
var ErrMissingCredentials = errors.New("cloud api credentials are incomplete")

// APIError is a non-2xx answer of the provider.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloud api status %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether the provider asked to try again later.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Sender implements ports.MessageSender.
type Sender struct {
	client     *http.Client
	apiBase    string
	version    string
	maxRetries uint64
	retryWait  time.Duration
	logger     *slog.Logger
}

type Option func(*Sender)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) { s.client = c }
}

// WithAPIBase sets the base URL used when the credentials carry none.
func WithAPIBase(base string) Option {
	return func(s *Sender) { s.apiBase = strings.TrimRight(base, "/") }
}

// WithVersion sets the Graph API version used when the credentials carry none.
func WithVersion(v string) Option {
	return func(s *Sender) { s.version = v }
}

// WithRetries retries throttled and server-side failures up to n times.
func WithRetries(n uint64, wait time.Duration) Option {
	return func(s *Sender) {
		s.maxRetries = n
		s.retryWait = wait
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

func New(opts ...Option) *Sender {
	s := &Sender{
		client:     &http.Client{Timeout: 15 * time.Second},
		apiBase:    DefaultAPIBase,
		version:    DefaultVersion,
		maxRetries: 2,
		retryWait:  200 * time.Millisecond,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts msg to {base}/{version}/{phoneNumberId}/messages.
func (s *Sender) Send(ctx context.Context, msg domain.OutboundMessage, creds domain.Credentials) (domain.SendResult, error) {
	if creds.AccessToken == "" || creds.PhoneNumberID == "" {
		return domain.SendResult{}, ErrMissingCredentials
	}

	body, err := json.Marshal(envelope(msg))
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("failed to marshal message: %w", err)
	}
	url := fmt.Sprintf("%s/%s/%s/messages",
		strings.TrimRight(firstNonEmpty(creds.APIBase, s.apiBase), "/"),
		firstNonEmpty(creds.Version, s.version),
		creds.PhoneNumberID,
	)

	var result domain.SendResult
	attempt := func() error {
		res, err := s.post(ctx, url, creds.AccessToken, body)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.retryWait), s.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		s.logger.Warn("Cloud API send failed, retrying", "err", err, "wait", wait, "type", msg.Type)
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return domain.SendResult{}, err
	}
	return result, nil
}

func (s *Sender) post(ctx context.Context, url, token string, body []byte) (domain.SendResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.SendResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("cloud api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("failed to read cloud api response: %w", err)
	}

	var parsed sendResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if parsed.Error != nil {
			apiErr.Code = parsed.Error.Code
			apiErr.Message = parsed.Error.Message
		}
		return domain.SendResult{}, apiErr
	}

	var generic map[string]any
	_ = json.Unmarshal(raw, &generic)
	out := domain.SendResult{Response: generic}
	if len(parsed.Messages) > 0 {
		out.ProviderMessageID = parsed.Messages[0].ID
	}
	return out, nil
}

// envelope wraps the typed payload into the provider's message object.
func envelope(msg domain.OutboundMessage) map[string]any {
	return map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                msg.To,
		"type":              msg.Type,
		msg.Type:            msg.Payload,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
