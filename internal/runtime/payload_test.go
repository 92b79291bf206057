package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sendOne runs a flow whose start leads to n and returns the message n sent.
func sendOne(t *testing.T, n domain.Node) domain.OutboundMessage {
	t.Helper()
	h := newHarness(t, []domain.Flow{
		flow("f", "go", []domain.Node{start(), n}, edge("start", "a", n.ID)),
	})
	ev := event("go")
	_, err := h.engine.HandleIncomingEvent(context.Background(), ev)
	require.NoError(t, err)

	sent := h.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, ev.ContactID, sent[0].To)
	return sent[0]
}

func TestPayload_Template(t *testing.T) {
	msg := sendOne(t, node("tpl", domain.KindSendTemplate, map[string]any{
		"templateName": "order_shipped",
		"language":     "pt_BR",
		"components": []any{
			map[string]any{
				"type": "header",
				"parameters": []any{
					map[string]any{"type": "image", "link": "https://cdn.example.com/box.png"},
				},
			},
			map[string]any{
				"type": "body",
				"parameters": []any{
					map[string]any{"text": "{$.contact_id}"},
				},
			},
			map[string]any{
				"type":    "button",
				"subType": "quick_reply",
				"index":   0,
				"parameters": []any{
					map[string]any{"type": "payload", "payload": "TRACK"},
				},
			},
		},
	}))

	assert.Equal(t, domain.MessageTemplate, msg.Type)
	assert.Equal(t, map[string]any{
		"name":     "order_shipped",
		"language": map[string]any{"code": "pt_BR"},
		"components": []any{
			map[string]any{
				"type": "header",
				"parameters": []any{
					map[string]any{"type": "image", "image": map[string]any{"link": "https://cdn.example.com/box.png"}},
				},
			},
			map[string]any{
				"type": "body",
				"parameters": []any{
					map[string]any{"type": "text", "text": "5511999990000"},
				},
			},
			map[string]any{
				"type":     "button",
				"sub_type": "quick_reply",
				"index":    "0",
				"parameters": []any{
					map[string]any{"type": "payload", "payload": "TRACK"},
				},
			},
		},
	}, msg.Payload)
}

func TestPayload_Media(t *testing.T) {
	msg := sendOne(t, node("doc", domain.KindSendMedia, map[string]any{
		"mediaType": "document",
		"mediaId":   "media-123",
		"caption":   "Your invoice",
		"filename":  "invoice.pdf",
	}))

	assert.Equal(t, domain.MessageDocument, msg.Type)
	assert.Equal(t, map[string]any{"id": "media-123", "caption": "Your invoice", "filename": "invoice.pdf"}, msg.Payload)
}

func TestPayload_QuickReplyButtons(t *testing.T) {
	msg := sendOne(t, node("menu", domain.KindSendButtons, map[string]any{
		"header": "Menu",
		"body":   "What do you need?",
		"buttons": []any{
			map[string]any{"id": "sales", "title": "Talk to sales about pricing"},
			map[string]any{"id": "support", "title": "Support"},
			map[string]any{"id": "docs", "title": "Docs"},
			map[string]any{"id": "extra", "title": "Extra"},
		},
	}))

	assert.Equal(t, domain.MessageInteractive, msg.Type)
	assert.Equal(t, "button", msg.Payload["type"])
	assert.Equal(t, map[string]any{"type": "text", "text": "Menu"}, msg.Payload["header"])

	action := msg.Payload["action"].(map[string]any)
	list := action["buttons"].([]any)
	require.Len(t, list, 3, "the provider accepts at most three reply buttons")
	assert.Equal(t, map[string]any{
		"type":  "reply",
		"reply": map[string]any{"id": "sales", "title": "Talk to sales about"},
	}, list[0])
}

func TestPayload_CallToActionButtons(t *testing.T) {
	msg := sendOne(t, node("call", domain.KindSendButtons, map[string]any{
		"body": "Call us",
		"buttons": []any{
			map[string]any{"type": "phone_number", "title": "Call", "phoneNumber": "+55 11 4000 0000"},
		},
	}))

	assert.Equal(t, "cta_url", msg.Payload["type"])
	assert.Equal(t, map[string]any{
		"name": "cta_url",
		"parameters": map[string]any{
			"display_text": "Call",
			"url":          "tel:+551140000000",
		},
	}, msg.Payload["action"])
}

func TestInterpolate(t *testing.T) {
	data := map[string]any{
		"collected_data": map[string]any{"name": "Ana"},
		"user_input":     "hello",
	}

	assert.Equal(t, "Hi Ana, you said hello", runtime.Interpolate("Hi {$.collected_data.name}, you said {$.user_input}", data))
	assert.Equal(t, "Missing: []", runtime.Interpolate("Missing: [{$.collected_data.email}]", data))
	assert.Equal(t, "Literal {braces} stay", runtime.Interpolate("Literal {braces} stay", data))

	// Containers never leak into a message.
	data["collected_data"] = map[string]any{"name": "Ann", "e-mail": "x@y"}
	assert.Equal(t, "a  b", runtime.Interpolate("a {$} b", data))
	assert.Equal(t, "a  b", runtime.Interpolate("a {$.collected_data} b", data))
}
