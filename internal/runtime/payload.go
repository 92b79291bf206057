package runtime

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Provider limits for interactive messages.
const (
	maxReplyButtons    = 3
	maxButtonTitleSize = 20
)

func textMessage(to, body string, previewURL bool) domain.OutboundMessage {
	text := map[string]any{"body": body}
	if previewURL {
		text["preview_url"] = true
	}
	return domain.OutboundMessage{To: to, Type: domain.MessageText, Payload: text}
}

func (e *Engine) buildText(r *run, p *domain.TextPayload) domain.OutboundMessage {
	return textMessage(r.event.ContactID, e.interpolate(p.Text, r), p.PreviewURL)
}

func (e *Engine) buildMedia(r *run, p *domain.MediaPayload) domain.OutboundMessage {
	media := map[string]any{}
	if p.MediaID != "" {
		media["id"] = p.MediaID
	} else {
		media["link"] = p.Link
	}
	if p.Caption != "" && p.MediaType != domain.MessageAudio && p.MediaType != domain.MessageSticker {
		media["caption"] = e.interpolate(p.Caption, r)
	}
	if p.Filename != "" && p.MediaType == domain.MessageDocument {
		media["filename"] = p.Filename
	}
	return domain.OutboundMessage{To: r.event.ContactID, Type: p.MediaType, Payload: media}
}

func (e *Engine) buildTemplate(r *run, p *domain.TemplatePayload) domain.OutboundMessage {
	tpl := map[string]any{
		"name":     p.Name,
		"language": map[string]any{"code": p.Language},
	}
	var components []any
	for _, c := range p.Components {
		comp := map[string]any{"type": c.Type}
		if c.SubType != "" {
			comp["sub_type"] = c.SubType
		}
		if c.Index != nil {
			comp["index"] = fmt.Sprint(*c.Index)
		}
		var params []any
		for _, prm := range c.Parameters {
			params = append(params, e.buildTemplateParameter(r, prm))
		}
		if len(params) > 0 {
			comp["parameters"] = params
		}
		components = append(components, comp)
	}
	if len(components) > 0 {
		tpl["components"] = components
	}
	return domain.OutboundMessage{To: r.event.ContactID, Type: domain.MessageTemplate, Payload: tpl}
}

func (e *Engine) buildTemplateParameter(r *run, p domain.TemplateParameter) map[string]any {
	typ := p.Type
	if typ == "" {
		typ = "text"
	}
	out := map[string]any{"type": typ}
	switch typ {
	case "image", "video", "document":
		media := map[string]any{}
		if p.MediaID != "" {
			media["id"] = p.MediaID
		} else {
			media["link"] = e.interpolate(p.Link, r)
		}
		out[typ] = media
	case "payload":
		out["payload"] = e.interpolate(p.Payload, r)
	default:
		out["text"] = e.interpolate(p.Text, r)
	}
	return out
}

// buildButtons renders quick replies as reply buttons. A node whose first
// button is a url or phone-number button is rendered as a call-to-action
// instead; the provider accepts one per message.
func (e *Engine) buildButtons(r *run, p *domain.ButtonsPayload) domain.OutboundMessage {
	interactive := map[string]any{
		"body": map[string]any{"text": e.interpolate(p.Body, r)},
	}
	if p.Header != "" {
		interactive["header"] = map[string]any{"type": "text", "text": e.interpolate(p.Header, r)}
	}
	if p.Footer != "" {
		interactive["footer"] = map[string]any{"text": e.interpolate(p.Footer, r)}
	}

	if first := p.Buttons[0]; first.Type != domain.ButtonQuickReply {
		url := first.URL
		if first.Type == domain.ButtonPhoneNumber {
			url = "tel:" + strings.ReplaceAll(first.PhoneNumber, " ", "")
		}
		interactive["type"] = "cta_url"
		interactive["action"] = map[string]any{
			"name": "cta_url",
			"parameters": map[string]any{
				"display_text": first.Title,
				"url":          url,
			},
		}
		return domain.OutboundMessage{To: r.event.ContactID, Type: domain.MessageInteractive, Payload: interactive}
	}

	var buttons []any
	for _, b := range p.Buttons {
		if b.Type != domain.ButtonQuickReply || len(buttons) == maxReplyButtons {
			continue
		}
		buttons = append(buttons, map[string]any{
			"type":  "reply",
			"reply": map[string]any{"id": b.ID, "title": truncate(b.Title, maxButtonTitleSize)},
		})
	}
	interactive["type"] = "button"
	interactive["action"] = map[string]any{"buttons": buttons}
	return domain.OutboundMessage{To: r.event.ContactID, Type: domain.MessageInteractive, Payload: interactive}
}

// summarize renders a one-line, human-readable form of msg for
// Session.LastBotMessage and the message log.
func summarize(msg domain.OutboundMessage) string {
	switch msg.Type {
	case domain.MessageText:
		return str(msg.Payload["body"])
	case domain.MessageTemplate:
		return fmt.Sprintf("[template: %s]", str(msg.Payload["name"]))
	case domain.MessageInteractive:
		if body, ok := msg.Payload["body"].(map[string]any); ok {
			return str(body["text"])
		}
	}
	if c := str(msg.Payload["caption"]); c != "" {
		return c
	}
	return fmt.Sprintf("[%s]", msg.Type)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimRight(string(runes[:n]), " ")
}
