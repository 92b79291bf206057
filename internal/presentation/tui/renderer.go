package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// MessageMarkdown turns an outbound provider message into the markdown the
// chat simulator prints for it.
func MessageMarkdown(msg domain.OutboundMessage) string {
	var sb strings.Builder
	switch msg.Type {
	case domain.MessageText:
		sb.WriteString(str(msg.Payload["body"]))
	case domain.MessageImage, domain.MessageVideo, domain.MessageAudio, domain.MessageDocument, domain.MessageSticker:
		ref := firstNonEmpty(str(msg.Payload["link"]), str(msg.Payload["id"]))
		sb.WriteString(fmt.Sprintf("*[%s]* `%s`", msg.Type, ref))
		if caption := str(msg.Payload["caption"]); caption != "" {
			sb.WriteString("\n\n" + caption)
		}
	case domain.MessageTemplate:
		sb.WriteString(fmt.Sprintf("*[template]* **%s**", str(msg.Payload["name"])))
	case domain.MessageInteractive:
		writeInteractive(&sb, msg.Payload)
	default:
		sb.WriteString(fmt.Sprintf("*[%s]*", msg.Type))
	}
	return sb.String()
}

func writeInteractive(sb *strings.Builder, payload map[string]any) {
	if header, ok := payload["header"].(map[string]any); ok {
		if text := str(header["text"]); text != "" {
			sb.WriteString("### " + text + "\n\n")
		}
	}
	if body, ok := payload["body"].(map[string]any); ok {
		sb.WriteString(str(body["text"]))
	}

	action, _ := payload["action"].(map[string]any)
	if buttons, ok := action["buttons"].([]any); ok {
		sb.WriteString("\n")
		for _, raw := range buttons {
			b, _ := raw.(map[string]any)
			reply, _ := b["reply"].(map[string]any)
			sb.WriteString(fmt.Sprintf("\n- **%s** `%s`", str(reply["title"]), str(reply["id"])))
		}
	}
	if params, ok := action["parameters"].(map[string]any); ok {
		target := firstNonEmpty(str(params["url"]), str(params["phone_number"]))
		sb.WriteString(fmt.Sprintf("\n\n- [%s](%s)", str(params["display_text"]), target))
	}

	if footer, ok := payload["footer"].(map[string]any); ok {
		if text := str(footer["text"]); text != "" {
			sb.WriteString("\n\n_" + text + "_")
		}
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
