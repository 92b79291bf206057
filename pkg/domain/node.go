package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// NodeKind is the closed set of node types the engine can execute.
type NodeKind string

const (
	KindStart        NodeKind = "start"
	KindSendText     NodeKind = "sendText"
	KindSendMedia    NodeKind = "sendMedia"
	KindSendTemplate NodeKind = "sendTemplate"
	KindSendButtons  NodeKind = "sendButtons"
	KindCollectInput NodeKind = "collectInput"
	KindConditional  NodeKind = "conditional"
	KindAction       NodeKind = "action"
	KindFallback     NodeKind = "fallback"

	// Deprecated: use KindSendText. Kept for flows saved by older editors.
	KindLegacyText NodeKind = "text"
	// Deprecated: use KindSendTemplate.
	KindLegacyTemplate NodeKind = "template"
)

// AllNodeKinds lists every kind in declaration order.
func AllNodeKinds() []NodeKind {
	return []NodeKind{
		KindStart, KindSendText, KindSendMedia, KindSendTemplate, KindSendButtons,
		KindCollectInput, KindConditional, KindAction, KindFallback,
		KindLegacyText, KindLegacyTemplate,
	}
}

// Valid reports whether k is a known kind.
func (k NodeKind) Valid() bool {
	for _, known := range AllNodeKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Legacy reports whether k is one of the deprecated kinds with looser edge rules.
func (k NodeKind) Legacy() bool {
	return k == KindLegacyText || k == KindLegacyTemplate
}

// Node is a single step of a flow. Data is an opaque, provider-formatted
// descriptor; only the fields named by the kind's payload are read.
type Node struct {
	ID   string         `json:"id" yaml:"id" mapstructure:"id"`
	Kind NodeKind       `json:"type" yaml:"type" mapstructure:"type"`
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty" mapstructure:"data"`
}

// Payload is the typed view of a node's data. Each kind has exactly one
// payload type; see DecodePayload.
type Payload interface {
	Kind() NodeKind
}

// Action types recognised by action nodes.
const (
	ActionHandoffToAgent   = "handoff_to_agent"
	ActionReturnToMainMenu = "return_to_main_menu"
)

// Button variants for sendButtons nodes.
const (
	ButtonQuickReply  = "quick_reply"
	ButtonURL         = "url"
	ButtonPhoneNumber = "phone_number"
)

type StartPayload struct{}

type TextPayload struct {
	Text       string `mapstructure:"text"`
	PreviewURL bool   `mapstructure:"previewUrl"`
}

type MediaPayload struct {
	// MediaType is one of image, video, audio, document.
	MediaType string `mapstructure:"mediaType"`
	MediaID   string `mapstructure:"mediaId"`
	Link      string `mapstructure:"link"`
	Caption   string `mapstructure:"caption"`
	Filename  string `mapstructure:"filename"`
}

type TemplateParameter struct {
	Type    string `mapstructure:"type"`
	Text    string `mapstructure:"text"`
	Link    string `mapstructure:"link"`
	MediaID string `mapstructure:"mediaId"`
	Payload string `mapstructure:"payload"`
}

type TemplateComponent struct {
	// Type is header, body or button.
	Type       string              `mapstructure:"type"`
	SubType    string              `mapstructure:"subType"`
	Index      *int                `mapstructure:"index"`
	Parameters []TemplateParameter `mapstructure:"parameters"`
}

type TemplatePayload struct {
	Name       string              `mapstructure:"templateName"`
	Language   string              `mapstructure:"language"`
	Components []TemplateComponent `mapstructure:"components"`
}

type Button struct {
	ID          string `mapstructure:"id"`
	Title       string `mapstructure:"title"`
	Type        string `mapstructure:"type"`
	URL         string `mapstructure:"url"`
	PhoneNumber string `mapstructure:"phoneNumber"`
}

type ButtonsPayload struct {
	Header  string   `mapstructure:"header"`
	Body    string   `mapstructure:"body"`
	Footer  string   `mapstructure:"footer"`
	Buttons []Button `mapstructure:"buttons"`
}

// HasButton reports whether id is one of the declared button ids.
func (p *ButtonsPayload) HasButton(id string) bool {
	if id == "" {
		return false
	}
	for _, b := range p.Buttons {
		if b.ID == id {
			return true
		}
	}
	return false
}

type InputField struct {
	ID     string `mapstructure:"id"`
	Prompt string `mapstructure:"prompt"`
}

type CollectInputPayload struct {
	Fields       []InputField `mapstructure:"fields"`
	Confirmation string       `mapstructure:"confirmation"`
}

// NextMissing returns the first field without a value in collected.
func (p *CollectInputPayload) NextMissing(collected map[string]string) (InputField, bool) {
	for _, f := range p.Fields {
		if _, ok := collected[f.ID]; !ok {
			return f, true
		}
	}
	return InputField{}, false
}

type ConditionalPayload struct {
	Condition string `mapstructure:"condition"`
}

type ActionPayload struct {
	ActionType string `mapstructure:"actionType"`
	Message    string `mapstructure:"message"`
}

type FallbackPayload struct {
	Message string `mapstructure:"message"`
}

// LegacyTextPayload is the payload of the deprecated "text" kind.
type LegacyTextPayload struct {
	TextPayload `mapstructure:",squash"`
}

// LegacyTemplatePayload is the payload of the deprecated "template" kind.
type LegacyTemplatePayload struct {
	TemplatePayload `mapstructure:",squash"`
}

func (StartPayload) Kind() NodeKind          { return KindStart }
func (TextPayload) Kind() NodeKind           { return KindSendText }
func (MediaPayload) Kind() NodeKind          { return KindSendMedia }
func (TemplatePayload) Kind() NodeKind       { return KindSendTemplate }
func (ButtonsPayload) Kind() NodeKind        { return KindSendButtons }
func (CollectInputPayload) Kind() NodeKind   { return KindCollectInput }
func (ConditionalPayload) Kind() NodeKind    { return KindConditional }
func (ActionPayload) Kind() NodeKind         { return KindAction }
func (FallbackPayload) Kind() NodeKind       { return KindFallback }
func (LegacyTextPayload) Kind() NodeKind     { return KindLegacyText }
func (LegacyTemplatePayload) Kind() NodeKind { return KindLegacyTemplate }

// Payload decodes the node's data into the payload type of its kind.
func (n *Node) Payload() (Payload, error) {
	return DecodePayload(n.Kind, n.Data)
}

// DecodePayload maps raw node data onto the typed payload of kind.
func DecodePayload(kind NodeKind, data map[string]any) (Payload, error) {
	var p Payload
	switch kind {
	case KindStart:
		p = &StartPayload{}
	case KindSendText:
		p = &TextPayload{}
	case KindSendMedia:
		p = &MediaPayload{}
	case KindSendTemplate:
		p = &TemplatePayload{}
	case KindSendButtons:
		p = &ButtonsPayload{}
	case KindCollectInput:
		p = &CollectInputPayload{}
	case KindConditional:
		p = &ConditionalPayload{}
	case KindAction:
		p = &ActionPayload{}
	case KindFallback:
		p = &FallbackPayload{}
	case KindLegacyText:
		p = &LegacyTextPayload{}
	case KindLegacyTemplate:
		p = &LegacyTemplatePayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if err := decode(data, p); err != nil {
		return nil, fmt.Errorf("invalid %s data: %w", kind, err)
	}
	if err := validatePayload(p); err != nil {
		return nil, fmt.Errorf("invalid %s data: %w", kind, err)
	}
	return p, nil
}

func decode(data map[string]any, out any) error {
	if len(data) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}

func validatePayload(p Payload) error {
	switch v := p.(type) {
	case *TextPayload:
		if v.Text == "" {
			return fmt.Errorf("text is required")
		}
	case *LegacyTextPayload:
		if v.Text == "" {
			return fmt.Errorf("text is required")
		}
	case *MediaPayload:
		if v.MediaID == "" && v.Link == "" {
			return fmt.Errorf("mediaId or link is required")
		}
		switch v.MediaType {
		case "":
			v.MediaType = "image"
		case "image", "video", "audio", "document", "sticker":
		default:
			return fmt.Errorf("unsupported mediaType %q", v.MediaType)
		}
	case *TemplatePayload:
		return validateTemplate(v)
	case *LegacyTemplatePayload:
		return validateTemplate(&v.TemplatePayload)
	case *ButtonsPayload:
		if len(v.Buttons) == 0 {
			return fmt.Errorf("at least one button is required")
		}
		for i := range v.Buttons {
			b := &v.Buttons[i]
			if b.Type == "" {
				b.Type = ButtonQuickReply
			}
			if b.Type == ButtonQuickReply && b.ID == "" {
				return fmt.Errorf("button %d: id is required", i)
			}
		}
	case *CollectInputPayload:
		for i, f := range v.Fields {
			if f.ID == "" {
				return fmt.Errorf("field %d: id is required", i)
			}
		}
	}
	return nil
}

func validateTemplate(t *TemplatePayload) error {
	if t.Name == "" {
		return fmt.Errorf("templateName is required")
	}
	if t.Language == "" {
		t.Language = "en_US"
	}
	return nil
}
