package dsl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// Builder manages the flow construction. Nodes keep their insertion order,
// which decides the entry node of flows without a start node.
type Builder struct {
	flow  domain.Flow
	nodes map[string]*NodeBuilder
	order []string
}

// New creates a new flow builder. Flows are active unless Inactive is called.
func New(id string) *Builder {
	return &Builder{
		flow:  domain.Flow{ID: id, Status: domain.FlowActive},
		nodes: make(map[string]*NodeBuilder),
	}
}

// Project sets the owning project.
func (b *Builder) Project(id string) *Builder {
	b.flow.ProjectID = id
	return b
}

// Tenant sets the owning tenant.
func (b *Builder) Tenant(id string) *Builder {
	b.flow.TenantID = id
	return b
}

// Trigger sets the keyword that starts the flow.
func (b *Builder) Trigger(keyword string) *Builder {
	b.flow.TriggerKeyword = keyword
	return b
}

// AsFallback makes the flow its project's fallback flow.
func (b *Builder) AsFallback() *Builder {
	b.flow.TriggerKeyword = domain.FallbackTrigger
	return b
}

// Inactive excludes the flow from trigger matching.
func (b *Builder) Inactive() *Builder {
	b.flow.Status = domain.FlowInactive
	return b
}

// Add creates a node of the given kind with raw data.
// If the node already exists, it returns the existing builder.
func (b *Builder) Add(id string, kind domain.NodeKind, data map[string]any) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node:    domain.Node{ID: id, Kind: kind, Data: data},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

func (b *Builder) Start(id string) *NodeBuilder {
	return b.Add(id, domain.KindStart, nil)
}

func (b *Builder) Text(id, text string) *NodeBuilder {
	return b.Add(id, domain.KindSendText, map[string]any{"text": text})
}

// Media sends an image, video, audio or document by link.
func (b *Builder) Media(id, mediaType, link, caption string) *NodeBuilder {
	data := map[string]any{"mediaType": mediaType, "link": link}
	if caption != "" {
		data["caption"] = caption
	}
	return b.Add(id, domain.KindSendMedia, data)
}

// Template sends an approved template with body text parameters.
func (b *Builder) Template(id, name, language string, bodyParams ...string) *NodeBuilder {
	data := map[string]any{"templateName": name, "language": language}
	if len(bodyParams) > 0 {
		params := make([]any, len(bodyParams))
		for i, p := range bodyParams {
			params[i] = map[string]any{"type": "text", "text": p}
		}
		data["components"] = []any{map[string]any{"type": "body", "parameters": params}}
	}
	return b.Add(id, domain.KindSendTemplate, data)
}

// Buttons sends a body with buttons. Route replies with On(buttonID, target).
func (b *Builder) Buttons(id, body string, buttons ...ButtonSpec) *NodeBuilder {
	list := make([]any, len(buttons))
	for i, btn := range buttons {
		list[i] = map[string]any(btn)
	}
	return b.Add(id, domain.KindSendButtons, map[string]any{"body": body, "buttons": list})
}

// Collect asks for each field in order and parks until all are answered.
func (b *Builder) Collect(id string, fields ...FieldSpec) *NodeBuilder {
	list := make([]any, len(fields))
	for i, f := range fields {
		list[i] = map[string]any(f)
	}
	return b.Add(id, domain.KindCollectInput, map[string]any{"fields": list})
}

// Conditional branches with True and False.
func (b *Builder) Conditional(id, condition string) *NodeBuilder {
	return b.Add(id, domain.KindConditional, map[string]any{"condition": condition})
}

// Handoff transfers the contact to a human agent. An empty message uses the engine default.
func (b *Builder) Handoff(id, message string) *NodeBuilder {
	return b.action(id, domain.ActionHandoffToAgent, message)
}

// MainMenu ends the session so the next message starts over.
func (b *Builder) MainMenu(id, message string) *NodeBuilder {
	return b.action(id, domain.ActionReturnToMainMenu, message)
}

func (b *Builder) action(id, actionType, message string) *NodeBuilder {
	data := map[string]any{"actionType": actionType}
	if message != "" {
		data["message"] = message
	}
	return b.Add(id, domain.KindAction, data)
}

// Fallback answers unmatched input and ends the session.
func (b *Builder) Fallback(id, message string) *NodeBuilder {
	data := map[string]any{}
	if message != "" {
		data["message"] = message
	}
	return b.Add(id, domain.KindFallback, data)
}

// Build assembles the flow and rejects it when Lint reports any issue.
func (b *Builder) Build() (domain.Flow, error) {
	f := b.flow
	f.Nodes = make([]domain.Node, 0, len(b.order))
	f.Edges = nil
	for _, id := range b.order {
		nb := b.nodes[id]
		f.Nodes = append(f.Nodes, nb.node)
		f.Edges = append(f.Edges, nb.edges...)
	}

	if issues := f.Lint(); len(issues) > 0 {
		msgs := make([]string, len(issues))
		for i, issue := range issues {
			msgs[i] = issue.String()
		}
		return f, fmt.Errorf("%w: %s", ErrInvalidFlow, strings.Join(msgs, "; "))
	}
	return f, nil
}

// ErrInvalidFlow is returned by Build when the flow has structural problems.
var ErrInvalidFlow = errors.New("invalid flow")
