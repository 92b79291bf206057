package dsl

import "github.com/aretw0/chatflow/pkg/domain"

// NodeBuilder provides a fluent API for wiring a node's outgoing edges.
type NodeBuilder struct {
	node    domain.Node
	edges   []domain.Edge
	builder *Builder
}

// Go adds the default edge to the target node.
func (n *NodeBuilder) Go(target string) *NodeBuilder {
	return n.On(domain.HandleNext, target)
}

// On adds an edge leaving through handle, e.g. a button id.
func (n *NodeBuilder) On(handle, target string) *NodeBuilder {
	n.edges = append(n.edges, domain.Edge{Source: n.node.ID, SourceHandle: handle, Target: target})
	return n
}

// True adds the edge taken when a condition holds.
func (n *NodeBuilder) True(target string) *NodeBuilder {
	return n.On(domain.HandleTrue, target)
}

// False adds the edge taken when a condition does not hold or fails.
func (n *NodeBuilder) False(target string) *NodeBuilder {
	return n.On(domain.HandleFalse, target)
}

// Set writes a raw data key, for payload fields without a dedicated helper.
func (n *NodeBuilder) Set(key string, value any) *NodeBuilder {
	if n.node.Data == nil {
		n.node.Data = make(map[string]any)
	}
	n.node.Data[key] = value
	return n
}

// Confirm sets the message a collectInput node sends once all fields are answered.
func (n *NodeBuilder) Confirm(text string) *NodeBuilder {
	return n.Set("confirmation", text)
}

// Build returns the underlying domain.Node.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.Node {
	return n.node
}

// ButtonSpec is the raw data of one button.
type ButtonSpec map[string]any

// Reply is a quick-reply button.
func Reply(id, title string) ButtonSpec {
	return ButtonSpec{"id": id, "title": title, "type": domain.ButtonQuickReply}
}

// Link is a call-to-action button opening url.
func Link(title, url string) ButtonSpec {
	return ButtonSpec{"title": title, "type": domain.ButtonURL, "url": url}
}

// Call is a call-to-action button dialing phone.
func Call(title, phone string) ButtonSpec {
	return ButtonSpec{"title": title, "type": domain.ButtonPhoneNumber, "phoneNumber": phone}
}

// FieldSpec is the raw data of one collected field.
type FieldSpec map[string]any

// Field asks prompt and stores the answer under id.
func Field(id, prompt string) FieldSpec {
	return FieldSpec{"id": id, "prompt": prompt}
}
