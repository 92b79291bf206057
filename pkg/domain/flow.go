package domain

import (
	"fmt"
	"strings"
)

// FlowStatus controls whether a flow can be triggered.
type FlowStatus string

const (
	FlowActive   FlowStatus = "active"
	FlowInactive FlowStatus = "inactive"
)

// FallbackTrigger is the reserved trigger keyword of a project's fallback flow.
const FallbackTrigger = "__fallback__"

// Edge handles with a fixed meaning.
const (
	HandleNext  = "a"
	HandleTrue  = "true"
	HandleFalse = "false"
	// HandleReply is accepted by the legacy kinds in addition to HandleNext.
	HandleReply = "reply"
)

// Edge is a labeled directed connection between two nodes.
type Edge struct {
	Source       string `json:"source" yaml:"source" mapstructure:"source"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty" mapstructure:"sourceHandle"`
	Target       string `json:"target" yaml:"target" mapstructure:"target"`
}

// Flow is a stored, triggerable conversation graph owned by a tenant/project.
// The engine never mutates a Flow.
type Flow struct {
	ID             string     `json:"id" yaml:"id" mapstructure:"id"`
	TenantID       string     `json:"tenantId" yaml:"tenantId" mapstructure:"tenantId"`
	ProjectID      string     `json:"projectId" yaml:"projectId" mapstructure:"projectId"`
	Name           string     `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	Status         FlowStatus `json:"status" yaml:"status" mapstructure:"status"`
	TriggerKeyword string     `json:"triggerKeyword" yaml:"triggerKeyword" mapstructure:"triggerKeyword"`
	Nodes          []Node     `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
	Edges          []Edge     `json:"edges" yaml:"edges" mapstructure:"edges"`
}

// NormalizeKeyword trims and case-folds text for trigger matching.
func NormalizeKeyword(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsActive reports whether the flow can be triggered.
func (f *Flow) IsActive() bool {
	return f.Status == FlowActive
}

// MatchesTrigger reports whether the normalized keyword selects this flow.
func (f *Flow) MatchesTrigger(keyword string) bool {
	return NormalizeKeyword(f.TriggerKeyword) == NormalizeKeyword(keyword)
}

// Node returns the first node declared with the given id.
func (f *Flow) Node(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// FirstOfKind returns the first node of the given kind in declared order.
func (f *Flow) FirstOfKind(kind NodeKind) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].Kind == kind {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// EntryNode picks the node a new session starts at: the first node tagged
// with the entry kind, else the first declared node.
func (f *Flow) EntryNode(entry NodeKind) (*Node, bool) {
	if n, ok := f.FirstOfKind(entry); ok {
		return n, true
	}
	if len(f.Nodes) == 0 {
		return nil, false
	}
	return &f.Nodes[0], true
}

// Edge returns the first edge leaving source with the given handle.
func (f *Flow) Edge(source, handle string) (*Edge, bool) {
	for i := range f.Edges {
		e := &f.Edges[i]
		if e.Source == source && e.SourceHandle == handle {
			return e, true
		}
	}
	return nil, false
}

// Next returns the target of the "a" edge leaving source.
func (f *Flow) Next(source string) (string, bool) {
	e, ok := f.Edge(source, HandleNext)
	if !ok {
		return "", false
	}
	return e.Target, true
}

// LegacyNext follows the looser rules of the deprecated text/template kinds:
// the "a" handle, then "reply", then an edge without handle.
func (f *Flow) LegacyNext(source string) (string, bool) {
	for _, h := range []string{HandleNext, HandleReply, ""} {
		if e, ok := f.Edge(source, h); ok {
			return e.Target, true
		}
	}
	return "", false
}

// LintIssue describes a structural problem in a flow definition.
type LintIssue struct {
	NodeID  string `json:"nodeId,omitempty"`
	Message string `json:"message"`
}

func (i LintIssue) String() string {
	if i.NodeID == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.NodeID, i.Message)
}

// Lint reports duplicate node ids, dangling edges, unknown node kinds and a
// missing entry node. Storage does not enforce any of these; the engine ends
// a session that runs into them.
func (f *Flow) Lint() []LintIssue {
	var issues []LintIssue
	seen := make(map[string]bool, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.ID == "" {
			issues = append(issues, LintIssue{Message: "node without id"})
			continue
		}
		if seen[n.ID] {
			issues = append(issues, LintIssue{NodeID: n.ID, Message: "duplicate node id"})
		}
		seen[n.ID] = true
		if !n.Kind.Valid() {
			issues = append(issues, LintIssue{NodeID: n.ID, Message: fmt.Sprintf("unknown node type %q", n.Kind)})
		} else if _, err := n.Payload(); err != nil {
			issues = append(issues, LintIssue{NodeID: n.ID, Message: err.Error()})
		}
	}
	for _, e := range f.Edges {
		if !seen[e.Source] {
			issues = append(issues, LintIssue{NodeID: e.Source, Message: fmt.Sprintf("edge %q leaves an unknown node", e.SourceHandle)})
		}
		if !seen[e.Target] {
			issues = append(issues, LintIssue{NodeID: e.Source, Message: fmt.Sprintf("edge %q points to unknown node %q", e.SourceHandle, e.Target)})
		}
	}
	if f.TriggerKeyword == FallbackTrigger {
		if _, ok := f.EntryNode(KindFallback); !ok {
			issues = append(issues, LintIssue{Message: "fallback flow has no nodes"})
		}
	} else if _, ok := f.FirstOfKind(KindStart); !ok {
		issues = append(issues, LintIssue{Message: "no start node; the first declared node is used"})
	}
	return issues
}
