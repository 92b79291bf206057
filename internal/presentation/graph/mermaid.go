package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// GraphOverlay contains dynamic session data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// GenerateMermaid produces a Mermaid flowchart of a flow.
// It applies semantic styling:
// - Start/Fallback: ((Circle))
// - Collect input / Buttons: [/Parallelogram/]
// - Conditional: {Rhombus}
// - Action: [[Subroutine]]
// - Default: [Rectangle]
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(flow *domain.Flow, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, node := range flow.Nodes {
		safeID := sanitizeMermaidID(node.ID)

		opener, closer := "[", "]"
		switch node.Kind {
		case domain.KindStart, domain.KindFallback:
			opener, closer = "((", "))"
		case domain.KindCollectInput, domain.KindSendButtons:
			opener, closer = "[/", "/]"
		case domain.KindConditional:
			opener, closer = "{", "}"
		case domain.KindAction:
			opener, closer = "[[", "]]"
		}

		label := fmt.Sprintf("%s <br/> <i>%s</i>", node.ID, node.Kind)
		if node.Kind == domain.KindConditional {
			if p, err := node.Payload(); err == nil {
				label = fmt.Sprintf("%s <br/> %s", node.ID, p.(*domain.ConditionalPayload).Condition)
			}
		}
		// Escape double quotes for Mermaid labels
		label = strings.ReplaceAll(label, "\"", "'")
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))
	}

	for _, e := range flow.Edges {
		from := sanitizeMermaidID(e.Source)
		to := sanitizeMermaidID(e.Target)
		switch e.SourceHandle {
		case domain.HandleNext, "":
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", from, to))
		default:
			handle := strings.ReplaceAll(e.SourceHandle, "\"", "'")
			sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n", from, handle, to))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentNode != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_").Replace(id)
}
