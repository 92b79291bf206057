package validator

import (
	"fmt"

	"github.com/aretw0/chatflow/pkg/condition"
	"github.com/aretw0/chatflow/pkg/domain"
)

// ConditionChecker reports syntax problems in a condition without evaluating it.
type ConditionChecker interface {
	Check(expr string) error
}

// ValidateFlow extends Flow.Lint with condition syntax checks and a crawl
// from the entry node that reports nodes no edge leads to.
// A nil checker uses the default condition evaluator.
func ValidateFlow(f *domain.Flow, checker ConditionChecker) []domain.LintIssue {
	if checker == nil {
		checker = condition.New()
	}
	issues := f.Lint()

	for _, n := range f.Nodes {
		if n.Kind != domain.KindConditional {
			continue
		}
		p, err := n.Payload()
		if err != nil {
			continue // already reported by Lint
		}
		if err := checker.Check(p.(*domain.ConditionalPayload).Condition); err != nil {
			issues = append(issues, domain.LintIssue{NodeID: n.ID, Message: err.Error()})
		}
	}

	for _, id := range Unreachable(f) {
		issues = append(issues, domain.LintIssue{NodeID: id, Message: "unreachable from the entry node"})
	}
	return issues
}

// Unreachable returns, in declaration order, the nodes that cannot be
// reached from the flow's entry node. Fallback nodes are always reachable
// since unmatched button replies jump to them.
func Unreachable(f *domain.Flow) []string {
	entryKind := domain.KindStart
	if f.TriggerKeyword == domain.FallbackTrigger {
		entryKind = domain.KindFallback
	}
	entry, ok := f.EntryNode(entryKind)
	if !ok {
		return nil
	}

	visited := make(map[string]bool)
	queue := []string{entry.ID}
	for _, n := range f.Nodes {
		if n.Kind == domain.KindFallback {
			queue = append(queue, n.ID)
		}
	}

	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		for _, e := range f.Edges {
			if e.Source == currentID && !visited[e.Target] {
				queue = append(queue, e.Target)
			}
		}
	}

	var out []string
	for _, n := range f.Nodes {
		if !visited[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}

// Summary renders issues one per line, prefixed with the flow id.
func Summary(flowID string, issues []domain.LintIssue) []string {
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = fmt.Sprintf("%s: %s", flowID, issue)
	}
	return lines
}
