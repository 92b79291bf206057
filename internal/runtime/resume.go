package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

// resume re-enters a session parked in awaiting_input with the contact's reply.
func (e *Engine) resume(ctx context.Context, r *run) (domain.Result, error) {
	s := r.session
	flow, err := e.flows.FindByID(ctx, s.CurrentFlowID)
	if errors.Is(err, domain.ErrFlowNotFound) {
		return e.unresumable(ctx, r, fmt.Errorf("flow %s no longer exists", s.CurrentFlowID))
	}
	if err != nil {
		return e.fail(ctx, r, fmt.Errorf("flow lookup failed: %w", err))
	}
	r.flow = flow

	node, ok := flow.Node(s.CurrentNodeID)
	if !ok {
		return e.unresumable(ctx, r, fmt.Errorf("%w: %q", domain.ErrNodeNotFound, s.CurrentNodeID))
	}
	payload, err := node.Payload()
	if err != nil {
		return e.unresumable(ctx, r, err)
	}

	switch p := payload.(type) {
	case *domain.ButtonsPayload:
		return e.resumeButtons(ctx, r, node, p)
	case *domain.CollectInputPayload:
		if s.AwaitingFieldID == "" {
			break
		}
		s.CollectedData[s.AwaitingFieldID] = r.event.UserInput
		s.AwaitingFieldID = ""
		s.Status = domain.StatusActive
		return e.drive(ctx, r, node.ID)
	}

	return e.unresumable(ctx, r, fmt.Errorf("node %s (%s) cannot take a reply", node.ID, node.Kind))
}

// resumeButtons follows the edge of the tapped button. Unknown replies and
// buttons without an edge go to the flow's fallback node, else the buttons
// are sent again.
func (e *Engine) resumeButtons(ctx context.Context, r *run, node *domain.Node, p *domain.ButtonsPayload) (domain.Result, error) {
	if id, ok := matchButton(p, r.event); ok {
		if edge, found := r.flow.Edge(node.ID, id); found {
			r.session.Status = domain.StatusActive
			r.session.CurrentNodeID = edge.Target
			return e.drive(ctx, r, edge.Target)
		}
		e.logger.Info("Button has no outgoing edge", append(r.logAttrs(), "node_id", node.ID, "button_id", id)...)
	}

	r.session.Status = domain.StatusActive
	if fb, ok := r.flow.FirstOfKind(domain.KindFallback); ok {
		r.session.CurrentNodeID = fb.ID
		return e.drive(ctx, r, fb.ID)
	}
	return e.drive(ctx, r, node.ID)
}

// matchButton resolves the reply to a declared button id. Interactive
// replies carry the id; typed replies match a button title or id.
func matchButton(p *domain.ButtonsPayload, ev domain.InboundEvent) (string, bool) {
	if ev.InteractiveResponseID != "" {
		return ev.InteractiveResponseID, p.HasButton(ev.InteractiveResponseID)
	}
	text := strings.TrimSpace(ev.UserInput)
	if text == "" {
		return "", false
	}
	for _, b := range p.Buttons {
		if b.Type != domain.ButtonQuickReply {
			continue
		}
		if strings.EqualFold(b.Title, text) || b.ID == text {
			return b.ID, true
		}
	}
	return "", false
}

func (e *Engine) unresumable(ctx context.Context, r *run, cause error) (domain.Result, error) {
	e.logger.Warn("Cannot resume session", append(r.logAttrs(), "node_id", r.session.CurrentNodeID, "err", cause)...)
	if err := e.end(ctx, r, domain.StatusEnded, domain.EndReasonResume); err != nil {
		return e.fail(ctx, r, err)
	}
	return domain.Result{Session: r.session.Clone(), Message: cause.Error()}, nil
}
