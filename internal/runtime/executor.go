package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/chatflow/pkg/condition"
	"github.com/aretw0/chatflow/pkg/domain"
)

type transitionKind int

const (
	// advance: continue with next in the same chain.
	advance transitionKind = iota
	// park: wait on this node for the contact's reply.
	park
	// finish: move to a terminal status.
	finish
	// halt: stop the chain and leave the session as it is.
	halt
)

// transition is the outcome of executing one node.
type transition struct {
	kind   transitionKind
	next   string
	field  string
	status domain.SessionStatus
	reason string
	// err describes a traversal gap or send failure behind a finish.
	err error
}

func advanceTo(next string) transition { return transition{kind: advance, next: next} }

func parkOn(field string) transition { return transition{kind: park, field: field} }

func endWith(reason string, err error) transition {
	return transition{kind: finish, status: domain.StatusEnded, reason: reason, err: err}
}

func gap(err error) transition { return endWith(domain.EndReasonTraversal, err) }

// drive executes nodes starting at nodeID until the session parks, ends or
// the step limit is hit. The session is persisted after every node.
func (e *Engine) drive(ctx context.Context, r *run, nodeID string) (res domain.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = e.fail(ctx, r, fmt.Errorf("panic: %v", p))
		}
	}()

	for {
		if r.steps >= e.maxSteps {
			e.logger.Warn("Step limit reached", append(r.logAttrs(), "node_id", nodeID, "max_steps", e.maxSteps)...)
			if err := e.end(ctx, r, domain.StatusEnded, domain.EndReasonStepLimit); err != nil {
				return e.fail(ctx, r, err)
			}
			return domain.Result{Session: r.session.Clone(), Message: domain.ErrStepLimit.Error()}, nil
		}
		r.steps++

		node, ok := r.flow.Node(nodeID)
		if !ok {
			t := gap(fmt.Errorf("%w: %q", domain.ErrNodeNotFound, nodeID))
			return e.conclude(ctx, r, nil, t)
		}

		e.enterNode(ctx, r, node)
		before := r.session.Clone()
		t := e.execute(ctx, r, node)

		switch t.kind {
		case advance:
			r.session.CurrentNodeID = t.next
			r.session.Status = domain.StatusActive
			if err := e.persist(ctx, r, before); err != nil {
				return e.fail(ctx, r, err)
			}
			e.leaveNode(ctx, r, node)
			nodeID = t.next
			continue
		case park:
			r.session.Park(domain.ResumeContext{NodeID: node.ID, AwaitingFieldID: t.field})
			if err := e.persist(ctx, r, before); err != nil {
				return e.fail(ctx, r, err)
			}
			e.leaveNode(ctx, r, node)
			return domain.Result{Success: true, Session: r.session.Clone()}, nil
		case halt:
			if err := e.persist(ctx, r, before); err != nil {
				return e.fail(ctx, r, err)
			}
			e.leaveNode(ctx, r, node)
			return domain.Result{Success: true, Session: r.session.Clone(), Message: t.reason}, nil
		default:
			e.leaveNode(ctx, r, node)
			return e.conclude(ctx, r, node, t)
		}
	}
}

// conclude applies a terminal transition.
func (e *Engine) conclude(ctx context.Context, r *run, node *domain.Node, t transition) (domain.Result, error) {
	if t.err != nil {
		attrs := r.logAttrs()
		if node != nil {
			attrs = append(attrs, "node_id", node.ID, "node_kind", node.Kind)
		}
		e.logger.Warn("Ending session", append(attrs, "reason", t.reason, "err", t.err)...)
	}

	if t.reason == domain.EndReasonTraversal && e.texts.TraversalGap != "" {
		nodeID := r.session.CurrentNodeID
		if node != nil {
			nodeID = node.ID
		}
		// Best-effort: failure keeps the reason.
		_, _ = e.send(ctx, r, &domain.Node{ID: nodeID, Kind: domain.KindSendText},
			textMessage(r.event.ContactID, e.texts.TraversalGap, false))
	}

	if err := e.end(ctx, r, t.status, t.reason); err != nil {
		return e.fail(ctx, r, err)
	}

	res := domain.Result{Session: r.session.Clone()}
	switch {
	case t.err == nil:
		res.Success = true
	case errors.Is(t.err, domain.ErrSendFailed):
		res.Message = "message delivery failed"
	default:
		res.Message = t.err.Error()
	}
	return res, nil
}

func (e *Engine) enterNode(ctx context.Context, r *run, node *domain.Node) {
	e.logger.Debug("Executing node", append(r.logAttrs(), "node_id", node.ID, "node_kind", node.Kind)...)
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
			EventBase: e.eventBase(domain.EventNodeEnter, r),
			NodeID:    node.ID,
			NodeKind:  node.Kind,
		})
	}
}

func (e *Engine) leaveNode(ctx context.Context, r *run, node *domain.Node) {
	if e.hooks.OnNodeLeave != nil {
		e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
			EventBase: e.eventBase(domain.EventNodeLeave, r),
			NodeID:    node.ID,
			NodeKind:  node.Kind,
		})
	}
}

// execute runs one node. It never returns an error: every failure maps to
// a terminal transition.
func (e *Engine) execute(ctx context.Context, r *run, node *domain.Node) transition {
	payload, err := node.Payload()
	if err != nil {
		return endWith(domain.EndReasonInvalidNode, &domain.NodeError{FlowID: r.flow.ID, NodeID: node.ID, Kind: node.Kind, Err: err})
	}

	switch p := payload.(type) {
	case *domain.StartPayload:
		return e.follow(r, node, r.flow.Next, false)

	case *domain.TextPayload:
		return e.sendAndFollow(ctx, r, node, e.buildText(r, p), r.flow.Next)
	case *domain.LegacyTextPayload:
		return e.sendAndFollow(ctx, r, node, e.buildText(r, &p.TextPayload), r.flow.LegacyNext)
	case *domain.MediaPayload:
		return e.sendAndFollow(ctx, r, node, e.buildMedia(r, p), r.flow.Next)
	case *domain.TemplatePayload:
		return e.sendAndFollow(ctx, r, node, e.buildTemplate(r, p), r.flow.Next)
	case *domain.LegacyTemplatePayload:
		return e.sendAndFollow(ctx, r, node, e.buildTemplate(r, &p.TemplatePayload), r.flow.LegacyNext)

	case *domain.ButtonsPayload:
		if t, failed := e.sendOrEnd(ctx, r, node, e.buildButtons(r, p)); failed {
			return t
		}
		return parkOn("")

	case *domain.CollectInputPayload:
		return e.collect(ctx, r, node, p)

	case *domain.ConditionalPayload:
		ok, err := e.evaluator.Evaluate(p.Condition, condition.Context{
			UserInput:     domain.NormalizeKeyword(r.event.UserInput),
			CollectedData: r.session.CollectedData,
		})
		if err != nil {
			e.logger.Warn("Condition evaluation failed, taking false branch",
				append(r.logAttrs(), "node_id", node.ID, "err", err)...)
			ok = false
		}
		handle := domain.HandleFalse
		if ok {
			handle = domain.HandleTrue
		}
		edge, found := r.flow.Edge(node.ID, handle)
		if !found {
			return gap(fmt.Errorf("%w: %q branch of %s", domain.ErrEdgeNotFound, handle, node.ID))
		}
		return advanceTo(edge.Target)

	case *domain.ActionPayload:
		return e.action(ctx, r, node, p)

	case *domain.FallbackPayload:
		text := firstNonEmpty(p.Message, e.texts.Fallback)
		if t, failed := e.sendOrEnd(ctx, r, node, textMessage(r.event.ContactID, e.interpolate(text, r), false)); failed {
			return t
		}
		return endWith(domain.EndReasonFallback, nil)
	}

	return endWith(domain.EndReasonInvalidNode, &domain.NodeError{
		FlowID: r.flow.ID, NodeID: node.ID, Kind: node.Kind,
		Err: fmt.Errorf("%w: %T", domain.ErrUnknownKind, payload),
	})
}

// sendAndFollow sends msg and advances along next. Without an edge the
// flow is complete.
func (e *Engine) sendAndFollow(ctx context.Context, r *run, node *domain.Node, msg domain.OutboundMessage, next func(string) (string, bool)) transition {
	if t, failed := e.sendOrEnd(ctx, r, node, msg); failed {
		return t
	}
	return e.follow(r, node, next, true)
}

// follow advances along next. A missing edge is a natural end when
// endsNaturally is set and a traversal gap otherwise.
func (e *Engine) follow(r *run, node *domain.Node, next func(string) (string, bool), endsNaturally bool) transition {
	target, ok := next(node.ID)
	if ok {
		return advanceTo(target)
	}
	if endsNaturally {
		return endWith(domain.EndReasonCompleted, nil)
	}
	return gap(fmt.Errorf("%w: %s has no %q edge", domain.ErrEdgeNotFound, node.ID, domain.HandleNext))
}

// sendOrEnd sends msg and reports a send_failed transition on failure.
func (e *Engine) sendOrEnd(ctx context.Context, r *run, node *domain.Node, msg domain.OutboundMessage) (transition, bool) {
	if _, err := e.send(ctx, r, node, msg); err != nil {
		return endWith(domain.EndReasonSendFailed, err), true
	}
	return transition{}, false
}

func (e *Engine) collect(ctx context.Context, r *run, node *domain.Node, p *domain.CollectInputPayload) transition {
	if field, missing := p.NextMissing(r.session.CollectedData); missing {
		if field.Prompt != "" {
			msg := textMessage(r.event.ContactID, e.interpolate(field.Prompt, r), false)
			if t, failed := e.sendOrEnd(ctx, r, node, msg); failed {
				return t
			}
		}
		return parkOn(field.ID)
	}

	confirmation := firstNonEmpty(p.Confirmation, e.texts.Confirmation)
	msg := textMessage(r.event.ContactID, e.interpolate(confirmation, r), false)
	if t, failed := e.sendOrEnd(ctx, r, node, msg); failed {
		return t
	}
	return e.follow(r, node, r.flow.Next, true)
}

func (e *Engine) action(ctx context.Context, r *run, node *domain.Node, p *domain.ActionPayload) transition {
	switch p.ActionType {
	case domain.ActionHandoffToAgent:
		text := firstNonEmpty(p.Message, e.texts.Handoff)
		if t, failed := e.sendOrEnd(ctx, r, node, textMessage(r.event.ContactID, e.interpolate(text, r), false)); failed {
			return t
		}
		return transition{kind: finish, status: domain.StatusLiveAgentHandoff, reason: domain.EndReasonHandoff}
	case domain.ActionReturnToMainMenu:
		text := firstNonEmpty(p.Message, e.texts.MainMenu)
		if t, failed := e.sendOrEnd(ctx, r, node, textMessage(r.event.ContactID, e.interpolate(text, r), false)); failed {
			return t
		}
		return endWith(domain.EndReasonMainMenu, nil)
	}

	e.logger.Warn("Unknown action type, stopping", append(r.logAttrs(), "node_id", node.ID, "action_type", p.ActionType)...)
	return transition{kind: halt, reason: fmt.Sprintf("unknown action type %q", p.ActionType)}
}
