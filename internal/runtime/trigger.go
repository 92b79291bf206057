package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// resolveFlow finds the flow an inbound text starts: the active flow whose
// trigger keyword matches, else the project's fallback flow. It also returns
// the node kind that marks the flow's entry.
func (e *Engine) resolveFlow(ctx context.Context, ev domain.InboundEvent) (*domain.Flow, domain.NodeKind, error) {
	keyword := domain.NormalizeKeyword(ev.UserInput)
	if keyword != "" && keyword != domain.FallbackTrigger {
		flow, err := e.flows.FindActiveByTrigger(ctx, ev.ProjectID, ev.TenantID, keyword)
		if err == nil {
			return flow, domain.KindStart, nil
		}
		if !errors.Is(err, domain.ErrFlowNotFound) {
			return nil, "", err
		}
	}

	flow, err := e.flows.FindActiveByTrigger(ctx, ev.ProjectID, ev.TenantID, domain.FallbackTrigger)
	if err != nil {
		return nil, "", err
	}
	return flow, domain.KindFallback, nil
}

// trigger starts a new session for a contact without a live one.
func (e *Engine) trigger(ctx context.Context, ev domain.InboundEvent, creds domain.Credentials) (domain.Result, error) {
	r := &run{event: ev, creds: creds}

	flow, entryKind, err := e.resolveFlow(ctx, ev)
	if errors.Is(err, domain.ErrFlowNotFound) {
		return e.triggerGap(ctx, r, "no flow matched")
	}
	if err != nil {
		return e.fail(ctx, r, fmt.Errorf("flow lookup failed: %w", err))
	}
	r.flow = flow

	entry, ok := flow.EntryNode(entryKind)
	if !ok {
		e.logger.Warn("Matched flow has no nodes", r.logAttrs()...)
		return e.triggerGap(ctx, r, "matched flow has no nodes")
	}

	s := domain.NewSession(e.newID(), ev.Key(), ev.TenantID, flow.ID, entry.ID, e.now())
	if err := e.sessions.Store().Create(ctx, s); err != nil {
		if errors.Is(err, domain.ErrSessionConflict) {
			return e.lostCreateRace(ctx, r)
		}
		return e.fail(ctx, r, fmt.Errorf("failed to create session: %w", err))
	}
	r.session = s

	e.logger.Info("Session started", append(r.logAttrs(), "node_id", entry.ID)...)
	return e.drive(ctx, r, entry.ID)
}

// triggerGap sends the generic not-understood text without creating a session.
func (e *Engine) triggerGap(ctx context.Context, r *run, why string) (domain.Result, error) {
	e.logger.Info("Trigger gap", append(r.logAttrs(), "reason", why)...)
	msg := textMessage(r.event.ContactID, e.texts.NotUnderstood, false)
	if _, err := e.sender.Send(ctx, msg, r.creds); err != nil {
		e.logger.Warn("Failed to send not-understood message", append(r.logAttrs(), "err", err)...)
	}
	return domain.Result{Success: false, Message: why}, nil
}

// lostCreateRace handles a concurrent duplicate event: another handler
// created the session first, so its session is returned untouched.
func (e *Engine) lostCreateRace(ctx context.Context, r *run) (domain.Result, error) {
	existing, err := e.sessions.FindActive(ctx, r.event.Key())
	if err != nil {
		return domain.Result{}, fmt.Errorf("%w: %v", domain.ErrUnhandled, err)
	}
	e.logger.Info("Session already started by a concurrent event", r.logAttrs()...)
	return domain.Result{Success: true, Session: existing, Message: "session already in progress"}, nil
}
