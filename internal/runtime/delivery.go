package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/chatflow/pkg/domain"
)

// send delivers msg on behalf of node. On success it records the message,
// updates Session.LastBotMessage and notifies subscribers. Audit and
// notification failures are logged, never returned.
func (e *Engine) send(ctx context.Context, r *run, node *domain.Node, msg domain.OutboundMessage) (domain.SendResult, error) {
	res, err := e.sender.Send(ctx, msg, r.creds)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrSendFailed, err)
		if e.hooks.OnSendFailed != nil {
			e.hooks.OnSendFailed(ctx, &domain.MessageEvent{
				EventBase:   e.eventBase(domain.EventSendFailed, r),
				NodeID:      node.ID,
				MessageType: msg.Type,
				Err:         err,
			})
		}
		return res, err
	}

	content := summarize(msg)
	r.session.LastBotMessage = content

	record := domain.MessageRecord{
		ID:                e.newID(),
		SessionID:         r.session.ID,
		ContactID:         r.session.ContactID,
		PhoneNumberID:     r.session.PhoneNumberID,
		ProjectID:         r.session.ProjectID,
		TenantID:          r.session.TenantID,
		FlowID:            r.session.CurrentFlowID,
		NodeID:            node.ID,
		To:                msg.To,
		Direction:         domain.DirectionOutbound,
		Type:              msg.Type,
		Content:           content,
		Payload:           msg.Payload,
		Status:            domain.MessageStatusSent,
		ProviderMessageID: res.ProviderMessageID,
		CreatedAt:         e.now(),
	}
	if e.messages != nil {
		if err := e.messages.Append(ctx, record); err != nil {
			e.logger.Warn("Failed to append message record", append(r.logAttrs(), "node_id", node.ID, "err", err)...)
		}
	}
	if e.notifier != nil {
		note := domain.Notification{
			TenantID:  record.TenantID,
			ProjectID: record.ProjectID,
			Kind:      domain.NotificationNewMessage,
			Message:   &record,
		}
		if err := e.notifier.Publish(ctx, note); err != nil {
			e.logger.Warn("Failed to publish message notification", append(r.logAttrs(), "err", err)...)
		}
	}
	if e.hooks.OnMessageSent != nil {
		e.hooks.OnMessageSent(ctx, &domain.MessageEvent{
			EventBase:   e.eventBase(domain.EventMessageSent, r),
			NodeID:      node.ID,
			MessageType: msg.Type,
			MessageID:   res.ProviderMessageID,
		})
	}
	return res, nil
}
