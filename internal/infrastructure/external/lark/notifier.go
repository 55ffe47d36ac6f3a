package lark

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/site-audit/internal/application/dispatcher"
	"github.com/garyjia/site-audit/internal/domain/event"
)

// TextSender posts a plain text message to a chat
type TextSender interface {
	SendText(ctx context.Context, chatID, content string) (string, error)
}

// Notifier relays domain events to a Lark group chat. It runs after commit,
// so a delivery failure is logged and never affects the audit.
type Notifier struct {
	sender TextSender
	chatID string
	logger *zap.Logger
}

// NewNotifier creates a notifier posting to chatID
func NewNotifier(sender TextSender, chatID string, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
		logger: logger,
	}
}

// Register subscribes the notifier to every event type
func (n *Notifier) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll("lark-notifier", n.Handle)
}

// Handle formats evt and sends it. Events without a message template are skipped.
func (n *Notifier) Handle(ctx context.Context, evt *event.Event) error {
	text := FormatEvent(evt)
	if text == "" {
		return nil
	}
	if _, err := n.sender.SendText(ctx, n.chatID, text); err != nil {
		n.logger.Warn("Lark notification failed",
			zap.String("event_type", string(evt.Type)),
			zap.Int64("audit_id", evt.AuditID),
			zap.Error(err))
		return err
	}
	return nil
}

// FormatEvent renders the chat text for evt, or "" when evt is not announced
func FormatEvent(evt *event.Event) string {
	code := evt.AuditCode
	switch evt.Type {
	case event.TypeAuditScheduled:
		return fmt.Sprintf("Auditoría %s programada para el proveedor %s (%s)",
			code, evt.GetPayloadString("provider_id"), evt.GetPayloadString("scheduled_date"))
	case event.TypeStageAdvanced:
		return fmt.Sprintf("Auditoría %s avanzó de %s a %s",
			code, evt.GetPayloadString("from_name"), evt.GetPayloadString("to_name"))
	case event.TypeAuditSuspended:
		return fmt.Sprintf("Auditoría %s suspendida en %s: %s",
			code, evt.GetPayloadString("from_name"), evt.GetPayloadString("reason"))
	case event.TypeAuditCancelled:
		return fmt.Sprintf("Auditoría %s cancelada en %s: %s",
			code, evt.GetPayloadString("from_name"), evt.GetPayloadString("reason"))
	case event.TypeFindingRegistered:
		return fmt.Sprintf("Auditoría %s: hallazgo %s (%s, severidad %s)",
			code, evt.GetPayloadString("code"), evt.GetPayloadString("type"), evt.GetPayloadString("severity"))
	case event.TypeReportFinalized:
		return fmt.Sprintf("Auditoría %s: informe generado con puntaje %v (%s)",
			code, evt.Payload["total_score"], evt.GetPayloadString("tier"))
	case event.TypeReportDelivered:
		return fmt.Sprintf("Auditoría %s: informe entregado al proveedor, puntaje %v (%s)",
			code, evt.Payload["total_score"], evt.GetPayloadString("tier"))
	}
	return ""
}
