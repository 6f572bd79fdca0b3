package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/models"
)

// Notifier delivers an outbox event to whatever channel the deployment
// wires in (email, push, webhooks out).
type Notifier interface {
	Notify(ctx context.Context, event models.OutboxEvent) error
}

// LogNotifier writes events to the structured log. The default sink when no
// delivery channel is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(ctx context.Context, event models.OutboxEvent) error {
	zap.L().Info("notification",
		zap.Int64("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("account_id", event.AccountID.String()),
		zap.Any("payload", event.Payload))
	return nil
}
