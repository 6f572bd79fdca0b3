package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/notify"
	"github.com/spinforge/settlement/internal/observability"
	"github.com/spinforge/settlement/internal/repository"
)

// outboxMaxAttempts is how many deliveries an event gets before it is
// parked as FAILED.
const outboxMaxAttempts = 10

// OutboxService drains the notification outbox. Events are written in the
// same unit of work as the ledger change that caused them and delivered
// here after commit, so a crashed request never sends a phantom
// notification.
type OutboxService struct {
	store    QueryStore
	notifier notify.Notifier
}

func NewOutboxService(store QueryStore, notifier notify.Notifier) *OutboxService {
	return &OutboxService{store: store, notifier: notifier}
}

// DispatchPending delivers up to batch pending events and returns how many
// were dispatched. The fetch, delivery, and status updates run inside one
// unit of work: the SKIP LOCKED row locks taken by the fetch are held until
// commit, so a concurrent dispatcher skips the claimed rows instead of
// double-delivering them.
func (s *OutboxService) DispatchPending(ctx context.Context, batch int32) (int, error) {
	if batch <= 0 {
		batch = 50
	}

	dispatched := 0
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		events, err := q.ListPendingOutboxEvents(ctx, batch)
		if err != nil {
			return err
		}

		for _, event := range events {
			if err := s.notifier.Notify(ctx, event); err != nil {
				attempts := event.Attempts + 1
				terminal := attempts >= outboxMaxAttempts
				if _, markErr := q.MarkOutboxEventFailed(ctx, event.ID, attempts, terminal); markErr != nil {
					return markErr
				}
				observability.IncrementOutboxDispatch("failed")
				zap.L().Warn("outbox delivery failed",
					zap.Int64("event_id", event.ID),
					zap.Int32("attempts", attempts),
					zap.Bool("terminal", terminal),
					zap.Error(err))
				continue
			}
			if _, err := q.MarkOutboxEventDispatched(ctx, event.ID); err != nil {
				return err
			}
			observability.IncrementOutboxDispatch("dispatched")
			dispatched++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return dispatched, nil
}
