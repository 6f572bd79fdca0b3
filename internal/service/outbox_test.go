package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/repository"
)

type recordingNotifier struct {
	mu        sync.Mutex
	delivered []models.OutboxEvent
	fail      bool
}

func (n *recordingNotifier) Notify(_ context.Context, event models.OutboxEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp: connection reset")
	}
	n.delivered = append(n.delivered, event)
	return nil
}

func TestOutboxDispatchesCommittedEvents(t *testing.T) {
	store := repository.NewMemStore()
	deposits := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	_, err := deposits.Reconcile(context.Background(), DepositNotification{
		ExternalReference: "deposit_" + account.ID.String() + "_1724800000",
		SettlementAmount:  decimal.NewFromInt(15000),
		Status:            "successful",
		PaymentReference:  "pay_outbox_1",
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	outbox := NewOutboxService(store, notifier)

	count, err := outbox.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, notifier.delivered, 1)
	require.Equal(t, domain.EventDepositCompleted, notifier.delivered[0].EventType)
	require.Equal(t, account.ID, notifier.delivered[0].AccountID)

	// Dispatched events do not redeliver.
	count, err = outbox.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestOutboxRetriesFailedDeliveries(t *testing.T) {
	store := repository.NewMemStore()
	deposits := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	_, err := deposits.Reconcile(context.Background(), DepositNotification{
		ExternalReference: "deposit_" + account.ID.String() + "_1724800000",
		SettlementAmount:  decimal.NewFromInt(3000),
		Status:            "successful",
		PaymentReference:  "pay_outbox_2",
	})
	require.NoError(t, err)

	notifier := &recordingNotifier{fail: true}
	outbox := NewOutboxService(store, notifier)

	count, err := outbox.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Zero(t, count)

	// The event stays pending with one attempt recorded.
	events := store.OutboxEvents()
	require.Len(t, events, 1)
	require.Equal(t, domain.OutboxStatusPending, events[0].Status)
	require.EqualValues(t, 1, events[0].Attempts)

	// A later run with a healthy channel delivers it.
	notifier.fail = false
	count, err = outbox.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOutboxConcurrentDispatchersDeliverOnce(t *testing.T) {
	store := repository.NewMemStore()
	deposits := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	for _, payment := range []string{"pay_c1", "pay_c2", "pay_c3"} {
		_, err := deposits.Reconcile(context.Background(), DepositNotification{
			ExternalReference: "deposit_" + account.ID.String() + "_1724800000",
			SettlementAmount:  decimal.NewFromInt(1500),
			Status:            "successful",
			PaymentReference:  payment,
		})
		require.NoError(t, err)
	}

	notifier := &recordingNotifier{}
	outbox := NewOutboxService(store, notifier)

	// Two dispatchers racing over the same backlog. The claim is held for
	// the whole unit of work, so each event goes out exactly once.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := outbox.DispatchPending(context.Background(), 10)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, notifier.delivered, 3)
	seen := make(map[int64]bool)
	for _, event := range notifier.delivered {
		require.False(t, seen[event.ID])
		seen[event.ID] = true
	}
}
