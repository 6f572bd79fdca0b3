package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/repository"
)

func TestProvisionIsIdempotentPerUser(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewAccountService(store)
	userID := uuid.New()

	first, err := svc.Provision(context.Background(), userID, "ada")
	require.NoError(t, err)
	require.Equal(t, "ada", first.Username)
	require.True(t, first.CashBalance.IsZero())

	second, err := svc.Provision(context.Background(), userID, "ada")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestSetDestinationValidatesUnion(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewAccountService(store)
	account := seedAccount(t, store, "0")

	// Bank method without bank details is rejected.
	_, err := svc.SetDestination(context.Background(), account.UserID, domain.PayoutDestination{
		Method: domain.PayoutMethodBank,
	})
	require.Error(t, err)

	updated, err := svc.SetDestination(context.Background(), account.UserID, bankDestination())
	require.NoError(t, err)
	require.Equal(t, domain.PayoutMethodBank, updated.Destination.Method)

	fetched, err := svc.GetByUser(context.Background(), account.UserID)
	require.NoError(t, err)
	require.NotNil(t, fetched.Destination.Bank)
	require.Equal(t, "0123456789", fetched.Destination.Bank.AccountNumber)
}

func TestStatementPagesNewestFirst(t *testing.T) {
	store := repository.NewMemStore()
	accounts := NewAccountService(store)
	deposits := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	for i := 0; i < 3; i++ {
		_, err := deposits.Reconcile(context.Background(), DepositNotification{
			ExternalReference: "deposit_" + account.ID.String() + "_1724800000",
			SettlementAmount:  decimal.NewFromInt(int64(1500 * (i + 1))),
			Status:            "successful",
			PaymentReference:  "pay_" + uuid.NewString(),
		})
		require.NoError(t, err)
	}

	page, err := accounts.Statement(context.Background(), account.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Newest first: the 4500 deposit leads.
	requireDecimalEqual(t, "3", page[0].Amount)

	rest, err := accounts.Statement(context.Background(), account.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	requireDecimalEqual(t, "1", rest[0].Amount)
}
