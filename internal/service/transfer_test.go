package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/repository"
)

func TestTransferMovesFundsBetweenAccounts(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewTransferService(store, NewLedgerService(store))
	sender := seedAccount(t, store, "100")
	recipient := seedAccount(t, store, "20")

	result, err := svc.Transfer(context.Background(), sender.UserID, recipient.Username, decimal.NewFromInt(30))
	require.NoError(t, err)
	require.Equal(t, recipient.Username, result.Recipient)
	requireDecimalEqual(t, "70", result.NewBalance)

	requireDecimalEqual(t, "70", accountBalance(t, store, sender.ID))
	requireDecimalEqual(t, "50", accountBalance(t, store, recipient.ID))

	// Both legs share a group and net to zero.
	debit := getTransaction(t, store, result.DebitTransaction.ID)
	credit := getTransaction(t, store, result.CreditTransaction.ID)
	require.Equal(t, debit.Metadata["transfer_group"], credit.Metadata["transfer_group"])
	requireDecimalEqual(t, "0", debit.Amount.Add(credit.Amount))
	require.Equal(t, "out", debit.Metadata["direction"])
	require.Equal(t, "in", credit.Metadata["direction"])
	require.Equal(t, domain.TxStatusCompleted, debit.Status)
	require.Equal(t, domain.TxStatusCompleted, credit.Status)
}

func TestTransferByAccountID(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewTransferService(store, NewLedgerService(store))
	sender := seedAccount(t, store, "100")
	recipient := seedAccount(t, store, "0")

	result, err := svc.Transfer(context.Background(), sender.UserID, recipient.ID.String(), decimal.NewFromInt(25))
	require.NoError(t, err)
	require.Equal(t, recipient.Username, result.Recipient)
	requireDecimalEqual(t, "25", accountBalance(t, store, recipient.ID))
}

func TestTransferRejectsSelfAndUnknown(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewTransferService(store, NewLedgerService(store))
	sender := seedAccount(t, store, "100")

	_, err := svc.Transfer(context.Background(), sender.UserID, sender.Username, decimal.NewFromInt(10))
	require.ErrorIs(t, err, domain.ErrInvalidRecipient)

	_, err = svc.Transfer(context.Background(), sender.UserID, "nobody", decimal.NewFromInt(10))
	require.ErrorIs(t, err, domain.ErrInvalidRecipient)
}

func TestTransferInsufficientFundsRollsBack(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewTransferService(store, NewLedgerService(store))
	sender := seedAccount(t, store, "5")
	recipient := seedAccount(t, store, "0")

	_, err := svc.Transfer(context.Background(), sender.UserID, recipient.Username, decimal.NewFromInt(10))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	requireDecimalEqual(t, "5", accountBalance(t, store, sender.ID))
	requireDecimalEqual(t, "0", accountBalance(t, store, recipient.ID))

	drift, err := store.Queries().CountJournalDrift(context.Background())
	require.NoError(t, err)
	require.Zero(t, drift)
}
