package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/repository"
)

func TestReconcileCreditsAtDepositRate(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	outcome, err := svc.Reconcile(context.Background(), DepositNotification{
		ExternalReference:  fmt.Sprintf("deposit_%s_1724800000", account.ID),
		SettlementAmount:   decimal.NewFromInt(15000),
		SettlementCurrency: "NGN",
		Status:             "successful",
		PaymentReference:   "pay_abc",
	})
	require.NoError(t, err)
	require.True(t, outcome.Applied)
	requireDecimalEqual(t, "10", outcome.CreditedAmount)
	requireDecimalEqual(t, "10", accountBalance(t, store, account.ID))

	tx := getTransaction(t, store, outcome.TransactionID)
	require.Equal(t, domain.TxKindDeposit, tx.Kind)
	require.Equal(t, domain.TxStatusCompleted, tx.Status)
	require.Equal(t, "pay_abc", *tx.ExternalReference)
	require.Equal(t, "15000", tx.Metadata["settlement_amount"])
	require.Equal(t, fmt.Sprintf("deposit_%s_1724800000", account.ID), tx.Metadata["deposit_reference"])
}

func TestReconcileDuplicateIsNoop(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	notification := DepositNotification{
		ExternalReference: fmt.Sprintf("deposit_%s_1724800000", account.ID),
		SettlementAmount:  decimal.NewFromInt(15000),
		Status:            "successful",
		PaymentReference:  "pay_once",
	}

	first, err := svc.Reconcile(context.Background(), notification)
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := svc.Reconcile(context.Background(), notification)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.TransactionID, second.TransactionID)

	// Credited exactly once.
	requireDecimalEqual(t, "10", accountBalance(t, store, account.ID))
}

func TestReconcileDuplicatePaymentUnderNewDepositReference(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	first, err := svc.Reconcile(context.Background(), DepositNotification{
		ExternalReference: fmt.Sprintf("deposit_%s_100", account.ID),
		SettlementAmount:  decimal.NewFromInt(15000),
		Status:            "successful",
		PaymentReference:  "pay_same",
	})
	require.NoError(t, err)
	require.True(t, first.Applied)

	// The rail regenerates the virtual-account reference per session;
	// a replay of the same payment under a fresh one is still a duplicate.
	second, err := svc.Reconcile(context.Background(), DepositNotification{
		ExternalReference: fmt.Sprintf("deposit_%s_200", account.ID),
		SettlementAmount:  decimal.NewFromInt(15000),
		Status:            "successful",
		PaymentReference:  "pay_same",
	})
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.False(t, second.Applied)
	require.Equal(t, first.TransactionID, second.TransactionID)

	requireDecimalEqual(t, "10", accountBalance(t, store, account.ID))
}

func TestReconcileDistinctPaymentsShareDepositReference(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	reference := fmt.Sprintf("deposit_%s_1724800000", account.ID)

	for _, payment := range []string{"pay_1", "pay_2"} {
		outcome, err := svc.Reconcile(context.Background(), DepositNotification{
			ExternalReference: reference,
			SettlementAmount:  decimal.NewFromInt(15000),
			Status:            "successful",
			PaymentReference:  payment,
		})
		require.NoError(t, err)
		require.True(t, outcome.Applied)
	}

	// Two distinct payments into the same virtual account both credit.
	requireDecimalEqual(t, "20", accountBalance(t, store, account.ID))
}

func TestReconcileRequiresPaymentReference(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	_, err := svc.Reconcile(context.Background(), DepositNotification{
		ExternalReference: fmt.Sprintf("deposit_%s_1724800000", account.ID),
		SettlementAmount:  decimal.NewFromInt(15000),
		Status:            "successful",
	})
	require.Error(t, err)
	requireDecimalEqual(t, "0", accountBalance(t, store, account.ID))
}

func TestReconcileIgnoresNonSuccessful(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	outcome, err := svc.Reconcile(context.Background(), DepositNotification{
		ExternalReference: fmt.Sprintf("deposit_%s_1724800000", account.ID),
		SettlementAmount:  decimal.NewFromInt(15000),
		Status:            "failed",
	})
	require.NoError(t, err)
	require.True(t, outcome.Ignored)
	requireDecimalEqual(t, "0", accountBalance(t, store, account.ID))
}

func TestReconcileMalformedReference(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewDepositService(store, NewLedgerService(store), testRates())
	seedAccount(t, store, "0")

	_, err := svc.Reconcile(context.Background(), DepositNotification{
		ExternalReference: "payout_not-a-uuid_123",
		SettlementAmount:  decimal.NewFromInt(500),
		Status:            "successful",
		PaymentReference:  "pay_x",
	})
	require.Error(t, err)
}

func TestReconcileRoundsHalfUp(t *testing.T) {
	store := repository.NewMemStore()
	svc := NewDepositService(store, NewLedgerService(store), testRates())
	account := seedAccount(t, store, "0")

	// 1000 / 1500 = 0.666... rounds to 0.67.
	outcome, err := svc.Reconcile(context.Background(), DepositNotification{
		ExternalReference: fmt.Sprintf("deposit_%s_1724800001", account.ID),
		SettlementAmount:  decimal.NewFromInt(1000),
		Status:            "success",
		PaymentReference:  "pay_round",
	})
	require.NoError(t, err)
	requireDecimalEqual(t, "0.67", outcome.CreditedAmount)
}
