package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/repository"
)

var testCounter int

// testRates mirrors the production defaults: deposits at 1500, withdrawals
// at 1450 settlement units per platform unit.
func testRates() domain.Rates {
	return domain.Rates{
		Deposit:    decimal.NewFromInt(1500),
		Withdrawal: decimal.NewFromInt(1450),
	}
}

func testWithdrawalConfig() WithdrawalConfig {
	return WithdrawalConfig{
		Rates:             testRates(),
		ApprovalThreshold: decimal.NewFromInt(100000),
		Methods: map[string]MethodConfig{
			domain.PayoutMethodBank: {
				Minimum: decimal.NewFromInt(10),
				Fee:     decimal.NewFromInt(1),
			},
			domain.PayoutMethodCrypto: {
				Minimum: decimal.NewFromInt(10),
				Fee:     decimal.NewFromInt(2),
			},
		},
		MaxRetries: 5,
	}
}

func bankDestination() domain.PayoutDestination {
	return domain.PayoutDestination{
		Method: domain.PayoutMethodBank,
		Bank: &domain.BankDestination{
			AccountNumber: "0123456789",
			BankCode:      "058",
			AccountName:   "ADA OKAFOR",
		},
	}
}

// seedAccount creates an account with the given cash balance.
func seedAccount(t *testing.T, store *repository.MemStore, balance string) *models.Account {
	t.Helper()
	testCounter++
	amount, err := decimal.NewFromString(balance)
	require.NoError(t, err)

	account := &models.Account{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Username:    fmt.Sprintf("user%d", testCounter),
		CashBalance: amount,
		LockedFunds: decimal.Zero,
	}
	require.NoError(t, store.Queries().CreateAccount(context.Background(), account))
	return account
}

// seedAccountWithDestination also configures a bank payout destination.
func seedAccountWithDestination(t *testing.T, store *repository.MemStore, balance string) *models.Account {
	t.Helper()
	account := seedAccount(t, store, balance)
	rows, err := store.Queries().SetAccountDestination(context.Background(), account.ID, bankDestination())
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)
	account.Destination = bankDestination()
	return account
}

func accountBalance(t *testing.T, store *repository.MemStore, id uuid.UUID) decimal.Decimal {
	t.Helper()
	account, err := store.Queries().GetAccount(context.Background(), id)
	require.NoError(t, err)
	return account.CashBalance
}

func getTransaction(t *testing.T, store *repository.MemStore, id uuid.UUID) *models.Transaction {
	t.Helper()
	tx, err := store.Queries().GetTransaction(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func requireDecimalEqual(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	want, err := decimal.NewFromString(expected)
	require.NoError(t, err)
	require.True(t, want.Equal(actual), "expected %s, got %s", expected, actual)
}
