package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/rail"
	"github.com/spinforge/settlement/internal/repository"
)

func newWithdrawalFixture() (*repository.MemStore, *rail.MockClient, *WithdrawalService) {
	store := repository.NewMemStore()
	mock := rail.NewMockClient()
	svc := NewWithdrawalService(store, NewLedgerService(store), mock, testWithdrawalConfig())
	return store, mock, svc
}

func TestWithdrawalDebitsAmountPlusFee(t *testing.T) {
	store, mock, svc := newWithdrawalFixture()
	account := seedAccountWithDestination(t, store, "200")

	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(150), "")
	require.NoError(t, err)
	require.Equal(t, "completed", result.Status)
	requireDecimalEqual(t, "1", result.Fee)
	requireDecimalEqual(t, "217500", result.SettlementAmount)

	// 200 - 150 - 1 fee.
	requireDecimalEqual(t, "49", accountBalance(t, store, account.ID))

	tx := getTransaction(t, store, result.Transaction.ID)
	require.Equal(t, domain.TxStatusCompleted, tx.Status)
	require.Equal(t, "1", tx.Metadata["fee"])
	require.NotEmpty(t, tx.Metadata["rail_reference"])
	require.Len(t, mock.TransferCalls, 1)
	requireDecimalEqual(t, "217500", mock.TransferCalls[0].Amount)
}

func TestWithdrawalAboveThresholdParksForApproval(t *testing.T) {
	store, mock, svc := newWithdrawalFixture()
	account := seedAccountWithDestination(t, store, "200")

	// 70 * 1450 = 101500 > 100000.
	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(70), "")
	require.NoError(t, err)
	require.Equal(t, "pending_approval", result.Status)
	requireDecimalEqual(t, "101500", result.SettlementAmount)

	// The debit happens up front even while parked.
	requireDecimalEqual(t, "129", accountBalance(t, store, account.ID))

	tx := getTransaction(t, store, result.Transaction.ID)
	require.Equal(t, domain.TxStatusPendingApproval, tx.Status)

	// No rail traffic until approval.
	require.Empty(t, mock.VerifyCalls)
	require.Empty(t, mock.TransferCalls)
}

func TestWithdrawalBelowThresholdAutoProcesses(t *testing.T) {
	store, _, svc := newWithdrawalFixture()
	account := seedAccountWithDestination(t, store, "200")

	// 65 * 1450 = 94250 <= 100000.
	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(65), "")
	require.NoError(t, err)
	require.Equal(t, "completed", result.Status)
	requireDecimalEqual(t, "94250", result.SettlementAmount)

	tx := getTransaction(t, store, result.Transaction.ID)
	require.Equal(t, domain.TxStatusCompleted, tx.Status)
}

func TestWithdrawalRailRejectionIsPermanent(t *testing.T) {
	store, mock, svc := newWithdrawalFixture()
	account := seedAccountWithDestination(t, store, "200")

	mock.QueueResult(&rail.TransferResult{
		StatusCode:     200,
		ResponseCode:   "05",
		TransferStatus: "failed",
		Message:        "account resolve failed",
	})

	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(50), "")
	require.NoError(t, err)
	// The requester still sees an in-flight payout.
	require.Equal(t, "processing", result.Status)

	tx := getTransaction(t, store, result.Transaction.ID)
	require.Equal(t, domain.TxStatusFailed, tx.Status)
	require.Equal(t, false, tx.Metadata["retry_available"])

	// Debit stands pending manual compensation.
	requireDecimalEqual(t, "149", accountBalance(t, store, account.ID))

	// A 4xx-class rejection cannot be retried.
	_, err = svc.Retry(context.Background(), result.Transaction.ID, uuid.New())
	require.ErrorIs(t, err, domain.ErrRetryUnavailable)
}

func TestWithdrawalNetworkErrorIsRetryable(t *testing.T) {
	store, mock, svc := newWithdrawalFixture()
	account := seedAccountWithDestination(t, store, "200")

	mock.QueueError(errors.New("dial tcp: connection refused"))

	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(50), "")
	require.NoError(t, err)
	require.Equal(t, "processing", result.Status)

	tx := getTransaction(t, store, result.Transaction.ID)
	require.Equal(t, domain.TxStatusFailed, tx.Status)
	require.Equal(t, true, tx.Metadata["retry_available"])

	// Retry succeeds against the default mock behaviour.
	admin := uuid.New()
	completed, err := svc.Retry(context.Background(), result.Transaction.ID, admin)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, completed.Status)

	// Debited exactly once across both attempts.
	requireDecimalEqual(t, "149", accountBalance(t, store, account.ID))

	// Each attempt verifies the beneficiary afresh with its own token.
	require.Len(t, mock.TokensIssued, 2)
	require.NotEqual(t, mock.TokensIssued[0], mock.TokensIssued[1])
	require.Equal(t, mock.TokensIssued[1], mock.TransferCalls[1].Token)
}

func TestWithdrawalApproveDispatchesToRail(t *testing.T) {
	store, mock, svc := newWithdrawalFixture()
	account := seedAccountWithDestination(t, store, "200")

	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(70), "")
	require.NoError(t, err)
	require.Equal(t, "pending_approval", result.Status)

	admin := uuid.New()
	completed, err := svc.Approve(context.Background(), result.Transaction.ID, admin)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, completed.Status)
	require.Equal(t, admin.String(), completed.Metadata["approved_by"])
	require.Len(t, mock.TransferCalls, 1)

	// Approving a second time is an invalid transition.
	_, err = svc.Approve(context.Background(), result.Transaction.ID, admin)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestWithdrawalRejectRefundsAmountPlusFee(t *testing.T) {
	store, mock, svc := newWithdrawalFixture()
	account := seedAccountWithDestination(t, store, "200")

	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(70), "")
	require.NoError(t, err)
	requireDecimalEqual(t, "129", accountBalance(t, store, account.ID))

	admin := uuid.New()
	cancelled, err := svc.Reject(context.Background(), result.Transaction.ID, admin, "beneficiary name mismatch")
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCancelled, cancelled.Status)
	require.Equal(t, "beneficiary name mismatch", cancelled.Metadata["rejection_reason"])

	// Full refund of amount plus fee.
	requireDecimalEqual(t, "200", accountBalance(t, store, account.ID))
	require.Empty(t, mock.TransferCalls)
}

func TestWithdrawalVerifyFailureIsRetryable(t *testing.T) {
	store, mock, svc := newWithdrawalFixture()
	account := seedAccountWithDestination(t, store, "200")

	mock.VerifyErr = errors.New("rail verify: 503")

	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(50), "")
	require.NoError(t, err)
	require.Equal(t, "processing", result.Status)

	tx := getTransaction(t, store, result.Transaction.ID)
	require.Equal(t, domain.TxStatusFailed, tx.Status)
	require.Equal(t, true, tx.Metadata["retry_available"])
	require.Empty(t, mock.TransferCalls)
}

func TestWithdrawalRetryCapExhausts(t *testing.T) {
	store := repository.NewMemStore()
	mock := rail.NewMockClient()
	cfg := testWithdrawalConfig()
	cfg.MaxRetries = 2
	svc := NewWithdrawalService(store, NewLedgerService(store), mock, cfg)
	account := seedAccountWithDestination(t, store, "200")

	mock.QueueError(errors.New("timeout"))
	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(50), "")
	require.NoError(t, err)

	admin := uuid.New()
	for i := 0; i < 2; i++ {
		mock.QueueError(errors.New("timeout"))
		failed, err := svc.Retry(context.Background(), result.Transaction.ID, admin)
		require.NoError(t, err)
		require.Equal(t, domain.TxStatusFailed, failed.Status)
	}

	_, err = svc.Retry(context.Background(), result.Transaction.ID, admin)
	require.ErrorIs(t, err, domain.ErrRetryUnavailable)
}

func TestWithdrawalMethodMustMatchDestination(t *testing.T) {
	store, _, svc := newWithdrawalFixture()
	account := seedAccountWithDestination(t, store, "200")

	_, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(50), domain.PayoutMethodCrypto)
	require.ErrorIs(t, err, domain.ErrMethodMismatch)
	requireDecimalEqual(t, "200", accountBalance(t, store, account.ID))

	// Matching method is accepted, case-insensitively.
	result, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(50), "BANK_ACCOUNT")
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, getTransaction(t, store, result.Transaction.ID).Status)
}

func TestWithdrawalValidation(t *testing.T) {
	store, _, svc := newWithdrawalFixture()

	t.Run("no destination", func(t *testing.T) {
		account := seedAccount(t, store, "200")
		_, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(50), "")
		require.ErrorIs(t, err, domain.ErrNoDestination)
	})

	t.Run("below minimum", func(t *testing.T) {
		account := seedAccountWithDestination(t, store, "200")
		_, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(5), "")
		require.ErrorIs(t, err, domain.ErrBelowMinimum)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		account := seedAccountWithDestination(t, store, "100")
		// 100 covers the amount but not the fee.
		_, err := svc.Request(context.Background(), account.UserID, decimal.NewFromInt(100), "")
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)

		// Rollback left the balance untouched.
		requireDecimalEqual(t, "100", accountBalance(t, store, account.ID))
	})
}
