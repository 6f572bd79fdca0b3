package repository

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/spinforge/settlement/internal/db"
	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
)

func init() {
	_ = godotenv.Load("../../.env")
}

// pgStore connects to the integration database, or skips the test when no
// DATABASE_URL is configured.
func pgStore(t *testing.T) *PgStore {
	t.Helper()
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	pool, err := db.Connect(context.Background(), connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewStore(pool)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func pgAccount(t *testing.T, store *PgStore, balance decimal.Decimal) *models.Account {
	t.Helper()
	id := uuid.New()
	account := &models.Account{
		ID:          id,
		UserID:      uuid.New(),
		Username:    "it_" + id.String()[:8],
		CashBalance: balance,
		LockedFunds: decimal.Zero,
	}
	require.NoError(t, store.Queries().CreateAccount(context.Background(), account))
	return account
}

func TestPgAccountRoundTrip(t *testing.T) {
	store := pgStore(t)
	ctx := context.Background()

	account := pgAccount(t, store, decimal.RequireFromString("12.34"))

	fetched, err := store.Queries().GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Equal(t, account.ID, fetched.ID)
	require.True(t, fetched.CashBalance.Equal(decimal.RequireFromString("12.34")))

	byUser, err := store.Queries().GetAccountByUser(ctx, account.UserID)
	require.NoError(t, err)
	require.Equal(t, account.ID, byUser.ID)

	byName, err := store.Queries().FindAccountByIdentifier(ctx, account.Username)
	require.NoError(t, err)
	require.Equal(t, account.ID, byName.ID)

	_, err = store.Queries().GetAccount(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrUnknownAccount)
}

func TestPgTransactionReferenceUnique(t *testing.T) {
	store := pgStore(t)
	ctx := context.Background()

	account := pgAccount(t, store, decimal.NewFromInt(100))
	reference := fmt.Sprintf("it_ref_%s", uuid.NewString())

	journal := func() *models.Transaction {
		ref := reference
		return &models.Transaction{
			ID:                uuid.New(),
			AccountID:         account.ID,
			Kind:              domain.TxKindDeposit,
			Amount:            decimal.NewFromInt(10),
			BalanceBefore:     decimal.NewFromInt(100),
			BalanceAfter:      decimal.NewFromInt(110),
			Status:            domain.TxStatusCompleted,
			ExternalReference: &ref,
			Metadata:          models.Metadata{"source": "integration"},
		}
	}

	require.NoError(t, store.Queries().InsertTransaction(ctx, journal()))
	err := store.Queries().InsertTransaction(ctx, journal())
	require.ErrorIs(t, err, domain.ErrDuplicateReference)

	fetched, err := store.Queries().GetTransactionByExternalReference(ctx, reference)
	require.NoError(t, err)
	require.True(t, fetched.Amount.Equal(decimal.NewFromInt(10)))
	require.Equal(t, "integration", fetched.Metadata["source"])
}

func TestPgRunInTxRollsBack(t *testing.T) {
	store := pgStore(t)
	ctx := context.Background()

	account := pgAccount(t, store, decimal.NewFromInt(50))

	sentinel := fmt.Errorf("abort")
	err := store.RunInTx(ctx, func(q Querier) error {
		locked, err := q.GetAccountForUpdate(ctx, account.ID)
		if err != nil {
			return err
		}
		if _, err := q.SaveAccountBalances(ctx, account.ID, locked.CashBalance.Sub(decimal.NewFromInt(20)), locked.LockedFunds, nil); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	fetched, err := store.Queries().GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, fetched.CashBalance.Equal(decimal.NewFromInt(50)))
}
