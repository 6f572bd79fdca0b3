package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spinforge/settlement/internal/repository"
)

func TestLookupMissAndReserve(t *testing.T) {
	store := NewStore(nil, repository.NewMemStore(), time.Hour)
	ctx := context.Background()

	_, err := store.Lookup(ctx, "key-1", "hash-a")
	require.ErrorIs(t, err, ErrNotFound)

	reserved, err := store.Reserve(ctx, "key-1", "hash-a", "POST", "/v1/transfers")
	require.NoError(t, err)
	require.True(t, reserved)

	reserved, err = store.Reserve(ctx, "key-1", "hash-a", "POST", "/v1/transfers")
	require.NoError(t, err)
	require.False(t, reserved)

	// Reserved but not finalized reads as in progress.
	_, err = store.Lookup(ctx, "key-1", "hash-a")
	require.ErrorIs(t, err, ErrInProgress)
}

func TestFinalizeAndReplay(t *testing.T) {
	store := NewStore(nil, repository.NewMemStore(), time.Hour)
	ctx := context.Background()

	reserved, err := store.Reserve(ctx, "key-2", "hash-a", "POST", "/v1/withdrawals")
	require.NoError(t, err)
	require.True(t, reserved)

	rec, err := store.Finalize(ctx, "key-2", "hash-a", 202, []byte(`{"status":"processing"}`), "application/json")
	require.NoError(t, err)
	require.Equal(t, 202, rec.Status)

	replay, err := store.Lookup(ctx, "key-2", "hash-a")
	require.NoError(t, err)
	require.Equal(t, 202, replay.Status)
	require.Equal(t, "postgres", replay.ServedBy)
	require.JSONEq(t, `{"status":"processing"}`, string(replay.Body))
}

func TestLookupRejectsHashMismatch(t *testing.T) {
	store := NewStore(nil, repository.NewMemStore(), time.Hour)
	ctx := context.Background()

	reserved, err := store.Reserve(ctx, "key-3", "hash-a", "POST", "/v1/transfers")
	require.NoError(t, err)
	require.True(t, reserved)

	_, err = store.Finalize(ctx, "key-3", "hash-a", 200, []byte(`{}`), "application/json")
	require.NoError(t, err)

	// Same key with a different body is a client error, not a replay.
	_, err = store.Lookup(ctx, "key-3", "hash-b")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestWaitForCompletionTimesOutWithContext(t *testing.T) {
	store := NewStore(nil, repository.NewMemStore(), time.Hour)

	reserved, err := store.Reserve(context.Background(), "key-4", "hash-a", "POST", "/v1/transfers")
	require.NoError(t, err)
	require.True(t, reserved)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	_, err = store.WaitForCompletion(ctx, "key-4", "hash-a")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
