package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/repository"
)

// LedgerService owns balance mutations. Credit and Debit are primitives that
// run inside a caller-supplied unit of work so the journal row lands in the
// same transaction; LockFunds and UnlockFunds are complete operations.
type LedgerService struct {
	store QueryStore
	audit *AuditService
	now   func() time.Time
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{
		store: store,
		audit: NewAuditService(),
		now:   time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// Credit adds amount to the account's cash balance and returns the
// before/after snapshot. The account row stays locked for the rest of the
// unit of work.
func (s *LedgerService) Credit(ctx context.Context, q repository.Querier, accountID uuid.UUID, amount decimal.Decimal) (before, after decimal.Decimal, err error) {
	if amount.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("credit amount must not be negative: %s", amount)
	}
	account, err := q.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	before = account.CashBalance
	after = before.Add(amount)
	rows, err := q.SaveAccountBalances(ctx, accountID, after, account.LockedFunds, account.LockedUntil)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("credit account: %w", err)
	}
	if err := requireExactlyOne(rows, "credit account"); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return before, after, nil
}

// Debit removes amount from the account's cash balance, failing with
// domain.ErrInsufficientFunds when the balance cannot cover it.
func (s *LedgerService) Debit(ctx context.Context, q repository.Querier, accountID uuid.UUID, amount decimal.Decimal) (before, after decimal.Decimal, err error) {
	if amount.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("debit amount must not be negative: %s", amount)
	}
	account, err := q.GetAccountForUpdate(ctx, accountID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	before = account.CashBalance
	if amount.GreaterThan(before) {
		return decimal.Zero, decimal.Zero, domain.ErrInsufficientFunds
	}
	after = before.Sub(amount)
	rows, err := q.SaveAccountBalances(ctx, accountID, after, account.LockedFunds, account.LockedUntil)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("debit account: %w", err)
	}
	if err := requireExactlyOne(rows, "debit account"); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return before, after, nil
}

// LockFunds moves amount from the cash balance into the locked bucket for
// durationDays. One active lock per account.
func (s *LedgerService) LockFunds(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, durationDays int) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("lock amount must be positive: %s", amount)
	}
	if durationDays <= 0 {
		return nil, fmt.Errorf("lock duration must be positive: %d", durationDays)
	}

	var journal *models.Transaction
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		account, err := q.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		now := s.now()
		if account.LockedFunds.IsPositive() && account.LockedUntil != nil && now.Before(*account.LockedUntil) {
			return domain.ErrAlreadyLocked
		}
		if amount.GreaterThan(account.CashBalance) {
			return domain.ErrInsufficientFunds
		}

		before := account.CashBalance
		after := before.Sub(amount)
		until := now.AddDate(0, 0, durationDays)
		rows, err := q.SaveAccountBalances(ctx, accountID, after, account.LockedFunds.Add(amount), &until)
		if err != nil {
			return fmt.Errorf("lock funds: %w", err)
		}
		if err := requireExactlyOne(rows, "lock funds"); err != nil {
			return err
		}

		journal = &models.Transaction{
			ID:            uuid.New(),
			AccountID:     accountID,
			Kind:          domain.TxKindLockFunds,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			Status:        domain.TxStatusCompleted,
			Metadata: models.Metadata{
				"duration_days": durationDays,
				"locked_until":  until.Format(time.RFC3339),
			},
		}
		if err := q.InsertTransaction(ctx, journal); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, "transaction", journal.ID, nil, "funds_locked", "", domain.TxStatusCompleted, journal.Metadata)
	})
	if err != nil {
		return nil, err
	}
	return journal, nil
}

// UnlockFunds releases an expired lock back into the cash balance. Before
// expiry it fails with domain.ErrFundsLocked rather than silently no-oping.
func (s *LedgerService) UnlockFunds(ctx context.Context, accountID uuid.UUID) (*models.Transaction, error) {
	var journal *models.Transaction
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		account, err := q.GetAccountForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if !account.LockedFunds.IsPositive() {
			return domain.ErrNoActiveLock
		}
		if account.LockedUntil != nil && s.now().Before(*account.LockedUntil) {
			return domain.ErrFundsLocked
		}

		amount := account.LockedFunds
		before := account.CashBalance
		after := before.Add(amount)
		rows, err := q.SaveAccountBalances(ctx, accountID, after, decimal.Zero, nil)
		if err != nil {
			return fmt.Errorf("unlock funds: %w", err)
		}
		if err := requireExactlyOne(rows, "unlock funds"); err != nil {
			return err
		}

		journal = &models.Transaction{
			ID:            uuid.New(),
			AccountID:     accountID,
			Kind:          domain.TxKindUnlockFunds,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			Status:        domain.TxStatusCompleted,
		}
		if err := q.InsertTransaction(ctx, journal); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, "transaction", journal.ID, nil, "funds_unlocked", "", domain.TxStatusCompleted, nil)
	})
	if err != nil {
		return nil, err
	}
	return journal, nil
}
