package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/observability"
)

// ReconciliationService runs the periodic health sweeps: journal drift
// against stored balances and withdrawals stuck in PROCESSING.
type ReconciliationService struct {
	store       QueryStore
	staleCutoff time.Duration
	now         func() time.Time
}

func NewReconciliationService(store QueryStore, staleCutoff time.Duration) *ReconciliationService {
	if staleCutoff <= 0 {
		staleCutoff = 15 * time.Minute
	}
	return &ReconciliationService{
		store:       store,
		staleCutoff: staleCutoff,
		now:         time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *ReconciliationService) WithClock(now func() time.Time) *ReconciliationService {
	s.now = now
	return s
}

// Sweep recomputes the drift and staleness gauges once.
func (s *ReconciliationService) Sweep(ctx context.Context) error {
	queries := s.store.Queries()

	drift, err := queries.CountJournalDrift(ctx)
	if err != nil {
		return err
	}
	observability.SetJournalDrift(drift)
	if drift > 0 {
		zap.L().Error("journal does not replay to stored balances",
			zap.Int64("accounts", drift))
	}

	stuck, err := s.StuckWithdrawals(ctx, 100)
	if err != nil {
		return err
	}
	observability.SetStuckWithdrawals(int64(len(stuck)))
	for _, tx := range stuck {
		zap.L().Warn("withdrawal stuck in processing",
			zap.String("transaction_id", tx.ID.String()),
			zap.Time("updated_at", tx.UpdatedAt))
	}
	return nil
}

// StuckWithdrawals lists PROCESSING journal rows whose last update is older
// than the staleness cutoff. These are rail calls that died between the
// debit and the outcome write and need operator attention.
func (s *ReconciliationService) StuckWithdrawals(ctx context.Context, limit int32) ([]models.Transaction, error) {
	cutoff := s.now().Add(-s.staleCutoff)
	return s.store.Queries().ListProcessingOlderThan(ctx, cutoff, limit)
}
