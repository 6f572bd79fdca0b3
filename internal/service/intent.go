package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/rates"
	"github.com/spinforge/settlement/internal/repository"
)

// IntentService manages quoted crypto deposits. A quote fixes the rate for
// its TTL; confirmations against an expired quote are refused rather than
// settled at a stale rate.
type IntentService struct {
	store  QueryStore
	ledger *LedgerService
	audit  *AuditService
	rates  rates.Source
	ttl    time.Duration
	now    func() time.Time
}

func NewIntentService(store QueryStore, ledger *LedgerService, source rates.Source, ttl time.Duration) *IntentService {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &IntentService{
		store:  store,
		ledger: ledger,
		audit:  NewAuditService(),
		rates:  source,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *IntentService) WithClock(now func() time.Time) *IntentService {
	s.now = now
	return s
}

// CreateIntent quotes a crypto deposit for the account: a deposit address,
// the platform-currency value at the current rate, and the expiry.
func (s *IntentService) CreateIntent(ctx context.Context, userID uuid.UUID, asset string, cryptoAmount decimal.Decimal) (*models.DepositIntent, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset == "" {
		return nil, fmt.Errorf("asset is required")
	}
	if !cryptoAmount.IsPositive() {
		return nil, fmt.Errorf("crypto amount must be positive: %s", cryptoAmount)
	}

	account, err := s.store.Queries().GetAccountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rate, err := s.rates.Quote(ctx, asset)
	if err != nil {
		return nil, err
	}

	quotedAt := s.now()
	intent := &models.DepositIntent{
		ID:             uuid.New(),
		AccountID:      account.ID,
		Asset:          asset,
		Address:        depositAddress(asset),
		CryptoAmount:   cryptoAmount,
		PlatformAmount: cryptoAmount.Mul(rate).Round(2),
		Rate:           rate,
		Status:         domain.IntentStatusPending,
		QuotedAt:       quotedAt,
		ExpiresAt:      quotedAt.Add(s.ttl),
	}
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.InsertDepositIntent(ctx, intent); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, "deposit_intent", intent.ID, &userID, "intent_quoted", "", domain.IntentStatusPending, models.Metadata{
			"asset": asset,
			"rate":  rate.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// ConfirmOutcome reports what a chain confirmation did to the intent.
type ConfirmOutcome struct {
	Applied       bool
	Duplicate     bool
	TransactionID uuid.UUID
	Credited      decimal.Decimal
}

// ConfirmIntent settles a confirmed on-chain payment against its quote. The
// credit lands at the quoted rate; a late confirmation marks the intent
// EXPIRED and returns domain.ErrQuoteExpired.
func (s *IntentService) ConfirmIntent(ctx context.Context, intentID uuid.UUID, txHash string) (*ConfirmOutcome, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, fmt.Errorf("transaction hash is required")
	}

	outcome := &ConfirmOutcome{}
	expired := false
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		intent, err := q.GetDepositIntentForUpdate(ctx, intentID)
		if err != nil {
			return err
		}
		switch intent.Status {
		case domain.IntentStatusConfirmed:
			outcome.Duplicate = true
			return nil
		case domain.IntentStatusExpired:
			expired = true
			return nil
		}

		if s.now().After(intent.ExpiresAt) {
			rows, err := q.UpdateDepositIntentStatus(ctx, intentID, domain.IntentStatusExpired)
			if err != nil {
				return err
			}
			if err := requireExactlyOne(rows, "expire deposit intent"); err != nil {
				return err
			}
			expired = true
			return s.audit.Write(ctx, q, "deposit_intent", intentID, nil, "intent_expired", domain.IntentStatusPending, domain.IntentStatusExpired, nil)
		}

		before, after, err := s.ledger.Credit(ctx, q, intent.AccountID, intent.PlatformAmount)
		if err != nil {
			return err
		}
		reference := "crypto_" + txHash
		journal := &models.Transaction{
			ID:                uuid.New(),
			AccountID:         intent.AccountID,
			Kind:              domain.TxKindDeposit,
			Amount:            intent.PlatformAmount,
			BalanceBefore:     before,
			BalanceAfter:      after,
			Status:            domain.TxStatusCompleted,
			ExternalReference: &reference,
			Metadata: models.Metadata{
				"intent_id":     intent.ID.String(),
				"asset":         intent.Asset,
				"crypto_amount": intent.CryptoAmount.String(),
				"rate":          intent.Rate.String(),
				"tx_hash":       txHash,
			},
		}
		if err := q.InsertTransaction(ctx, journal); err != nil {
			return err
		}
		rows, err := q.UpdateDepositIntentStatus(ctx, intentID, domain.IntentStatusConfirmed)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "confirm deposit intent"); err != nil {
			return err
		}
		if err := s.audit.Write(ctx, q, "deposit_intent", intentID, nil, "intent_confirmed", domain.IntentStatusPending, domain.IntentStatusConfirmed, journal.Metadata); err != nil {
			return err
		}
		if err := q.EnqueueOutboxEvent(ctx, &models.OutboxEvent{
			EventType: domain.EventDepositCompleted,
			AccountID: intent.AccountID,
			Payload: models.Metadata{
				"transaction_id": journal.ID.String(),
				"amount":         intent.PlatformAmount.String(),
				"currency":       domain.PlatformCurrency,
				"reference":      reference,
			},
		}); err != nil {
			return err
		}

		outcome.Applied = true
		outcome.TransactionID = journal.ID
		outcome.Credited = intent.PlatformAmount
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		zap.L().Warn("crypto deposit confirmed after quote expiry",
			zap.String("intent_id", intentID.String()),
			zap.String("tx_hash", txHash))
		return nil, domain.ErrQuoteExpired
	}
	return outcome, nil
}

// depositAddress derives the per-asset deposit address. Addresses come from
// the custody provider in production; this row-scoped form keeps each intent
// payable to a unique address.
func depositAddress(asset string) string {
	return fmt.Sprintf("%s-%s", strings.ToLower(asset), uuid.NewString())
}
