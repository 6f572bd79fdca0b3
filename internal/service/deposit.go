package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/repository"
)

// DepositService reconciles settlement-rail deposit notifications into
// ledger credits. Reconciliation is idempotent per external reference.
type DepositService struct {
	store  QueryStore
	ledger *LedgerService
	audit  *AuditService
	rates  domain.Rates
}

func NewDepositService(store QueryStore, ledger *LedgerService, rates domain.Rates) *DepositService {
	return &DepositService{
		store:  store,
		ledger: ledger,
		audit:  NewAuditService(),
		rates:  rates,
	}
}

// DepositNotification is one webhook delivery from the settlement rail.
type DepositNotification struct {
	ExternalReference  string          `json:"reference"`
	SettlementAmount   decimal.Decimal `json:"amount"`
	SettlementCurrency string          `json:"currency"`
	Status             string          `json:"status"`
	PaymentReference   string          `json:"payment_reference"`
}

// ReconcileOutcome reports what a notification did to the ledger.
type ReconcileOutcome struct {
	Applied        bool
	Duplicate      bool
	Ignored        bool
	TransactionID  uuid.UUID
	CreditedAmount decimal.Decimal
}

// Reconcile applies one deposit notification. Non-successful statuses are
// acknowledged and dropped; a payment reference already in the journal is a
// duplicate no-op; otherwise the settlement amount is converted at the
// deposit rate and credited atomically with its journal row. Idempotency is
// keyed on the rail's payment reference, not the virtual-account deposit
// reference: the rail regenerates the latter per session, and one deposit
// reference can receive many distinct payments.
func (s *DepositService) Reconcile(ctx context.Context, n DepositNotification) (*ReconcileOutcome, error) {
	if !strings.EqualFold(n.Status, "successful") && !strings.EqualFold(n.Status, "success") {
		zap.L().Info("ignoring non-successful deposit notification",
			zap.String("reference", n.ExternalReference),
			zap.String("status", n.Status))
		return &ReconcileOutcome{Ignored: true}, nil
	}
	if strings.TrimSpace(n.PaymentReference) == "" {
		return nil, fmt.Errorf("successful deposit notification missing payment reference")
	}
	if !n.SettlementAmount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive: %s", n.SettlementAmount)
	}
	if n.SettlementCurrency != "" && !strings.EqualFold(n.SettlementCurrency, domain.SettlementCurrency) {
		return nil, fmt.Errorf("unexpected settlement currency %q", n.SettlementCurrency)
	}

	accountID, err := accountFromDepositReference(n.ExternalReference)
	if err != nil {
		return nil, err
	}

	credit := s.rates.ToPlatform(n.SettlementAmount)

	outcome := &ReconcileOutcome{}
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		before, after, err := s.ledger.Credit(ctx, q, accountID, credit)
		if err != nil {
			return err
		}

		reference := n.PaymentReference
		journal := &models.Transaction{
			ID:                uuid.New(),
			AccountID:         accountID,
			Kind:              domain.TxKindDeposit,
			Amount:            credit,
			BalanceBefore:     before,
			BalanceAfter:      after,
			Status:            domain.TxStatusCompleted,
			ExternalReference: &reference,
			Metadata: models.Metadata{
				"settlement_amount":   n.SettlementAmount.String(),
				"settlement_currency": domain.SettlementCurrency,
				"conversion_rate":     s.rates.Deposit.String(),
				"deposit_reference":   n.ExternalReference,
			},
		}
		if err := q.InsertTransaction(ctx, journal); err != nil {
			return err
		}
		if err := s.audit.Write(ctx, q, "transaction", journal.ID, nil, "deposit_reconciled", "", domain.TxStatusCompleted, journal.Metadata); err != nil {
			return err
		}
		if err := q.EnqueueOutboxEvent(ctx, &models.OutboxEvent{
			EventType: domain.EventDepositCompleted,
			AccountID: accountID,
			Payload: models.Metadata{
				"transaction_id": journal.ID.String(),
				"amount":         credit.String(),
				"currency":       domain.PlatformCurrency,
				"reference":      reference,
			},
		}); err != nil {
			return err
		}

		outcome.Applied = true
		outcome.TransactionID = journal.ID
		outcome.CreditedAmount = credit
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// The unique journal reference rejected a replay; the earlier
			// credit stands and the rollback discarded this one.
			existing, lookupErr := s.store.Queries().GetTransactionByExternalReference(ctx, n.PaymentReference)
			if lookupErr != nil {
				return nil, lookupErr
			}
			zap.L().Info("duplicate deposit notification",
				zap.String("payment_reference", n.PaymentReference),
				zap.String("transaction_id", existing.ID.String()))
			return &ReconcileOutcome{Duplicate: true, TransactionID: existing.ID, CreditedAmount: existing.Amount}, nil
		}
		return nil, err
	}

	zap.L().Info("deposit reconciled",
		zap.String("payment_reference", n.PaymentReference),
		zap.String("transaction_id", outcome.TransactionID.String()),
		zap.String("credited", domain.FormatAmount(credit)))
	return outcome, nil
}

// accountFromDepositReference extracts the account id from a virtual-account
// reference of the form deposit_{account_id}_{timestamp}.
func accountFromDepositReference(reference string) (uuid.UUID, error) {
	parts := strings.Split(reference, "_")
	if len(parts) < 3 || parts[0] != "deposit" {
		return uuid.Nil, fmt.Errorf("malformed deposit reference %q", reference)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed deposit reference %q: %w", reference, err)
	}
	return id, nil
}
