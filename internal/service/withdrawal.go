package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/observability"
	"github.com/spinforge/settlement/internal/rail"
	"github.com/spinforge/settlement/internal/repository"
)

// MethodConfig is the per-payout-method policy.
type MethodConfig struct {
	Minimum decimal.Decimal
	Fee     decimal.Decimal
}

// WithdrawalConfig is the orchestrator's policy surface. ApprovalThreshold
// is denominated in the settlement currency.
type WithdrawalConfig struct {
	Rates             domain.Rates
	ApprovalThreshold decimal.Decimal
	Methods           map[string]MethodConfig
	MaxRetries        int
}

// WithdrawalService orchestrates outbound payouts: validation, fee and
// conversion, approval routing, the immediate debit, and the rail call.
// The rail call always happens outside any database transaction.
type WithdrawalService struct {
	store  QueryStore
	ledger *LedgerService
	rail   rail.Client
	audit  *AuditService
	cfg    WithdrawalConfig
}

func NewWithdrawalService(store QueryStore, ledger *LedgerService, railClient rail.Client, cfg WithdrawalConfig) *WithdrawalService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &WithdrawalService{
		store:  store,
		ledger: ledger,
		rail:   railClient,
		audit:  NewAuditService(),
		cfg:    cfg,
	}
}

// WithdrawalResult is what the requester sees. Status is the soft
// presentation status: a rail failure after the debit still reads as
// "processing" because the debit stands and an operator will retry.
type WithdrawalResult struct {
	Transaction      *models.Transaction
	Status           string
	Fee              decimal.Decimal
	SettlementAmount decimal.Decimal
}

// Request accepts a withdrawal of amount (platform currency) against the
// account's configured destination. A non-empty requestedMethod must match
// the destination's method; it exists so callers can assert which rail they
// expect rather than silently paying out over whatever is configured. The
// debit of amount plus fee and the journal row commit atomically before any
// rail traffic; amounts whose settlement value crosses the approval
// threshold park in PENDING_APPROVAL instead of going to the rail.
func (s *WithdrawalService) Request(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, requestedMethod string) (*WithdrawalResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount must be positive: %s", amount)
	}

	account, err := s.store.Queries().GetAccountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	dest := account.Destination
	if dest.Method == "" {
		return nil, domain.ErrNoDestination
	}
	if requestedMethod != "" && !strings.EqualFold(requestedMethod, dest.Method) {
		return nil, fmt.Errorf("%w: requested %s, configured %s", domain.ErrMethodMismatch, requestedMethod, dest.Method)
	}
	method, ok := s.cfg.Methods[dest.Method]
	if !ok {
		return nil, fmt.Errorf("no policy for payout method %q", dest.Method)
	}
	if amount.LessThan(method.Minimum) {
		return nil, fmt.Errorf("%w: minimum for %s is %s", domain.ErrBelowMinimum, dest.Method, domain.FormatAmount(method.Minimum))
	}

	settlementAmount := s.cfg.Rates.ToSettlement(amount)
	needsApproval := settlementAmount.GreaterThan(s.cfg.ApprovalThreshold)
	total := amount.Add(method.Fee)
	reference := "wd_" + uuid.NewString()

	initialStatus := domain.TxStatusProcessing
	if needsApproval {
		initialStatus = domain.TxStatusPendingApproval
	}

	var journal *models.Transaction
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		before, after, err := s.ledger.Debit(ctx, q, account.ID, total)
		if err != nil {
			return err
		}

		benef, err := dest.Snapshot()
		if err != nil {
			return err
		}
		journal = &models.Transaction{
			ID:                uuid.New(),
			AccountID:         account.ID,
			Kind:              domain.TxKindWithdrawal,
			Amount:            amount,
			BalanceBefore:     before,
			BalanceAfter:      after,
			Status:            initialStatus,
			ExternalReference: &reference,
			Metadata: models.Metadata{
				"fee":                 method.Fee.String(),
				"conversion_rate":     s.cfg.Rates.Withdrawal.String(),
				"settlement_amount":   settlementAmount.String(),
				"settlement_currency": domain.SettlementCurrency,
				"method":              dest.Method,
				"beneficiary":         benef,
				"retry_available":     false,
				"retry_count":         0,
			},
		}
		if err := q.InsertTransaction(ctx, journal); err != nil {
			return err
		}
		if err := s.audit.Write(ctx, q, "transaction", journal.ID, &userID, "withdrawal_requested", "", initialStatus, models.Metadata{
			"amount": amount.String(),
			"fee":    method.Fee.String(),
		}); err != nil {
			return err
		}
		return q.EnqueueOutboxEvent(ctx, &models.OutboxEvent{
			EventType: domain.EventWithdrawalRequested,
			AccountID: account.ID,
			Payload: models.Metadata{
				"transaction_id":    journal.ID.String(),
				"amount":            amount.String(),
				"settlement_amount": settlementAmount.String(),
				"status":            initialStatus,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementWithdrawalTransition(initialStatus)

	result := &WithdrawalResult{
		Transaction:      journal,
		Fee:              method.Fee,
		SettlementAmount: settlementAmount,
	}
	if needsApproval {
		result.Status = "pending_approval"
		zap.L().Info("withdrawal parked for approval",
			zap.String("transaction_id", journal.ID.String()),
			zap.String("settlement_amount", settlementAmount.String()))
		return result, nil
	}

	final, err := s.execute(ctx, journal.ID)
	if err != nil {
		return nil, err
	}
	result.Transaction = final
	if final.Status == domain.TxStatusCompleted {
		result.Status = "completed"
	} else {
		// The debit stands; the attempt will be retried.
		result.Status = "processing"
	}
	return result, nil
}

// Approve releases a parked withdrawal. The approval and the move to
// PROCESSING commit together, then the rail attempt runs.
func (s *WithdrawalService) Approve(ctx context.Context, transactionID, actorID uuid.UUID) (*models.Transaction, error) {
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		if _, err := transitionTransaction(ctx, q, s.audit, transactionID,
			[]string{domain.TxStatusPendingApproval}, domain.TxStatusApproved,
			&actorID, "withdrawal_approved", models.Metadata{"approved_by": actorID.String()}); err != nil {
			return err
		}
		_, err := transitionTransaction(ctx, q, s.audit, transactionID,
			[]string{domain.TxStatusApproved}, domain.TxStatusProcessing,
			&actorID, "withdrawal_dispatched", nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementWithdrawalTransition(domain.TxStatusProcessing)
	return s.execute(ctx, transactionID)
}

// Reject cancels a parked withdrawal and returns the debited amount plus
// fee to the account.
func (s *WithdrawalService) Reject(ctx context.Context, transactionID, actorID uuid.UUID, reason string) (*models.Transaction, error) {
	var cancelled *models.Transaction
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		tx, err := transitionTransaction(ctx, q, s.audit, transactionID,
			[]string{domain.TxStatusPendingApproval}, domain.TxStatusCancelled,
			&actorID, "withdrawal_rejected", models.Metadata{"rejection_reason": reason})
		if err != nil {
			return err
		}
		fee, err := metadataDecimal(tx.Metadata, "fee")
		if err != nil {
			return err
		}
		if _, _, err := s.ledger.Credit(ctx, q, tx.AccountID, tx.Amount.Add(fee)); err != nil {
			return err
		}
		cancelled = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementWithdrawalTransition(domain.TxStatusCancelled)
	return cancelled, nil
}

// Retry re-dispatches a failed withdrawal. Only attempts the rail marked
// retryable, and at most MaxRetries times.
func (s *WithdrawalService) Retry(ctx context.Context, transactionID, actorID uuid.UUID) (*models.Transaction, error) {
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		tx, err := q.GetTransactionForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if normalizeState(tx.Status) != domain.TxStatusFailed {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, tx.Status, domain.TxStatusProcessing)
		}
		if !metadataBool(tx.Metadata, "retry_available") {
			return domain.ErrRetryUnavailable
		}
		attempts := metadataInt(tx.Metadata, "retry_count")
		if attempts >= s.cfg.MaxRetries {
			return fmt.Errorf("%w: %d attempts exhausted", domain.ErrRetryUnavailable, attempts)
		}
		_, err = transitionTransaction(ctx, q, s.audit, transactionID,
			[]string{domain.TxStatusFailed}, domain.TxStatusProcessing,
			&actorID, "withdrawal_retried", models.Metadata{"retry_count": attempts + 1})
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementWithdrawalTransition(domain.TxStatusProcessing)
	return s.execute(ctx, transactionID)
}

// execute runs one rail attempt for a PROCESSING withdrawal and records the
// outcome. Beneficiary verification is fresh on every attempt; tokens are
// never reused across attempts.
func (s *WithdrawalService) execute(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.store.Queries().GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	settlementAmount, err := metadataDecimal(tx.Metadata, "settlement_amount")
	if err != nil {
		return nil, err
	}
	dest, err := destinationFromMetadata(tx.Metadata)
	if err != nil {
		return nil, err
	}
	reference := ""
	if tx.ExternalReference != nil {
		reference = *tx.ExternalReference
	}

	verification, err := s.rail.VerifyBeneficiary(ctx, dest)
	if err != nil {
		observability.IncrementRailAttempt("verify_failed")
		return s.recordFailure(ctx, transactionID, fmt.Sprintf("beneficiary verification failed: %v", err), true, nil)
	}

	result, err := s.rail.Transfer(ctx, rail.TransferRequest{
		Token:       verification.Token,
		Destination: dest,
		Amount:      settlementAmount,
		Currency:    domain.SettlementCurrency,
		Reference:   reference,
	})
	if err != nil {
		observability.IncrementRailAttempt("network_error")
		return s.recordFailure(ctx, transactionID, fmt.Sprintf("rail transfer error: %v", err), true, nil)
	}
	if !result.Succeeded() {
		retryable := result.StatusCode >= 500 || result.StatusCode == 0
		observability.IncrementRailAttempt("rejected")
		reason := fmt.Sprintf("rail rejected transfer: status=%d code=%s state=%s", result.StatusCode, result.ResponseCode, result.TransferStatus)
		return s.recordFailure(ctx, transactionID, reason, retryable, result)
	}

	observability.IncrementRailAttempt("success")
	var completed *models.Transaction
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		var err error
		completed, err = transitionTransaction(ctx, q, s.audit, transactionID,
			[]string{domain.TxStatusProcessing}, domain.TxStatusCompleted,
			nil, "withdrawal_completed", models.Metadata{
				"rail_reference":   result.RailReference,
				"beneficiary_name": verification.AccountName,
			})
		if err != nil {
			return err
		}
		return q.EnqueueOutboxEvent(ctx, &models.OutboxEvent{
			EventType: domain.EventWithdrawalCompleted,
			AccountID: completed.AccountID,
			Payload: models.Metadata{
				"transaction_id": transactionID.String(),
				"rail_reference": result.RailReference,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementWithdrawalTransition(domain.TxStatusCompleted)
	zap.L().Info("withdrawal completed",
		zap.String("transaction_id", transactionID.String()),
		zap.String("rail_reference", result.RailReference))
	return completed, nil
}

// recordFailure moves the withdrawal to FAILED. The debit is left in place:
// transient failures retry, permanent ones go to manual compensation.
func (s *WithdrawalService) recordFailure(ctx context.Context, transactionID uuid.UUID, reason string, retryable bool, result *rail.TransferResult) (*models.Transaction, error) {
	patch := models.Metadata{
		"retry_available": retryable,
		"failure_reason":  reason,
	}
	if result != nil {
		patch["rail_response_code"] = result.ResponseCode
		patch["rail_status"] = result.TransferStatus
	}

	var failed *models.Transaction
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		var err error
		failed, err = transitionTransaction(ctx, q, s.audit, transactionID,
			[]string{domain.TxStatusProcessing}, domain.TxStatusFailed,
			nil, "withdrawal_failed", patch)
		if err != nil {
			return err
		}
		return q.EnqueueOutboxEvent(ctx, &models.OutboxEvent{
			EventType: domain.EventWithdrawalFailed,
			AccountID: failed.AccountID,
			Payload: models.Metadata{
				"transaction_id":  transactionID.String(),
				"retry_available": retryable,
				"reason":          reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	observability.IncrementWithdrawalTransition(domain.TxStatusFailed)
	zap.L().Warn("withdrawal failed",
		zap.String("transaction_id", transactionID.String()),
		zap.Bool("retry_available", retryable),
		zap.String("reason", reason))
	return failed, nil
}
