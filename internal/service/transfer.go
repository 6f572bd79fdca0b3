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

// TransferService moves funds between two internal accounts. Both legs land
// in one unit of work, so a transfer is always zero-net on the ledger.
type TransferService struct {
	store  QueryStore
	audit  *AuditService
	ledger *LedgerService
}

func NewTransferService(store QueryStore, ledger *LedgerService) *TransferService {
	return &TransferService{
		store:  store,
		audit:  NewAuditService(),
		ledger: ledger,
	}
}

// TransferResult reports the sender's view of a completed transfer.
type TransferResult struct {
	DebitTransaction  *models.Transaction
	CreditTransaction *models.Transaction
	NewBalance        decimal.Decimal
	Recipient         string
}

// Transfer moves amount from the sender's account to the recipient,
// addressed by account id or username. Rows are locked in account-id order
// so two opposing transfers cannot deadlock.
func (s *TransferService) Transfer(ctx context.Context, senderUserID uuid.UUID, recipient string, amount decimal.Decimal) (*TransferResult, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("transfer amount must be positive: %s", amount)
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, domain.ErrInvalidRecipient
	}

	queries := s.store.Queries()
	sender, err := queries.GetAccountByUser(ctx, senderUserID)
	if err != nil {
		return nil, err
	}
	target, err := queries.FindAccountByIdentifier(ctx, recipient)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownAccount) {
			return nil, domain.ErrInvalidRecipient
		}
		return nil, err
	}
	if target.ID == sender.ID {
		return nil, fmt.Errorf("%w: cannot transfer to own account", domain.ErrInvalidRecipient)
	}

	group := uuid.New()
	result := &TransferResult{Recipient: target.Username}
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		// Lock both rows in id order before either balance moves.
		first, second := sender.ID, target.ID
		if second.String() < first.String() {
			first, second = second, first
		}
		if _, err := q.GetAccountForUpdate(ctx, first); err != nil {
			return err
		}
		if _, err := q.GetAccountForUpdate(ctx, second); err != nil {
			return err
		}

		senderBefore, senderAfter, err := s.ledger.Debit(ctx, q, sender.ID, amount)
		if err != nil {
			return err
		}
		targetBefore, targetAfter, err := s.ledger.Credit(ctx, q, target.ID, amount)
		if err != nil {
			return err
		}

		debit := &models.Transaction{
			ID:            uuid.New(),
			AccountID:     sender.ID,
			Kind:          domain.TxKindTransfer,
			Amount:        amount.Neg(),
			BalanceBefore: senderBefore,
			BalanceAfter:  senderAfter,
			Status:        domain.TxStatusCompleted,
			Metadata: models.Metadata{
				"transfer_group":          group.String(),
				"counterparty_account_id": target.ID.String(),
				"counterparty_username":   target.Username,
				"direction":               "out",
			},
		}
		credit := &models.Transaction{
			ID:            uuid.New(),
			AccountID:     target.ID,
			Kind:          domain.TxKindTransfer,
			Amount:        amount,
			BalanceBefore: targetBefore,
			BalanceAfter:  targetAfter,
			Status:        domain.TxStatusCompleted,
			Metadata: models.Metadata{
				"transfer_group":          group.String(),
				"counterparty_account_id": sender.ID.String(),
				"counterparty_username":   sender.Username,
				"direction":               "in",
			},
		}
		if err := q.InsertTransaction(ctx, debit); err != nil {
			return err
		}
		if err := q.InsertTransaction(ctx, credit); err != nil {
			return err
		}
		if err := s.audit.Write(ctx, q, "transaction", debit.ID, &senderUserID, "transfer_sent", "", domain.TxStatusCompleted, models.Metadata{
			"amount":    amount.String(),
			"recipient": target.Username,
		}); err != nil {
			return err
		}
		if err := q.EnqueueOutboxEvent(ctx, &models.OutboxEvent{
			EventType: domain.EventTransferCompleted,
			AccountID: target.ID,
			Payload: models.Metadata{
				"transaction_id": credit.ID.String(),
				"amount":         amount.String(),
				"from":           sender.Username,
			},
		}); err != nil {
			return err
		}

		result.DebitTransaction = debit
		result.CreditTransaction = credit
		result.NewBalance = senderAfter
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("transfer completed",
		zap.String("transfer_group", group.String()),
		zap.String("from", sender.Username),
		zap.String("to", target.Username),
		zap.String("amount", domain.FormatAmount(amount)))
	return result, nil
}
