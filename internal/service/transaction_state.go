package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/repository"
)

// transactionTransitions is the legal edge set of the journal state machine.
// Approval forks off PENDING_APPROVAL; FAILED is re-enterable via retry.
var transactionTransitions = map[string]map[string]struct{}{
	domain.TxStatusPending: {
		domain.TxStatusProcessing: {},
		domain.TxStatusCompleted:  {},
		domain.TxStatusFailed:     {},
		domain.TxStatusCancelled:  {},
	},
	domain.TxStatusPendingApproval: {
		domain.TxStatusApproved:  {},
		domain.TxStatusCancelled: {},
	},
	domain.TxStatusApproved: {
		domain.TxStatusProcessing: {},
	},
	domain.TxStatusProcessing: {
		domain.TxStatusCompleted: {},
		domain.TxStatusFailed:    {},
	},
	domain.TxStatusFailed: {
		domain.TxStatusProcessing: {},
	},
	domain.TxStatusCompleted: {},
	domain.TxStatusCancelled: {},
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}

func canTransition(current, next string) bool {
	nextStates, ok := transactionTransitions[normalizeState(current)]
	if !ok {
		return false
	}
	_, ok = nextStates[normalizeState(next)]
	return ok
}

// transitionTransaction moves a journal row to nextState under a row lock.
// The current status must be in fromStatuses (when given) and the edge must
// be legal, otherwise domain.ErrInvalidTransition. The patch is merged into
// the existing metadata and an audit record is written in the same unit of
// work. Returns the updated row.
func transitionTransaction(
	ctx context.Context,
	q repository.Querier,
	audit *AuditService,
	transactionID uuid.UUID,
	fromStatuses []string,
	nextState string,
	actorID *uuid.UUID,
	action string,
	patch models.Metadata,
) (*models.Transaction, error) {
	tx, err := q.GetTransactionForUpdate(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("get transaction for transition: %w", err)
	}

	current := normalizeState(tx.Status)
	if len(fromStatuses) > 0 && !statusIn(current, fromStatuses) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, nextState)
	}
	if !canTransition(current, nextState) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current, nextState)
	}

	merged := tx.Metadata.Clone()
	for k, v := range patch {
		merged[k] = v
	}

	rows, err := q.UpdateTransactionStatus(ctx, transactionID, nextState, merged)
	if err != nil {
		return nil, fmt.Errorf("update transaction state: %w", err)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return nil, err
	}

	if err := audit.Write(ctx, q, "transaction", transactionID, actorID, action, current, nextState, patch); err != nil {
		return nil, err
	}

	tx.Status = nextState
	tx.Metadata = merged
	return tx, nil
}

func statusIn(status string, set []string) bool {
	for _, s := range set {
		if normalizeState(s) == status {
			return true
		}
	}
	return false
}
