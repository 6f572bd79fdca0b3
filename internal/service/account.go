package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/repository"
)

// AccountService provisions accounts for verified identities and manages the
// payout destination.
type AccountService struct {
	store QueryStore
	audit *AuditService
}

func NewAccountService(store QueryStore) *AccountService {
	return &AccountService{store: store, audit: NewAuditService()}
}

// Provision creates the zero-balance account for a verified user id, or
// returns the existing one. Idempotent per user.
func (s *AccountService) Provision(ctx context.Context, userID uuid.UUID, username string) (*models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}

	queries := s.store.Queries()
	existing, err := queries.GetAccountByUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrUnknownAccount) {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	account := &models.Account{
		ID:          uuid.New(),
		UserID:      userID,
		Username:    username,
		CashBalance: decimal.Zero,
		LockedFunds: decimal.Zero,
	}
	err = s.store.RunInTx(ctx, func(q repository.Querier) error {
		if err := q.CreateAccount(ctx, account); err != nil {
			return err
		}
		return s.audit.Write(ctx, q, "account", account.ID, &userID, "account_provisioned", "", "", nil)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// Raced with a concurrent first call; the existing row wins.
			return queries.GetAccountByUser(ctx, userID)
		}
		return nil, err
	}
	return account, nil
}

// GetByUser returns the account owned by the verified user id.
func (s *AccountService) GetByUser(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	return s.store.Queries().GetAccountByUser(ctx, userID)
}

// SetDestination replaces the active payout destination. The union is
// validated before it reaches storage.
func (s *AccountService) SetDestination(ctx context.Context, userID uuid.UUID, dest domain.PayoutDestination) (*models.Account, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	var account *models.Account
	err := s.store.RunInTx(ctx, func(q repository.Querier) error {
		var err error
		account, err = q.GetAccountByUser(ctx, userID)
		if err != nil {
			return err
		}
		rows, err := q.SetAccountDestination(ctx, account.ID, dest)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "set payout destination"); err != nil {
			return err
		}
		account.Destination = dest
		return s.audit.Write(ctx, q, "account", account.ID, &userID, "destination_updated", "", "", models.Metadata{
			"method": dest.Method,
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Statement returns a page of the account's journal, newest first.
func (s *AccountService) Statement(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]models.Transaction, error) {
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	if page < 1 {
		page = 1
	}
	offset := int32((page - 1) * pageSize)
	return s.store.Queries().ListTransactionsByAccount(ctx, accountID, int32(pageSize), offset)
}
