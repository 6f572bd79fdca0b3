package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
)

const accountColumns = `id, user_id, username, cash_balance::text, locked_funds::text, locked_until, payout_destination, created_at`

func (q *Queries) CreateAccount(ctx context.Context, account *models.Account) error {
	dest, err := encodeDestination(account.Destination)
	if err != nil {
		return err
	}
	query := `INSERT INTO accounts (id, user_id, username, cash_balance, locked_funds, payout_destination, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW()) RETURNING created_at`
	err = q.db.QueryRow(ctx, query,
		account.ID, account.UserID, account.Username,
		account.CashBalance.String(), account.LockedFunds.String(), dest,
	).Scan(&account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (q *Queries) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return q.scanAccount(q.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (q *Queries) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return q.scanAccount(q.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetAccountByUser(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	return q.scanAccount(q.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID))
}

// FindAccountByIdentifier resolves a transfer recipient: an account UUID or
// a username.
func (q *Queries) FindAccountByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	if id, err := uuid.Parse(identifier); err == nil {
		return q.GetAccount(ctx, id)
	}
	return q.scanAccount(q.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, identifier))
}

func (q *Queries) SaveAccountBalances(ctx context.Context, id uuid.UUID, cash, locked decimal.Decimal, lockedUntil *time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE accounts SET cash_balance = $1, locked_funds = $2, locked_until = $3 WHERE id = $4`,
		cash.String(), locked.String(), lockedUntil, id)
	if err != nil {
		return 0, fmt.Errorf("save account balances: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) SetAccountDestination(ctx context.Context, id uuid.UUID, dest domain.PayoutDestination) (int64, error) {
	raw, err := encodeDestination(dest)
	if err != nil {
		return 0, err
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE accounts SET payout_destination = $1 WHERE id = $2`, raw, id)
	if err != nil {
		return 0, fmt.Errorf("set payout destination: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		account  models.Account
		cash     string
		locked   string
		destRaw  []byte
	)
	err := row.Scan(&account.ID, &account.UserID, &account.Username, &cash, &locked, &account.LockedUntil, &destRaw, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnknownAccount
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if account.CashBalance, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("parse cash balance: %w", err)
	}
	if account.LockedFunds, err = decimal.NewFromString(locked); err != nil {
		return nil, fmt.Errorf("parse locked funds: %w", err)
	}
	if account.Destination, err = domain.DecodeDestination(destRaw); err != nil {
		return nil, err
	}
	return &account, nil
}

func encodeDestination(dest domain.PayoutDestination) ([]byte, error) {
	if dest.Method == "" {
		return nil, nil
	}
	raw, err := json.Marshal(dest)
	if err != nil {
		return nil, fmt.Errorf("encode payout destination: %w", err)
	}
	return raw, nil
}
