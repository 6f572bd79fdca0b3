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

const transactionColumns = `id, account_id, kind, amount::text, balance_before::text, balance_after::text, status, external_reference, metadata, created_at, updated_at`

func (q *Queries) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	metadata, err := encodeMetadata(tx.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO transactions (id, account_id, kind, amount, balance_before, balance_after, status, external_reference, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW()) RETURNING created_at, updated_at`
	err = q.db.QueryRow(ctx, query,
		tx.ID, tx.AccountID, tx.Kind,
		tx.Amount.String(), tx.BalanceBefore.String(), tx.BalanceAfter.String(),
		tx.Status, tx.ExternalReference, metadata,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return q.scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (q *Queries) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return q.scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) GetTransactionByExternalReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return q.scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE external_reference = $1`, reference))
}

func (q *Queries) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status string, metadata models.Metadata) (int64, error) {
	raw, err := encodeMetadata(metadata)
	if err != nil {
		return 0, err
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE transactions SET status = $1, metadata = $2, updated_at = NOW() WHERE id = $3`,
		status, raw, id)
	if err != nil {
		return 0, fmt.Errorf("update transaction status: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return q.collectTransactions(rows)
}

// ListProcessingOlderThan surfaces withdrawals stranded in PROCESSING, e.g.
// after a crash between the debit commit and the rail outcome commit.
func (q *Queries) ListProcessingOlderThan(ctx context.Context, cutoff time.Time, limit int32) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		domain.TxStatusProcessing, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck processing transactions: %w", err)
	}
	defer rows.Close()
	return q.collectTransactions(rows)
}

// CountJournalDrift counts journal rows whose balance snapshots do not
// reconcile with their signed amount.
func (q *Queries) CountJournalDrift(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*) FROM transactions t
		WHERE CASE t.kind
			WHEN 'DEPOSIT' THEN t.balance_after <> t.balance_before + t.amount
			WHEN 'WITHDRAWAL' THEN t.balance_after <> t.balance_before - t.amount - COALESCE((t.metadata->>'fee')::numeric, 0)
			WHEN 'TRANSFER' THEN t.balance_after <> t.balance_before + t.amount
			WHEN 'LOCK_FUNDS' THEN t.balance_after <> t.balance_before - t.amount
			WHEN 'UNLOCK_FUNDS' THEN t.balance_after <> t.balance_before + t.amount
			ELSE FALSE
		END`
	var count int64
	if err := q.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count journal drift: %w", err)
	}
	return count, nil
}

func (q *Queries) collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	var out []models.Transaction
	for rows.Next() {
		tx, err := q.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (q *Queries) scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var (
		tx      models.Transaction
		amount  string
		before  string
		after   string
		metaRaw []byte
	)
	err := row.Scan(&tx.ID, &tx.AccountID, &tx.Kind, &amount, &before, &after,
		&tx.Status, &tx.ExternalReference, &metaRaw, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionMissing
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if tx.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return nil, fmt.Errorf("parse balance_before: %w", err)
	}
	if tx.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return nil, fmt.Errorf("parse balance_after: %w", err)
	}
	if tx.Metadata, err = decodeMetadata(metaRaw); err != nil {
		return nil, err
	}
	return &tx, nil
}

func encodeMetadata(m models.Metadata) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return raw, nil
}

func decodeMetadata(raw []byte) (models.Metadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m models.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
