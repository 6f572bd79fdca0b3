package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
)

func (q *Queries) EnqueueOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	payload, err := encodeMetadata(event.Payload)
	if err != nil {
		return err
	}
	query := `INSERT INTO outbox_events (event_type, account_id, payload, status, created_at)
		VALUES ($1, $2, $3, $4, NOW()) RETURNING id, created_at`
	if event.Status == "" {
		event.Status = domain.OutboxStatusPending
	}
	err = q.db.QueryRow(ctx, query, event.EventType, event.AccountID, payload, event.Status).
		Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue outbox event: %w", err)
	}
	return nil
}

// ListPendingOutboxEvents locks the returned rows for the life of the
// caller's transaction. Claim semantics require running this inside a unit
// of work; in autocommit the locks drop as soon as the SELECT ends.
func (q *Queries) ListPendingOutboxEvents(ctx context.Context, limit int32) ([]models.OutboxEvent, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, event_type, account_id, payload, status, attempts, created_at
		 FROM outbox_events WHERE status = $1 ORDER BY id LIMIT $2 FOR UPDATE SKIP LOCKED`,
		domain.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox events: %w", err)
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		var (
			event      models.OutboxEvent
			payloadRaw []byte
		)
		if err := rows.Scan(&event.ID, &event.EventType, &event.AccountID, &payloadRaw, &event.Status, &event.Attempts, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if event.Payload, err = decodeMetadata(payloadRaw); err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return out, nil
}

func (q *Queries) MarkOutboxEventDispatched(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE outbox_events SET status = $1 WHERE id = $2`,
		domain.OutboxStatusDispatched, id)
	if err != nil {
		return 0, fmt.Errorf("mark outbox dispatched: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) MarkOutboxEventFailed(ctx context.Context, id int64, attempts int32, terminal bool) (int64, error) {
	status := domain.OutboxStatusPending
	if terminal {
		status = domain.OutboxStatusFailed
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE outbox_events SET attempts = $1, status = $2 WHERE id = $3`,
		attempts, status, id)
	if err != nil {
		return 0, fmt.Errorf("mark outbox failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) InsertAuditRecord(ctx context.Context, record *models.AuditRecord) error {
	metadata, err := encodeMetadata(record.Metadata)
	if err != nil {
		return err
	}
	query := `INSERT INTO audit_log (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, NOW()) RETURNING id, created_at`
	err = q.db.QueryRow(ctx, query,
		record.EntityType, record.EntityID, record.ActorID, record.Action,
		record.PrevState, record.NextState, metadata,
	).Scan(&record.ID, &record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (q *Queries) InsertDepositIntent(ctx context.Context, intent *models.DepositIntent) error {
	query := `INSERT INTO deposit_intents (id, account_id, asset, address, crypto_amount, platform_amount, rate, status, quoted_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW()) RETURNING created_at`
	err := q.db.QueryRow(ctx, query,
		intent.ID, intent.AccountID, intent.Asset, intent.Address,
		intent.CryptoAmount.String(), intent.PlatformAmount.String(), intent.Rate.String(),
		intent.Status, intent.QuotedAt, intent.ExpiresAt,
	).Scan(&intent.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert deposit intent: %w", err)
	}
	return nil
}

func (q *Queries) GetDepositIntentForUpdate(ctx context.Context, id uuid.UUID) (*models.DepositIntent, error) {
	var (
		intent   models.DepositIntent
		crypto   string
		platform string
		rate     string
	)
	err := q.db.QueryRow(ctx,
		`SELECT id, account_id, asset, address, crypto_amount::text, platform_amount::text, rate::text, status, quoted_at, expires_at, created_at
		 FROM deposit_intents WHERE id = $1 FOR UPDATE`, id).
		Scan(&intent.ID, &intent.AccountID, &intent.Asset, &intent.Address,
			&crypto, &platform, &rate, &intent.Status, &intent.QuotedAt, &intent.ExpiresAt, &intent.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionMissing
		}
		return nil, fmt.Errorf("get deposit intent: %w", err)
	}
	if intent.CryptoAmount, err = decimal.NewFromString(crypto); err != nil {
		return nil, fmt.Errorf("parse crypto amount: %w", err)
	}
	if intent.PlatformAmount, err = decimal.NewFromString(platform); err != nil {
		return nil, fmt.Errorf("parse platform amount: %w", err)
	}
	if intent.Rate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse rate: %w", err)
	}
	return &intent, nil
}

func (q *Queries) UpdateDepositIntentStatus(ctx context.Context, id uuid.UUID, status string) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE deposit_intents SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return 0, fmt.Errorf("update deposit intent status: %w", err)
	}
	return tag.RowsAffected(), nil
}
