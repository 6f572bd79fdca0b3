package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/spinforge/settlement/internal/models"
)

func (q *Queries) GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := q.db.QueryRow(ctx,
		`SELECT idempotency_key, request_hash, method, path, response_status, response_body, content_type, in_progress, created_at
		 FROM idempotency_keys WHERE idempotency_key = $1`, key).
		Scan(&rec.Key, &rec.RequestHash, &rec.Method, &rec.Path, &rec.Status, &rec.Body, &rec.ContentType, &rec.InProgress, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return &rec, nil
}

// ReserveIdempotencyKey claims a key for the current request. Returns false
// when another request already holds it.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress)
		 VALUES ($1, $2, $3, $4, TRUE)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		key, requestHash, method, path)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, key, requestHash string, status int32, body []byte, contentType string) (*models.IdempotencyRecord, error) {
	var rec models.IdempotencyRecord
	err := q.db.QueryRow(ctx,
		`UPDATE idempotency_keys
		 SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE
		 WHERE idempotency_key = $4 AND request_hash = $5
		 RETURNING idempotency_key, request_hash, method, path, response_status, response_body, content_type, in_progress, created_at`,
		status, body, contentType, key, requestHash).
		Scan(&rec.Key, &rec.RequestHash, &rec.Method, &rec.Path, &rec.Status, &rec.Body, &rec.ContentType, &rec.InProgress, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	return &rec, nil
}
