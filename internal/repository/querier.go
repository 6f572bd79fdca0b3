package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spinforge/settlement/internal/domain"
	"github.com/spinforge/settlement/internal/models"
)

// Querier is the data-access contract shared by the postgres store and the
// in-memory store. Methods return plain value objects; cross-entity
// consistency is enforced by the service layer inside RunInTx.
type Querier interface {
	// Accounts.
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// GetAccountForUpdate takes a row lock so a balance check and the
	// following mutation cannot be split by a concurrent unit of work.
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByUser(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	FindAccountByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
	SaveAccountBalances(ctx context.Context, id uuid.UUID, cash, locked decimal.Decimal, lockedUntil *time.Time) (int64, error)
	SetAccountDestination(ctx context.Context, id uuid.UUID, dest domain.PayoutDestination) (int64, error)

	// Transaction journal.
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetTransactionByExternalReference(ctx context.Context, reference string) (*models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, status string, metadata models.Metadata) (int64, error)
	ListTransactionsByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int32) ([]models.Transaction, error)
	ListProcessingOlderThan(ctx context.Context, cutoff time.Time, limit int32) ([]models.Transaction, error)
	CountJournalDrift(ctx context.Context) (int64, error)

	// Crypto deposit intents.
	InsertDepositIntent(ctx context.Context, intent *models.DepositIntent) error
	GetDepositIntentForUpdate(ctx context.Context, id uuid.UUID) (*models.DepositIntent, error)
	UpdateDepositIntentStatus(ctx context.Context, id uuid.UUID, status string) (int64, error)

	// Notification outbox.
	EnqueueOutboxEvent(ctx context.Context, event *models.OutboxEvent) error
	ListPendingOutboxEvents(ctx context.Context, limit int32) ([]models.OutboxEvent, error)
	MarkOutboxEventDispatched(ctx context.Context, id int64) (int64, error)
	MarkOutboxEventFailed(ctx context.Context, id int64, attempts int32, terminal bool) (int64, error)

	// Audit trail.
	InsertAuditRecord(ctx context.Context, record *models.AuditRecord) error

	// Request idempotency records.
	GetIdempotencyRecord(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	ReserveIdempotencyKey(ctx context.Context, key, requestHash, method, path string) (bool, error)
	FinalizeIdempotencyKey(ctx context.Context, key, requestHash string, status int32, body []byte, contentType string) (*models.IdempotencyRecord, error)
}

// Store scopes queries to a connection pool or an open transaction.
type Store interface {
	Queries() Querier
	RunInTx(ctx context.Context, fn func(q Querier) error) error
}
