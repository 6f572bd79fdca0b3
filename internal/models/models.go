package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/spinforge/settlement/internal/domain"
)

// Account is the per-user ledger record. Created with zero balances on the
// first call after identity verification.
type Account struct {
	ID          uuid.UUID                `json:"id"`
	UserID      uuid.UUID                `json:"user_id"`
	Username    string                   `json:"username"`
	CashBalance decimal.Decimal          `json:"cash_balance"`
	LockedFunds decimal.Decimal          `json:"locked_funds"`
	LockedUntil *time.Time               `json:"locked_until,omitempty"`
	Destination domain.PayoutDestination `json:"payout_destination"`
	CreatedAt   time.Time                `json:"created_at"`
}

// Metadata is the free-form journal metadata bag (fee, conversion rate,
// beneficiary, approval/retry audit trail).
type Metadata map[string]any

// Clone returns a shallow copy so patches never alias a stored map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Transaction is a journal entry. Rows are append-only except for Status and
// Metadata, which are owned by the orchestrating service's state machine.
type Transaction struct {
	ID                uuid.UUID       `json:"id"`
	AccountID         uuid.UUID       `json:"account_id"`
	Kind              string          `json:"kind"`
	Amount            decimal.Decimal `json:"amount"` // signed for transfers, unsigned otherwise
	BalanceBefore     decimal.Decimal `json:"balance_before"`
	BalanceAfter      decimal.Decimal `json:"balance_after"`
	Status            string          `json:"status"`
	ExternalReference *string         `json:"external_reference,omitempty"` // unique when present
	Metadata          Metadata        `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DepositIntent is a quoted crypto deposit: address/amount pairing valid
// until ExpiresAt so the user cannot pay against a stale rate.
type DepositIntent struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	Asset          string          `json:"asset"`
	Address        string          `json:"address"`
	CryptoAmount   decimal.Decimal `json:"crypto_amount"`
	PlatformAmount decimal.Decimal `json:"platform_amount"`
	Rate           decimal.Decimal `json:"rate"`
	Status         string          `json:"status"`
	QuotedAt       time.Time       `json:"quoted_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
}

// OutboxEvent is a deferred notification. Enqueued in the same unit of work
// as the ledger mutation and dispatched after commit by the outbox worker.
type OutboxEvent struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	AccountID uuid.UUID `json:"account_id"`
	Payload   Metadata  `json:"payload"`
	Status    string    `json:"status"`
	Attempts  int32     `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditRecord is one immutable audit trail row.
type AuditRecord struct {
	ID         int64      `json:"id"`
	EntityType string     `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	Action     string     `json:"action"`
	PrevState  string     `json:"prev_state,omitempty"`
	NextState  string     `json:"next_state,omitempty"`
	Metadata   Metadata   `json:"metadata,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IdempotencyRecord stores a finalized response for an Idempotency-Key.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	Method      string
	Path        string
	Status      int32
	Body        []byte
	ContentType string
	InProgress  bool
	CreatedAt   time.Time
}
