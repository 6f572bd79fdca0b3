package domain

// Currencies. Balances and fees are denominated in the platform currency;
// the banking and crypto rails settle in the settlement currency.
const (
	PlatformCurrency   = "USD"
	SettlementCurrency = "NGN"
)

// Journal entry kinds.
const (
	TxKindDeposit     = "DEPOSIT"
	TxKindWithdrawal  = "WITHDRAWAL"
	TxKindTransfer    = "TRANSFER"
	TxKindLockFunds   = "LOCK_FUNDS"
	TxKindUnlockFunds = "UNLOCK_FUNDS"
)

// Transaction statuses.
const (
	TxStatusPending         = "PENDING"
	TxStatusPendingApproval = "PENDING_APPROVAL"
	TxStatusApproved        = "APPROVED"
	TxStatusProcessing      = "PROCESSING"
	TxStatusCompleted       = "COMPLETED"
	TxStatusFailed          = "FAILED"
	TxStatusCancelled       = "CANCELLED"
)

// Payout methods. One active destination per account.
const (
	PayoutMethodBank   = "bank_account"
	PayoutMethodCrypto = "crypto_wallet"
)

// Deposit intent statuses.
const (
	IntentStatusPending   = "PENDING"
	IntentStatusConfirmed = "CONFIRMED"
	IntentStatusExpired   = "EXPIRED"
)

// Outbox event statuses.
const (
	OutboxStatusPending    = "PENDING"
	OutboxStatusDispatched = "DISPATCHED"
	OutboxStatusFailed     = "FAILED"
)

// Outbox event types consumed by the notification collaborator.
const (
	EventDepositCompleted    = "deposit.completed"
	EventWithdrawalRequested = "withdrawal.requested"
	EventWithdrawalCompleted = "withdrawal.completed"
	EventWithdrawalFailed    = "withdrawal.failed"
	EventTransferCompleted   = "transfer.completed"
)
