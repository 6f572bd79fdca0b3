package domain

import "errors"

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAlreadyLocked      = errors.New("funds already locked")
	ErrNoActiveLock       = errors.New("no active lock on account")
	ErrFundsLocked        = errors.New("lock has not expired yet")
	ErrInvalidTransition  = errors.New("invalid transaction state transition")
	ErrUnknownAccount     = errors.New("account not found")
	ErrInvalidRecipient   = errors.New("invalid transfer recipient")
	ErrDuplicateReference = errors.New("external reference already recorded")
	ErrNoDestination      = errors.New("payout destination not configured")
	ErrMethodMismatch     = errors.New("method does not match configured destination")
	ErrBelowMinimum       = errors.New("amount below method minimum")
	ErrQuoteExpired       = errors.New("crypto quote has expired")
	ErrTransactionMissing = errors.New("transaction not found")
	ErrRetryUnavailable   = errors.New("transaction is not retryable")
)
