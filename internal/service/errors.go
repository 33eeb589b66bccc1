package service

import "errors"

// Validation failures: rejected before anything is persisted.
var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrReceiverRequired = errors.New("receiver wallet number is required")
	ErrSelfTransfer     = errors.New("cannot transfer to your own wallet")
	ErrCurrencyMismatch = errors.New("currency does not match wallet currency")
	ErrInvalidLimit     = errors.New("limit must not be negative")
)

// Business failures. At initiation they are returned to the caller; during
// execution they become the failure reason of a FAILED transaction.
var (
	ErrSenderNotFound    = errors.New("sender wallet not found")
	ErrReceiverNotFound  = errors.New("receiver wallet not found")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletInactive    = errors.New("wallet is not active")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrNotParticipant    = errors.New("transaction does not belong to this wallet")
)

var (
	// ErrSettlementDeferred means optimistic-lock retries ran out. The
	// transaction is still PENDING and will be redriven by recovery.
	ErrSettlementDeferred = errors.New("settlement deferred after repeated conflicts")
	// ErrDataIntegrity marks a PENDING row that cannot be settled as stored,
	// e.g. a missing wallet reference. It needs an operator.
	ErrDataIntegrity = errors.New("ledger data integrity anomaly")
)
