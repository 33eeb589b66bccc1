// Package limits decides whether a debit fits within a wallet's spending
// caps. Evaluation is pure: it never touches balances or storage.
package limits

import (
	"errors"
	"fmt"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
)

type Violation string

const (
	None       Violation = ""
	PerTxLimit Violation = "PER_TX_LIMIT"
	DailyLimit Violation = "DAILY_LIMIT"
)

// ErrLimitExceeded matches every *ViolationError.
var ErrLimitExceeded = errors.New("spending limit exceeded")

// ViolationError carries the violated cap.
type ViolationError struct {
	Kind  Violation
	Limit decimal.Decimal
	// Spent is the daily spend before the rejected debit; zero for PerTxLimit.
	Spent decimal.Decimal
}

func (e *ViolationError) Error() string {
	switch e.Kind {
	case PerTxLimit:
		return fmt.Sprintf("amount exceeds per-transaction limit %s", e.Limit)
	case DailyLimit:
		return fmt.Sprintf("amount exceeds daily limit %s, already spent %s", e.Limit, e.Spent)
	}
	return string(e.Kind)
}

func (e *ViolationError) Is(target error) bool { return target == ErrLimitExceeded }

// Verdict is the outcome of Evaluate.
type Verdict struct {
	Allowed   bool
	Violation Violation
	Limit     decimal.Decimal
	Spent     decimal.Decimal
}

// Err returns nil when the debit is allowed.
func (v Verdict) Err() error {
	if v.Allowed {
		return nil
	}
	return &ViolationError{Kind: v.Violation, Limit: v.Limit, Spent: v.Spent}
}

// Evaluate checks amount against the wallet's per-transaction cap and then
// its rolling daily cap. Reaching a cap exactly is allowed.
func Evaluate(w *model.Wallet, amount decimal.Decimal) Verdict {
	if w.TransactionLimit.Valid && amount.GreaterThan(w.TransactionLimit.Decimal) {
		return Verdict{Violation: PerTxLimit, Limit: w.TransactionLimit.Decimal}
	}
	if w.DailyLimit.Valid && w.DailySpent.Add(amount).GreaterThan(w.DailyLimit.Decimal) {
		return Verdict{Violation: DailyLimit, Limit: w.DailyLimit.Decimal, Spent: w.DailySpent}
	}
	return Verdict{Allowed: true}
}
