package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeTransfer   TransactionType = "TRANSFER"
	TypeDeposit    TransactionType = "DEPOSIT"
	TypeWithdrawal TransactionType = "WITHDRAWAL"
	TypeRefund     TransactionType = "REFUND"
	TypePayment    TransactionType = "PAYMENT"
	TypeCashback   TransactionType = "CASHBACK"
	TypeFee        TransactionType = "FEE"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
	StatusCancelled  TransactionStatus = "CANCELLED"
	StatusRefunded   TransactionStatus = "REFUNDED"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

type Transaction struct {
	ID               uint64            `gorm:"primaryKey" json:"id"`
	SenderWalletID   *uint64           `gorm:"index" json:"sender_wallet_id,omitempty"`
	ReceiverWalletID *uint64           `gorm:"index" json:"receiver_wallet_id,omitempty"`
	Amount           decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"amount"`
	Currency         string            `gorm:"size:3;not null" json:"currency"`
	Type             TransactionType   `gorm:"size:30;not null" json:"type"`
	Status           TransactionStatus `gorm:"size:20;not null;index:idx_status_created,priority:1" json:"status"`
	ReferenceID      string            `gorm:"size:50;not null;uniqueIndex" json:"reference_id"`
	Description      string            `gorm:"size:500" json:"description"`
	FailureReason    *string           `gorm:"size:255" json:"failure_reason,omitempty"`
	CreatedAt        time.Time         `gorm:"autoCreateTime;index:idx_status_created,priority:2" json:"created_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

func (Transaction) TableName() string { return "transactions" }

// Involves reports whether walletID is the sender or the receiver.
func (t *Transaction) Involves(walletID uint64) bool {
	return (t.SenderWalletID != nil && *t.SenderWalletID == walletID) ||
		(t.ReceiverWalletID != nil && *t.ReceiverWalletID == walletID)
}
