package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WalletStatus string

const (
	WalletActive    WalletStatus = "ACTIVE"
	WalletSuspended WalletStatus = "SUSPENDED"
	WalletClosed    WalletStatus = "CLOSED"
)

// Default limits applied to newly opened wallets.
var (
	DefaultTransactionLimit = decimal.NewFromInt(5000)
	DefaultDailyLimit       = decimal.NewFromInt(10000)
)

const DefaultCurrency = "USD"

type Wallet struct {
	ID               uint64              `gorm:"primaryKey;column:id" json:"id"`
	UserID           uint64              `gorm:"not null;uniqueIndex" json:"user_id"`
	WalletNumber     string              `gorm:"size:30;not null;uniqueIndex" json:"wallet_number"`
	Balance          decimal.Decimal     `gorm:"type:numeric(20,8);not null;default:'0'" json:"balance"`
	Currency         string              `gorm:"size:3;not null" json:"currency"`
	Status           WalletStatus        `gorm:"size:20;not null" json:"status"`
	TransactionLimit decimal.NullDecimal `gorm:"type:numeric(20,8)" json:"transaction_limit"`
	DailyLimit       decimal.NullDecimal `gorm:"type:numeric(20,8)" json:"daily_limit"`
	DailySpent       decimal.Decimal     `gorm:"type:numeric(20,8);not null;default:'0'" json:"daily_spent"`
	MonthlySpent     decimal.Decimal     `gorm:"type:numeric(20,8);not null;default:'0'" json:"monthly_spent"`
	Version          uint64              `gorm:"not null;default:0" json:"version"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// NewWallet returns an active wallet with the default currency and limits.
func NewWallet(userID uint64, number string) *Wallet {
	return &Wallet{
		UserID:           userID,
		WalletNumber:     number,
		Balance:          decimal.Zero,
		Currency:         DefaultCurrency,
		Status:           WalletActive,
		TransactionLimit: decimal.NewNullDecimal(DefaultTransactionLimit),
		DailyLimit:       decimal.NewNullDecimal(DefaultDailyLimit),
		DailySpent:       decimal.Zero,
		MonthlySpent:     decimal.Zero,
	}
}

func (w *Wallet) IsActive() bool { return w.Status == WalletActive }
