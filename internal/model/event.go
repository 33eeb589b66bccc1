package model

import "github.com/shopspring/decimal"

// TransferEvent is the queued projection of a PENDING transfer. Consumers
// must treat the stored Transaction as the source of truth.
type TransferEvent struct {
	ReferenceID          string          `json:"transaction_reference_id"`
	SenderUserID         uint64          `json:"sender_id"`
	TransactionID        uint64          `json:"transaction_id"`
	ReceiverWalletNumber string          `json:"receiver_wallet_number"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Description          string          `json:"description,omitempty"`
}
