package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/richardliu001/wallet-ledger/internal/limits"
	"github.com/richardliu001/wallet-ledger/internal/metrics"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"github.com/richardliu001/wallet-ledger/internal/transport/queue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultTransferDescription = "Wallet transfer"

// TransferRequest is a client's intent to move money to another wallet.
type TransferRequest struct {
	SenderUserID         uint64
	ReceiverWalletNumber string
	Amount               decimal.Decimal
	Currency             string
	Description          string
}

// TransferReceipt acknowledges an accepted transfer. Status is always
// PENDING; clients poll by ReferenceID for the outcome.
type TransferReceipt struct {
	TransactionID  uint64                  `json:"transaction_id"`
	ReferenceID    string                  `json:"reference_id"`
	Status         model.TransactionStatus `json:"status"`
	Amount         decimal.Decimal         `json:"amount"`
	Currency       string                  `json:"currency"`
	SenderWallet   string                  `json:"sender_wallet"`
	ReceiverWallet string                  `json:"receiver_wallet"`
	Timestamp      time.Time               `json:"timestamp"`
}

// TransferInitiator records transfer intent and hands it to the queue.
type TransferInitiator struct {
	store          repo.LedgerStore
	pub            queue.Publisher
	log            *zap.SugaredLogger
	publishTimeout time.Duration
	now            func() time.Time
}

// NewTransferInitiator returns TransferInitiator. pub may be nil, in which
// case accepted transfers wait for the recovery sweep.
func NewTransferInitiator(store repo.LedgerStore, pub queue.Publisher, publishTimeout time.Duration, logger *zap.SugaredLogger) *TransferInitiator {
	return &TransferInitiator{store: store, pub: pub, log: logger, publishTimeout: publishTimeout, now: time.Now}
}

// NewReferenceID returns a client-facing transaction reference.
func NewReferenceID(now time.Time) string {
	return fmt.Sprintf("TX%d%s", now.UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}

// Initiate validates req, persists a PENDING transfer and publishes its
// event. Publish failures are logged only: the stored row is authoritative.
func (i *TransferInitiator) Initiate(ctx context.Context, req TransferRequest) (*TransferReceipt, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	receiverNumber := strings.TrimSpace(req.ReceiverWalletNumber)
	if receiverNumber == "" {
		return nil, ErrReceiverRequired
	}

	sender, err := i.store.WalletByUserID(ctx, req.SenderUserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrSenderNotFound, req.SenderUserID)
		}
		return nil, err
	}
	if !sender.IsActive() {
		return nil, fmt.Errorf("%w: sender status %s", ErrWalletInactive, sender.Status)
	}
	if receiverNumber == sender.WalletNumber {
		return nil, ErrSelfTransfer
	}
	receiver, err := i.store.WalletByNumber(ctx, receiverNumber)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReceiverNotFound, receiverNumber)
		}
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = sender.Currency
	}
	if currency != sender.Currency || currency != receiver.Currency {
		return nil, fmt.Errorf("%w: %s", ErrCurrencyMismatch, currency)
	}
	if err := limits.Evaluate(sender, req.Amount).Err(); err != nil {
		return nil, err
	}
	// Best-effort pre-check; the executor re-validates against fresh state.
	if sender.Balance.LessThan(req.Amount) {
		return nil, fmt.Errorf("%w: available %s", ErrInsufficientFunds, sender.Balance)
	}

	description := req.Description
	if description == "" {
		description = defaultTransferDescription
	}
	now := i.now()
	t := &model.Transaction{
		SenderWalletID:   &sender.ID,
		ReceiverWalletID: &receiver.ID,
		Amount:           req.Amount,
		Currency:         currency,
		Type:             model.TypeTransfer,
		Status:           model.StatusPending,
		ReferenceID:      NewReferenceID(now),
		Description:      description,
		CreatedAt:        now,
	}
	if err := i.store.CreateTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("persist pending transfer: %w", err)
	}
	metrics.Transfers.WithLabelValues(metrics.OutcomeInitiated).Inc()

	i.publish(ctx, model.TransferEvent{
		ReferenceID:          t.ReferenceID,
		SenderUserID:         req.SenderUserID,
		TransactionID:        t.ID,
		ReceiverWalletNumber: receiverNumber,
		Amount:               t.Amount,
		Currency:             t.Currency,
		Description:          t.Description,
	})
	i.log.Infof("transfer initiated ref=%s amount=%s %s from=%s to=%s",
		t.ReferenceID, t.Amount, t.Currency, sender.WalletNumber, receiverNumber)

	return &TransferReceipt{
		TransactionID:  t.ID,
		ReferenceID:    t.ReferenceID,
		Status:         t.Status,
		Amount:         t.Amount,
		Currency:       t.Currency,
		SenderWallet:   sender.WalletNumber,
		ReceiverWallet: receiverNumber,
		Timestamp:      now,
	}, nil
}

func (i *TransferInitiator) publish(ctx context.Context, evt model.TransferEvent) {
	if i.pub == nil {
		i.log.Debugf("no publisher configured, ref=%s left for recovery", evt.ReferenceID)
		return
	}
	if i.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.publishTimeout)
		defer cancel()
	}
	if err := i.pub.Publish(ctx, evt); err != nil {
		i.log.Errorf("publish transfer event ref=%s: %v", evt.ReferenceID, err)
	}
}
