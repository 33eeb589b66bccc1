package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/richardliu001/wallet-ledger/internal/limits"
	"github.com/richardliu001/wallet-ledger/internal/metrics"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"go.uber.org/zap"
)

// TransferExecutor settles PENDING transfers. It is safe to run for the same
// event any number of times, from any number of workers.
type TransferExecutor struct {
	store repo.LedgerStore
	log   *zap.SugaredLogger
	retry RetryPolicy
	now   func() time.Time
}

func NewTransferExecutor(store repo.LedgerStore, retry RetryPolicy, logger *zap.SugaredLogger) *TransferExecutor {
	return &TransferExecutor{store: store, log: logger, retry: retry.withDefaults(), now: time.Now}
}

// Execute settles the transfer named by evt and returns its stored record.
// A business rejection is reported as a FAILED transaction with a nil
// error. Errors mean the transaction is still PENDING.
func (e *TransferExecutor) Execute(ctx context.Context, evt model.TransferEvent) (*model.Transaction, error) {
	t, _, err := e.execute(ctx, evt)
	return t, err
}

// execute additionally reports whether this call made the terminal transition.
func (e *TransferExecutor) execute(ctx context.Context, evt model.TransferEvent) (*model.Transaction, bool, error) {
	e.log.Infof("executing transfer ref=%s id=%d", evt.ReferenceID, evt.TransactionID)
	timer := prometheus.NewTimer(metrics.OperationDuration.WithLabelValues("settle"))
	defer timer.ObserveDuration()
	var (
		t       *model.Transaction
		applied bool
	)
	err := retryOnConflict(ctx, e.retry, e.log, "settle "+evt.ReferenceID, func() error {
		var err error
		t, applied, err = e.settleOnce(ctx, evt.TransactionID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSettlementDeferred) {
			metrics.Transfers.WithLabelValues(metrics.OutcomeDeferred).Inc()
		}
		return nil, false, err
	}
	if applied {
		if t.Status == model.StatusCompleted {
			metrics.Transfers.WithLabelValues(metrics.OutcomeCompleted).Inc()
			metrics.Transactions.WithLabelValues(string(t.Type)).Inc()
		} else {
			metrics.Transfers.WithLabelValues(metrics.OutcomeFailed).Inc()
		}
	}
	return t, applied, nil
}

func (e *TransferExecutor) settleOnce(ctx context.Context, id uint64) (*model.Transaction, bool, error) {
	t, err := e.store.TransactionByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: transaction %d not found", ErrDataIntegrity, id)
		}
		return nil, false, err
	}
	if t.Status.IsTerminal() {
		e.log.Infof("transaction ref=%s already %s, skipping", t.ReferenceID, t.Status)
		return t, false, nil
	}
	if t.Status != model.StatusPending {
		return nil, false, fmt.Errorf("%w: transaction ref=%s in status %s", ErrDataIntegrity, t.ReferenceID, t.Status)
	}

	sender, receiver, err := e.loadParties(ctx, t)
	if err != nil {
		return nil, false, err
	}

	if reason := e.rejection(sender, t); reason != nil {
		if err := e.store.FailTransaction(ctx, t, failureReason(reason)); err != nil {
			return nil, false, err
		}
		e.log.Warnf("transfer failed ref=%s: %v", t.ReferenceID, reason)
		return t, true, nil
	}

	now := e.now()
	sender.Balance = sender.Balance.Sub(t.Amount)
	sender.DailySpent = sender.DailySpent.Add(t.Amount)
	sender.MonthlySpent = sender.MonthlySpent.Add(t.Amount)
	receiver.Balance = receiver.Balance.Add(t.Amount)
	t.Status = model.StatusCompleted
	t.CompletedAt = &now

	err = e.store.Settle(ctx, repo.Settlement{
		Wallets:     []*model.Wallet{sender, receiver},
		Transaction: t,
	})
	if err != nil {
		return nil, false, err
	}
	e.log.Infof("transfer completed ref=%s amount=%s %s", t.ReferenceID, t.Amount, t.Currency)

	if err := e.store.InvalidateBalance(ctx, sender.UserID, receiver.UserID); err != nil {
		e.log.Warnf("invalidate cached balances ref=%s: %v", t.ReferenceID, err)
	}
	return t, true, nil
}

// loadParties reads both wallets by the ids stored on the transaction.
func (e *TransferExecutor) loadParties(ctx context.Context, t *model.Transaction) (*model.Wallet, *model.Wallet, error) {
	if t.SenderWalletID == nil || t.ReceiverWalletID == nil {
		return nil, nil, fmt.Errorf("%w: transfer ref=%s missing wallet reference", ErrDataIntegrity, t.ReferenceID)
	}
	if *t.SenderWalletID == *t.ReceiverWalletID {
		return nil, nil, fmt.Errorf("%w: transfer ref=%s has identical wallets", ErrDataIntegrity, t.ReferenceID)
	}
	sender, err := e.store.WalletByID(ctx, *t.SenderWalletID)
	if err != nil {
		return nil, nil, partyErr(t, "sender", err)
	}
	receiver, err := e.store.WalletByID(ctx, *t.ReceiverWalletID)
	if err != nil {
		return nil, nil, partyErr(t, "receiver", err)
	}
	return sender, receiver, nil
}

func partyErr(t *model.Transaction, role string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: transfer ref=%s %s wallet missing", ErrDataIntegrity, t.ReferenceID, role)
	}
	return err
}

// rejection re-validates the debit against the sender's current state.
func (e *TransferExecutor) rejection(sender *model.Wallet, t *model.Transaction) error {
	if !sender.IsActive() {
		return fmt.Errorf("%w: sender status %s", ErrWalletInactive, sender.Status)
	}
	if err := limits.Evaluate(sender, t.Amount).Err(); err != nil {
		return err
	}
	if sender.Balance.LessThan(t.Amount) {
		return fmt.Errorf("%w: available %s, required %s", ErrInsufficientFunds, sender.Balance, t.Amount)
	}
	return nil
}

// Codes prefixed to stored failure reasons.
const (
	ReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	ReasonWalletInactive    = "WALLET_INACTIVE"
)

// failureReason renders a rejection as "<CODE>: <detail>" so pollers can
// branch on the code. Limit violations use their kind as the code.
func failureReason(err error) string {
	var ve *limits.ViolationError
	switch {
	case errors.As(err, &ve):
		return fmt.Sprintf("%s: %v", ve.Kind, err)
	case errors.Is(err, ErrInsufficientFunds):
		return fmt.Sprintf("%s: %v", ReasonInsufficientFunds, err)
	case errors.Is(err, ErrWalletInactive):
		return fmt.Sprintf("%s: %v", ReasonWalletInactive, err)
	}
	return err.Error()
}
