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
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	resetBatchSize = 500
	maxHistory     = 200
)

// WalletService glues the synchronous wallet paths and the repository.
// Every balance change goes through the same versioned write as the
// transfer executor.
type WalletService struct {
	repo  repo.LedgerStore
	log   *zap.SugaredLogger
	retry RetryPolicy
	now   func() time.Time
}

// NewWalletService returns WalletService.
func NewWalletService(r repo.LedgerStore, retry RetryPolicy, logger *zap.SugaredLogger) *WalletService {
	return &WalletService{repo: r, log: logger, retry: retry.withDefaults(), now: time.Now}
}

// OperationResult is returned by Deposit and Withdraw.
type OperationResult struct {
	Transaction *model.Transaction `json:"transaction"`
	NewBalance  decimal.Decimal    `json:"new_balance"`
}

// OpenWallet creates an active wallet with default limits for userID.
func (s *WalletService) OpenWallet(ctx context.Context, userID uint64, number string) (*model.Wallet, error) {
	w := model.NewWallet(userID, number)
	if err := s.repo.CreateWallet(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *WalletService) activeWallet(ctx context.Context, userID uint64) (*model.Wallet, error) {
	w, err := s.repo.WalletByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrWalletNotFound, userID)
		}
		return nil, err
	}
	if !w.IsActive() {
		return nil, fmt.Errorf("%w: status %s", ErrWalletInactive, w.Status)
	}
	return w, nil
}

// Deposit credits the user's wallet and records a COMPLETED deposit.
func (s *WalletService) Deposit(ctx context.Context, userID uint64, amt decimal.Decimal, currency, description string) (*OperationResult, error) {
	timer := prometheus.NewTimer(metrics.OperationDuration.WithLabelValues("deposit"))
	defer timer.ObserveDuration()
	if !amt.IsPositive() {
		return nil, ErrInvalidAmount
	}
	var res *OperationResult
	err := retryOnConflict(ctx, s.retry, s.log, fmt.Sprintf("deposit user=%d", userID), func() error {
		w, err := s.activeWallet(ctx, userID)
		if err != nil {
			return err
		}
		if currency != "" && currency != w.Currency {
			return fmt.Errorf("%w: %s", ErrCurrencyMismatch, currency)
		}
		w.Balance = w.Balance.Add(amt)
		t := s.completed(model.TypeDeposit, amt, w.Currency, description, "Wallet deposit")
		t.ReceiverWalletID = &w.ID
		if err := s.repo.Settle(ctx, repo.Settlement{Wallets: []*model.Wallet{w}, Transaction: t}); err != nil {
			return err
		}
		s.invalidate(ctx, w)
		res = &OperationResult{Transaction: t, NewBalance: w.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Deposits.Inc()
	metrics.Transactions.WithLabelValues(string(model.TypeDeposit)).Inc()
	s.log.Infof("deposit ref=%s user=%d new balance %s", res.Transaction.ReferenceID, userID, res.NewBalance)
	return res, nil
}

// Withdraw debits the user's wallet within its limits.
func (s *WalletService) Withdraw(ctx context.Context, userID uint64, amt decimal.Decimal, currency, description string) (*OperationResult, error) {
	timer := prometheus.NewTimer(metrics.OperationDuration.WithLabelValues("withdraw"))
	defer timer.ObserveDuration()
	if !amt.IsPositive() {
		return nil, ErrInvalidAmount
	}
	var res *OperationResult
	err := retryOnConflict(ctx, s.retry, s.log, fmt.Sprintf("withdraw user=%d", userID), func() error {
		w, err := s.activeWallet(ctx, userID)
		if err != nil {
			return err
		}
		if currency != "" && currency != w.Currency {
			return fmt.Errorf("%w: %s", ErrCurrencyMismatch, currency)
		}
		if err := limits.Evaluate(w, amt).Err(); err != nil {
			return err
		}
		if w.Balance.LessThan(amt) {
			return fmt.Errorf("%w: available %s, required %s", ErrInsufficientFunds, w.Balance, amt)
		}
		w.Balance = w.Balance.Sub(amt)
		w.DailySpent = w.DailySpent.Add(amt)
		w.MonthlySpent = w.MonthlySpent.Add(amt)
		t := s.completed(model.TypeWithdrawal, amt, w.Currency, description, "Wallet withdrawal")
		t.SenderWalletID = &w.ID
		if err := s.repo.Settle(ctx, repo.Settlement{Wallets: []*model.Wallet{w}, Transaction: t}); err != nil {
			return err
		}
		s.invalidate(ctx, w)
		res = &OperationResult{Transaction: t, NewBalance: w.Balance}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Withdrawals.Inc()
	metrics.Transactions.WithLabelValues(string(model.TypeWithdrawal)).Inc()
	s.log.Infof("withdrawal ref=%s user=%d new balance %s", res.Transaction.ReferenceID, userID, res.NewBalance)
	return res, nil
}

func (s *WalletService) completed(typ model.TransactionType, amt decimal.Decimal, currency, description, fallback string) *model.Transaction {
	if description == "" {
		description = fallback
	}
	now := s.now()
	return &model.Transaction{
		Amount:      amt,
		Currency:    currency,
		Type:        typ,
		Status:      model.StatusCompleted,
		ReferenceID: NewReferenceID(now),
		Description: description,
		CreatedAt:   now,
		CompletedAt: &now,
	}
}

func (s *WalletService) invalidate(ctx context.Context, w *model.Wallet) {
	if err := s.repo.InvalidateBalance(ctx, w.UserID); err != nil {
		s.log.Warnf("invalidate cached balance user=%d: %v", w.UserID, err)
	}
}

// LimitsUpdate carries new spending caps. A nil field keeps the current cap.
type LimitsUpdate struct {
	TransactionLimit *decimal.Decimal
	DailyLimit       *decimal.Decimal
}

// UpdateLimits replaces the caps on the user's wallet.
func (s *WalletService) UpdateLimits(ctx context.Context, userID uint64, upd LimitsUpdate) (*model.Wallet, error) {
	for _, l := range []*decimal.Decimal{upd.TransactionLimit, upd.DailyLimit} {
		if l != nil && l.IsNegative() {
			return nil, ErrInvalidLimit
		}
	}
	var updated *model.Wallet
	err := retryOnConflict(ctx, s.retry, s.log, fmt.Sprintf("limits user=%d", userID), func() error {
		w, err := s.repo.WalletByUserID(ctx, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: user %d", ErrWalletNotFound, userID)
			}
			return err
		}
		if upd.TransactionLimit != nil {
			w.TransactionLimit = decimal.NewNullDecimal(*upd.TransactionLimit)
		}
		if upd.DailyLimit != nil {
			w.DailyLimit = decimal.NewNullDecimal(*upd.DailyLimit)
		}
		if err := s.repo.SaveWallet(ctx, w); err != nil {
			return err
		}
		updated = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Infof("wallet limits updated user=%d transaction=%s daily=%s",
		userID, updated.TransactionLimit.Decimal, updated.DailyLimit.Decimal)
	return updated, nil
}

// ResetSpending zeroes the wallet's daily spend, and its monthly spend when
// now falls on the first day of the month. It reports whether the monthly
// counter was reset.
func (s *WalletService) ResetSpending(ctx context.Context, walletID uint64, now time.Time) (bool, error) {
	monthly := now.Day() == 1
	err := retryOnConflict(ctx, s.retry, s.log, fmt.Sprintf("reset wallet=%d", walletID), func() error {
		w, err := s.repo.WalletByID(ctx, walletID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return fmt.Errorf("%w: id %d", ErrWalletNotFound, walletID)
			}
			return err
		}
		w.DailySpent = decimal.Zero
		if monthly {
			w.MonthlySpent = decimal.Zero
		}
		return s.repo.SaveWallet(ctx, w)
	})
	return monthly, err
}

// ResetAllSpending runs ResetSpending over every wallet. Individual failures
// are logged and returned joined; the sweep continues past them.
func (s *WalletService) ResetAllSpending(ctx context.Context, now time.Time) (int, error) {
	var (
		after uint64
		reset int
		errs  []error
	)
	for {
		page, err := s.repo.WalletsAfter(ctx, after, resetBatchSize)
		if err != nil {
			return reset, errors.Join(append(errs, err)...)
		}
		for _, w := range page {
			if _, err := s.ResetSpending(ctx, w.ID, now); err != nil {
				s.log.Errorf("reset spending wallet=%d: %v", w.ID, err)
				errs = append(errs, err)
				continue
			}
			reset++
		}
		if len(page) < resetBatchSize {
			break
		}
		after = page[len(page)-1].ID
	}
	s.log.Infof("spending limits reset for %d wallets (monthly=%t)", reset, now.Day() == 1)
	return reset, errors.Join(errs...)
}

// GetTransaction returns a transaction the user's wallet took part in.
func (s *WalletService) GetTransaction(ctx context.Context, userID uint64, referenceID string) (*model.Transaction, error) {
	w, err := s.repo.WalletByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrWalletNotFound, userID)
		}
		return nil, err
	}
	t, err := s.repo.TransactionByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if !t.Involves(w.ID) {
		return nil, ErrNotParticipant
	}
	return t, nil
}

// GetHistory fetches recent transactions of the user's wallet.
func (s *WalletService) GetHistory(ctx context.Context, userID uint64, limit int, since time.Time) ([]model.Transaction, error) {
	w, err := s.repo.WalletByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrWalletNotFound, userID)
		}
		return nil, err
	}
	if limit <= 0 || limit > maxHistory {
		limit = maxHistory
	}
	return s.repo.History(ctx, w.ID, since, limit)
}

// GetBalance returns current wallet balance.
func (s *WalletService) GetBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	bal, err := s.repo.GetCachedBalance(ctx, userID)
	if err == nil {
		return bal, nil
	}
	w, err := s.repo.WalletByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: user %d", ErrWalletNotFound, userID)
		}
		return decimal.Zero, err
	}
	if err := s.repo.CacheBalance(ctx, w.UserID, w.Balance); err != nil {
		s.log.Warn(err)
	}
	return w.Balance, nil
}
