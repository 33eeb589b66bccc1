package service

import (
	"testing"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/limits"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletService_DepositWithdraw(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, 1, "A", 0)

	res, err := f.wallets.Deposit(f.ctx, 1, dec(100), "", "")
	require.NoError(t, err)
	assert.Equal(t, "100", res.NewBalance.String())
	assert.Equal(t, model.StatusCompleted, res.Transaction.Status)
	assert.Equal(t, model.TypeDeposit, res.Transaction.Type)
	require.NotNil(t, res.Transaction.ReceiverWalletID)
	assert.Nil(t, res.Transaction.SenderWalletID)

	// withdraw too much (should fail)
	_, err = f.wallets.Withdraw(f.ctx, 1, dec(130), "", "")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	res, err = f.wallets.Withdraw(f.ctx, 1, dec(30), "USD", "cash out")
	require.NoError(t, err)
	assert.Equal(t, "70", res.NewBalance.String())
	assert.Equal(t, "cash out", res.Transaction.Description)

	got := f.reload(t, w.ID)
	assert.True(t, got.Balance.Equal(dec(70)))
	assert.True(t, got.DailySpent.Equal(dec(30)))
	assert.Equal(t, int64(2), f.transactionCount(t))

	bal, err := f.wallets.GetBalance(f.ctx, 1)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec(70)))
}

func TestWalletService_Rejections(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, 1, "A", 10000)

	_, err := f.wallets.Deposit(f.ctx, 1, dec(0), "", "")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.wallets.Deposit(f.ctx, 2, dec(1), "", "")
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, err = f.wallets.Deposit(f.ctx, 1, dec(1), "EUR", "")
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	_, err = f.wallets.Withdraw(f.ctx, 1, dec(6000), "", "")
	assert.ErrorIs(t, err, limits.ErrLimitExceeded)

	closed := f.reload(t, w.ID)
	closed.Status = model.WalletClosed
	require.NoError(t, f.repo.SaveWallet(f.ctx, closed))
	_, err = f.wallets.Withdraw(f.ctx, 1, dec(1), "", "")
	assert.ErrorIs(t, err, ErrWalletInactive)

	assert.Zero(t, f.transactionCount(t))
}

func TestWalletService_DepositRetriesConflict(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, 1, "A", 0)
	store := &conflictStore{LedgerStore: f.repo, conflicts: 1}
	svc := NewWalletService(store, fastRetry, f.log)

	_, err := svc.Deposit(f.ctx, 1, dec(5), "", "")

	require.NoError(t, err)
	assert.Equal(t, 2, store.settles)
	assert.True(t, f.reload(t, w.ID).Balance.Equal(dec(5)))
	assert.Equal(t, int64(1), f.transactionCount(t))
}

func TestWalletService_ResetSpending(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, 1, "A", 1000)
	_, err := f.wallets.Withdraw(f.ctx, 1, dec(100), "", "")
	require.NoError(t, err)

	midMonth := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	monthly, err := f.wallets.ResetSpending(f.ctx, w.ID, midMonth)
	require.NoError(t, err)
	assert.False(t, monthly)
	got := f.reload(t, w.ID)
	assert.True(t, got.DailySpent.IsZero())
	assert.True(t, got.MonthlySpent.Equal(dec(100)))

	firstOfMonth := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	monthly, err = f.wallets.ResetSpending(f.ctx, w.ID, firstOfMonth)
	require.NoError(t, err)
	assert.True(t, monthly)
	assert.True(t, f.reload(t, w.ID).MonthlySpent.IsZero())

	_, err = f.wallets.ResetSpending(f.ctx, 999, midMonth)
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestWalletService_ResetAllSpending(t *testing.T) {
	f := newFixture(t)
	for i := uint64(1); i <= 3; i++ {
		f.wallet(t, i, string(rune('A'+i)), 1000)
		_, err := f.wallets.Withdraw(f.ctx, i, dec(10), "", "")
		require.NoError(t, err)
	}

	n, err := f.wallets.ResetAllSpending(f.ctx, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	ws, err := f.repo.WalletsAfter(f.ctx, 0, 10)
	require.NoError(t, err)
	for _, w := range ws {
		assert.True(t, w.DailySpent.IsZero())
		assert.True(t, w.MonthlySpent.Equal(dec(10)))
	}
}

func TestWalletService_GetTransaction(t *testing.T) {
	f := newFixture(t)
	f.wallet(t, 1, "A", 1000)
	f.wallet(t, 2, "B", 0)
	f.wallet(t, 3, "C", 0)
	rcpt := f.transfer(t, 1, "B", 10)

	for _, user := range []uint64{1, 2} {
		txn, err := f.wallets.GetTransaction(f.ctx, user, rcpt.ReferenceID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, txn.Status)
	}
	_, err := f.wallets.GetTransaction(f.ctx, 3, rcpt.ReferenceID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestWalletService_GetHistory(t *testing.T) {
	f := newFixture(t)
	f.wallet(t, 1, "A", 1000)
	f.wallet(t, 2, "B", 0)
	f.wallet(t, 3, "C", 0)
	first := f.transfer(t, 1, "B", 10)
	second := f.transfer(t, 1, "C", 20)
	_, err := f.wallets.Deposit(f.ctx, 3, dec(5), "", "")
	require.NoError(t, err)

	since := time.Now().Add(-time.Hour)
	got, err := f.wallets.GetHistory(f.ctx, 1, 0, since)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ReferenceID, got[0].ReferenceID)
	assert.Equal(t, second.ReferenceID, got[1].ReferenceID)

	got, err = f.wallets.GetHistory(f.ctx, 2, 10, since)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = f.wallets.GetHistory(f.ctx, 1, 10, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWalletService_UpdateLimits(t *testing.T) {
	f := newFixture(t)
	w := f.wallet(t, 1, "A", 1000)

	daily := dec(300)
	got, err := f.wallets.UpdateLimits(f.ctx, 1, LimitsUpdate{DailyLimit: &daily})
	require.NoError(t, err)
	assert.True(t, got.DailyLimit.Decimal.Equal(dec(300)))
	assert.True(t, got.TransactionLimit.Decimal.Equal(model.DefaultTransactionLimit), "unset field keeps its cap")

	stored := f.reload(t, w.ID)
	assert.True(t, stored.DailyLimit.Decimal.Equal(dec(300)))
	assert.Equal(t, got.Version, stored.Version)

	// the new cap applies to the next debit
	_, err = f.wallets.Withdraw(f.ctx, 1, dec(300), "", "")
	require.NoError(t, err)
	_, err = f.wallets.Withdraw(f.ctx, 1, dec(1), "", "")
	var ve *limits.ViolationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, limits.DailyLimit, ve.Kind)

	negative := dec(-1)
	_, err = f.wallets.UpdateLimits(f.ctx, 1, LimitsUpdate{TransactionLimit: &negative})
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = f.wallets.UpdateLimits(f.ctx, 9, LimitsUpdate{DailyLimit: &daily})
	assert.ErrorIs(t, err, ErrWalletNotFound)
}
