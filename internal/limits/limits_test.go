package limits

import (
	"errors"
	"testing"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func wallet(txLimit, dailyLimit, spent int64) *model.Wallet {
	w := model.NewWallet(1, "W1")
	w.TransactionLimit = decimal.NewNullDecimal(decimal.NewFromInt(txLimit))
	w.DailyLimit = decimal.NewNullDecimal(decimal.NewFromInt(dailyLimit))
	w.DailySpent = decimal.NewFromInt(spent)
	return w
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name   string
		w      *model.Wallet
		amount int64
		want   Violation
	}{
		{"under both caps", wallet(1000, 5000, 0), 200, None},
		{"equal to per-tx cap", wallet(1000, 5000, 0), 1000, None},
		{"over per-tx cap", wallet(1000, 5000, 0), 1500, PerTxLimit},
		{"daily cap reached exactly", wallet(1000, 5000, 4000), 1000, None},
		{"daily cap exceeded", wallet(1000, 5000, 4500), 600, DailyLimit},
		{"per-tx checked first", wallet(1000, 5000, 4900), 1500, PerTxLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Evaluate(tc.w, decimal.NewFromInt(tc.amount))
			assert.Equal(t, tc.want, v.Violation)
			assert.Equal(t, tc.want == None, v.Allowed)
		})
	}
}

func TestEvaluate_UnsetLimits(t *testing.T) {
	w := model.NewWallet(1, "W1")
	w.TransactionLimit = decimal.NullDecimal{}
	w.DailyLimit = decimal.NullDecimal{}
	w.DailySpent = decimal.NewFromInt(1_000_000)

	v := Evaluate(w, decimal.NewFromInt(1_000_000))
	assert.True(t, v.Allowed)
	assert.NoError(t, v.Err())
}

func TestVerdictErr(t *testing.T) {
	err := Evaluate(wallet(100, 1000, 950), decimal.NewFromInt(60)).Err()

	assert.ErrorIs(t, err, ErrLimitExceeded)
	var ve *ViolationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, DailyLimit, ve.Kind)
	assert.Equal(t, "950", ve.Spent.String())
	assert.Contains(t, err.Error(), "daily limit")
}
