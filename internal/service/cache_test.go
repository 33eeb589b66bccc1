package service

import (
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_InvalidatesCachedBalances(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	f := newCachedFixture(t, rdb)
	f.wallet(t, 1, "A", 1000)
	f.wallet(t, 2, "B", 500)
	f.transfer(t, 1, "B", 200)

	mock.ExpectDel("balance:1", "balance:2").SetVal(2)
	mock.ExpectGet("balance:1").RedisNil()
	mock.ExpectSet("balance:1", "800", 5*time.Minute).SetVal("OK")

	_, err := f.executor.Execute(f.ctx, f.queue.Published()[0])
	require.NoError(t, err)

	// the next read refills from the store rather than a writer's copy
	bal, err := f.wallets.GetBalance(f.ctx, 1)
	require.NoError(t, err)
	assert.True(t, bal.Equal(dec(800)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletService_WritesInvalidateCache(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	f := newCachedFixture(t, rdb)
	f.wallet(t, 1, "A", 100)

	mock.ExpectDel("balance:1").SetVal(1)
	mock.ExpectDel("balance:1").SetVal(0)
	mock.ExpectGet("balance:1").SetVal("130")

	_, err := f.wallets.Deposit(f.ctx, 1, dec(50), "", "")
	require.NoError(t, err)
	_, err = f.wallets.Withdraw(f.ctx, 1, dec(20), "", "")
	require.NoError(t, err)

	bal, err := f.wallets.GetBalance(f.ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "130", bal.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
