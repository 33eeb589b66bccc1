package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"github.com/richardliu001/wallet-ledger/internal/transport/queue"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fastRetry = RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

type fixture struct {
	ctx       context.Context
	repo      *repo.Repository
	queue     *queue.MemoryQueue
	initiator *TransferInitiator
	executor  *TransferExecutor
	wallets   *WalletService
	log       *zap.SugaredLogger
}

func newFixture(t *testing.T) *fixture {
	return newCachedFixture(t, nil)
}

// newCachedFixture backs the balance cache with rdb, typically a redismock client.
func newCachedFixture(t *testing.T, rdb *redis.Client) *fixture {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	log := zap.NewNop().Sugar()
	r := repo.NewRepository(db, rdb, log)
	ctx := context.Background()
	require.NoError(t, r.Migrate(ctx))

	q := queue.NewMemoryQueue(64)
	return &fixture{
		ctx:       ctx,
		repo:      r,
		queue:     q,
		initiator: NewTransferInitiator(r, q, time.Second, log),
		executor:  NewTransferExecutor(r, fastRetry, log),
		wallets:   NewWalletService(r, fastRetry, log),
		log:       log,
	}
}

func (f *fixture) wallet(t *testing.T, userID uint64, number string, balance int64) *model.Wallet {
	w, err := f.wallets.OpenWallet(f.ctx, userID, number)
	require.NoError(t, err)
	if balance > 0 {
		w.Balance = decimal.NewFromInt(balance)
		require.NoError(t, f.repo.SaveWallet(f.ctx, w))
	}
	return w
}

func (f *fixture) reload(t *testing.T, id uint64) *model.Wallet {
	w, err := f.repo.WalletByID(f.ctx, id)
	require.NoError(t, err)
	return w
}

func (f *fixture) transactionCount(t *testing.T) int64 {
	var n int64
	require.NoError(t, f.repo.DB(f.ctx).Model(&model.Transaction{}).Count(&n).Error)
	return n
}

func (f *fixture) transfer(t *testing.T, senderUser uint64, to string, amount int64) *TransferReceipt {
	rcpt, err := f.initiator.Initiate(f.ctx, TransferRequest{
		SenderUserID: senderUser, ReceiverWalletNumber: to, Amount: decimal.NewFromInt(amount),
	})
	require.NoError(t, err)
	return rcpt
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// conflictStore injects version conflicts into Settle.
type conflictStore struct {
	repo.LedgerStore
	mu        sync.Mutex
	conflicts int
	settles   int
	// before runs ahead of the real Settle while conflicts remain.
	before func()
}

func (s *conflictStore) Settle(ctx context.Context, st repo.Settlement) error {
	s.mu.Lock()
	s.settles++
	inject := s.conflicts > 0
	if inject {
		s.conflicts--
	}
	before := s.before
	s.mu.Unlock()

	if inject {
		if before != nil {
			before()
			return s.LedgerStore.Settle(ctx, st)
		}
		return fmt.Errorf("injected: %w", repo.ErrVersionConflict)
	}
	return s.LedgerStore.Settle(ctx, st)
}

type recordingHook struct {
	mu    sync.Mutex
	refs  []string
	err   error
	panic bool
}

func (h *recordingHook) OnSettled(ctx context.Context, t *model.Transaction) error {
	h.mu.Lock()
	h.refs = append(h.refs, t.ReferenceID)
	h.mu.Unlock()
	if h.panic {
		panic("renderer crashed")
	}
	return h.err
}
