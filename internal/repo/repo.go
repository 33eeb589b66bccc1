package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned by point lookups when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means the row changed since it was read. Callers
	// reload and retry; it is never a business rejection.
	ErrVersionConflict = errors.New("optimistic lock conflict")
)

const balanceTTL = 5 * time.Minute

// Settlement is one atomic ledger write: every wallet is saved against the
// version it was loaded with, and the transaction is inserted (ID == 0) or
// moved out of PENDING.
type Settlement struct {
	Wallets     []*model.Wallet
	Transaction *model.Transaction
}

// LedgerStore restricts Repository methods (lets services be tested with stubs).
type LedgerStore interface {
	WalletByID(ctx context.Context, id uint64) (*model.Wallet, error)
	WalletByUserID(ctx context.Context, userID uint64) (*model.Wallet, error)
	WalletByNumber(ctx context.Context, number string) (*model.Wallet, error)
	WalletsAfter(ctx context.Context, afterID uint64, limit int) ([]model.Wallet, error)
	CreateWallet(ctx context.Context, w *model.Wallet) error
	SaveWallet(ctx context.Context, w *model.Wallet) error

	TransactionByID(ctx context.Context, id uint64) (*model.Transaction, error)
	TransactionByReference(ctx context.Context, ref string) (*model.Transaction, error)
	CreateTransaction(ctx context.Context, t *model.Transaction) error
	FailTransaction(ctx context.Context, t *model.Transaction, reason string) error
	StalePending(ctx context.Context, before time.Time, after PendingCursor, limit int) ([]model.Transaction, error)
	History(ctx context.Context, walletID uint64, since time.Time, limit int) ([]model.Transaction, error)

	Settle(ctx context.Context, s Settlement) error

	CacheBalance(ctx context.Context, userID uint64, bal decimal.Decimal) error
	InvalidateBalance(ctx context.Context, userIDs ...uint64) error
	GetCachedBalance(ctx context.Context, userID uint64) (decimal.Decimal, error)
}

// Repository implements LedgerStore on gorm, with an optional Redis cache.
type Repository struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.SugaredLogger
	now func() time.Time
}

// NewRepository constructs repo. rdb may be nil, which disables caching and
// makes TryLock always succeed.
func NewRepository(db *gorm.DB, rdb *redis.Client, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, log: logger, now: time.Now}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// Migrate creates or updates the ledger tables.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.DB(ctx).AutoMigrate(&model.Wallet{}, &model.Transaction{})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *Repository) firstWallet(ctx context.Context, query string, arg interface{}) (*model.Wallet, error) {
	var w model.Wallet
	if err := r.DB(ctx).Where(query, arg).First(&w).Error; err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (r *Repository) WalletByID(ctx context.Context, id uint64) (*model.Wallet, error) {
	return r.firstWallet(ctx, "id = ?", id)
}

func (r *Repository) WalletByUserID(ctx context.Context, userID uint64) (*model.Wallet, error) {
	return r.firstWallet(ctx, "user_id = ?", userID)
}

func (r *Repository) WalletByNumber(ctx context.Context, number string) (*model.Wallet, error) {
	return r.firstWallet(ctx, "wallet_number = ?", number)
}

// WalletsAfter pages through wallets in id order.
func (r *Repository) WalletsAfter(ctx context.Context, afterID uint64, limit int) ([]model.Wallet, error) {
	var ws []model.Wallet
	err := r.DB(ctx).Where("id > ?", afterID).Order("id").Limit(limit).Find(&ws).Error
	return ws, err
}

// CreateWallet inserts a new wallet at version 0.
func (r *Repository) CreateWallet(ctx context.Context, w *model.Wallet) error {
	w.Version = 0
	return r.DB(ctx).Create(w).Error
}

// SaveWallet persists w if the stored version still equals w.Version.
func (r *Repository) SaveWallet(ctx context.Context, w *model.Wallet) error {
	return updateWallet(r.DB(ctx), w, r.now())
}

// updateWallet with optimistic lock.
func updateWallet(tx *gorm.DB, w *model.Wallet, now time.Time) error {
	if w.Balance.IsNegative() {
		return fmt.Errorf("wallet %d: negative balance %s", w.ID, w.Balance)
	}
	res := tx.Model(&model.Wallet{}).
		Where("id = ? AND version = ?", w.ID, w.Version).
		Updates(map[string]interface{}{
			"balance":           w.Balance,
			"daily_spent":       w.DailySpent,
			"monthly_spent":     w.MonthlySpent,
			"transaction_limit": w.TransactionLimit,
			"daily_limit":       w.DailyLimit,
			"status":            w.Status,
			"version":           w.Version + 1,
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("wallet %d version %d: %w", w.ID, w.Version, ErrVersionConflict)
	}
	w.Version++
	w.UpdatedAt = now
	return nil
}

func (r *Repository) TransactionByID(ctx context.Context, id uint64) (*model.Transaction, error) {
	var t model.Transaction
	if err := r.DB(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *Repository) TransactionByReference(ctx context.Context, ref string) (*model.Transaction, error) {
	var t model.Transaction
	if err := r.DB(ctx).Where("reference_id = ?", ref).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// CreateTransaction inserts record.
func (r *Repository) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	return r.DB(ctx).Create(t).Error
}

// FailTransaction moves a PENDING transaction to FAILED. It returns
// ErrVersionConflict if another writer already left PENDING.
func (r *Repository) FailTransaction(ctx context.Context, t *model.Transaction, reason string) error {
	now := r.now()
	res := r.DB(ctx).Model(&model.Transaction{}).
		Where("id = ? AND status = ?", t.ID, model.StatusPending).
		Updates(map[string]interface{}{
			"status":         model.StatusFailed,
			"failure_reason": reason,
			"completed_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction %d no longer pending: %w", t.ID, ErrVersionConflict)
	}
	t.Status = model.StatusFailed
	t.FailureReason = &reason
	t.CompletedAt = &now
	return nil
}

// PendingCursor is the keyset position of the last row of a StalePending
// page. The zero value starts from the oldest row.
type PendingCursor struct {
	CreatedAt time.Time
	ID        uint64
}

// CursorAfter returns the cursor positioned on t.
func CursorAfter(t *model.Transaction) PendingCursor {
	return PendingCursor{CreatedAt: t.CreatedAt, ID: t.ID}
}

// StalePending returns PENDING transactions created before the cutoff and
// after the cursor, ordered by (created_at, id).
func (r *Repository) StalePending(ctx context.Context, before time.Time, after PendingCursor, limit int) ([]model.Transaction, error) {
	var ts []model.Transaction
	q := r.DB(ctx).Where("status = ? AND created_at < ?", model.StatusPending, before)
	if after != (PendingCursor{}) {
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	err := q.Order("created_at").Order("id").Limit(limit).Find(&ts).Error
	return ts, err
}

// History fetches transactions the wallet sent or received since the
// given time, oldest first.
func (r *Repository) History(ctx context.Context, walletID uint64, since time.Time, limit int) ([]model.Transaction, error) {
	var ts []model.Transaction
	err := r.DB(ctx).
		Where("(sender_wallet_id = ? OR receiver_wallet_id = ?) AND created_at >= ?", walletID, walletID, since).
		Order("created_at asc").
		Limit(limit).
		Find(&ts).Error
	return ts, err
}

// Settle applies the settlement in one database transaction. Wallet versions
// in s are bumped only when the whole unit commits.
func (r *Repository) Settle(ctx context.Context, s Settlement) error {
	now := r.now()
	versions := make([]uint64, len(s.Wallets))
	for i, w := range s.Wallets {
		versions[i] = w.Version
	}
	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range s.Wallets {
			if err := updateWallet(tx, w, now); err != nil {
				return err
			}
		}
		t := s.Transaction
		if t == nil {
			return nil
		}
		if t.ID == 0 {
			return tx.Create(t).Error
		}
		res := tx.Model(&model.Transaction{}).
			Where("id = ? AND status = ?", t.ID, model.StatusPending).
			Updates(map[string]interface{}{
				"status":       t.Status,
				"completed_at": t.CompletedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("transaction %d no longer pending: %w", t.ID, ErrVersionConflict)
		}
		return nil
	})
	if err != nil {
		for i, w := range s.Wallets {
			w.Version = versions[i]
		}
		return err
	}
	return nil
}

// keyed by owning user
func balanceKey(userID uint64) string { return fmt.Sprintf("balance:%d", userID) }

// CacheBalance writes Redis. Only read paths fill the cache; writers call
// InvalidateBalance so a late SET can never overwrite a newer balance.
func (r *Repository) CacheBalance(ctx context.Context, userID uint64, bal decimal.Decimal) error {
	if r.rdb == nil {
		return nil
	}
	return r.rdb.Set(ctx, balanceKey(userID), bal.String(), balanceTTL).Err()
}

// InvalidateBalance drops the cached balances of the given users.
func (r *Repository) InvalidateBalance(ctx context.Context, userIDs ...uint64) error {
	if r.rdb == nil || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = balanceKey(id)
	}
	return r.rdb.Del(ctx, keys...).Err()
}

// GetCachedBalance reads Redis. A disabled cache behaves like a miss.
func (r *Repository) GetCachedBalance(ctx context.Context, userID uint64) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, redis.Nil
	}
	str, err := r.rdb.Get(ctx, balanceKey(userID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}

// TryLock takes a best-effort exclusive lease on key for ttl.
func (r *Repository) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.rdb == nil {
		return true, nil
	}
	return r.rdb.SetNX(ctx, "lock:"+key, r.now().UnixNano(), ttl).Result()
}
