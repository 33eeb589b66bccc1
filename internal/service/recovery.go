package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/metrics"
	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/richardliu001/wallet-ledger/internal/repo"
	"github.com/richardliu001/wallet-ledger/internal/transport/queue"
	"go.uber.org/zap"
)

const recoveryLockKey = "recovery-sweep"

// Locker grants a short exclusive lease, so parallel pollers do not sweep
// the same period twice.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type RecoveryConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

var DefaultRecoveryConfig = RecoveryConfig{Interval: time.Minute, StaleAfter: 5 * time.Minute, BatchSize: 100}

// RecoveryReport summarises one sweep.
type RecoveryReport struct {
	Scanned     int
	Republished int
	Skipped     int
	Failed      int
	// Locked is set when another instance held the sweep lease.
	Locked bool
}

// RecoveryScheduler republishes transfers that stayed PENDING too long. It
// does not know why they are stuck and relies on executor idempotency.
type RecoveryScheduler struct {
	store  repo.LedgerStore
	pub    queue.Publisher
	locker Locker
	log    *zap.SugaredLogger
	cfg    RecoveryConfig
	now    func() time.Time
}

// NewRecoveryScheduler returns RecoveryScheduler. locker may be nil.
func NewRecoveryScheduler(store repo.LedgerStore, pub queue.Publisher, locker Locker, cfg RecoveryConfig, logger *zap.SugaredLogger) *RecoveryScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRecoveryConfig.Interval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultRecoveryConfig.StaleAfter
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRecoveryConfig.BatchSize
	}
	return &RecoveryScheduler{store: store, pub: pub, locker: locker, log: logger, cfg: cfg, now: time.Now}
}

// Run sweeps every Interval until ctx is done.
func (s *RecoveryScheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Infof("recovery scheduler started interval=%s stale_after=%s", s.cfg.Interval, s.cfg.StaleAfter)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Errorf("recovery sweep: %v", err)
			}
		}
	}
}

// RunOnce republishes every PENDING transfer older than StaleAfter, reading
// BatchSize rows per page. Rows that cannot be rebuilt are logged and
// skipped.
func (s *RecoveryScheduler) RunOnce(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, recoveryLockKey, s.cfg.Interval-s.cfg.Interval/10)
		switch {
		case err != nil:
			s.log.Warnf("recovery lock unavailable, sweeping anyway: %v", err)
		case !ok:
			report.Locked = true
			return report, nil
		}
	}

	cutoff := s.now().Add(-s.cfg.StaleAfter)
	var after repo.PendingCursor
	for {
		page, err := s.store.StalePending(ctx, cutoff, after, s.cfg.BatchSize)
		if err != nil {
			return report, fmt.Errorf("scan stale pending: %w", err)
		}
		if len(page) > 0 {
			s.log.Infof("found %d stuck PENDING transactions, attempting recovery", len(page))
		}
		for i := range page {
			s.recover(ctx, &page[i], &report)
		}
		if len(page) < s.cfg.BatchSize {
			break
		}
		// skipped rows stay PENDING, so the next page starts past them
		after = repo.CursorAfter(&page[len(page)-1])
	}
	return report, nil
}

func (s *RecoveryScheduler) recover(ctx context.Context, t *model.Transaction, report *RecoveryReport) {
	report.Scanned++
	evt, err := s.rebuildEvent(ctx, t)
	if err != nil {
		if errors.Is(err, ErrDataIntegrity) {
			s.log.Errorf("cannot recover transaction ref=%s: %v", t.ReferenceID, err)
			report.Skipped++
		} else {
			s.log.Errorf("load transaction ref=%s: %v", t.ReferenceID, err)
			report.Failed++
		}
		return
	}
	if err := s.pub.Publish(ctx, evt); err != nil {
		s.log.Errorf("republish transaction ref=%s: %v", t.ReferenceID, err)
		report.Failed++
		return
	}
	report.Republished++
	metrics.RecoveryRepublished.Inc()
	s.log.Infof("re-submitted transaction ref=%s", t.ReferenceID)
}

// rebuildEvent derives the event from stored fields only.
func (s *RecoveryScheduler) rebuildEvent(ctx context.Context, t *model.Transaction) (model.TransferEvent, error) {
	if t.ReceiverWalletID == nil {
		return model.TransferEvent{}, fmt.Errorf("%w: receiver wallet missing", ErrDataIntegrity)
	}
	if t.SenderWalletID == nil {
		return model.TransferEvent{}, fmt.Errorf("%w: sender wallet missing", ErrDataIntegrity)
	}
	receiver, err := s.store.WalletByID(ctx, *t.ReceiverWalletID)
	if err != nil {
		return model.TransferEvent{}, partyErr(t, "receiver", err)
	}
	sender, err := s.store.WalletByID(ctx, *t.SenderWalletID)
	if err != nil {
		return model.TransferEvent{}, partyErr(t, "sender", err)
	}
	return model.TransferEvent{
		ReferenceID:          t.ReferenceID,
		SenderUserID:         sender.UserID,
		TransactionID:        t.ID,
		ReceiverWalletNumber: receiver.WalletNumber,
		Amount:               t.Amount,
		Currency:             t.Currency,
		Description:          t.Description,
	}, nil
}
