package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/richardliu001/wallet-ledger/internal/repo"
	"go.uber.org/zap"
)

// RetryPolicy bounds optimistic-lock retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is three attempts starting at 100ms.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return p
}

// delay returns a full-jitter exponential delay for the given retry number.
func (p RetryPolicy) delay(retry int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 0; i < retry && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return time.Duration(rand.Int63n(int64(d)) + 1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryOnConflict runs fn until it returns something other than a version
// conflict, or the policy is exhausted. Exhaustion wraps ErrSettlementDeferred.
func retryOnConflict(ctx context.Context, p RetryPolicy, log *zap.SugaredLogger, label string, fn func() error) error {
	p = p.withDefaults()
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if werr := sleepContext(ctx, p.delay(attempt-2)); werr != nil {
				return werr
			}
		}
		err = fn()
		if !errors.Is(err, repo.ErrVersionConflict) {
			return err
		}
		log.Warnf("%s: conflict on attempt %d/%d: %v", label, attempt, p.MaxAttempts, err)
	}
	return fmt.Errorf("%s after %d attempts: %w: %w", label, p.MaxAttempts, ErrSettlementDeferred, err)
}
