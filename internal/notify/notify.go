// Package notify holds the hooks run after a transfer settles. Hooks are
// advisory: their failures are logged by the caller and never affect the
// committed ledger state.
package notify

import (
	"context"
	"errors"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"go.uber.org/zap"
)

type Hook interface {
	OnSettled(ctx context.Context, t *model.Transaction) error
}

// LogHook records settled transactions in the service log.
type LogHook struct {
	Log *zap.SugaredLogger
}

func (h LogHook) OnSettled(ctx context.Context, t *model.Transaction) error {
	h.Log.Infof("transaction settled ref=%s amount=%s %s status=%s",
		t.ReferenceID, t.Amount, t.Currency, t.Status)
	return nil
}

// Multi runs every hook and joins their errors.
type Multi []Hook

func (m Multi) OnSettled(ctx context.Context, t *model.Transaction) error {
	var errs []error
	for _, h := range m {
		if err := h.OnSettled(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
