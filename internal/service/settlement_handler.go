package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/richardliu001/wallet-ledger/internal/model"
	"github.com/richardliu001/wallet-ledger/internal/notify"
	"github.com/richardliu001/wallet-ledger/internal/transport/queue"
	"go.uber.org/zap"
)

// SettlementHandler is the queue consumer: it executes the transfer and then
// runs the notification hook for transfers it completed.
type SettlementHandler struct {
	exec *TransferExecutor
	hook notify.Hook
	log  *zap.SugaredLogger
}

func NewSettlementHandler(exec *TransferExecutor, hook notify.Hook, logger *zap.SugaredLogger) *SettlementHandler {
	return &SettlementHandler{exec: exec, hook: hook, log: logger}
}

// Handle matches queue.Handler. Returned errors leave the transaction
// PENDING; deferred settlements are marked for redelivery. Hook failures
// are never returned.
func (h *SettlementHandler) Handle(ctx context.Context, evt model.TransferEvent) error {
	t, applied, err := h.exec.execute(ctx, evt)
	if err != nil {
		h.log.Errorf("transfer ref=%s not settled: %v", evt.ReferenceID, err)
		if errors.Is(err, ErrSettlementDeferred) {
			return fmt.Errorf("%w: %w", queue.ErrRedeliver, err)
		}
		return err
	}
	if applied && t.Status == model.StatusCompleted {
		h.notify(ctx, t)
	}
	return nil
}

func (h *SettlementHandler) notify(ctx context.Context, t *model.Transaction) {
	if h.hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.log.Errorf("notification hook panicked ref=%s: %v", t.ReferenceID, r)
		}
	}()
	if err := h.hook.OnSettled(ctx, t); err != nil {
		h.log.Errorf("notification hook ref=%s: %v", t.ReferenceID, err)
	}
}
