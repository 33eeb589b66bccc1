// Package queue carries TransferEvents from the initiator to the executor.
// Delivery is at-least-once with no ordering guarantee across events, and a
// publish may fail; the PENDING row in the ledger is the recovery anchor.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/richardliu001/wallet-ledger/internal/model"
)

// ErrRedeliver, wrapped in a Handler error, asks the subscriber to hand the
// same event over again later instead of acknowledging it.
var ErrRedeliver = errors.New("redeliver event")

// Publisher sends one event. A nil error only means the transport accepted it.
type Publisher interface {
	Publish(ctx context.Context, evt model.TransferEvent) error
}

// Handler processes one delivered event. It may be invoked more than once for
// the same event. Errors other than ErrRedeliver acknowledge the event.
type Handler func(ctx context.Context, evt model.TransferEvent) error

// Subscriber delivers events to h until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
}

func encode(evt model.TransferEvent) ([]byte, error) {
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", evt.ReferenceID, err)
	}
	return b, nil
}

func decode(b []byte) (model.TransferEvent, error) {
	var evt model.TransferEvent
	if err := json.Unmarshal(b, &evt); err != nil {
		return evt, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}
