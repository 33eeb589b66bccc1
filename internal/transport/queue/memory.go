package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/richardliu001/wallet-ledger/internal/model"
)

// ErrQueueFull is returned when the in-memory buffer is saturated.
var ErrQueueFull = errors.New("queue full")

// ErrDropped is returned by a MemoryQueue told to lose publishes.
var ErrDropped = errors.New("publish dropped")

// MemoryQueue is an in-process transport for single-binary runs and tests.
type MemoryQueue struct {
	ch   chan model.TransferEvent
	drop atomic.Bool

	mu        sync.Mutex
	published []model.TransferEvent
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan model.TransferEvent, size)}
}

// DropPublishes makes subsequent Publish calls fail without enqueuing.
func (q *MemoryQueue) DropPublishes(drop bool) { q.drop.Store(drop) }

func (q *MemoryQueue) Publish(ctx context.Context, evt model.TransferEvent) error {
	if q.drop.Load() {
		return ErrDropped
	}
	select {
	case q.ch <- evt:
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
	q.mu.Lock()
	q.published = append(q.published, evt)
	q.mu.Unlock()
	return nil
}

// Published returns every event accepted so far.
func (q *MemoryQueue) Published() []model.TransferEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.TransferEvent, len(q.published))
	copy(out, q.published)
	return out
}

// Len reports the number of undelivered events.
func (q *MemoryQueue) Len() int { return len(q.ch) }

// Drain hands every buffered event to h and returns the first handler error.
func (q *MemoryQueue) Drain(ctx context.Context, h Handler) error {
	var first error
	for {
		select {
		case evt := <-q.ch:
			if err := h(ctx, evt); err != nil && first == nil {
				first = err
			}
		default:
			return first
		}
	}
}

// Subscribe delivers events until ctx is done. ErrRedeliver puts the event
// back on the queue when there is room; other handler errors are dropped,
// matching the Kafka subscriber.
func (q *MemoryQueue) Subscribe(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-q.ch:
			if err := h(ctx, evt); errors.Is(err, ErrRedeliver) {
				select {
				case q.ch <- evt:
				default:
				}
			}
		}
	}
}
